package firestore

import (
	"time"

	"cloud.google.com/go/firestore"

	shared "github.com/runsight/server/pkg"
	"github.com/runsight/server/pkg/analysis"
	"github.com/runsight/server/pkg/domain/athlete"
	"github.com/runsight/server/pkg/narrative"
	"github.com/runsight/server/pkg/types"
)

// ResultDocument is the analysis_results/{key} shape. The encoded result
// stays opaque bytes so the stored payload is byte-identical to what the
// engine produced; Firestore never re-orders its fields.
type ResultDocument struct {
	Key       string    `firestore:"key"`
	Data      []byte    `firestore:"data"`
	CreatedAt time.Time `firestore:"created_at"`
}

type Client struct {
	fs *firestore.Client
}

func NewClient(client *firestore.Client) *Client {
	return &Client{fs: client}
}

func (c *Client) Close() error {
	return c.fs.Close()
}

func (c *Client) Athletes() *Collection[athlete.Record] {
	return &Collection[athlete.Record]{Ref: c.fs.Collection(shared.CollectionAthletes)}
}

func (c *Client) Executions() *Collection[types.ExecutionRecord] {
	return &Collection[types.ExecutionRecord]{Ref: c.fs.Collection(shared.CollectionExecutions)}
}

// AnalysisRecords holds one lifecycle document per (activity, plan) pair,
// keyed deterministically so repeated requests land on the same document.
func (c *Client) AnalysisRecords() *Collection[analysis.Record] {
	return &Collection[analysis.Record]{Ref: c.fs.Collection(shared.CollectionAnalyses)}
}

// AnalysisResults holds the immutable result payloads. Documents here are
// only ever created, never updated.
func (c *Client) AnalysisResults() *Collection[ResultDocument] {
	return &Collection[ResultDocument]{Ref: c.fs.Collection(shared.CollectionAnalysisResults)}
}

// Narratives holds generated overlays keyed by result key.
func (c *Client) Narratives() *Collection[narrative.Overlay] {
	return &Collection[narrative.Overlay]{Ref: c.fs.Collection(shared.CollectionNarratives)}
}
