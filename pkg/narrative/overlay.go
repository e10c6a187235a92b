// Package narrative attaches optional coaching-language sentences to
// detected moments. Generation runs as an enrichment pass after a result is
// stored; the result document itself is never rewritten, so a generation
// failure can only ever mean "no narrative", never a broken analysis.
package narrative

import (
	"time"

	"github.com/runsight/server/pkg/analysis"
)

// Overlay is the narratives/{result_key} document: one generated sentence
// per narrated moment, addressed by position in the result's moment list.
type Overlay struct {
	ResultKey  string     `firestore:"result_key" json:"result_key"`
	ActivityID string     `firestore:"activity_id,omitempty" json:"activity_id,omitempty"`
	Model      string     `firestore:"model,omitempty" json:"model,omitempty"`
	Sentences  []Sentence `firestore:"sentences" json:"sentences"`
	CreatedAt  time.Time  `firestore:"created_at" json:"created_at"`
}

// Sentence narrates the moment at MomentIndex in the result's moments list.
type Sentence struct {
	MomentIndex int    `firestore:"moment_index" json:"moment_index"`
	Text        string `firestore:"text" json:"text"`
}

// Merge copies overlay sentences onto the decoded result's moments. A nil
// overlay or out-of-range index is skipped; moments keep their context
// labels as the guaranteed fallback either way.
func Merge(res *analysis.Result, ov *Overlay) {
	if res == nil || ov == nil {
		return
	}
	for _, s := range ov.Sentences {
		if s.MomentIndex < 0 || s.MomentIndex >= len(res.Moments) || s.Text == "" {
			continue
		}
		res.Moments[s.MomentIndex].Narrative = s.Text
	}
}
