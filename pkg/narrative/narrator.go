package narrative

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/runsight/server/pkg/analysis"
	"github.com/runsight/server/pkg/domain/moment"
)

const defaultModel = "gemini-2.0-flash"

// Generator produces one short sentence per detected moment using Google
// Gemini. It is strictly best-effort: callers without an API key get
// Available() == false and should skip generation entirely.
type Generator struct {
	APIKey string
	Model  string
}

func NewGenerator(apiKey string) *Generator {
	return &Generator{APIKey: apiKey, Model: defaultModel}
}

func (g *Generator) Available() bool {
	return g != nil && g.APIKey != ""
}

// Generate asks the model for a numbered sentence per moment and returns the
// parsed overlay. Results with no moments produce an empty overlay without
// calling the model.
func (g *Generator) Generate(ctx context.Context, res *analysis.Result) (*Overlay, error) {
	ov := &Overlay{
		ResultKey:  res.Key,
		ActivityID: res.ActivityID,
		Model:      g.Model,
		Sentences:  []Sentence{},
		CreatedAt:  time.Now().UTC(),
	}
	if len(res.Moments) == 0 {
		return ov, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(g.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(g.Model)
	model.SetTemperature(0.7)
	model.SetTopP(0.9)
	model.SetMaxOutputTokens(60 * int32(len(res.Moments)))

	prompt := buildMomentPrompt(res)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no content generated")
	}

	rawOutput := ""
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			rawOutput += string(text)
		}
	}

	ov.Sentences = parseSentences(rawOutput, len(res.Moments))
	return ov, nil
}

func buildMomentPrompt(res *analysis.Result) string {
	var b strings.Builder
	b.WriteString(`You are a running analyst. For each numbered event below, write exactly one short factual sentence describing it in plain language.

Run context:
`)
	b.WriteString(buildRunContext(res))
	b.WriteString("\nEvents:\n")
	for i, m := range res.Moments {
		fmt.Fprintf(&b, "%d. %s at %s", i+1, strings.ReplaceAll(m.Type, "_", " "), formatClock(m.TimeS))
		switch m.Type {
		case moment.TypePaceSurge:
			fmt.Fprintf(&b, " (pace %.0f s/km)", m.Value)
		case moment.TypeCadenceDrop:
			fmt.Fprintf(&b, " (cadence %.0f spm)", m.Value)
		case moment.TypeDriftOnset:
			fmt.Fprintf(&b, " (HR/pace ratio %.1f%% above baseline)", m.Value)
		}
		b.WriteString("\n")
	}
	b.WriteString(`
Guidelines:
- One sentence per event, maximum 15 words each.
- DO NOT address the runner directly (avoid "you", "your").
- No motivational cliches, just describe what happened.
- Respond with ONLY numbered lines in the form "1. sentence", one per event.`)
	return b.String()
}

func buildRunContext(res *analysis.Result) string {
	var parts []string
	if n := len(res.Stream); n > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %s", formatClock(res.Stream[n-1].TimeS)))
	}
	parts = append(parts, fmt.Sprintf("Analysis basis: %s (confidence %.2f)", res.TierUsed, res.Confidence))
	if len(res.Segments) > 0 {
		names := make([]string, 0, len(res.Segments))
		for _, seg := range res.Segments {
			names = append(names, string(seg.Type))
		}
		parts = append(parts, fmt.Sprintf("Phases: %s", strings.Join(names, ", ")))
	}
	return strings.Join(parts, "\n")
}

// parseSentences extracts "N. text" or "N: text" lines. Lines that do not
// parse, duplicate an index, or point past the moment list are dropped.
func parseSentences(rawOutput string, momentCount int) []Sentence {
	out := []Sentence{}
	seen := map[int]bool{}
	for _, line := range strings.Split(strings.TrimSpace(rawOutput), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cut := strings.IndexAny(line, ".:")
		if cut <= 0 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(line[:cut]))
		if err != nil || n < 1 || n > momentCount || seen[n] {
			continue
		}
		text := strings.TrimSpace(line[cut+1:])
		text = strings.Trim(text, "*_`")
		if text == "" {
			continue
		}
		seen[n] = true
		out = append(out, Sentence{MomentIndex: n - 1, Text: text})
	}
	return out
}

func formatClock(timeS float64) string {
	total := int(timeS)
	if total < 0 {
		total = 0
	}
	m := total / 60
	s := total % 60
	return fmt.Sprintf("%d:%02d", m, s)
}
