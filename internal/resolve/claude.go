package resolve

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/pkg/anthropic"
)

const evaluatorSystemPrompt = `You are one member of an evaluation panel judging which candidate value for a company data field is most likely correct. Answer independently using only the information given.

Respond with exactly these lines and nothing else:
PREFERRED: <zero-based index of the best candidate>
CONFIDENCE: <0.0-1.0>
RELIABILITY: <0.0-1.0, how much the winning source can be trusted for this field>
RECENCY: <0.0-1.0, how fresh the winning claim likely is>
AGREEMENT: <0.0-1.0, how consistent the candidates are with each other>
REASONING: <one sentence>`

// ClaudeEvaluator asks an Anthropic model for one panel member's preference.
type ClaudeEvaluator struct {
	client      anthropic.Client
	model       string
	temperature float64
}

// NewClaudeEvaluator creates an evaluator over the given client. Temperature
// above zero keeps panel members from being carbon copies of each other.
func NewClaudeEvaluator(client anthropic.Client, modelID string, temperature float64) *ClaudeEvaluator {
	return &ClaudeEvaluator{client: client, model: modelID, temperature: temperature}
}

// ID implements Evaluator.
func (e *ClaudeEvaluator) ID() string { return "claude:" + e.model }

// Evaluate implements Evaluator. Transport errors propagate (the council
// drops the member); a malformed response never does — unparsable fields keep
// their defaults so the signal stays usable.
func (e *ClaudeEvaluator) Evaluate(ctx context.Context, field string, fieldType model.FieldType, candidates []CandidateValue, reliability map[string]float64) (Signal, error) {
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   300,
		System:      evaluatorSystemPrompt,
		Temperature: &e.temperature,
		Messages: []anthropic.Message{
			{Role: "user", Content: buildPrompt(field, fieldType, candidates, reliability)},
		},
	})
	if err != nil {
		return Signal{}, eris.Wrap(err, "resolve: evaluator call")
	}
	resp.Usage.LogCost(e.model, "resolve")

	return parseSignal(e.ID(), resp.Text()), nil
}

func buildPrompt(field string, fieldType model.FieldType, candidates []CandidateValue, reliability map[string]float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Field: %s (type: %s)\n\nCandidates:\n", field, fieldType)
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %v — reported by %s (tier %d, reliability %.2f)",
			i, c.Value, c.Source, c.Tier, reliability[c.Source])
		if !c.Timestamp.IsZero() {
			fmt.Fprintf(&b, ", fetched %s", c.Timestamp.Format("2006-01-02"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// parseSignal maps known line prefixes to typed fields. Anything it cannot
// parse keeps its default; a parse problem is never an error.
func parseSignal(evaluatorID, text string) Signal {
	sig := Signal{
		EvaluatorID:       evaluatorID,
		PreferredIndex:    0,
		Confidence:        0.5,
		ReliabilityWeight: 0.5,
		RecencyScore:      0.5,
		AgreementScore:    0.5,
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		prefix, rest, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		rest = strings.TrimSpace(rest)

		switch strings.ToUpper(strings.TrimSpace(prefix)) {
		case "PREFERRED":
			if n, err := strconv.Atoi(rest); err == nil && n >= 0 {
				sig.PreferredIndex = n
			}
		case "CONFIDENCE":
			if f, ok := parseUnitFloat(rest); ok {
				sig.Confidence = f
			}
		case "RELIABILITY":
			if f, ok := parseUnitFloat(rest); ok {
				sig.ReliabilityWeight = f
			}
		case "RECENCY":
			if f, ok := parseUnitFloat(rest); ok {
				sig.RecencyScore = f
			}
		case "AGREEMENT":
			if f, ok := parseUnitFloat(rest); ok {
				sig.AgreementScore = f
			}
		case "REASONING":
			sig.Reasoning = rest
		}
	}
	return sig
}

func parseUnitFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return clamp01(f), true
}
