package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/adscanio/api/internal/infra/llm"
	"github.com/adscanio/api/internal/metrics"
	"github.com/adscanio/api/pkg/domain/rule"
	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/logger"
)

// fetchExamplesTool is the single tool the evaluation model may call.
const fetchExamplesTool = "fetch_relevant_past_examples"

const evaluatorSystemPrompt = `You are a compliance reviewer. Judge the given content span
against each listed rule and issue a ruling per rule that applies.

Before ruling you may call ` + fetchExamplesTool + ` once to see how human reviewers ruled
on similar content for a rule.

Report each ruling as a block in exactly this format:

---FLAG---
rule_id: <the rule id being ruled on>
ruling: <compliant|violation>
confidence: <0.0-1.0>
context: <the exact content span the ruling refers to>
start_ms: <start of the transcript range in milliseconds, only for transcript spans>
end_ms: <end of the transcript range in milliseconds, only for transcript spans>
reasoning: <why>
---END---

Transcript lines are prefixed with their [start-end] millisecond range; copy that range
into start_ms and end_ms when the span comes from a transcript line, and omit both lines
otherwise.

Only emit blocks for rules that genuinely apply to the span. If none apply, respond with NONE.`

// ExampleSource is the librarian lookup the evaluator's tool call is
// served by.
type ExampleSource interface {
	FindRelevantExamples(ctx context.Context, ruleID shared.ID, ruleVersion int, contextSnippet string) ([]Example, error)
}

// Evaluation is the outcome of one evaluator call.
type Evaluation struct {
	// RawOutput is the model's final text, to be parsed into flag
	// blocks.
	RawOutput string

	// LibrarianConsulted is true when the tool round ran.
	LibrarianConsulted bool
	ExampleCount       int
}

// Evaluator runs the second pipeline stage: one focused AI call per
// extracted context, with a strict two-round tool protocol. At most
// one tool round is honored; an unrecognized tool name is logged and
// ignored, falling through to the initial response.
type Evaluator struct {
	provider  llm.Provider
	librarian ExampleSource
	logger    *logger.Logger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(provider llm.Provider, librarian ExampleSource, log *logger.Logger) *Evaluator {
	return &Evaluator{
		provider:  provider,
		librarian: librarian,
		logger:    log.With("component", "evaluator"),
	}
}

// Evaluate rules on one mention. media carries the image or video
// bytes for media modalities and is nil for text.
func (e *Evaluator) Evaluate(ctx context.Context, mention Mention, rules []*rule.Rule, media *llm.Part) (*Evaluation, error) {
	if len(rules) == 0 {
		return &Evaluation{}, nil
	}

	ruleIndex := make(map[string]*rule.Rule, len(rules))
	prompt := "Rules:\n"
	for _, rl := range rules {
		ruleIndex[rl.ID.String()] = rl
		prompt += fmt.Sprintf("\n[rule %s] %s (%s, v%d):\n%s\n", rl.ID, rl.Name, rl.Type, rl.Version, rl.Text)
	}
	prompt += fmt.Sprintf("\nContent span under review (from %s, extractor category %s):\n%s\n",
		mention.SourceLocation, mention.Category, mention.ContextText)

	parts := []llm.Part{llm.TextPart(prompt)}
	if media != nil {
		parts = append(parts, *media)
	}

	messages := []llm.Message{{Role: llm.RoleUser, Parts: parts}}
	resp, err := e.call(ctx, messages)
	if err != nil {
		return nil, err
	}

	if !resp.HasToolCalls() {
		return &Evaluation{RawOutput: resp.Content}, nil
	}

	call := resp.ToolCalls[0]
	if call.Name != fetchExamplesTool {
		e.logger.Warn("unrecognized tool requested, ignoring", "tool", call.Name)
		return &Evaluation{RawOutput: resp.Content}, nil
	}

	examples := e.lookupExamples(ctx, call, ruleIndex, mention)

	// Second and final round: the tool result goes back and the model
	// must now rule.
	messages = append(messages,
		llm.Message{Role: llm.RoleModel, Parts: []llm.Part{llm.TextPart(resp.Content)}},
		llm.Message{Role: llm.RoleTool, ToolResults: []llm.ToolResult{{
			Name:    fetchExamplesTool,
			Content: map[string]any{"examples": examples},
		}}},
	)

	final, err := e.call(ctx, messages)
	if err != nil {
		return nil, err
	}

	return &Evaluation{
		RawOutput:          final.Content,
		LibrarianConsulted: true,
		ExampleCount:       len(examples),
	}, nil
}

// lookupExamples serves the tool call. Lookup failure degrades to an
// empty example list with a note rather than failing the evaluation.
func (e *Evaluator) lookupExamples(ctx context.Context, call llm.ToolCall, ruleIndex map[string]*rule.Rule, mention Mention) []Example {
	ruleIDArg, _ := call.Args["rule_id"].(string)
	rl, ok := ruleIndex[ruleIDArg]
	if !ok {
		e.logger.Warn("tool call referenced unknown rule", "rule_id", ruleIDArg)
		return []Example{}
	}

	snippet, _ := call.Args["context"].(string)
	if snippet == "" {
		snippet = mention.ContextText
	}

	examples, err := e.librarian.FindRelevantExamples(ctx, rl.ID, rl.Version, snippet)
	if err != nil {
		e.logger.WithError(err).Warn("librarian lookup failed, proceeding without examples")
		return []Example{}
	}
	return examples
}

func (e *Evaluator) call(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	start := time.Now()
	resp, err := e.provider.Generate(ctx, llm.Request{
		SystemPrompt: evaluatorSystemPrompt,
		Messages:     messages,
		Tools: []llm.Tool{{
			Name:        fetchExamplesTool,
			Description: "Fetch past human-reviewed compliance decisions relevant to the content under review.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"rule_id": map[string]any{"type": "string", "description": "The rule to fetch examples for."},
					"context": map[string]any{"type": "string", "description": "The content span to match examples against."},
				},
				"required": []string{"rule_id"},
			},
		}},
	})
	metrics.LLMCallDuration.WithLabelValues("evaluation").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues("evaluation", "error").Inc()
		return nil, fmt.Errorf("evaluation call: %w", err)
	}
	metrics.LLMCallsTotal.WithLabelValues("evaluation", "success").Inc()
	return resp, nil
}
