package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adscanio/api/internal/infra/llm"
	"github.com/adscanio/api/internal/metrics"
	"github.com/adscanio/api/pkg/domain/flag"
	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/logger"
)

// examplePoolSize bounds how many reviewed flags are offered to the
// ranking call.
const examplePoolSize = 25

// Example is one past human-reviewed ruling judged relevant to the
// context under evaluation.
type Example struct {
	ContextText string `json:"context_text"`
	Ruling      string `json:"ruling"`
	Reasoning   string `json:"reasoning"`
	Reason      string `json:"selection_reason"`
}

// ExampleCache caches ranked example sets per rule and context digest.
type ExampleCache interface {
	Get(ctx context.Context, ruleID, digest string, out any) bool
	Put(ctx context.Context, ruleID, digest string, value any)
}

const librarianSystemPrompt = `You select which past compliance review decisions are most
relevant to a new piece of content. Respond with a JSON array; each element is an object
with fields "index" (the candidate number), and "selection_reason" (one sentence). Select
at most the number of examples requested, most relevant first. Respond with [] when no
candidate is genuinely relevant.`

// Librarian supplies past human-reviewed examples for a rule, ranked
// by relevance to the context under evaluation.
type Librarian struct {
	flagRepo flag.Repository
	provider llm.Provider
	cache    ExampleCache
	topK     int
	logger   *logger.Logger
}

// NewLibrarian creates a librarian.
func NewLibrarian(flagRepo flag.Repository, provider llm.Provider, cache ExampleCache, topK int, log *logger.Logger) *Librarian {
	if topK <= 0 {
		topK = 3
	}
	return &Librarian{
		flagRepo: flagRepo,
		provider: provider,
		cache:    cache,
		topK:     topK,
		logger:   log.With("component", "librarian"),
	}
}

// FindRelevantExamples fetches past human-reviewed flags for the rule
// and ranks them against the context snippet. Having no examples is
// not an error; the evaluation proceeds without them.
func (l *Librarian) FindRelevantExamples(ctx context.Context, ruleID shared.ID, ruleVersion int, contextSnippet string) ([]Example, error) {
	digest := snippetDigest(contextSnippet)

	var cached []Example
	if l.cache != nil && l.cache.Get(ctx, ruleID.String(), digest, &cached) {
		return cached, nil
	}

	reviewed, err := l.flagRepo.ListReviewedByRule(ctx, ruleID, examplePoolSize)
	if err != nil {
		return nil, fmt.Errorf("list reviewed flags: %w", err)
	}
	if len(reviewed) == 0 {
		return []Example{}, nil
	}

	examples, err := l.rank(ctx, reviewed, contextSnippet)
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		l.cache.Put(ctx, ruleID.String(), digest, examples)
	}
	return examples, nil
}

// rank asks the model to pick the most relevant candidates.
func (l *Librarian) rank(ctx context.Context, reviewed []*flag.Flag, contextSnippet string) ([]Example, error) {
	var prompt string
	prompt += fmt.Sprintf("New content under review:\n%s\n\nCandidates (select up to %d):\n", contextSnippet, l.topK)
	for i, f := range reviewed {
		prompt += fmt.Sprintf("\n[%d] ruling=%s\ncontext: %s\nreasoning: %s\n", i, f.Ruling, f.ContextText, f.Reasoning)
	}

	start := time.Now()
	resp, err := l.provider.Generate(ctx, llm.Request{
		SystemPrompt: librarianSystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart(prompt)}}},
		JSONMode:     true,
	})
	metrics.LLMCallDuration.WithLabelValues("librarian").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues("librarian", "error").Inc()
		return nil, fmt.Errorf("ranking call: %w", err)
	}
	metrics.LLMCallsTotal.WithLabelValues("librarian", "success").Inc()

	var picks []struct {
		Index  int    `json:"index"`
		Reason string `json:"selection_reason"`
	}
	if err := json.Unmarshal([]byte(resp.Content), &picks); err != nil {
		l.logger.WithError(err).Warn("unparseable ranking response, returning no examples")
		return []Example{}, nil
	}

	examples := make([]Example, 0, l.topK)
	for _, pick := range picks {
		if pick.Index < 0 || pick.Index >= len(reviewed) {
			continue
		}
		f := reviewed[pick.Index]
		examples = append(examples, Example{
			ContextText: f.ContextText,
			Ruling:      string(f.Ruling),
			Reasoning:   f.Reasoning,
			Reason:      pick.Reason,
		})
		if len(examples) == l.topK {
			break
		}
	}
	return examples, nil
}

func snippetDigest(snippet string) string {
	sum := sha256.Sum256([]byte(snippet))
	return hex.EncodeToString(sum[:8])
}
