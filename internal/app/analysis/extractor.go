package analysis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adscanio/api/internal/infra/llm"
	"github.com/adscanio/api/internal/metrics"
	"github.com/adscanio/api/pkg/logger"
)

// Mention is one extractor-stage candidate span. Mentions are
// ephemeral; only the evaluator's rulings are persisted.
type Mention struct {
	Category       string
	ContextText    string
	SourceLocation string
	Confidence     float64
}

const extractorSystemPrompt = `You review marketing content for compliance-relevant statements.
Identify every span that could be relevant to financial compliance review: fee or pricing
disclosures, marketing claims about performance or benefits, required disclaimers, and
potentially prohibited content.

Report each span as a block in exactly this format:

---MENTION---
category: <fee_disclosure|marketing_claim|disclaimer|prohibited_content>
confidence: <0.0-1.0>
context: <the exact span plus enough surrounding text to judge it>
---END---

Report nothing else. If no relevant spans exist, respond with NONE.`

// Extractor runs the first pipeline stage: one AI call per modality
// that yields candidate mentions.
type Extractor struct {
	provider llm.Provider
	logger   *logger.Logger
}

// NewExtractor creates an extractor.
func NewExtractor(provider llm.Provider, log *logger.Logger) *Extractor {
	return &Extractor{provider: provider, logger: log.With("component", "extractor")}
}

// ExtractText extracts mentions from a text modality.
func (e *Extractor) ExtractText(ctx context.Context, text, sourceLocation string) ([]Mention, error) {
	parts := []llm.Part{llm.TextPart("Content to review:\n\n" + text)}
	return e.extract(ctx, parts, sourceLocation)
}

// ExtractMedia extracts mentions from an image or video modality.
func (e *Extractor) ExtractMedia(ctx context.Context, mimeType string, data []byte, sourceLocation string) ([]Mention, error) {
	parts := []llm.Part{
		llm.TextPart("Review the attached media for compliance-relevant statements, text overlays and depicted claims."),
		llm.MediaPart(mimeType, data),
	}
	return e.extract(ctx, parts, sourceLocation)
}

func (e *Extractor) extract(ctx context.Context, parts []llm.Part, sourceLocation string) ([]Mention, error) {
	start := time.Now()
	resp, err := e.provider.Generate(ctx, llm.Request{
		SystemPrompt: extractorSystemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Parts: parts}},
	})
	metrics.LLMCallDuration.WithLabelValues("extraction").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LLMCallsTotal.WithLabelValues("extraction", "error").Inc()
		return nil, fmt.Errorf("extraction call: %w", err)
	}
	metrics.LLMCallsTotal.WithLabelValues("extraction", "success").Inc()

	mentions := e.parseMentions(resp.Content, sourceLocation)
	return mentions, nil
}

// parseMentions reads the delimited mention blocks permissively:
// blocks missing a context line are dropped with a warning, unknown
// keys are ignored.
func (e *Extractor) parseMentions(output, sourceLocation string) []Mention {
	var mentions []Mention
	for _, block := range splitBlocks(output, "---MENTION---", "---END---") {
		m := Mention{SourceLocation: sourceLocation, Confidence: 0.5}
		for key, value := range blockFields(block) {
			switch key {
			case "category":
				m.Category = value
			case "confidence":
				if f, err := strconv.ParseFloat(value, 64); err == nil {
					m.Confidence = f
				}
			case "context":
				m.ContextText = value
			}
		}
		if strings.TrimSpace(m.ContextText) == "" {
			e.logger.Warn("dropping mention block without context", "source", sourceLocation)
			continue
		}
		mentions = append(mentions, m)
	}
	return mentions
}

// splitBlocks returns the text between each start/end delimiter pair.
func splitBlocks(output, start, end string) []string {
	var blocks []string
	rest := output
	for {
		i := strings.Index(rest, start)
		if i < 0 {
			return blocks
		}
		rest = rest[i+len(start):]
		j := strings.Index(rest, end)
		if j < 0 {
			// Unterminated trailing block, take what is there
			blocks = append(blocks, rest)
			return blocks
		}
		blocks = append(blocks, rest[:j])
		rest = rest[j+len(end):]
	}
}

// blockFields parses "key: value" lines; a value continues across
// following lines until the next known key.
func blockFields(block string) map[string]string {
	fields := make(map[string]string)
	var currentKey string
	for _, line := range strings.Split(block, "\n") {
		if key, value, ok := splitField(line); ok {
			currentKey = key
			fields[key] = value
			continue
		}
		if currentKey != "" && strings.TrimSpace(line) != "" {
			fields[currentKey] = strings.TrimSpace(fields[currentKey] + "\n" + line)
		}
	}
	return fields
}

func splitField(line string) (key, value string, ok bool) {
	i := strings.Index(line, ":")
	if i <= 0 {
		return "", "", false
	}
	key = strings.ToLower(strings.TrimSpace(line[:i]))
	switch key {
	case "category", "confidence", "context", "rule_id", "ruling", "reasoning", "start_ms", "end_ms":
		return key, strings.TrimSpace(line[i+1:]), true
	}
	return "", "", false
}
