package analysis

import (
	"strconv"
	"strings"

	"github.com/adscanio/api/pkg/domain/flag"
	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/logger"
)

// ParsedFlag is one accepted flag block from an evaluator response.
type ParsedFlag struct {
	RuleID      shared.ID
	Ruling      flag.Ruling
	Confidence  *float64
	ContextText string
	Reasoning   string
	StartMs     *int64
	EndMs       *int64
}

// parseFlagBlocks splits an evaluator response into flag blocks. A
// block must contain at minimum a rule id, context text and a valid
// ruling; partial or invalid blocks are dropped with a warning rather
// than failing the whole item.
func parseFlagBlocks(output string, log *logger.Logger) []ParsedFlag {
	var flags []ParsedFlag
	for _, block := range splitBlocks(output, "---FLAG---", "---END---") {
		fields := blockFields(block)

		ruleID, err := shared.IDFromString(fields["rule_id"])
		if err != nil {
			log.Warn("dropping flag block with invalid rule id", "rule_id", fields["rule_id"])
			continue
		}
		ruling := flag.Ruling(strings.ToLower(fields["ruling"]))
		if !ruling.IsValid() {
			log.Warn("dropping flag block with invalid ruling", "ruling", fields["ruling"])
			continue
		}
		contextText := strings.TrimSpace(fields["context"])
		if contextText == "" {
			log.Warn("dropping flag block without context", "rule_id", ruleID)
			continue
		}

		parsed := ParsedFlag{
			RuleID:      ruleID,
			Ruling:      ruling,
			ContextText: contextText,
			Reasoning:   fields["reasoning"],
		}
		if f, err := strconv.ParseFloat(fields["confidence"], 64); err == nil && f >= 0 && f <= 1 {
			parsed.Confidence = &f
		}
		if ms, err := strconv.ParseInt(fields["start_ms"], 10, 64); err == nil {
			parsed.StartMs = &ms
		}
		if ms, err := strconv.ParseInt(fields["end_ms"], 10, 64); err == nil {
			parsed.EndMs = &ms
		}

		flags = append(flags, parsed)
	}
	return flags
}
