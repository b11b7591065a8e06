// Package analysis contains the AI compliance pipeline: mention
// extraction, agentic rule evaluation, flag persistence and the
// post-scan auto-disposition processor.
package analysis

import (
	"context"
	"fmt"

	"github.com/adscanio/api/pkg/domain/rule"
	"github.com/adscanio/api/pkg/domain/shared"
)

// RuleResolver computes the applicable rule set for each analysis
// pass.
type RuleResolver struct {
	ruleRepo rule.Repository
}

// NewRuleResolver creates a rule resolver.
func NewRuleResolver(ruleRepo rule.Repository) *RuleResolver {
	return &RuleResolver{ruleRepo: ruleRepo}
}

// GlobalRules returns the advertiser-global rules applicable to the
// given platform.
func (r *RuleResolver) GlobalRules(ctx context.Context, advertiserID shared.ID, platform string) ([]*rule.Rule, error) {
	rules, err := r.ruleRepo.ListGlobalRules(ctx, advertiserID)
	if err != nil {
		return nil, fmt.Errorf("list global rules: %w", err)
	}
	return filterByPlatform(rules, platform), nil
}

// ProductRules resolves the rule set for one product: the union of the
// advertiser's default rule sets and the product's assigned rule sets,
// with per-product include/exclude overrides applied last, filtered by
// platform applicability.
func (r *RuleResolver) ProductRules(ctx context.Context, advertiserID, productID shared.ID, platform string) ([]*rule.Rule, error) {
	defaultSets, err := r.ruleRepo.ListDefaultRuleSetIDs(ctx, advertiserID)
	if err != nil {
		return nil, fmt.Errorf("list default rule sets: %w", err)
	}
	productSets, err := r.ruleRepo.ListProductRuleSetIDs(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list product rule sets: %w", err)
	}

	setIDs := make([]shared.ID, 0, len(defaultSets)+len(productSets))
	seen := make(map[shared.ID]bool)
	for _, id := range append(defaultSets, productSets...) {
		if !seen[id] {
			seen[id] = true
			setIDs = append(setIDs, id)
		}
	}

	rules, err := r.ruleRepo.ListRulesBySetIDs(ctx, setIDs)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}

	byID := make(map[shared.ID]*rule.Rule, len(rules))
	for _, rl := range rules {
		byID[rl.ID] = rl
	}

	// Overrides win over set membership in both directions.
	overrides, err := r.ruleRepo.ListOverrides(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	for _, o := range overrides {
		switch o.Action {
		case rule.OverrideExclude:
			delete(byID, o.RuleID)
		case rule.OverrideInclude:
			if _, ok := byID[o.RuleID]; ok {
				continue
			}
			included, err := r.ruleRepo.GetByID(ctx, o.RuleID)
			if err != nil {
				return nil, fmt.Errorf("load included rule: %w", err)
			}
			byID[included.ID] = included
		}
	}

	resolved := make([]*rule.Rule, 0, len(byID))
	for _, rl := range byID {
		resolved = append(resolved, rl)
	}
	return filterByPlatform(resolved, platform), nil
}

func filterByPlatform(rules []*rule.Rule, platform string) []*rule.Rule {
	out := rules[:0:0]
	for _, rl := range rules {
		if rl.AppliesToPlatform(platform) {
			out = append(out, rl)
		}
	}
	return out
}
