// Package rule contains the compliance rule read models: rules, rule
// sets, per-product overrides and the organization auto-disposition
// policy. All of them are owned by the management subsystem.
package rule

import (
	"github.com/adscanio/api/pkg/domain/shared"
)

// RuleType classifies what a rule checks for.
type RuleType string

const (
	RuleTypeFeeDisclosure  RuleType = "fee_disclosure"
	RuleTypeMarketingClaim RuleType = "marketing_claim"
	RuleTypeDisclaimer     RuleType = "disclaimer"
	RuleTypeProhibited     RuleType = "prohibited_content"
)

// Rule is a single compliance requirement evaluated against content.
type Rule struct {
	ID        shared.ID
	RuleSetID shared.ID
	Type      RuleType
	Version   int
	Name      string

	// Text is the requirement as shown to the evaluation model.
	Text string

	// BypassThreshold, when set, auto-finalizes flags whose evaluator
	// confidence reaches it, skipping human review.
	BypassThreshold *float64

	// Platforms restricts applicability; empty means all platforms.
	Platforms []string
}

// AppliesToPlatform reports whether the rule applies to content from
// the given (normalized) platform.
func (r *Rule) AppliesToPlatform(platform string) bool {
	if len(r.Platforms) == 0 {
		return true
	}
	for _, p := range r.Platforms {
		if p == platform {
			return true
		}
	}
	return false
}

// RuleSetScope says where a rule set attaches.
type RuleSetScope string

const (
	// ScopeAdvertiserGlobal rule sets run against every content item of
	// the advertiser, independent of products.
	ScopeAdvertiserGlobal RuleSetScope = "advertiser_global"
	// ScopeAdvertiserDefault rule sets apply to every product unless
	// overridden.
	ScopeAdvertiserDefault RuleSetScope = "advertiser_default"
	// ScopeProduct rule sets apply only to products they are assigned to.
	ScopeProduct RuleSetScope = "product"
)

// RuleSet groups rules for assignment at advertiser or product level.
type RuleSet struct {
	ID           shared.ID
	AdvertiserID shared.ID
	Name         string
	Scope        RuleSetScope
}

// OverrideAction is a per-product include or exclude of a single rule.
type OverrideAction string

const (
	OverrideInclude OverrideAction = "include"
	OverrideExclude OverrideAction = "exclude"
)

// Override adjusts the resolved rule set for one product, applied after
// set union.
type Override struct {
	ProductID shared.ID
	RuleID    shared.ID
	Action    OverrideAction
}

// DispositionPolicy is the organization-wide auto-disposition policy.
// Threshold is a 0-100 confidence percentage; flags strictly above it
// are eligible.
type DispositionPolicy struct {
	OrganizationID         shared.ID
	ConfidenceThreshold    *int
	AutoApproveCompliant   bool
	AutoRemediateViolation bool
}

// Enabled reports whether the policy can act on any flag at all.
func (p *DispositionPolicy) Enabled() bool {
	if p == nil || p.ConfidenceThreshold == nil {
		return false
	}
	return p.AutoApproveCompliant || p.AutoRemediateViolation
}
