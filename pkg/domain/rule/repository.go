package rule

import (
	"context"

	"github.com/adscanio/api/pkg/domain/shared"
)

// Repository defines read-only access to rules, rule sets, overrides
// and the organization disposition policy.
type Repository interface {
	// GetByID retrieves a rule by ID.
	GetByID(ctx context.Context, id shared.ID) (*Rule, error)

	// ListGlobalRules lists rules in advertiser-global rule sets,
	// evaluated against every content item independent of products.
	ListGlobalRules(ctx context.Context, advertiserID shared.ID) ([]*Rule, error)

	// ListDefaultRuleSetIDs lists the advertiser's default rule set IDs.
	ListDefaultRuleSetIDs(ctx context.Context, advertiserID shared.ID) ([]shared.ID, error)

	// ListProductRuleSetIDs lists rule set IDs assigned to a product.
	ListProductRuleSetIDs(ctx context.Context, productID shared.ID) ([]shared.ID, error)

	// ListRulesBySetIDs lists all rules belonging to the given sets.
	ListRulesBySetIDs(ctx context.Context, setIDs []shared.ID) ([]*Rule, error)

	// ListOverrides lists the per-product include/exclude overrides.
	ListOverrides(ctx context.Context, productID shared.ID) ([]*Override, error)

	// GetDispositionPolicy retrieves the organization's auto-disposition
	// policy, or nil when none is configured.
	GetDispositionPolicy(ctx context.Context, organizationID shared.ID) (*DispositionPolicy, error)
}
