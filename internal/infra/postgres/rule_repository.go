package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/adscanio/api/pkg/domain/rule"
	"github.com/adscanio/api/pkg/domain/shared"
)

// RuleRepository implements rule.Repository using PostgreSQL. All
// access is read-only; rules are owned by the management subsystem.
type RuleRepository struct {
	db *DB
}

// NewRuleRepository creates a new RuleRepository.
func NewRuleRepository(db *DB) *RuleRepository {
	return &RuleRepository{db: db}
}

const ruleColumns = `
	id, rule_set_id, type, version, name, text, bypass_threshold, platforms
`

// GetByID retrieves a rule by ID.
func (r *RuleRepository) GetByID(ctx context.Context, id shared.ID) (*rule.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE id = $1`
	rl, err := r.scanRule(r.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NewDomainError("NOT_FOUND", "rule not found", shared.ErrNotFound)
	}
	return rl, err
}

// ListGlobalRules lists rules in the advertiser's global rule sets.
func (r *RuleRepository) ListGlobalRules(ctx context.Context, advertiserID shared.ID) ([]*rule.Rule, error) {
	query := `
		SELECT ` + qualifyRuleColumns("r") + `
		FROM rules r
		JOIN rule_sets rs ON rs.id = r.rule_set_id
		WHERE rs.advertiser_id = $1 AND rs.scope = 'advertiser_global'
		ORDER BY r.id
	`
	return r.queryRules(ctx, query, advertiserID.String())
}

// ListDefaultRuleSetIDs lists the advertiser's default rule set IDs.
func (r *RuleRepository) ListDefaultRuleSetIDs(ctx context.Context, advertiserID shared.ID) ([]shared.ID, error) {
	query := `SELECT id FROM rule_sets WHERE advertiser_id = $1 AND scope = 'advertiser_default'`
	return r.queryIDs(ctx, query, advertiserID.String())
}

// ListProductRuleSetIDs lists rule set IDs assigned to a product.
func (r *RuleRepository) ListProductRuleSetIDs(ctx context.Context, productID shared.ID) ([]shared.ID, error) {
	query := `
		SELECT rs.id
		FROM rule_sets rs
		JOIN product_rule_sets prs ON prs.rule_set_id = rs.id
		WHERE prs.product_id = $1 AND rs.scope = 'product'
	`
	return r.queryIDs(ctx, query, productID.String())
}

// ListRulesBySetIDs lists all rules belonging to the given sets.
func (r *RuleRepository) ListRulesBySetIDs(ctx context.Context, setIDs []shared.ID) ([]*rule.Rule, error) {
	if len(setIDs) == 0 {
		return nil, nil
	}
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE rule_set_id = ANY($1) ORDER BY id`
	return r.queryRules(ctx, query, pq.Array(idStrings(setIDs)))
}

// ListOverrides lists the per-product include/exclude overrides.
func (r *RuleRepository) ListOverrides(ctx context.Context, productID shared.ID) ([]*rule.Override, error) {
	query := `SELECT product_id, rule_id, action FROM product_rule_overrides WHERE product_id = $1`

	rows, err := r.db.QueryContext(ctx, query, productID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}
	defer rows.Close()

	var overrides []*rule.Override
	for rows.Next() {
		var (
			o      rule.Override
			action string
		)
		if err := rows.Scan(&o.ProductID, &o.RuleID, &action); err != nil {
			return nil, fmt.Errorf("failed to scan override row: %w", err)
		}
		o.Action = rule.OverrideAction(action)
		overrides = append(overrides, &o)
	}
	return overrides, rows.Err()
}

// GetDispositionPolicy retrieves the organization's auto-disposition
// policy, or nil when none is configured.
func (r *RuleRepository) GetDispositionPolicy(ctx context.Context, organizationID shared.ID) (*rule.DispositionPolicy, error) {
	query := `
		SELECT organization_id, confidence_threshold,
		       auto_approve_compliant, auto_remediate_violation
		FROM disposition_policies
		WHERE organization_id = $1
	`

	var (
		policy    rule.DispositionPolicy
		threshold sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, query, organizationID.String()).Scan(
		&policy.OrganizationID, &threshold,
		&policy.AutoApproveCompliant, &policy.AutoRemediateViolation,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get disposition policy: %w", err)
	}

	if threshold.Valid {
		t := int(threshold.Int64)
		policy.ConfidenceThreshold = &t
	}
	return &policy, nil
}

func (r *RuleRepository) scanRule(row rowScanner) (*rule.Rule, error) {
	var (
		rl        rule.Rule
		threshold sql.NullFloat64
		platforms pq.StringArray
	)

	err := row.Scan(
		&rl.ID, &rl.RuleSetID, &rl.Type, &rl.Version, &rl.Name, &rl.Text,
		&threshold, &platforms,
	)
	if err != nil {
		return nil, err
	}

	rl.BypassThreshold = nullFloatValue(threshold)
	rl.Platforms = []string(platforms)
	return &rl, nil
}

func (r *RuleRepository) queryRules(ctx context.Context, query string, args ...any) ([]*rule.Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*rule.Rule
	for rows.Next() {
		rl, err := r.scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}
		rules = append(rules, rl)
	}
	return rules, rows.Err()
}

func (r *RuleRepository) queryIDs(ctx context.Context, query string, args ...any) ([]shared.ID, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule set ids: %w", err)
	}
	defer rows.Close()

	var ids []shared.ID
	for rows.Next() {
		var id shared.ID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan rule set id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func qualifyRuleColumns(alias string) string {
	return alias + `.id, ` + alias + `.rule_set_id, ` + alias + `.type, ` +
		alias + `.version, ` + alias + `.name, ` + alias + `.text, ` +
		alias + `.bypass_threshold, ` + alias + `.platforms`
}
