// Package migrations provides scope-aware database migration loading
// and execution.
package migrations

import (
	"fmt"
	"strings"
)

// Scope classifies a migration by the subsystem that owns its tables.
type Scope string

const (
	// ScopeCore covers the tables this service writes: scan jobs and
	// runs, content, flags and the audit log.
	ScopeCore Scope = "core"

	// ScopeManagement covers the read-side catalog tables (publishers,
	// channels, products, rules, policies). In production they are
	// provisioned by the management console; standalone and development
	// deployments create them here.
	ScopeManagement Scope = "management"
)

// Target selects which scopes a deployment applies.
type Target string

const (
	TargetCore       Target = "core"
	TargetStandalone Target = "standalone"
)

// IsValid checks if the target is valid.
func (t Target) IsValid() bool {
	switch t {
	case TargetCore, TargetStandalone:
		return true
	default:
		return false
	}
}

// ParseTarget parses a target string.
func ParseTarget(s string) (Target, error) {
	t := Target(strings.ToLower(s))
	if !t.IsValid() {
		return "", fmt.Errorf("invalid migration target: %s (valid: core, standalone)", s)
	}
	return t, nil
}

// Includes reports whether the target applies migrations of the given
// scope. Core-only deployments rely on the management console for the
// catalog tables; standalone deployments create everything.
func (t Target) Includes(s Scope) bool {
	if t == TargetStandalone {
		return true
	}
	return s == ScopeCore
}

// migrationScopes maps migration versions to their scope.
//
// Convention:
// - 000001-000009: core (tables this service writes)
// - 000010+: management catalog (standalone deployments only)
var migrationScopes = map[string]Scope{
	"000001": ScopeCore, // scan_jobs and link tables
	"000002": ScopeCore, // scan_job_runs
	"000003": ScopeCore, // content_items
	"000004": ScopeCore, // media_assets
	"000005": ScopeCore, // flags
	"000006": ScopeCore, // audit_entries

	"000010": ScopeManagement, // publishers, channels, products
	"000011": ScopeManagement, // rule sets, rules, disposition policies
}

// ScopeOf returns the scope for a migration version. Unclassified
// versions default to core so a forgotten map entry fails loudly on a
// core-only database rather than silently skipping the migration.
func ScopeOf(version string) Scope {
	if scope, ok := migrationScopes[version]; ok {
		return scope
	}
	return ScopeCore
}
