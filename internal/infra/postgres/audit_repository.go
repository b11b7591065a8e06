package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/adscanio/api/pkg/domain/audit"
	"github.com/adscanio/api/pkg/domain/shared"
)

// AuditRepository implements audit.Repository using PostgreSQL.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditColumns = `
	id, organization_id, action, actor_type, actor_id,
	entity_type, entity_id, detail, triggered_by, created_at
`

// Create appends an audit entry.
func (r *AuditRepository) Create(ctx context.Context, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		return insertAuditEntry(ctx, tx, entry)
	})
}

// GetByID retrieves an entry by ID.
func (r *AuditRepository) GetByID(ctx context.Context, id shared.ID) (*audit.Entry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE id = $1`
	entry, err := r.scanEntry(r.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NewDomainError("NOT_FOUND", "audit entry not found", shared.ErrNotFound)
	}
	return entry, err
}

// GetLatestByAction retrieves the most recent entry with the given
// action for an organization, or nil when none exists.
func (r *AuditRepository) GetLatestByAction(ctx context.Context, organizationID shared.ID, action string) (*audit.Entry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audit_entries
		WHERE organization_id = $1 AND action = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	entry, err := r.scanEntry(r.db.QueryRowContext(ctx, query, organizationID.String(), action))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

// ListByTrigger lists entries triggered by the given entry.
func (r *AuditRepository) ListByTrigger(ctx context.Context, triggerEntryID shared.ID) ([]*audit.Entry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE triggered_by = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, triggerEntryID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry row: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *AuditRepository) scanEntry(row rowScanner) (*audit.Entry, error) {
	var (
		entry       audit.Entry
		actorType   string
		actorID     sql.NullString
		entityType  sql.NullString
		entityID    sql.NullString
		detailJSON  []byte
		triggeredBy sql.NullString
	)

	err := row.Scan(
		&entry.ID, &entry.OrganizationID, &entry.Action, &actorType, &actorID,
		&entityType, &entityID, &detailJSON, &triggeredBy, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.ActorType = audit.ActorType(actorType)
	entry.ActorID = parseNullID(actorID)
	entry.EntityType = nullStringValue(entityType)
	entry.EntityID = parseNullID(entityID)
	entry.TriggeredBy = parseNullID(triggeredBy)

	entry.Detail = make(map[string]any)
	if err := fromJSONB(detailJSON, &entry.Detail); err != nil {
		return nil, fmt.Errorf("failed to unmarshal audit detail: %w", err)
	}

	return &entry, nil
}
