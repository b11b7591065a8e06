package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adscanio/api/pkg/domain/audit"
	"github.com/adscanio/api/pkg/domain/flag"
	"github.com/adscanio/api/pkg/domain/rule"
	"github.com/adscanio/api/pkg/domain/shared"
)

// FlagRepository implements flag.Repository using PostgreSQL.
type FlagRepository struct {
	db *DB
}

// NewFlagRepository creates a new FlagRepository.
func NewFlagRepository(db *DB) *FlagRepository {
	return &FlagRepository{db: db}
}

const flagColumns = `
	id, content_item_id, scan_job_id, rule_id, rule_type, rule_version, product_id,
	modality, context_text, source_location, transcript_start_ms, transcript_end_ms,
	ruling, confidence, reasoning,
	status, resolution_method,
	librarian_consulted, librarian_example_count,
	created_at, updated_at
`

// Create persists a flag.
func (r *FlagRepository) Create(ctx context.Context, f *flag.Flag) error {
	query := `
		INSERT INTO flags (` + flagColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`

	var method sql.NullString
	if f.ResolutionMethod != nil {
		method = sql.NullString{String: string(*f.ResolutionMethod), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		f.ID.String(),
		f.ContentItemID.String(),
		f.JobID.String(),
		f.RuleID.String(),
		string(f.RuleType),
		f.RuleVersion,
		nullID(f.ProductID),
		string(f.Modality),
		nullString(f.ContextText),
		nullString(f.SourceLocation),
		nullInt64(f.TranscriptStartMs),
		nullInt64(f.TranscriptEndMs),
		string(f.Ruling),
		nullFloat(f.Confidence),
		nullString(f.Reasoning),
		string(f.Status),
		method,
		f.LibrarianConsulted,
		f.LibrarianExampleCount,
		f.CreatedAt,
		f.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create flag: %w", err)
	}
	return nil
}

// GetByID retrieves a flag by ID.
func (r *FlagRepository) GetByID(ctx context.Context, id shared.ID) (*flag.Flag, error) {
	query := `SELECT ` + flagColumns + ` FROM flags WHERE id = $1`
	f, err := r.scanFlag(r.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NewDomainError("NOT_FOUND", "flag not found", shared.ErrNotFound)
	}
	return f, err
}

// ListByContentItem lists all flags raised on a content item.
func (r *FlagRepository) ListByContentItem(ctx context.Context, contentItemID shared.ID) ([]*flag.Flag, error) {
	query := `SELECT ` + flagColumns + ` FROM flags WHERE content_item_id = $1 ORDER BY created_at`
	return r.queryFlags(ctx, query, contentItemID.String())
}

// ListPendingByJob lists pending flags across a scan job's content.
func (r *FlagRepository) ListPendingByJob(ctx context.Context, jobID shared.ID) ([]*flag.Flag, error) {
	query := `SELECT ` + flagColumns + ` FROM flags WHERE scan_job_id = $1 AND status = 'pending' ORDER BY created_at`
	return r.queryFlags(ctx, query, jobID.String())
}

// ListReviewedByRule lists human-reviewed flags for a rule, newest
// first.
func (r *FlagRepository) ListReviewedByRule(ctx context.Context, ruleID shared.ID, limit int) ([]*flag.Flag, error) {
	query := `
		SELECT ` + flagColumns + `
		FROM flags
		WHERE rule_id = $1 AND resolution_method = 'human_review'
		ORDER BY updated_at DESC
		LIMIT $2
	`
	return r.queryFlags(ctx, query, ruleID.String(), limit)
}

// ResolveWithAudit transitions a pending flag and writes its audit
// entry in one transaction. The conditional write keeps concurrent
// dispositions and human reviews from clobbering each other; when the
// flag is no longer pending the transaction is abandoned and no audit
// entry is written.
func (r *FlagRepository) ResolveWithAudit(ctx context.Context, flagID shared.ID, status flag.Status, method flag.ResolutionMethod, entry *audit.Entry) (bool, error) {
	resolved := false
	err := r.db.Transaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE flags SET
				status = $2,
				resolution_method = $3,
				updated_at = NOW()
			WHERE id = $1 AND status = 'pending'
		`, flagID.String(), string(status), string(method))
		if err != nil {
			return fmt.Errorf("failed to resolve flag: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return nil
		}

		if err := insertAuditEntry(ctx, tx, entry); err != nil {
			return err
		}
		resolved = true
		return nil
	})
	return resolved, err
}

// ListByAuditTrigger lists flags whose resolution audit entries were
// triggered by the given entry.
func (r *FlagRepository) ListByAuditTrigger(ctx context.Context, triggerEntryID shared.ID) ([]*flag.Flag, error) {
	query := `
		SELECT ` + qualifyFlagColumns("f") + `
		FROM flags f
		JOIN audit_entries a ON a.entity_id = f.id AND a.entity_type = 'flag'
		WHERE a.triggered_by = $1
		ORDER BY f.created_at
	`
	return r.queryFlags(ctx, query, triggerEntryID.String())
}

// ReopenWithAudit returns a resolved flag to pending and writes the
// audit entry in the same transaction.
func (r *FlagRepository) ReopenWithAudit(ctx context.Context, flagID shared.ID, entry *audit.Entry) error {
	return r.db.Transaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE flags SET
				status = 'pending',
				resolution_method = NULL,
				updated_at = NOW()
			WHERE id = $1 AND status <> 'pending'
		`, flagID.String())
		if err != nil {
			return fmt.Errorf("failed to reopen flag: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return shared.NewDomainError("INVALID_STATE", "flag is not resolved", shared.ErrConflict)
		}

		return insertAuditEntry(ctx, tx, entry)
	})
}

func (r *FlagRepository) scanFlag(row rowScanner) (*flag.Flag, error) {
	var (
		f           flag.Flag
		ruleType    string
		productID   sql.NullString
		modality    string
		contextText sql.NullString
		sourceLoc   sql.NullString
		startMs     sql.NullInt64
		endMs       sql.NullInt64
		ruling      string
		confidence  sql.NullFloat64
		reasoning   sql.NullString
		status      string
		method      sql.NullString
	)

	err := row.Scan(
		&f.ID, &f.ContentItemID, &f.JobID, &f.RuleID, &ruleType, &f.RuleVersion, &productID,
		&modality, &contextText, &sourceLoc, &startMs, &endMs,
		&ruling, &confidence, &reasoning,
		&status, &method,
		&f.LibrarianConsulted, &f.LibrarianExampleCount,
		&f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	f.RuleType = rule.RuleType(ruleType)
	f.ProductID = parseNullID(productID)
	f.Modality = flag.Modality(modality)
	f.ContextText = nullStringValue(contextText)
	f.SourceLocation = nullStringValue(sourceLoc)
	f.TranscriptStartMs = nullInt64Value(startMs)
	f.TranscriptEndMs = nullInt64Value(endMs)
	f.Ruling = flag.Ruling(ruling)
	f.Confidence = nullFloatValue(confidence)
	f.Reasoning = nullStringValue(reasoning)
	f.Status = flag.Status(status)
	if method.Valid {
		m := flag.ResolutionMethod(method.String)
		f.ResolutionMethod = &m
	}

	return &f, nil
}

func (r *FlagRepository) queryFlags(ctx context.Context, query string, args ...any) ([]*flag.Flag, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list flags: %w", err)
	}
	defer rows.Close()

	var flags []*flag.Flag
	for rows.Next() {
		f, err := r.scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flag row: %w", err)
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

func qualifyFlagColumns(alias string) string {
	return alias + `.id, ` + alias + `.content_item_id, ` + alias + `.scan_job_id, ` +
		alias + `.rule_id, ` + alias + `.rule_type, ` + alias + `.rule_version, ` + alias + `.product_id, ` +
		alias + `.modality, ` + alias + `.context_text, ` + alias + `.source_location, ` +
		alias + `.transcript_start_ms, ` + alias + `.transcript_end_ms, ` +
		alias + `.ruling, ` + alias + `.confidence, ` + alias + `.reasoning, ` +
		alias + `.status, ` + alias + `.resolution_method, ` +
		alias + `.librarian_consulted, ` + alias + `.librarian_example_count, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}

// insertAuditEntry appends an audit entry inside an existing
// transaction. Shared with AuditRepository.Create.
func insertAuditEntry(ctx context.Context, tx *sql.Tx, entry *audit.Entry) error {
	var detailJSON []byte
	if len(entry.Detail) > 0 {
		var err error
		detailJSON, err = json.Marshal(entry.Detail)
		if err != nil {
			return fmt.Errorf("failed to marshal audit detail: %w", err)
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_entries (
			id, organization_id, action, actor_type, actor_id,
			entity_type, entity_id, detail, triggered_by, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		entry.ID.String(),
		entry.OrganizationID.String(),
		entry.Action,
		string(entry.ActorType),
		nullID(entry.ActorID),
		nullString(entry.EntityType),
		nullID(entry.EntityID),
		nullBytes(detailJSON),
		nullID(entry.TriggeredBy),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}
	return nil
}
