// Package audit contains the immutable audit log of automated and
// manual actions.
package audit

import (
	"time"

	"github.com/adscanio/api/pkg/domain/shared"
)

// Known audit actions recorded by this core.
const (
	ActionFlagAutoClosed      = "flag.auto_closed"
	ActionFlagAutoRemediated  = "flag.auto_remediated"
	ActionFlagReopened        = "flag.reopened"
	ActionPolicyChanged       = "disposition_policy.changed"
	ActionDispositionComplete = "disposition.completed"
)

// ActorType identifies what performed the action.
type ActorType string

const (
	ActorTypeSystem ActorType = "system"
	ActorTypeUser   ActorType = "user"
)

// Entry is one immutable audit record. TriggeredBy links an automated
// action to the prior entry that caused it, grouping an entire
// auto-disposition batch under the policy change that enabled it.
type Entry struct {
	ID             shared.ID
	OrganizationID shared.ID
	Action         string
	ActorType      ActorType
	ActorID        *shared.ID
	EntityType     string
	EntityID       *shared.ID
	Detail         map[string]any
	TriggeredBy    *shared.ID
	CreatedAt      time.Time
}

// NewEntry creates an audit entry.
func NewEntry(orgID shared.ID, action string, actorType ActorType) *Entry {
	return &Entry{
		ID:             shared.NewID(),
		OrganizationID: orgID,
		Action:         action,
		ActorType:      actorType,
		Detail:         make(map[string]any),
		CreatedAt:      time.Now(),
	}
}

// WithEntity attaches the acted-on entity.
func (e *Entry) WithEntity(entityType string, entityID shared.ID) *Entry {
	e.EntityType = entityType
	e.EntityID = &entityID
	return e
}

// WithTrigger links this entry to the entry that caused it.
func (e *Entry) WithTrigger(triggerID shared.ID) *Entry {
	e.TriggeredBy = &triggerID
	return e
}

// WithDetail adds a detail field.
func (e *Entry) WithDetail(key string, value any) *Entry {
	e.Detail[key] = value
	return e
}
