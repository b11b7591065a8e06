package analysis

import (
	"context"
	"fmt"

	"github.com/adscanio/api/internal/metrics"
	"github.com/adscanio/api/pkg/domain/audit"
	"github.com/adscanio/api/pkg/domain/flag"
	"github.com/adscanio/api/pkg/domain/rule"
	"github.com/adscanio/api/pkg/domain/scanjob"
	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/logger"
)

// DispositionProcessor bulk-resolves high-confidence pending flags of
// a completed scan job per the organization's policy. The per-rule
// bypass threshold remains authoritative at flag creation; this
// processor only ever touches flags still pending after that.
type DispositionProcessor struct {
	jobRepo   scanjob.Repository
	flagRepo  flag.Repository
	ruleRepo  rule.Repository
	auditRepo audit.Repository
	logger    *logger.Logger
}

// NewDispositionProcessor creates an auto-disposition processor.
func NewDispositionProcessor(
	jobRepo scanjob.Repository,
	flagRepo flag.Repository,
	ruleRepo rule.Repository,
	auditRepo audit.Repository,
	log *logger.Logger,
) *DispositionProcessor {
	return &DispositionProcessor{
		jobRepo:   jobRepo,
		flagRepo:  flagRepo,
		ruleRepo:  ruleRepo,
		auditRepo: auditRepo,
		logger:    log.With("component", "auto_disposition"),
	}
}

// ProcessJob runs auto-disposition for one completed scan job. A
// missing policy, unset threshold or both toggles off make it a no-op.
func (p *DispositionProcessor) ProcessJob(ctx context.Context, jobID shared.ID) error {
	job, err := p.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load scan job: %w", err)
	}

	log := p.logger.With("scan_job_id", job.ID, "organization_id", job.OrganizationID)

	policy, err := p.ruleRepo.GetDispositionPolicy(ctx, job.OrganizationID)
	if err != nil {
		return fmt.Errorf("load disposition policy: %w", err)
	}
	if !policy.Enabled() {
		log.Info("auto-disposition disabled for organization, skipping")
		return nil
	}

	pending, err := p.flagRepo.ListPendingByJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list pending flags: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	// Each resolution is linked to the latest policy-change entry so an
	// entire batch can be reverted together.
	var triggerID *shared.ID
	if trigger, err := p.auditRepo.GetLatestByAction(ctx, job.OrganizationID, audit.ActionPolicyChanged); err != nil {
		log.WithError(err).Warn("failed to load policy-change audit entry, batch will be unlinked")
	} else if trigger != nil {
		triggerID = &trigger.ID
	}

	closed, remediated := 0, 0
	for _, f := range pending {
		resolution, ok := p.eligibleResolution(f, policy)
		if !ok {
			continue
		}

		resolved, err := p.resolveFlag(ctx, job, f, resolution, policy, triggerID)
		if err != nil {
			log.WithError(err).Error("failed to auto-disposition flag", "flag_id", f.ID)
			continue
		}
		if !resolved {
			// Lost to a concurrent human review.
			continue
		}

		switch resolution {
		case flag.StatusClosed:
			closed++
		case flag.StatusRemediating:
			remediated++
		}
	}

	if closed > 0 || remediated > 0 {
		entry := audit.NewEntry(job.OrganizationID, audit.ActionDispositionComplete, audit.ActorTypeSystem).
			WithEntity("scan_job", job.ID).
			WithDetail("flags_closed", closed).
			WithDetail("flags_remediated", remediated)
		if triggerID != nil {
			entry.WithTrigger(*triggerID)
		}
		if err := p.auditRepo.Create(ctx, entry); err != nil {
			log.WithError(err).Error("failed to write disposition summary entry")
		}
	}

	log.Info("auto-disposition finished",
		"pending", len(pending), "closed", closed, "remediated", remediated)
	return nil
}

// RevertBatch reopens every flag that was auto-resolved under one
// trigger entry. Flags resolved by other means since, including human
// review, are left alone. Returns the number of flags reopened.
func (p *DispositionProcessor) RevertBatch(ctx context.Context, triggerEntryID shared.ID, actorID *shared.ID) (int, error) {
	trigger, err := p.auditRepo.GetByID(ctx, triggerEntryID)
	if err != nil {
		return 0, fmt.Errorf("load trigger entry: %w", err)
	}

	log := p.logger.With("trigger_entry_id", triggerEntryID, "organization_id", trigger.OrganizationID)

	flags, err := p.flagRepo.ListByAuditTrigger(ctx, triggerEntryID)
	if err != nil {
		return 0, fmt.Errorf("list flags by trigger: %w", err)
	}

	actorType := audit.ActorTypeSystem
	if actorID != nil {
		actorType = audit.ActorTypeUser
	}

	reopened := 0
	for _, f := range flags {
		if !f.IsAutoResolved() {
			continue
		}

		entry := audit.NewEntry(trigger.OrganizationID, audit.ActionFlagReopened, actorType).
			WithEntity("flag", f.ID).
			WithTrigger(triggerEntryID)
		entry.ActorID = actorID

		if err := p.flagRepo.ReopenWithAudit(ctx, f.ID, entry); err != nil {
			log.WithError(err).Error("failed to reopen flag", "flag_id", f.ID)
			continue
		}
		reopened++
	}

	log.Info("disposition batch reverted", "flags", len(flags), "reopened", reopened)
	return reopened, nil
}

// eligibleResolution decides whether the policy acts on a flag.
// Confidence is stored on a 0-1 scale; the policy threshold is a
// 0-100 percentage and eligibility requires strictly greater.
func (p *DispositionProcessor) eligibleResolution(f *flag.Flag, policy *rule.DispositionPolicy) (flag.Status, bool) {
	if f.Confidence == nil {
		return "", false
	}
	if *f.Confidence*100 <= float64(*policy.ConfidenceThreshold) {
		return "", false
	}

	switch f.Ruling {
	case flag.RulingCompliant:
		if policy.AutoApproveCompliant {
			return flag.StatusClosed, true
		}
	case flag.RulingViolation:
		if policy.AutoRemediateViolation {
			return flag.StatusRemediating, true
		}
	}
	return "", false
}

func (p *DispositionProcessor) resolveFlag(ctx context.Context, job *scanjob.ScanJob, f *flag.Flag, resolution flag.Status, policy *rule.DispositionPolicy, triggerID *shared.ID) (bool, error) {
	method := flag.ResolutionAIAutoClose
	action := audit.ActionFlagAutoClosed
	if resolution == flag.StatusRemediating {
		method = flag.ResolutionAIAutoRemediate
		action = audit.ActionFlagAutoRemediated
	}

	entry := audit.NewEntry(job.OrganizationID, action, audit.ActorTypeSystem).
		WithEntity("flag", f.ID).
		WithDetail("confidence", *f.Confidence).
		WithDetail("threshold", *policy.ConfidenceThreshold).
		WithDetail("ruling", string(f.Ruling))
	if triggerID != nil {
		entry.WithTrigger(*triggerID)
	}

	resolved, err := p.flagRepo.ResolveWithAudit(ctx, f.ID, resolution, method, entry)
	if err != nil {
		return false, err
	}
	if resolved {
		metrics.AutoDispositionsTotal.WithLabelValues(string(method)).Inc()
	}
	return resolved, nil
}
