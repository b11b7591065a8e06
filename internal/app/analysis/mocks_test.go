package analysis

import (
	"context"
	"sync"

	"github.com/adscanio/api/internal/infra/llm"
	"github.com/adscanio/api/pkg/domain/audit"
	"github.com/adscanio/api/pkg/domain/flag"
	"github.com/adscanio/api/pkg/domain/rule"
	"github.com/adscanio/api/pkg/domain/scanjob"
	"github.com/adscanio/api/pkg/domain/shared"
)

// fakeProvider scripts llm.Provider responses; each Generate call
// consumes the next scripted response.
type fakeProvider struct {
	mu        sync.Mutex
	responses []*llm.Response
	errs      []error
	requests  []llm.Request
}

func (p *fakeProvider) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)

	i := len(p.requests) - 1
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return &llm.Response{Content: "NONE"}, nil
}

func (p *fakeProvider) Name() string    { return "fake" }
func (p *fakeProvider) Model() string   { return "fake-model" }
func (p *fakeProvider) Validate() error { return nil }

// fakeRuleRepo serves rules from in-memory maps.
type fakeRuleRepo struct {
	rules        map[shared.ID]*rule.Rule
	globalRules  []*rule.Rule
	defaultSets  []shared.ID
	productSets  map[shared.ID][]shared.ID
	rulesBySet   map[shared.ID][]*rule.Rule
	overrides    map[shared.ID][]*rule.Override
	policy       *rule.DispositionPolicy
	policyErr    error
	listSetCalls [][]shared.ID
}

func newFakeRuleRepo() *fakeRuleRepo {
	return &fakeRuleRepo{
		rules:       make(map[shared.ID]*rule.Rule),
		productSets: make(map[shared.ID][]shared.ID),
		rulesBySet:  make(map[shared.ID][]*rule.Rule),
		overrides:   make(map[shared.ID][]*rule.Override),
	}
}

func (r *fakeRuleRepo) GetByID(_ context.Context, id shared.ID) (*rule.Rule, error) {
	rl, ok := r.rules[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "rule not found", shared.ErrNotFound)
	}
	return rl, nil
}

func (r *fakeRuleRepo) ListGlobalRules(_ context.Context, _ shared.ID) ([]*rule.Rule, error) {
	return r.globalRules, nil
}

func (r *fakeRuleRepo) ListDefaultRuleSetIDs(_ context.Context, _ shared.ID) ([]shared.ID, error) {
	return r.defaultSets, nil
}

func (r *fakeRuleRepo) ListProductRuleSetIDs(_ context.Context, productID shared.ID) ([]shared.ID, error) {
	return r.productSets[productID], nil
}

func (r *fakeRuleRepo) ListRulesBySetIDs(_ context.Context, setIDs []shared.ID) ([]*rule.Rule, error) {
	r.listSetCalls = append(r.listSetCalls, setIDs)
	var out []*rule.Rule
	for _, id := range setIDs {
		out = append(out, r.rulesBySet[id]...)
	}
	return out, nil
}

func (r *fakeRuleRepo) ListOverrides(_ context.Context, productID shared.ID) ([]*rule.Override, error) {
	return r.overrides[productID], nil
}

func (r *fakeRuleRepo) GetDispositionPolicy(_ context.Context, _ shared.ID) (*rule.DispositionPolicy, error) {
	return r.policy, r.policyErr
}

// fakeFlagRepo stores flags in memory and records resolutions.
type fakeFlagRepo struct {
	mu       sync.Mutex
	flags    map[shared.ID]*flag.Flag
	created  []*flag.Flag
	reviewed []*flag.Flag
	resolved map[shared.ID]flag.Status
	entries  []*audit.Entry
}

func newFakeFlagRepo() *fakeFlagRepo {
	return &fakeFlagRepo{
		flags:    make(map[shared.ID]*flag.Flag),
		resolved: make(map[shared.ID]flag.Status),
	}
}

func (r *fakeFlagRepo) Create(_ context.Context, f *flag.Flag) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags[f.ID] = f
	r.created = append(r.created, f)
	return nil
}

func (r *fakeFlagRepo) GetByID(_ context.Context, id shared.ID) (*flag.Flag, error) {
	f, ok := r.flags[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "flag not found", shared.ErrNotFound)
	}
	return f, nil
}

func (r *fakeFlagRepo) ListByContentItem(_ context.Context, contentItemID shared.ID) ([]*flag.Flag, error) {
	var out []*flag.Flag
	for _, f := range r.flags {
		if f.ContentItemID == contentItemID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeFlagRepo) ListPendingByJob(_ context.Context, jobID shared.ID) ([]*flag.Flag, error) {
	var out []*flag.Flag
	for _, f := range r.created {
		if f.JobID == jobID && f.Status == flag.StatusPending {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeFlagRepo) ListReviewedByRule(_ context.Context, _ shared.ID, limit int) ([]*flag.Flag, error) {
	if len(r.reviewed) > limit {
		return r.reviewed[:limit], nil
	}
	return r.reviewed, nil
}

func (r *fakeFlagRepo) ResolveWithAudit(_ context.Context, flagID shared.ID, status flag.Status, method flag.ResolutionMethod, entry *audit.Entry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flags[flagID]
	if !ok || f.Status != flag.StatusPending {
		return false, nil
	}
	if err := f.Resolve(status, method); err != nil {
		return false, nil
	}
	r.resolved[flagID] = status
	r.entries = append(r.entries, entry)
	return true, nil
}

func (r *fakeFlagRepo) ListByAuditTrigger(_ context.Context, triggerID shared.ID) ([]*flag.Flag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*flag.Flag
	for _, e := range r.entries {
		if e.TriggeredBy == nil || *e.TriggeredBy != triggerID || e.EntityID == nil {
			continue
		}
		if f, ok := r.flags[*e.EntityID]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeFlagRepo) ReopenWithAudit(_ context.Context, flagID shared.ID, entry *audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.flags[flagID]; ok {
		f.Status = flag.StatusPending
		f.ResolutionMethod = nil
		r.entries = append(r.entries, entry)
	}
	return nil
}

// fakeAuditRepo records entries in memory.
type fakeAuditRepo struct {
	entries []*audit.Entry
	latest  map[string]*audit.Entry
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{latest: make(map[string]*audit.Entry)}
}

func (r *fakeAuditRepo) Create(_ context.Context, entry *audit.Entry) error {
	r.entries = append(r.entries, entry)
	return nil
}

func (r *fakeAuditRepo) GetByID(_ context.Context, id shared.ID) (*audit.Entry, error) {
	for _, e := range r.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, shared.NewDomainError("NOT_FOUND", "entry not found", shared.ErrNotFound)
}

func (r *fakeAuditRepo) GetLatestByAction(_ context.Context, _ shared.ID, action string) (*audit.Entry, error) {
	return r.latest[action], nil
}

func (r *fakeAuditRepo) ListByTrigger(_ context.Context, triggerID shared.ID) ([]*audit.Entry, error) {
	var out []*audit.Entry
	for _, e := range r.entries {
		if e.TriggeredBy != nil && *e.TriggeredBy == triggerID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeJobRepo serves scan jobs from a map.
type fakeJobRepo struct {
	jobs map[shared.ID]*scanjob.ScanJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[shared.ID]*scanjob.ScanJob)}
}

func (r *fakeJobRepo) Create(_ context.Context, job *scanjob.ScanJob) error {
	r.jobs[job.ID] = job
	return nil
}

func (r *fakeJobRepo) GetByID(_ context.Context, id shared.ID) (*scanjob.ScanJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "scan job not found", shared.ErrNotFound)
	}
	return job, nil
}

func (r *fakeJobRepo) Update(_ context.Context, job *scanjob.ScanJob) error {
	r.jobs[job.ID] = job
	return nil
}

func (r *fakeJobRepo) CompleteIfRunning(_ context.Context, id shared.ID, status scanjob.Status, detail string) (bool, error) {
	job, ok := r.jobs[id]
	if !ok || job.Status.IsTerminal() {
		return false, nil
	}
	job.Status = status
	job.StatusDetail = detail
	return true, nil
}

// fakeExampleCache is an in-memory ExampleCache.
type fakeExampleCache struct {
	values map[string][]Example
	gets   int
	puts   int
}

func newFakeExampleCache() *fakeExampleCache {
	return &fakeExampleCache{values: make(map[string][]Example)}
}

func (c *fakeExampleCache) Get(_ context.Context, ruleID, digest string, out any) bool {
	c.gets++
	examples, ok := c.values[ruleID+"|"+digest]
	if !ok {
		return false
	}
	*(out.(*[]Example)) = examples
	return true
}

func (c *fakeExampleCache) Put(_ context.Context, ruleID, digest string, value any) {
	c.puts++
	c.values[ruleID+"|"+digest] = value.([]Example)
}

// fakeMediaStore serves media bytes by storage path.
type fakeMediaStore struct {
	objects map[string][]byte
}

func (s *fakeMediaStore) Download(_ context.Context, key string) ([]byte, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "object not found", shared.ErrNotFound)
	}
	return data, nil
}
