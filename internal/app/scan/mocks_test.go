package scan

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/adscanio/api/internal/app/ingest"
	"github.com/adscanio/api/internal/infra/scraper"
	"github.com/adscanio/api/pkg/domain/product"
	"github.com/adscanio/api/pkg/domain/publisher"
	"github.com/adscanio/api/pkg/domain/scanjob"
	"github.com/adscanio/api/pkg/domain/shared"
)

// fakeJobRepo serves scan job snapshots from a map, with the guarded
// update and CAS completion semantics of the real repository.
type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[shared.ID]*scanjob.ScanJob
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[shared.ID]*scanjob.ScanJob)}
}

func (r *fakeJobRepo) Create(_ context.Context, job *scanjob.ScanJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *job
	r.jobs[job.ID] = &stored
	return nil
}

func (r *fakeJobRepo) GetByID(_ context.Context, id shared.ID) (*scanjob.ScanJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "scan job not found", shared.ErrNotFound)
	}
	copied := *job
	return &copied, nil
}

func (r *fakeJobRepo) Update(_ context.Context, job *scanjob.ScanJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.jobs[job.ID]
	if !ok {
		return shared.NewDomainError("NOT_FOUND", "scan job not found", shared.ErrNotFound)
	}
	if existing.Status.IsTerminal() {
		return nil
	}
	stored := *job
	r.jobs[job.ID] = &stored
	return nil
}

func (r *fakeJobRepo) CompleteIfRunning(_ context.Context, id shared.ID, status scanjob.Status, detail string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status.IsTerminal() {
		return false, nil
	}
	job.Status = status
	job.StatusDetail = detail
	return true, nil
}

// fakeRunRepo stores runs with conditional transition semantics.
type fakeRunRepo struct {
	mu          sync.Mutex
	runs        map[shared.ID]*scanjob.Run
	transitions []scanjob.RunStatus
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[shared.ID]*scanjob.Run)}
}

func (r *fakeRunRepo) Create(_ context.Context, run *scanjob.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
	return nil
}

func (r *fakeRunRepo) GetByID(_ context.Context, id shared.ID) (*scanjob.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "run not found", shared.ErrNotFound)
	}
	copied := *run
	return &copied, nil
}

func (r *fakeRunRepo) ListByJobID(_ context.Context, jobID shared.ID) ([]*scanjob.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*scanjob.Run
	for _, run := range r.runs {
		if run.JobID == jobID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (r *fakeRunRepo) ListByStatus(_ context.Context, status scanjob.RunStatus, limit int) ([]*scanjob.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*scanjob.Run
	for _, run := range r.runs {
		if run.Status == status && len(out) < limit {
			out = append(out, run)
		}
	}
	return out, nil
}

func (r *fakeRunRepo) Transition(_ context.Context, id shared.ID, from []scanjob.RunStatus, to scanjob.RunStatus, detail string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, s := range from {
		if run.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	run.Status = to
	run.StatusDetail = detail
	r.transitions = append(r.transitions, to)
	return true, nil
}

func (r *fakeRunRepo) Finalize(_ context.Context, run *scanjob.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
	return nil
}

// fakePublisherRepo serves publishers and channels from maps.
type fakePublisherRepo struct {
	publishers map[shared.ID]*publisher.Publisher
	channels   map[shared.ID]*publisher.Channel
	active     []*publisher.Channel
}

func newFakePublisherRepo() *fakePublisherRepo {
	return &fakePublisherRepo{
		publishers: make(map[shared.ID]*publisher.Publisher),
		channels:   make(map[shared.ID]*publisher.Channel),
	}
}

func (r *fakePublisherRepo) GetByID(_ context.Context, id shared.ID) (*publisher.Publisher, error) {
	p, ok := r.publishers[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "publisher not found", shared.ErrNotFound)
	}
	return p, nil
}

func (r *fakePublisherRepo) ListActiveChannels(_ context.Context, _ []shared.ID, platforms []string) ([]*publisher.Channel, error) {
	if len(platforms) == 0 {
		return r.active, nil
	}
	allowed := make(map[string]bool, len(platforms))
	for _, p := range platforms {
		allowed[publisher.NormalizePlatform(p)] = true
	}
	var out []*publisher.Channel
	for _, ch := range r.active {
		if allowed[publisher.NormalizePlatform(ch.Platform)] {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (r *fakePublisherRepo) GetChannel(_ context.Context, id shared.ID) (*publisher.Channel, error) {
	ch, ok := r.channels[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "channel not found", shared.ErrNotFound)
	}
	return ch, nil
}

// fakeProductRepo serves products from a map.
type fakeProductRepo struct {
	products map[shared.ID]*product.Product
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{products: make(map[shared.ID]*product.Product)}
}

func (r *fakeProductRepo) GetByID(_ context.Context, id shared.ID) (*product.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, shared.NewDomainError("NOT_FOUND", "product not found", shared.ErrNotFound)
	}
	return p, nil
}

func (r *fakeProductRepo) ListByIDs(_ context.Context, ids []shared.ID) ([]*product.Product, error) {
	var out []*product.Product
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// fakeChecker scripts the scraping platform's run status and results.
type fakeChecker struct {
	status     *scraper.RunStatus
	statusErr  error
	items      []json.RawMessage
	resultsErr error
}

func (c *fakeChecker) PollStatus(_ context.Context, _ string) (*scraper.RunStatus, error) {
	return c.status, c.statusErr
}

func (c *fakeChecker) FetchResults(_ context.Context, _ string) ([]json.RawMessage, error) {
	return c.items, c.resultsErr
}

// fakeIngester returns a scripted ingest result.
type fakeIngester struct {
	result ingest.Result
	calls  int
}

func (i *fakeIngester) IngestRun(_ context.Context, _ *scanjob.ScanJob, _ *scanjob.Run, _ *publisher.Channel, _ []json.RawMessage) ingest.Result {
	i.calls++
	return i.result
}

// fakeScheduler counts disposition enqueues.
type fakeScheduler struct {
	mu       sync.Mutex
	enqueued []shared.ID
	err      error
}

func (s *fakeScheduler) EnqueueAutoDisposition(_ context.Context, jobID shared.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.enqueued = append(s.enqueued, jobID)
	return nil
}

// fakeDispatcher scripts scrape submissions, optionally failing for
// specific actors. onSubmit, when set, runs before each submission to
// interleave concurrent activity with the dispatch loop.
type fakeDispatcher struct {
	mu        sync.Mutex
	submitted []string
	failFor   map[string]error
	nextID    int
	onSubmit  func()
}

func (d *fakeDispatcher) Submit(_ context.Context, actorID string, _ json.RawMessage) (string, error) {
	if d.onSubmit != nil {
		d.onSubmit()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.failFor[actorID]; ok {
		return "", err
	}
	d.nextID++
	d.submitted = append(d.submitted, actorID)
	return shared.NewID().String(), nil
}
