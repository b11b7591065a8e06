package scan

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adscanio/api/internal/app/ingest"
	"github.com/adscanio/api/internal/infra/scraper"
	"github.com/adscanio/api/pkg/domain/publisher"
	"github.com/adscanio/api/pkg/domain/scanjob"
	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/logger"
)

type monitorFixture struct {
	monitor  *Monitor
	jobRepo  *fakeJobRepo
	runRepo  *fakeRunRepo
	checker  *fakeChecker
	ingester *fakeIngester
	sched    *fakeScheduler
	job      *scanjob.ScanJob
	run      *scanjob.Run
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()

	jobRepo := newFakeJobRepo()
	runRepo := newFakeRunRepo()
	pubRepo := newFakePublisherRepo()
	checker := &fakeChecker{}
	ingester := &fakeIngester{}
	sched := &fakeScheduler{}

	job, err := scanjob.NewScanJob(shared.NewID(), shared.NewID(), "manual", []shared.ID{shared.NewID()}, nil)
	require.NoError(t, err)
	job.MarkDispatched(1, 0)
	require.NoError(t, jobRepo.Create(context.Background(), job))

	channel := &publisher.Channel{ID: shared.NewID(), PublisherID: shared.NewID(), Platform: "instagram", Status: publisher.ChannelStatusActive}
	pubRepo.channels[channel.ID] = channel

	run := scanjob.NewRun(job.ID, channel.ID, "instagram", "ext-run-1", nil)
	require.NoError(t, runRepo.Create(context.Background(), run))

	agg := NewAggregator(jobRepo, runRepo, sched, logger.NewNop())
	monitor := NewMonitor(jobRepo, runRepo, pubRepo, checker, ingester, agg, logger.NewNop())

	return &monitorFixture{
		monitor:  monitor,
		jobRepo:  jobRepo,
		runRepo:  runRepo,
		checker:  checker,
		ingester: ingester,
		sched:    sched,
		job:      job,
		run:      run,
	}
}

func (fx *monitorFixture) currentRun(t *testing.T) *scanjob.Run {
	t.Helper()
	run, err := fx.runRepo.GetByID(context.Background(), fx.run.ID)
	require.NoError(t, err)
	return run
}

func TestProcessRun_InProgressLeavesRunStarted(t *testing.T) {
	fx := newMonitorFixture(t)
	fx.checker.status = &scraper.RunStatus{RunID: "ext-run-1", State: scraper.RunStateRunning}

	require.NoError(t, fx.monitor.ProcessRun(context.Background(), fx.run.ID))
	assert.Equal(t, scanjob.RunStatusStarted, fx.currentRun(t).Status)
}

func TestProcessRun_PollFailureIsTransient(t *testing.T) {
	fx := newMonitorFixture(t)
	fx.checker.statusErr = errors.New("network timeout")

	err := fx.monitor.ProcessRun(context.Background(), fx.run.ID)
	require.Error(t, err)
	assert.Equal(t, scanjob.RunStatusStarted, fx.currentRun(t).Status)
}

func TestProcessRun_PlatformFailure(t *testing.T) {
	fx := newMonitorFixture(t)
	fx.checker.status = &scraper.RunStatus{RunID: "ext-run-1", State: scraper.RunStateFailed}

	require.NoError(t, fx.monitor.ProcessRun(context.Background(), fx.run.ID))

	assert.Equal(t, scanjob.RunStatusFailed, fx.currentRun(t).Status)
	assert.Equal(t, scanjob.StatusCompletedWithErrors, currentJob(t, fx.jobRepo, fx.job.ID).Status)
	assert.Len(t, fx.sched.enqueued, 1)
}

func TestProcessRun_UnrecognizedStateFinishesUnknown(t *testing.T) {
	fx := newMonitorFixture(t)
	fx.checker.status = &scraper.RunStatus{RunID: "ext-run-1", State: scraper.RunState("EXPLODED")}

	require.NoError(t, fx.monitor.ProcessRun(context.Background(), fx.run.ID))
	assert.Equal(t, scanjob.RunStatusUnknown, fx.currentRun(t).Status)
}

func TestProcessRun_SucceededIngestsAndCompletes(t *testing.T) {
	fx := newMonitorFixture(t)
	fx.checker.status = &scraper.RunStatus{RunID: "ext-run-1", State: scraper.RunStateSucceeded, DefaultDatasetID: "ds-1"}
	fx.checker.items = []json.RawMessage{json.RawMessage(`{"id":"a"}`), json.RawMessage(`{"id":"b"}`)}
	fx.ingester.result = ingest.Result{ItemsProcessed: 2}

	require.NoError(t, fx.monitor.ProcessRun(context.Background(), fx.run.ID))

	run := fx.currentRun(t)
	assert.Equal(t, scanjob.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.ItemsProcessed)
	assert.Equal(t, 1, fx.ingester.calls)
	assert.Equal(t, scanjob.StatusCompleted, currentJob(t, fx.jobRepo, fx.job.ID).Status)
	assert.Len(t, fx.sched.enqueued, 1)
}

func TestProcessRun_ItemErrorsEndProcessingFailed(t *testing.T) {
	fx := newMonitorFixture(t)
	fx.checker.status = &scraper.RunStatus{RunID: "ext-run-1", State: scraper.RunStateSucceeded, DefaultDatasetID: "ds-1"}
	fx.checker.items = []json.RawMessage{json.RawMessage(`{}`)}
	fx.ingester.result = ingest.Result{ItemsProcessed: 3, ItemErrors: 1}

	require.NoError(t, fx.monitor.ProcessRun(context.Background(), fx.run.ID))

	run := fx.currentRun(t)
	assert.Equal(t, scanjob.RunStatusProcessingFailed, run.Status)
	assert.Equal(t, 3, run.ItemsProcessed)
	assert.Equal(t, 1, run.ItemErrors)
	assert.Equal(t, scanjob.StatusCompletedWithErrors, currentJob(t, fx.jobRepo, fx.job.ID).Status)
}

func TestProcessRun_ResultFetchFailureEndsProcessingFailed(t *testing.T) {
	fx := newMonitorFixture(t)
	fx.checker.status = &scraper.RunStatus{RunID: "ext-run-1", State: scraper.RunStateSucceeded, DefaultDatasetID: "ds-1"}
	fx.checker.resultsErr = errors.New("dataset gone")

	require.NoError(t, fx.monitor.ProcessRun(context.Background(), fx.run.ID))

	assert.Equal(t, scanjob.RunStatusProcessingFailed, fx.currentRun(t).Status)
	assert.Zero(t, fx.ingester.calls)
}

// A run already claimed or finished by another handler is skipped
// without any processing.
func TestProcessRun_SkipsNonStartedRun(t *testing.T) {
	for _, status := range []scanjob.RunStatus{
		scanjob.RunStatusFetchingResults,
		scanjob.RunStatusCompleted,
		scanjob.RunStatusFailed,
	} {
		t.Run(string(status), func(t *testing.T) {
			fx := newMonitorFixture(t)
			fx.run.Status = status
			require.NoError(t, fx.runRepo.Finalize(context.Background(), fx.run))

			require.NoError(t, fx.monitor.ProcessRun(context.Background(), fx.run.ID))
			assert.Equal(t, status, fx.currentRun(t).Status)
			assert.Zero(t, fx.ingester.calls)
		})
	}
}

// The started -> fetching_results claim is conditional: only one of
// two identical claims wins.
func TestProcessRun_ClaimIsExclusive(t *testing.T) {
	fx := newMonitorFixture(t)

	won, err := fx.runRepo.Transition(context.Background(), fx.run.ID,
		[]scanjob.RunStatus{scanjob.RunStatusStarted}, scanjob.RunStatusFetchingResults, "fetching results")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = fx.runRepo.Transition(context.Background(), fx.run.ID,
		[]scanjob.RunStatus{scanjob.RunStatusStarted}, scanjob.RunStatusFetchingResults, "fetching results")
	require.NoError(t, err)
	assert.False(t, won)
}
