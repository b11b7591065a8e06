package scan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adscanio/api/internal/app/platforms"
	"github.com/adscanio/api/pkg/domain/product"
	"github.com/adscanio/api/pkg/domain/publisher"
	"github.com/adscanio/api/pkg/domain/scanjob"
	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/logger"
)

var testActors = map[string]string{
	"instagram": "acme/instagram-scraper",
	"tiktok":    "acme/tiktok-scraper",
}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	jobRepo      *fakeJobRepo
	runRepo      *fakeRunRepo
	pubRepo      *fakePublisherRepo
	productRepo  *fakeProductRepo
	dispatcher   *fakeDispatcher
	publisherID  shared.ID
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()

	jobRepo := newFakeJobRepo()
	runRepo := newFakeRunRepo()
	pubRepo := newFakePublisherRepo()
	productRepo := newFakeProductRepo()
	dispatcher := &fakeDispatcher{failFor: make(map[string]error)}

	pub := &publisher.Publisher{
		ID:             shared.NewID(),
		OrganizationID: shared.NewID(),
		AdvertiserID:   shared.NewID(),
		Name:           "Acme Influencer",
	}
	pubRepo.publishers[pub.ID] = pub

	return &orchestratorFixture{
		orchestrator: NewOrchestrator(jobRepo, runRepo, pubRepo, productRepo, platforms.DefaultRegistry(), dispatcher, testActors, logger.NewNop()),
		jobRepo:      jobRepo,
		runRepo:      runRepo,
		pubRepo:      pubRepo,
		productRepo:  productRepo,
		dispatcher:   dispatcher,
		publisherID:  pub.ID,
	}
}

func (fx *orchestratorFixture) addChannel(platform, url string) *publisher.Channel {
	ch := &publisher.Channel{
		ID:          shared.NewID(),
		PublisherID: fx.publisherID,
		Platform:    platform,
		URL:         url,
		Status:      publisher.ChannelStatusActive,
	}
	fx.pubRepo.active = append(fx.pubRepo.active, ch)
	fx.pubRepo.channels[ch.ID] = ch
	return ch
}

func TestInitiate_DispatchesAllChannels(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.addChannel("instagram", "https://instagram.com/acme")
	fx.addChannel("tiktok", "https://tiktok.com/@acme")

	job, err := fx.orchestrator.Initiate(context.Background(), InitiateInput{
		PublisherIDs: []shared.ID{fx.publisherID},
	})
	require.NoError(t, err)

	assert.Equal(t, scanjob.StatusRunning, job.Status)
	assert.Len(t, fx.dispatcher.submitted, 2)

	runs, err := fx.runRepo.ListByJobID(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, run := range runs {
		assert.Equal(t, scanjob.RunStatusStarted, run.Status)
		assert.NotEmpty(t, run.ExternalRunID)
		assert.NotEmpty(t, run.Input)
	}
}

func TestInitiate_RequiresPublisher(t *testing.T) {
	fx := newOrchestratorFixture(t)
	_, err := fx.orchestrator.Initiate(context.Background(), InitiateInput{})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestInitiate_RejectsUnknownProduct(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.addChannel("instagram", "https://instagram.com/acme")

	known := &product.Product{ID: shared.NewID(), Name: "Acme Cream"}
	fx.productRepo.products[known.ID] = known

	_, err := fx.orchestrator.Initiate(context.Background(), InitiateInput{
		PublisherIDs: []shared.ID{fx.publisherID},
		ProductIDs:   []shared.ID{known.ID, shared.NewID()},
	})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	_, err = fx.orchestrator.Initiate(context.Background(), InitiateInput{
		PublisherIDs: []shared.ID{fx.publisherID},
		ProductIDs:   []shared.ID{known.ID},
	})
	require.NoError(t, err)
}

// A failed dispatch records a failed_to_start run; the others proceed.
func TestInitiate_PartialDispatchFailure(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.addChannel("instagram", "https://instagram.com/acme")
	fx.addChannel("tiktok", "https://tiktok.com/@acme")
	fx.dispatcher.failFor["acme/tiktok-scraper"] = errors.New("quota exceeded")

	job, err := fx.orchestrator.Initiate(context.Background(), InitiateInput{
		PublisherIDs: []shared.ID{fx.publisherID},
	})
	require.NoError(t, err)

	assert.Equal(t, scanjob.StatusPartiallyRunning, job.Status)

	runs, err := fx.runRepo.ListByJobID(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byStatus := make(map[scanjob.RunStatus]int)
	for _, run := range runs {
		byStatus[run.Status]++
	}
	assert.Equal(t, 1, byStatus[scanjob.RunStatusStarted])
	assert.Equal(t, 1, byStatus[scanjob.RunStatusFailedToStart])
}

func TestInitiate_AllDispatchesFailed(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.addChannel("instagram", "https://instagram.com/acme")
	fx.dispatcher.failFor["acme/instagram-scraper"] = errors.New("down")

	job, err := fx.orchestrator.Initiate(context.Background(), InitiateInput{
		PublisherIDs: []shared.ID{fx.publisherID},
	})
	require.NoError(t, err)

	assert.Equal(t, scanjob.StatusFailed, job.Status)
	assert.True(t, job.IsFinished())
}

func TestInitiate_NoEligibleChannels(t *testing.T) {
	fx := newOrchestratorFixture(t)

	job, err := fx.orchestrator.Initiate(context.Background(), InitiateInput{
		PublisherIDs: []shared.ID{fx.publisherID},
	})
	require.NoError(t, err)

	assert.Equal(t, scanjob.StatusCompletedNoRuns, job.Status)
}

// Channels on platforms without an adapter or actor are skipped
// entirely: no run is recorded and the job status ignores them.
func TestInitiate_UnsupportedPlatformSkipped(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.addChannel("instagram", "https://instagram.com/acme")
	fx.addChannel("myspace", "https://myspace.com/acme")
	fx.addChannel("youtube", "https://youtube.com/@acme") // adapter exists, no actor configured

	job, err := fx.orchestrator.Initiate(context.Background(), InitiateInput{
		PublisherIDs: []shared.ID{fx.publisherID},
	})
	require.NoError(t, err)

	assert.Equal(t, scanjob.StatusRunning, job.Status)
	runs, err := fx.runRepo.ListByJobID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestInitiate_PlatformFilter(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.addChannel("instagram", "https://instagram.com/acme")
	fx.addChannel("tiktok", "https://tiktok.com/@acme")

	job, err := fx.orchestrator.Initiate(context.Background(), InitiateInput{
		PublisherIDs: []shared.ID{fx.publisherID},
		Platforms:    []string{"TikTok"},
	})
	require.NoError(t, err)

	runs, err := fx.runRepo.ListByJobID(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "tiktok", runs[0].Platform)
}

// A run can finish while the orchestrator is still dispatching the
// remaining channels. The terminal status the aggregator wrote must
// survive the orchestrator's post-dispatch summary write.
func TestInitiate_DispatchSummaryKeepsConcurrentCompletion(t *testing.T) {
	fx := newOrchestratorFixture(t)
	fx.addChannel("instagram", "https://instagram.com/acme")
	fx.addChannel("tiktok", "https://tiktok.com/@acme")

	fx.dispatcher.onSubmit = func() {
		fx.jobRepo.mu.Lock()
		var ids []shared.ID
		for id := range fx.jobRepo.jobs {
			ids = append(ids, id)
		}
		fx.jobRepo.mu.Unlock()
		for _, id := range ids {
			_, err := fx.jobRepo.CompleteIfRunning(context.Background(), id, scanjob.StatusCompletedWithErrors, "all runs failed fast")
			require.NoError(t, err)
		}
	}

	job, err := fx.orchestrator.Initiate(context.Background(), InitiateInput{
		PublisherIDs: []shared.ID{fx.publisherID},
	})
	require.NoError(t, err)

	stored := currentJob(t, fx.jobRepo, job.ID)
	assert.Equal(t, scanjob.StatusCompletedWithErrors, stored.Status)
	assert.Equal(t, "all runs failed fast", stored.StatusDetail)
}

func TestInitiate_AdvertiserContextFromFirstPublisher(t *testing.T) {
	fx := newOrchestratorFixture(t)
	pub := fx.pubRepo.publishers[fx.publisherID]

	creator := shared.NewID()
	job, err := fx.orchestrator.Initiate(context.Background(), InitiateInput{
		PublisherIDs: []shared.ID{fx.publisherID},
		Source:       "scheduled",
		CreatedBy:    &creator,
		BypassAI:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, pub.OrganizationID, job.OrganizationID)
	assert.Equal(t, pub.AdvertiserID, job.AdvertiserID)
	assert.Equal(t, "scheduled", job.Source)
	assert.True(t, job.BypassAI)
	require.NotNil(t, job.CreatedBy)
	assert.Equal(t, creator, *job.CreatedBy)
}
