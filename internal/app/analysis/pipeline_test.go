package analysis

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adscanio/api/internal/infra/llm"
	"github.com/adscanio/api/pkg/domain/content"
	"github.com/adscanio/api/pkg/domain/flag"
	"github.com/adscanio/api/pkg/domain/rule"
	"github.com/adscanio/api/pkg/domain/scanjob"
	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/logger"
	"github.com/adscanio/api/pkg/transcript"
)

func newPipeline(t *testing.T, ruleRepo *fakeRuleRepo, flagRepo *fakeFlagRepo, provider *fakeProvider, store *fakeMediaStore) *Pipeline {
	t.Helper()
	log := logger.NewNop()
	return NewPipeline(
		NewRuleResolver(ruleRepo),
		NewExtractor(provider, log),
		NewEvaluator(provider, &fakeExampleSource{}, log),
		flagRepo,
		store,
		log,
	)
}

func testItem(t *testing.T, job *scanjob.ScanJob, caption string) *content.Item {
	t.Helper()
	item, err := content.NewItem(job.ID, shared.NewID(), shared.NewID(), shared.NewID(), "instagram", "ext-1", "https://example.com/p/1")
	require.NoError(t, err)
	item.Caption = caption
	return item
}

func testJobWithProduct(t *testing.T, productID shared.ID) *scanjob.ScanJob {
	t.Helper()
	job, err := scanjob.NewScanJob(shared.NewID(), shared.NewID(), "manual", []shared.ID{shared.NewID()}, []shared.ID{productID})
	require.NoError(t, err)
	return job
}

func mentionResponse(contextText string) *llm.Response {
	return &llm.Response{Content: fmt.Sprintf("---MENTION---\ncategory: marketing_claim\nconfidence: 0.8\ncontext: %s\n---END---", contextText)}
}

func flagResponse(ruleID shared.ID, contextText string) *llm.Response {
	return &llm.Response{Content: fmt.Sprintf("---FLAG---\nrule_id: %s\nruling: violation\nconfidence: 0.7\ncontext: %s\nreasoning: why\n---END---", ruleID, contextText)}
}

// A rule present in both the global pass and a product pass must yield
// one flag, not two: the first pass to produce the span owns it.
func TestAnalyzeItem_DeduplicatesAcrossPasses(t *testing.T) {
	sharedRule := testRule("shared rule")

	productID := shared.NewID()
	defaultSet := shared.NewID()
	ruleRepo := newFakeRuleRepo()
	ruleRepo.globalRules = []*rule.Rule{sharedRule}
	ruleRepo.defaultSets = []shared.ID{defaultSet}
	ruleRepo.rulesBySet[defaultSet] = []*rule.Rule{sharedRule}

	provider := &fakeProvider{responses: []*llm.Response{
		mentionResponse("Guaranteed returns"),          // text extraction
		flagResponse(sharedRule.ID, "Guaranteed returns"), // global pass evaluation
		flagResponse(sharedRule.ID, "Guaranteed returns"), // product pass evaluation
	}}

	flagRepo := newFakeFlagRepo()
	pipeline := newPipeline(t, ruleRepo, flagRepo, provider, &fakeMediaStore{})

	job := testJobWithProduct(t, productID)
	item := testItem(t, job, "Guaranteed returns, no risk!")

	require.NoError(t, pipeline.AnalyzeItem(context.Background(), job, item, nil))

	require.Len(t, flagRepo.created, 1)
	f := flagRepo.created[0]
	assert.Equal(t, sharedRule.ID, f.RuleID)
	assert.Nil(t, f.ProductID, "the global pass ran first and owns the flag")
	assert.Equal(t, flag.ModalityText, f.Modality)
	assert.Equal(t, "text", f.SourceLocation)
}

// Extraction runs once per modality, not once per pass.
func TestAnalyzeItem_ExtractionSharedAcrossPasses(t *testing.T) {
	globalRule := testRule("global")
	productRule := testRule("product")

	productID := shared.NewID()
	productSet := shared.NewID()
	ruleRepo := newFakeRuleRepo()
	ruleRepo.globalRules = []*rule.Rule{globalRule}
	ruleRepo.productSets[productID] = []shared.ID{productSet}
	ruleRepo.rulesBySet[productSet] = []*rule.Rule{productRule}

	provider := &fakeProvider{responses: []*llm.Response{
		mentionResponse("claim"),
		{Content: "NONE"}, // global pass evaluation
		{Content: "NONE"}, // product pass evaluation
	}}

	pipeline := newPipeline(t, ruleRepo, newFakeFlagRepo(), provider, &fakeMediaStore{})
	job := testJobWithProduct(t, productID)
	item := testItem(t, job, "some claim")

	require.NoError(t, pipeline.AnalyzeItem(context.Background(), job, item, nil))

	extractions := 0
	for _, req := range provider.requests {
		if req.SystemPrompt == extractorSystemPrompt {
			extractions++
		}
	}
	assert.Equal(t, 1, extractions)
	assert.Len(t, provider.requests, 3)
}

func TestAnalyzeItem_NoApplicableRulesSkipsAI(t *testing.T) {
	provider := &fakeProvider{}
	pipeline := newPipeline(t, newFakeRuleRepo(), newFakeFlagRepo(), provider, &fakeMediaStore{})

	job := testJobWithProduct(t, shared.NewID())
	item := testItem(t, job, "anything")

	require.NoError(t, pipeline.AnalyzeItem(context.Background(), job, item, nil))
	assert.Empty(t, provider.requests)
}

func TestAnalyzeItem_RulingOutsidePassDropped(t *testing.T) {
	rl := testRule("the only rule")
	ruleRepo := newFakeRuleRepo()
	ruleRepo.globalRules = []*rule.Rule{rl}

	provider := &fakeProvider{responses: []*llm.Response{
		mentionResponse("claim"),
		flagResponse(shared.NewID(), "claim"), // rule not in the pass
	}}

	flagRepo := newFakeFlagRepo()
	pipeline := newPipeline(t, ruleRepo, flagRepo, provider, &fakeMediaStore{})

	job, err := scanjob.NewScanJob(shared.NewID(), shared.NewID(), "manual", []shared.ID{shared.NewID()}, nil)
	require.NoError(t, err)
	item := testItem(t, job, "some claim")

	require.NoError(t, pipeline.AnalyzeItem(context.Background(), job, item, nil))
	assert.Empty(t, flagRepo.created)
}

func TestAnalyzeItem_MediaModality(t *testing.T) {
	rl := testRule("media rule")
	ruleRepo := newFakeRuleRepo()
	ruleRepo.globalRules = []*rule.Rule{rl}

	asset, err := content.NewMediaAsset(shared.NewID(), content.MediaTypeImage, "media/item/image-0", "image/jpeg", "abc", 2)
	require.NoError(t, err)
	store := &fakeMediaStore{objects: map[string][]byte{"media/item/image-0": {0xFF, 0xD8}}}

	provider := &fakeProvider{responses: []*llm.Response{
		mentionResponse("text overlay claim"), // image extraction
		flagResponse(rl.ID, "text overlay claim"),
	}}

	flagRepo := newFakeFlagRepo()
	pipeline := newPipeline(t, ruleRepo, flagRepo, provider, store)

	job, err := scanjob.NewScanJob(shared.NewID(), shared.NewID(), "manual", []shared.ID{shared.NewID()}, nil)
	require.NoError(t, err)
	item := testItem(t, job, "")

	require.NoError(t, pipeline.AnalyzeItem(context.Background(), job, item, []*content.MediaAsset{asset}))

	require.Len(t, flagRepo.created, 1)
	f := flagRepo.created[0]
	assert.Equal(t, flag.ModalityImage, f.Modality)
	assert.Equal(t, "image:0", f.SourceLocation)

	// The evaluation call carries the media bytes alongside the prompt.
	evalReq := provider.requests[1]
	require.Len(t, evalReq.Messages[0].Parts, 2)
	assert.Equal(t, "image/jpeg", evalReq.Messages[0].Parts[1].MimeType)
}

func TestAnalyzeItem_BypassThresholdFinalizesAtCreation(t *testing.T) {
	threshold := 0.6
	rl := testRule("bypass rule")
	rl.BypassThreshold = &threshold

	ruleRepo := newFakeRuleRepo()
	ruleRepo.globalRules = []*rule.Rule{rl}

	provider := &fakeProvider{responses: []*llm.Response{
		mentionResponse("claim"),
		flagResponse(rl.ID, "claim"), // confidence 0.7 >= threshold 0.6
	}}

	flagRepo := newFakeFlagRepo()
	pipeline := newPipeline(t, ruleRepo, flagRepo, provider, &fakeMediaStore{})

	job, err := scanjob.NewScanJob(shared.NewID(), shared.NewID(), "manual", []shared.ID{shared.NewID()}, nil)
	require.NoError(t, err)
	item := testItem(t, job, "claim")

	require.NoError(t, pipeline.AnalyzeItem(context.Background(), job, item, nil))

	require.Len(t, flagRepo.created, 1)
	f := flagRepo.created[0]
	assert.Equal(t, flag.StatusRemediating, f.Status)
	require.NotNil(t, f.ResolutionMethod)
	assert.Equal(t, flag.ResolutionAIAutoRemediate, *f.ResolutionMethod)
}

// A ruling on a transcript line reports the line's millisecond range,
// which must land on the persisted flag.
func TestAnalyzeItem_TranscriptRangeOnFlag(t *testing.T) {
	rl := testRule("transcript rule")
	ruleRepo := newFakeRuleRepo()
	ruleRepo.globalRules = []*rule.Rule{rl}

	provider := &fakeProvider{responses: []*llm.Response{
		mentionResponse("cures everything"),
		{Content: fmt.Sprintf(
			"---FLAG---\nrule_id: %s\nruling: violation\nconfidence: 0.9\ncontext: cures everything\nstart_ms: 4500\nend_ms: 7250\nreasoning: health claim\n---END---", rl.ID)},
	}}

	flagRepo := newFakeFlagRepo()
	pipeline := newPipeline(t, ruleRepo, flagRepo, provider, &fakeMediaStore{})

	job, err := scanjob.NewScanJob(shared.NewID(), shared.NewID(), "manual", []shared.ID{shared.NewID()}, nil)
	require.NoError(t, err)
	item := testItem(t, job, "")
	item.Transcript = []transcript.Segment{
		{StartMs: 0, EndMs: 4500, Text: "welcome back"},
		{StartMs: 4500, EndMs: 7250, Text: "this cream cures everything"},
	}

	require.NoError(t, pipeline.AnalyzeItem(context.Background(), job, item, nil))

	require.Len(t, flagRepo.created, 1)
	f := flagRepo.created[0]
	require.NotNil(t, f.TranscriptStartMs)
	require.NotNil(t, f.TranscriptEndMs)
	assert.Equal(t, int64(4500), *f.TranscriptStartMs)
	assert.Equal(t, int64(7250), *f.TranscriptEndMs)
}

func TestBuildTextDocument(t *testing.T) {
	job, err := scanjob.NewScanJob(shared.NewID(), shared.NewID(), "manual", []shared.ID{shared.NewID()}, nil)
	require.NoError(t, err)

	item := testItem(t, job, "the caption")
	item.Title = "the title"

	doc := buildTextDocument(item)
	assert.Contains(t, doc, "Title: the title")
	assert.Contains(t, doc, "Caption: the caption")

	item.Caption = ""
	item.Title = ""
	assert.Empty(t, buildTextDocument(item))
}
