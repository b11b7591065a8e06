package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adscanio/api/internal/infra/llm"
	"github.com/adscanio/api/pkg/domain/flag"
	"github.com/adscanio/api/pkg/domain/rule"
	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/logger"
)

func reviewedFlag(t *testing.T, contextText, reasoning string) *flag.Flag {
	t.Helper()
	f, err := flag.New(shared.NewID(), shared.NewID(), shared.NewID(), rule.RuleTypeMarketingClaim, 1, flag.ModalityText, flag.RulingViolation)
	require.NoError(t, err)
	f.ContextText = contextText
	f.Reasoning = reasoning
	require.NoError(t, f.Resolve(flag.StatusClosed, flag.ResolutionHumanReview))
	return f
}

func TestFindRelevantExamples_RanksAndCaches(t *testing.T) {
	flagRepo := newFakeFlagRepo()
	flagRepo.reviewed = []*flag.Flag{
		reviewedFlag(t, "span zero", "reason zero"),
		reviewedFlag(t, "span one", "reason one"),
		reviewedFlag(t, "span two", "reason two"),
	}

	provider := &fakeProvider{responses: []*llm.Response{
		{Content: `[{"index":2,"selection_reason":"closest match"},{"index":0,"selection_reason":"same claim type"}]`},
	}}
	cache := newFakeExampleCache()

	librarian := NewLibrarian(flagRepo, provider, cache, 3, logger.NewNop())
	examples, err := librarian.FindRelevantExamples(context.Background(), shared.NewID(), 1, "new content span")
	require.NoError(t, err)

	require.Len(t, examples, 2)
	assert.Equal(t, "span two", examples[0].ContextText)
	assert.Equal(t, "closest match", examples[0].Reason)
	assert.Equal(t, "span zero", examples[1].ContextText)

	// The ranking call runs in JSON mode.
	require.Len(t, provider.requests, 1)
	assert.True(t, provider.requests[0].JSONMode)
	assert.Equal(t, 1, cache.puts)
}

func TestFindRelevantExamples_CacheHitSkipsProvider(t *testing.T) {
	ruleID := shared.NewID()
	snippet := "cached snippet"

	cache := newFakeExampleCache()
	cache.values[ruleID.String()+"|"+snippetDigest(snippet)] = []Example{{ContextText: "cached"}}

	provider := &fakeProvider{}
	librarian := NewLibrarian(newFakeFlagRepo(), provider, cache, 3, logger.NewNop())

	examples, err := librarian.FindRelevantExamples(context.Background(), ruleID, 1, snippet)
	require.NoError(t, err)

	require.Len(t, examples, 1)
	assert.Equal(t, "cached", examples[0].ContextText)
	assert.Empty(t, provider.requests)
}

func TestFindRelevantExamples_EmptyPool(t *testing.T) {
	provider := &fakeProvider{}
	librarian := NewLibrarian(newFakeFlagRepo(), provider, newFakeExampleCache(), 3, logger.NewNop())

	examples, err := librarian.FindRelevantExamples(context.Background(), shared.NewID(), 1, "snippet")
	require.NoError(t, err)

	assert.NotNil(t, examples)
	assert.Empty(t, examples)
	assert.Empty(t, provider.requests)
}

func TestFindRelevantExamples_UnparseableRankingDegrades(t *testing.T) {
	flagRepo := newFakeFlagRepo()
	flagRepo.reviewed = []*flag.Flag{reviewedFlag(t, "span", "reason")}
	provider := &fakeProvider{responses: []*llm.Response{{Content: "I think candidate 0 is best"}}}

	librarian := NewLibrarian(flagRepo, provider, newFakeExampleCache(), 3, logger.NewNop())
	examples, err := librarian.FindRelevantExamples(context.Background(), shared.NewID(), 1, "snippet")
	require.NoError(t, err)
	assert.Empty(t, examples)
}

func TestFindRelevantExamples_TopKAndBoundsEnforced(t *testing.T) {
	flagRepo := newFakeFlagRepo()
	flagRepo.reviewed = []*flag.Flag{
		reviewedFlag(t, "span zero", ""),
		reviewedFlag(t, "span one", ""),
	}
	provider := &fakeProvider{responses: []*llm.Response{
		{Content: `[{"index":5,"selection_reason":"out of range"},{"index":1,"selection_reason":"ok"},{"index":0,"selection_reason":"over k"}]`},
	}}

	librarian := NewLibrarian(flagRepo, provider, newFakeExampleCache(), 1, logger.NewNop())
	examples, err := librarian.FindRelevantExamples(context.Background(), shared.NewID(), 1, "snippet")
	require.NoError(t, err)

	require.Len(t, examples, 1)
	assert.Equal(t, "span one", examples[0].ContextText)
}
