package flag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adscanio/api/pkg/domain/rule"
	"github.com/adscanio/api/pkg/domain/shared"
)

func newTestFlag(t *testing.T, ruling Ruling) *Flag {
	t.Helper()
	f, err := New(shared.NewID(), shared.NewID(), shared.NewID(), rule.RuleTypeMarketingClaim, 1, ModalityText, ruling)
	require.NoError(t, err)
	return f
}

func TestNew(t *testing.T) {
	f := newTestFlag(t, RulingViolation)
	assert.Equal(t, StatusPending, f.Status)
	assert.Nil(t, f.ResolutionMethod)
}

func TestNew_RejectsInvalidRuling(t *testing.T) {
	_, err := New(shared.NewID(), shared.NewID(), shared.NewID(), rule.RuleTypeMarketingClaim, 1, ModalityText, Ruling("maybe"))
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}

func TestApplyBypass_ViolationAboveThreshold(t *testing.T) {
	f := newTestFlag(t, RulingViolation)
	confidence := 0.95
	f.Confidence = &confidence

	threshold := 0.9
	require.True(t, f.ApplyBypass(&threshold))

	assert.Equal(t, StatusRemediating, f.Status)
	require.NotNil(t, f.ResolutionMethod)
	assert.Equal(t, ResolutionAIAutoRemediate, *f.ResolutionMethod)
}

func TestApplyBypass_CompliantAboveThreshold(t *testing.T) {
	f := newTestFlag(t, RulingCompliant)
	confidence := 0.92
	f.Confidence = &confidence

	threshold := 0.9
	require.True(t, f.ApplyBypass(&threshold))

	assert.Equal(t, StatusClosed, f.Status)
	require.NotNil(t, f.ResolutionMethod)
	assert.Equal(t, ResolutionAIAutoClose, *f.ResolutionMethod)
}

func TestApplyBypass_ExactThresholdApplies(t *testing.T) {
	f := newTestFlag(t, RulingViolation)
	confidence := 0.9
	f.Confidence = &confidence

	threshold := 0.9
	assert.True(t, f.ApplyBypass(&threshold))
}

func TestApplyBypass_BelowThresholdStaysPending(t *testing.T) {
	f := newTestFlag(t, RulingViolation)
	confidence := 0.85
	f.Confidence = &confidence

	threshold := 0.9
	assert.False(t, f.ApplyBypass(&threshold))
	assert.Equal(t, StatusPending, f.Status)
	assert.Nil(t, f.ResolutionMethod)
}

func TestApplyBypass_NilThresholdOrConfidence(t *testing.T) {
	f := newTestFlag(t, RulingViolation)
	threshold := 0.9
	assert.False(t, f.ApplyBypass(&threshold), "nil confidence never bypasses")

	confidence := 0.99
	f.Confidence = &confidence
	assert.False(t, f.ApplyBypass(nil), "rule without threshold never bypasses")
	assert.Equal(t, StatusPending, f.Status)
}

func TestResolve(t *testing.T) {
	f := newTestFlag(t, RulingViolation)

	require.NoError(t, f.Resolve(StatusClosed, ResolutionHumanReview))
	assert.Equal(t, StatusClosed, f.Status)
	require.NotNil(t, f.ResolutionMethod)
	assert.Equal(t, ResolutionHumanReview, *f.ResolutionMethod)

	// Only pending flags are resolvable.
	err := f.Resolve(StatusRemediating, ResolutionHumanReview)
	require.Error(t, err)
	assert.True(t, shared.IsConflict(err))
}

func TestResolve_RejectsPendingTarget(t *testing.T) {
	f := newTestFlag(t, RulingViolation)
	err := f.Resolve(StatusPending, ResolutionHumanReview)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
}
