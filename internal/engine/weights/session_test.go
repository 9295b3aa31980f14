package weights

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession() *EditSession {
	return NewEditSession(map[string]map[string]float64{
		"tmpl": {"sec1": 0.5, "sec2": 0.3, "sec3": 0.2},
		"sec1": {"q1": 0.6, "q2": 0.4},
	})
}

func TestStageDoesNotTouchCommitted(t *testing.T) {
	s := newTestSession()

	staged, err := s.Stage("tmpl", "sec1", 0.7)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, staged["sec1"], 1e-9)
	assert.InDelta(t, 0.15, staged["sec2"], 1e-9)

	assert.True(t, s.HasPending())
	assert.ElementsMatch(t, []string{"tmpl"}, s.DirtyParents())

	// Discard reverts to the committed set.
	s.Discard()
	view, ok := s.View("tmpl")
	require.True(t, ok)
	assert.InDelta(t, 0.5, view["sec1"], 1e-9)
	assert.False(t, s.HasPending())
}

func TestStageChainsOverPendingView(t *testing.T) {
	s := newTestSession()

	_, err := s.Stage("tmpl", "sec1", 0.7)
	require.NoError(t, err)

	// Second edit on the same parent sees the staged weights, not committed.
	staged, err := s.Stage("tmpl", "sec2", 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, staged["sec2"], 1e-9)
	assert.InDelta(t, 0.25, staged["sec1"], 1e-9)
	assert.InDelta(t, 0.25, staged["sec3"], 1e-9)
}

func TestCommitAppliesBatchAtomically(t *testing.T) {
	s := newTestSession()

	_, err := s.Stage("tmpl", "sec1", 0.7)
	require.NoError(t, err)
	_, err = s.Stage("sec1", "q1", 0.8)
	require.NoError(t, err)

	applied, err := s.Commit()
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.InDelta(t, 0.7, applied["tmpl"]["sec1"], 1e-9)
	assert.InDelta(t, 0.8, applied["sec1"]["q1"], 1e-9)

	assert.False(t, s.HasPending())

	view, ok := s.View("tmpl")
	require.True(t, ok)
	assert.InDelta(t, 0.7, view["sec1"], 1e-9)
}

func TestCommitRejectsSumViolationInFull(t *testing.T) {
	s := newTestSession()

	_, err := s.Stage("tmpl", "sec1", 0.7)
	require.NoError(t, err)

	// Corrupt the pending set directly to simulate drift beyond tolerance.
	s.pending["sec1"] = map[string]float64{"q1": 0.9, "q2": 0.9}

	applied, err := s.Commit()
	assert.Nil(t, applied)

	var sumErr *SumInvariantError
	require.ErrorAs(t, err, &sumErr)
	assert.Equal(t, "sec1", sumErr.ParentID)

	// No partial commit: the valid tmpl edit must not have been applied either.
	view, ok := s.View("tmpl")
	require.True(t, ok)
	assert.InDelta(t, 0.7, view["sec1"], 1e-9, "pending view survives")
	s.Discard()
	view, _ = s.View("tmpl")
	assert.InDelta(t, 0.5, view["sec1"], 1e-9, "committed state retained")
}

func TestViewUnknownParent(t *testing.T) {
	s := newTestSession()

	_, ok := s.View("missing")
	assert.False(t, ok)

	_, err := s.Stage("missing", "x", 0.5)
	assert.ErrorIs(t, err, ErrInvalidOperation)
}
