package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bermi/rheia/chain/types"
)

func newBlock(t *testing.T, height uint64) *types.Block {
	t.Helper()
	b, err := types.NewBlock(height, nil)
	require.NoError(t, err)
	return b
}

func TestSamplerFinalizesAfterBetaPlusOneConsecutiveStrongMajorities(t *testing.T) {
	s := New(0.80, 150)
	b := newBlock(t, 1)
	s.Prefer(b)

	var finalized *types.Block
	for i := 0; i < 151; i++ {
		finalized = s.Update([]Vote{{Block: b, Tally: 1.0}})
		if i < 150 {
			assert.Nil(t, finalized, "round %d should not finalize", i+1)
		}
	}
	require.NotNil(t, finalized)
	assert.Equal(t, b.ID(), finalized.ID())
}

func TestSamplerAbandonsPreferenceAfterBetaLowConfidenceRounds(t *testing.T) {
	s := New(0.80, 150)
	b := newBlock(t, 1)
	s.Prefer(b)

	for i := 0; i < 150; i++ {
		finalized := s.Update([]Vote{{Block: b, Tally: 0.5}})
		assert.Nil(t, finalized)
	}

	assert.Nil(t, s.Preferred())
	assert.Equal(t, 0, s.stalled)
}

func TestSamplerSwitchingMajorityResetsConsecutiveCount(t *testing.T) {
	s := New(0.80, 150)
	a := newBlock(t, 1)
	b := newBlock(t, 2)
	s.Prefer(a)

	s.Update([]Vote{{Block: a, Tally: 1.0}})
	assert.Equal(t, 1, s.consecutiveCount)

	s.counts[b.ID()] = s.counts[a.ID()] + 1
	s.Update([]Vote{{Block: b, Tally: 1.0}})
	assert.Equal(t, 1, s.consecutiveCount)
}

func TestSamplerEmptyVotesIsNoDecision(t *testing.T) {
	s := New(0.80, 150)
	assert.Nil(t, s.Update(nil))
}
