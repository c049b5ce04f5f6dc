// Package sampler implements a Snowball-style repeated-sampling consensus
// state machine over Block candidates: a block is finalized once it has
// been observed as the strong majority in beta+1 consecutive rounds.
package sampler

import (
	"sync"

	"github.com/bermi/rheia/chain/types"
	"github.com/bermi/rheia/internal/rlog"
)

// Vote is one voter's tally for a candidate block. A nil Block is a
// non-vote (e.g. a voter with nothing to propose yet).
type Vote struct {
	Block *types.Block
	Tally float64
}

// Sampler is a single-goroutine state machine: Update is called
// exclusively from the Chain's finalization loop, so its state needs no
// synchronization beyond what protects Preferred/Prefer from a
// concurrent proposer read. The mutex exists for that cross-call safety,
// not for any internal concurrency.
type Sampler struct {
	mu sync.Mutex

	alpha float64
	beta  int

	counts            map[types.ID]uint64
	consecutiveCount  int
	stalled           int
	preferred         *types.Block
	last              *types.Block

	logger *rlog.Logger
}

// New builds a Sampler with the given confidence threshold (alpha) and
// consecutive-observation threshold (beta).
func New(alpha float64, beta int) *Sampler {
	return &Sampler{
		alpha:  alpha,
		beta:   beta,
		counts: make(map[types.ID]uint64),
		logger: rlog.New("sampler"),
	}
}

// Preferred returns the block currently preferred for proposal, or nil.
func (s *Sampler) Preferred() *types.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preferred
}

// Prefer injects a freshly proposed block as the new preference,
// releasing whatever was preferred before. Used by the Chain proposer
// when no preference currently exists.
func (s *Sampler) Prefer(block *types.Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.preferred
	s.preferred = block
	s.logger.Info("preference set", "id", block.ID(), "height", block.Height())
	if previous != nil {
		previous.Release()
	}
}

// Update folds one round of votes into the state machine. It returns the
// newly finalized block, or nil if the round produced no decision.
func (s *Sampler) Update(votes []Vote) *types.Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(votes) == 0 {
		return nil
	}

	var majority *Vote
	for i := range votes {
		if votes[i].Block == nil {
			continue
		}
		if majority == nil || votes[i].Tally > majority.Tally {
			majority = &votes[i]
		}
	}
	if majority == nil {
		s.consecutiveCount = 0
		return nil
	}

	if majority.Tally < s.alpha {
		s.stalled++
		if s.stalled >= s.beta {
			if s.preferred != nil {
				s.logger.Info("abandoning preference", "id", s.preferred.ID())
				s.preferred.Release()
				s.preferred = nil
			}
			s.stalled = 0
		}
		s.consecutiveCount = 0
		return nil
	}
	s.stalled = 0

	id := majority.Block.ID()
	s.counts[id]++

	switch {
	case s.preferred == nil:
		s.preferred = majority.Block.Ref()
	case s.counts[id] > s.counts[s.preferred.ID()]:
		s.logger.Info("switching preference", "from", s.preferred.ID(), "to", id)
		s.preferred.Release()
		s.preferred = majority.Block.Ref()
	}

	if s.last == nil || s.last.ID() != id {
		if s.last != nil {
			s.last.Release()
		}
		s.last = majority.Block.Ref()
		s.consecutiveCount = 1
		return nil
	}

	s.consecutiveCount++
	if s.consecutiveCount > s.beta {
		return s.preferred
	}
	return nil
}

// Reset clears counts, consecutive_count, stalled, and releases
// preferred and last. Called after a finalization (or never, if the
// Chain chooses to keep sampling past a stall).
func (s *Sampler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[types.ID]uint64)
	s.consecutiveCount = 0
	s.stalled = 0
	if s.preferred != nil {
		s.preferred.Release()
		s.preferred = nil
	}
	if s.last != nil {
		s.last.Release()
		s.last = nil
	}
}
