// Package chain implements the pending-transaction mempool and the
// propose/finalize run-loop that drives blocks through the Sampler to
// finalization.
package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	gometrics "github.com/rcrowley/go-metrics"

	"github.com/bermi/rheia/chain/types"
	"github.com/bermi/rheia/internal/metrics"
	"github.com/bermi/rheia/internal/rlog"
	"github.com/bermi/rheia/internal/runtime"
	"github.com/bermi/rheia/sampler"
)

// Options configures a Chain. Zero values are replaced with the
// specification's defaults.
type Options struct {
	ProposeDelayMin   time.Duration
	ProposeDelayMax   time.Duration
	MaxTransactionIDs int
	MaxPendingSize    int
	SamplerAlpha      float64
	SamplerBeta       int
}

func (o Options) withDefaults() Options {
	if o.ProposeDelayMax <= 0 {
		o.ProposeDelayMax = 500 * time.Millisecond
	}
	if o.MaxTransactionIDs <= 0 {
		o.MaxTransactionIDs = types.MaxBlockTransactionIDs
	}
	if o.MaxPendingSize <= 0 {
		o.MaxPendingSize = 1_000_000
	}
	if o.SamplerAlpha <= 0 {
		o.SamplerAlpha = 0.80
	}
	if o.SamplerBeta <= 0 {
		o.SamplerBeta = 150
	}
	return o
}

// Chain owns the pending-transaction map, the most recently finalized
// block, and an embedded Sampler driving the propose/finalize cycle.
type Chain struct {
	mu      sync.Mutex
	pending map[types.ID]*types.Transaction
	order   []types.ID
	latest  *types.Block

	lastProposeTime time.Time
	proposeDelayMin time.Duration
	proposeDelay    *runtime.AdditiveDelay

	maxTransactionIDs int
	maxPendingSize    int

	sampler *sampler.Sampler

	logger           *rlog.Logger
	proposedCounter  gometrics.Counter
	finalizedCounter gometrics.Counter
}

// New builds a Chain with no latest block and an empty pending set.
func New(opts Options) *Chain {
	opts = opts.withDefaults()
	return &Chain{
		pending:           make(map[types.ID]*types.Transaction),
		proposeDelayMin:   opts.ProposeDelayMin,
		proposeDelay:      runtime.NewAdditiveDelay(opts.ProposeDelayMin, opts.ProposeDelayMax, 0.10),
		maxTransactionIDs: opts.MaxTransactionIDs,
		maxPendingSize:    opts.MaxPendingSize,
		sampler:           sampler.New(opts.SamplerAlpha, opts.SamplerBeta),
		logger:            rlog.New("chain"),
		proposedCounter:   metrics.NewRegisteredCounter("chain/proposed"),
		finalizedCounter:  metrics.NewRegisteredCounter("chain/finalized"),
	}
}

// Reserve reports whether pending has room for n more transactions,
// satisfying verifier.PendingSet.
func (c *Chain) Reserve(n int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)+n <= c.maxPendingSize
}

// Insert adds tx to pending keyed by its id, taking ownership of the
// handle. A repeat id overwrites the previous holder (last-write-wins),
// releasing it — the recentset guard upstream in the verifier is what
// actually prevents this from firing under normal operation.
func (c *Chain) Insert(tx *types.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := tx.ID()
	if previous, exists := c.pending[id]; exists {
		previous.Release()
	} else {
		c.order = append(c.order, id)
	}
	c.pending[id] = tx
}

// LatestBlock returns the most recently finalized block, or nil if none
// has finalized yet. The caller must not Release it.
func (c *Chain) LatestBlock() *types.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// PendingLen reports the current size of the pending set.
func (c *Chain) PendingLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// removeLocked deletes id from pending and releases it, reporting
// whether it was present. Callers hold c.mu.
func (c *Chain) removeLocked(id types.ID) bool {
	tx, ok := c.pending[id]
	if !ok {
		return false
	}
	delete(c.pending, id)
	tx.Release()
	return true
}

// snapshotIDsLocked returns up to max ids from pending in the chain's
// stable enumeration order, compacting order in place to drop ids that
// have since been deleted. Callers hold c.mu.
func (c *Chain) snapshotIDsLocked(max int) []types.ID {
	ids := make([]types.ID, 0, max)
	kept := c.order[:0]
	for _, id := range c.order {
		if _, ok := c.pending[id]; !ok {
			continue
		}
		kept = append(kept, id)
		if len(ids) < max {
			ids = append(ids, id)
		}
	}
	c.order = kept
	return ids
}

// Run drives propose/finalize cycles until ctx is cancelled. It alternates
// based on whether the Sampler currently holds a preferred block.
func (c *Chain) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if c.sampler.Preferred() == nil {
			if !c.proposeTick(ctx) {
				return
			}
		} else {
			c.finalizeTick()
		}
	}
}

// proposeTick runs one iteration of the proposer loop (spec.md §4.3).
// It returns false if ctx fired while sleeping.
func (c *Chain) proposeTick(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.proposeDelay.Duration()):
	}

	c.mu.Lock()
	empty := len(c.pending) == 0
	idle := time.Since(c.lastProposeTime) < c.proposeDelayMin
	c.mu.Unlock()
	if empty || idle {
		c.proposeDelay.Grow()
		return true
	}

	c.mu.Lock()
	ids := c.snapshotIDsLocked(c.maxTransactionIDs)
	height := uint64(1)
	if c.latest != nil {
		height = c.latest.Height() + 1
	}
	c.lastProposeTime = time.Now()
	c.mu.Unlock()

	block, err := types.NewBlock(height, ids)
	if err != nil {
		c.logger.Error("failed to construct proposed block", "err", err)
		c.proposeDelay.Grow()
		return true
	}

	c.proposedCounter.Inc(1)
	c.logger.Info("proposing block", "height", height, "transactions", len(ids))
	c.sampler.Prefer(block)
	c.proposeDelay.Reset()
	return true
}

// finalizeTick runs one iteration of the finalization loop (spec.md
// §4.3), casting the single self-vote for the sampler's current
// preference.
func (c *Chain) finalizeTick() {
	preferred := c.sampler.Preferred()
	finalized := c.sampler.Update([]sampler.Vote{{Block: preferred, Tally: 1.0}})
	if finalized == nil {
		return
	}

	// Update still owns finalized through its preferred/last slots until
	// Reset releases them; take our own share before that happens.
	finalized.Ref()

	c.mu.Lock()
	for _, id := range finalized.TransactionIDs() {
		if !c.removeLocked(id) {
			c.mu.Unlock()
			panic(fmt.Sprintf("finalized block %s references transaction %s not present in pending", finalized.ID(), id))
		}
	}
	previous := c.latest
	c.latest = finalized
	c.mu.Unlock()

	if previous != nil {
		previous.Release()
	}

	c.finalizedCounter.Inc(1)
	c.logger.Info("finalized block", "height", finalized.Height(), "id", finalized.ID())
	c.sampler.Reset()
}

// Shutdown releases every transaction still in pending and the latest
// block, matching the source's deinit: release everything owned.
func (c *Chain) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.pending {
		c.pending[id].Release()
		delete(c.pending, id)
	}
	c.order = nil
	if c.latest != nil {
		c.latest.Release()
		c.latest = nil
	}
	c.sampler.Reset()
}
