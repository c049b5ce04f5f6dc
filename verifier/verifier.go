// Package verifier implements the batched, pipelined, cancellation-aware
// transaction verification pool: Push accumulates Transactions into a
// growing batch, flushing either when the batch is full or adaptively on
// a timer, and dispatches each flushed batch to a bounded pool of
// concurrent verification tasks.
package verifier

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	gometrics "github.com/rcrowley/go-metrics"

	"github.com/bermi/rheia/chain/types"
	"github.com/bermi/rheia/internal/metrics"
	"github.com/bermi/rheia/internal/recentset"
	"github.com/bermi/rheia/internal/rlog"
	"github.com/bermi/rheia/internal/runtime"
)

// PendingSet is the capability TransactionVerifier needs from the Chain's
// pending mempool: reserve capacity for an accepted batch, then insert
// each member by id.
type PendingSet interface {
	Reserve(n int) bool
	Insert(tx *types.Transaction)
}

// Options configures a TransactionVerifier. Zero values are replaced with
// the defaults mandated by the specification.
type Options struct {
	MaxParallelTasks  int
	MaxBatchSize      int
	FlushDelayMin     time.Duration
	FlushDelayMax     time.Duration
	RecentIDCacheSize int
}

func (o Options) withDefaults() Options {
	if o.MaxParallelTasks <= 0 {
		o.MaxParallelTasks = 256
	}
	if o.MaxBatchSize <= 0 {
		o.MaxBatchSize = 64
	}
	if o.FlushDelayMin <= 0 {
		o.FlushDelayMin = 100 * time.Millisecond
	}
	if o.FlushDelayMax <= 0 {
		o.FlushDelayMax = 500 * time.Millisecond
	}
	if o.RecentIDCacheSize <= 0 {
		o.RecentIDCacheSize = 16384
	}
	return o
}

// TransactionVerifier is the batched signature verification pipeline.
type TransactionVerifier struct {
	mu      sync.Mutex
	entries []*types.Transaction

	pending PendingSet
	recent  *recentset.Set
	pool    *taskPool
	group   runtime.Group

	activeTasks      int32
	maxParallelTasks int
	maxBatchSize     int

	flushDelayMin time.Duration
	flushDelay    *runtime.MultiplicativeDelay
	lastFlush     time.Time

	capacityParker *runtime.Parker

	logger               *rlog.Logger
	acceptedCounter      gometrics.Counter
	rejectedCounter      gometrics.Counter
	batchFallbackCounter gometrics.Counter
}

// New builds a TransactionVerifier that commits accepted batches into
// pending.
func New(pending PendingSet, opts Options) (*TransactionVerifier, error) {
	opts = opts.withDefaults()
	recent, err := recentset.New(opts.RecentIDCacheSize)
	if err != nil {
		return nil, err
	}
	return &TransactionVerifier{
		pending:              pending,
		recent:               recent,
		pool:                 &taskPool{},
		maxParallelTasks:     opts.MaxParallelTasks,
		maxBatchSize:         opts.MaxBatchSize,
		flushDelayMin:        opts.FlushDelayMin,
		flushDelay:           runtime.NewMultiplicativeDelay(opts.FlushDelayMin, opts.FlushDelayMax),
		capacityParker:       runtime.NewParker(),
		logger:               rlog.New("verifier"),
		acceptedCounter:      metrics.NewRegisteredCounter("verifier/accepted"),
		rejectedCounter:      metrics.NewRegisteredCounter("verifier/rejected"),
		batchFallbackCounter: metrics.NewRegisteredCounter("verifier/batch_fallback"),
	}, nil
}

// Push enqueues tx for verification, blocking while the active-task
// counter is saturated at max_parallel_tasks. It triggers an immediate
// flush once the accumulating batch reaches max_batch_size.
func (v *TransactionVerifier) Push(ctx context.Context, tx *types.Transaction) error {
	for atomic.LoadInt32(&v.activeTasks) >= int32(v.maxParallelTasks) {
		if err := v.capacityParker.Wait(ctx); err != nil {
			return err
		}
	}

	v.mu.Lock()
	v.entries = append(v.entries, tx)
	var batch []*types.Transaction
	if len(v.entries) >= v.maxBatchSize {
		batch = v.entries
		v.entries = nil
	}
	v.mu.Unlock()

	if batch != nil {
		v.dispatch(batch)
	}
	return nil
}

// Run is the background loop that sleeps adaptively and flushes partial
// batches: the delay starts at flush_delay_min, doubles on every idle
// tick up to flush_delay_max, and resets on a successful flush.
func (v *TransactionVerifier) Run(ctx context.Context) {
	timer := time.NewTimer(v.flushDelay.Duration())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			v.tick()
			timer.Reset(v.flushDelay.Duration())
		}
	}
}

func (v *TransactionVerifier) tick() {
	v.mu.Lock()
	entries := v.entries
	v.entries = nil
	v.mu.Unlock()

	if len(entries) > 0 && time.Since(v.lastFlush) >= v.flushDelayMin {
		v.lastFlush = time.Now()
		v.flushDelay.Reset()
		v.dispatch(entries)
		return
	}

	if len(entries) > 0 {
		// Not enough time has passed since the previous flush; put the
		// entries back so the next tick (or a batch-size trigger) picks
		// them up.
		v.mu.Lock()
		v.entries = append(entries, v.entries...)
		v.mu.Unlock()
	}
	v.flushDelay.Grow()
}

func (v *TransactionVerifier) dispatch(batch []*types.Transaction) {
	atomic.AddInt32(&v.activeTasks, 1)
	t := v.pool.get()
	v.group.Go(func() {
		defer func() {
			v.pool.put(t)
			atomic.AddInt32(&v.activeTasks, -1)
			v.capacityParker.Notify()
		}()
		t.run(v, batch)
	})
}

// commit reserves capacity for accepted in pending and inserts each
// member keyed by id. If reservation fails the whole batch is released
// and dropped, per the documented capacity-exhaustion behavior.
func (v *TransactionVerifier) commit(accepted []*types.Transaction) {
	if len(accepted) == 0 {
		return
	}
	if !v.pending.Reserve(len(accepted)) {
		v.logger.Warn("dropping accepted batch: pending capacity exhausted", "count", len(accepted))
		for _, tx := range accepted {
			tx.Release()
		}
		return
	}
	for _, tx := range accepted {
		if v.recent.SeenOrAdd(tx.ID()) {
			v.logger.Debug("dropping duplicate transaction", "id", tx.ID())
			tx.Release()
			continue
		}
		v.pending.Insert(tx)
	}
}

// Shutdown waits for every in-flight task to finish, then releases any
// un-flushed entries.
func (v *TransactionVerifier) Shutdown(ctx context.Context) error {
	select {
	case <-v.group.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for _, tx := range v.entries {
		tx.Release()
	}
	v.entries = nil
	return nil
}
