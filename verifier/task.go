package verifier

import (
	"crypto/ed25519"
	"sync"

	"github.com/hdevalence/ed25519consensus"

	"github.com/bermi/rheia/chain/types"
)

// task owns one dispatched batch from acceptance through commit. It is
// drawn from and returned to a taskPool so repeated flushes reuse the
// same handful of structures instead of allocating one per batch, the
// same free-list discipline the teacher's CpuAgent applies to its
// mining tasks.
type task struct{}

// taskPool is a mutex-guarded free-list, generalized from the teacher's
// single-slot CpuAgent.workCh into a pool sized for many concurrent
// verification tasks.
type taskPool struct {
	mu   sync.Mutex
	free []*task
}

func (p *taskPool) get() *task {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		t := p.free[n-1]
		p.free = p.free[:n-1]
		return t
	}
	return &task{}
}

func (p *taskPool) put(t *task) {
	p.mu.Lock()
	p.free = append(p.free, t)
	p.mu.Unlock()
}

// run verifies batch, partitioning it into contiguous max_batch_size
// windows, batch-verifying each full window and falling back to
// per-transaction verification on batch failure (and for any residual
// tail shorter than a full window). The accepted transactions are
// compacted to the front of batch's backing array and handed to
// v.commit; batch itself is not reused afterward.
func (t *task) run(v *TransactionVerifier, batch []*types.Transaction) {
	accepted := batch[:0]
	remaining := batch
	for len(remaining) > 0 {
		n := v.maxBatchSize
		if n > len(remaining) {
			n = len(remaining)
		}
		window := remaining[:n]
		remaining = remaining[n:]

		if n == v.maxBatchSize && verifyBatch(window) {
			accepted = append(accepted, window...)
			v.acceptedCounter.Inc(int64(n))
			continue
		}
		if n == v.maxBatchSize {
			v.batchFallbackCounter.Inc(1)
		}
		for _, tx := range window {
			if verifyOne(tx) {
				accepted = append(accepted, tx)
				v.acceptedCounter.Inc(1)
			} else {
				v.logger.Warn("rejecting transaction with invalid signature", "id", tx.ID())
				v.rejectedCounter.Inc(1)
				tx.Release()
			}
		}
	}
	v.commit(accepted)
}

func verifyOne(tx *types.Transaction) bool {
	sender := tx.Sender()
	return ed25519consensus.Verify(ed25519.PublicKey(sender[:]), tx.SignaturePayload(), signatureBytes(tx))
}

func verifyBatch(window []*types.Transaction) bool {
	v := ed25519consensus.NewBatchVerifier()
	for _, tx := range window {
		sender := tx.Sender()
		v.Add(ed25519.PublicKey(sender[:]), tx.SignaturePayload(), signatureBytes(tx))
	}
	return v.Verify()
}

func signatureBytes(tx *types.Transaction) []byte {
	sig := tx.Signature()
	return sig[:]
}
