// Package runtime supplies the small suspension and timing primitives the
// verifier and chain run-loops are built from: a one-shot wake signal
// modeled on the teacher's agent stop/quit channels and on
// event.Subscription's Err() channel idiom, and the two adaptive-delay
// growth rules spec'd for the proposer and the flush loop.
package runtime

import (
	"context"
	"sync"
)

// Parker is a broadcast-once wake primitive: Wait suspends until the next
// Notify, or until ctx is cancelled. Safe for concurrent use by many
// waiters and many notifiers.
type Parker struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewParker returns a ready-to-use Parker.
func NewParker() *Parker {
	return &Parker{ch: make(chan struct{})}
}

// Wait suspends the caller until Notify is next called, or ctx is done.
func (p *Parker) Wait(ctx context.Context) error {
	p.mu.Lock()
	ch := p.ch
	p.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify wakes every current waiter.
func (p *Parker) Notify() {
	p.mu.Lock()
	close(p.ch)
	p.ch = make(chan struct{})
	p.mu.Unlock()
}
