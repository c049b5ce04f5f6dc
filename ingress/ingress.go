// Package ingress is the boundary adapter: it decodes framed packets
// (see Header/EncodeFrame) and turns push_transaction commands into
// calls on a Verifier, and ping requests into echoed responses.
package ingress

import (
	"context"

	"github.com/bermi/rheia/chain/types"
	"github.com/bermi/rheia/internal/rlog"
)

// Verifier is the capability Adapter needs from the verification
// pipeline.
type Verifier interface {
	Push(ctx context.Context, tx *types.Transaction) error
}

// ResponseWriter lets Adapter emit a response frame back on the
// connection a request arrived on.
type ResponseWriter interface {
	WriteResponse(nonce uint32, tag Tag, payload []byte) error
}

// Adapter dispatches decoded frames by op/tag.
type Adapter struct {
	verifier Verifier
	logger   *rlog.Logger
}

// New builds an Adapter that pushes decoded transactions into verifier.
func New(verifier Verifier) *Adapter {
	return &Adapter{verifier: verifier, logger: rlog.New("ingress")}
}

// Handle dispatches one decoded frame. Decode errors within a
// push_transaction payload abort processing that frame only; the
// connection itself is left to the caller to close on error if it
// chooses.
func (a *Adapter) Handle(ctx context.Context, h Header, payload []byte, w ResponseWriter) error {
	switch {
	case h.Op == OpCommand && h.Tag == TagPushTransaction:
		return a.handlePushTransaction(ctx, payload)
	case h.Op == OpRequest && h.Tag == TagPing:
		return w.WriteResponse(h.Nonce, TagPing, payload)
	default:
		a.logger.Warn("unexpected op/tag combination", "op", h.Op, "tag", h.Tag)
		if h.Tag != TagPing && h.Tag != TagPushTransaction {
			return ErrUnexpectedTag
		}
		return ErrUnexpectedPacket
	}
}

func (a *Adapter) handlePushTransaction(ctx context.Context, payload []byte) error {
	for len(payload) > 0 {
		tx, rest, err := types.DecodeTransaction(payload)
		if err != nil {
			a.logger.Warn("dropping malformed push_transaction frame", "err", err)
			return err
		}
		payload = rest
		if err := a.verifier.Push(ctx, tx); err != nil {
			tx.Release()
			return err
		}
	}
	return nil
}
