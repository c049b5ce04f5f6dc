package ingress

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bermi/rheia/chain/types"
)

type fakeVerifier struct {
	pushed []*types.Transaction
}

func (f *fakeVerifier) Push(ctx context.Context, tx *types.Transaction) error {
	f.pushed = append(f.pushed, tx)
	return nil
}

type fakeResponseWriter struct {
	nonce   uint32
	tag     Tag
	payload []byte
}

func (f *fakeResponseWriter) WriteResponse(nonce uint32, tag Tag, payload []byte) error {
	f.nonce = nonce
	f.tag = tag
	f.payload = payload
	return nil
}

func newSignedTx(t *testing.T) *types.Transaction {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	tx, err := types.NewTransaction(priv, 1, 2, types.TagNoOp, []byte("hello world"))
	require.NoError(t, err)
	return tx
}

func TestHandlePushTransactionDecodesConsecutiveTransactions(t *testing.T) {
	v := &fakeVerifier{}
	a := New(v)

	tx1, tx2 := newSignedTx(t), newSignedTx(t)
	payload := append(append([]byte{}, tx1.Serialize()...), tx2.Serialize()...)

	h := Header{Len: uint32(len(payload)), Op: OpCommand, Tag: TagPushTransaction}
	require.NoError(t, a.Handle(context.Background(), h, payload, &fakeResponseWriter{}))

	require.Len(t, v.pushed, 2)
	assert.Equal(t, tx1.ID(), v.pushed[0].ID())
	assert.Equal(t, tx2.ID(), v.pushed[1].ID())
}

func TestHandlePushTransactionAbortsOnDecodeError(t *testing.T) {
	v := &fakeVerifier{}
	a := New(v)

	h := Header{Len: 3, Op: OpCommand, Tag: TagPushTransaction}
	err := a.Handle(context.Background(), h, []byte{1, 2, 3}, &fakeResponseWriter{})
	assert.ErrorIs(t, err, types.ErrUnexpectedEndOfStream)
	assert.Empty(t, v.pushed)
}

func TestHandlePingEchoesNonceAndPayload(t *testing.T) {
	a := New(&fakeVerifier{})
	w := &fakeResponseWriter{}

	h := Header{Len: 11, Nonce: 42, Op: OpRequest, Tag: TagPing}
	require.NoError(t, a.Handle(context.Background(), h, []byte("hello world"), w))

	assert.Equal(t, uint32(42), w.nonce)
	assert.Equal(t, TagPing, w.tag)
	assert.Equal(t, []byte("hello world"), w.payload)
}

func TestHandleUnexpectedOpTagCombination(t *testing.T) {
	a := New(&fakeVerifier{})
	h := Header{Op: OpResponse, Tag: TagPushTransaction}
	err := a.Handle(context.Background(), h, nil, &fakeResponseWriter{})
	assert.ErrorIs(t, err, ErrUnexpectedPacket)
}

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Len: 11, Nonce: 7, Op: OpCommand, Tag: TagPushTransaction}
	decoded, err := DecodeHeader(EncodeHeader(h))
	require.NoError(t, err)
	assert.Equal(t, h, decoded)
}

func TestDecodeHeaderRejectsOversizedPayload(t *testing.T) {
	buf := EncodeHeader(Header{Len: MaxPayloadSize + 1})
	_, err := DecodeHeader(buf)
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}
