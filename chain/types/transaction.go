package types

import (
	"crypto/ed25519"
	"encoding/binary"
	"sync/atomic"

	"github.com/zeebo/blake3"
)

// Tag enumerates the kind of payload a Transaction carries. Only NoOp is
// defined today; DecodeTransaction rejects anything else.
type Tag uint8

const (
	TagNoOp Tag = 0
)

// Transaction is an immutable, signed, content-addressed payload.
//
// It is reference-counted: Ref shares a handle, Release drops one. The
// zero-refcount transition is the only place storage is reclaimed, so
// every holder (the verifier's batch, Chain.pending, a proposer snapshot)
// must call Release exactly once per Ref/construction it received.
type Transaction struct {
	sender      [32]byte
	signature   [64]byte
	senderNonce uint64
	createdAt   uint64
	tag         Tag
	data        []byte

	id   ID
	refs int32
}

// NewTransaction builds and signs a Transaction with the given key.
// sender_nonce/created_at are opaque to the core; data must not exceed
// MaxTransactionDataSize.
func NewTransaction(priv ed25519.PrivateKey, senderNonce, createdAt uint64, tag Tag, data []byte) (*Transaction, error) {
	if len(data) > MaxTransactionDataSize {
		return nil, ErrTransactionTooLarge
	}

	tx := &Transaction{
		senderNonce: senderNonce,
		createdAt:   createdAt,
		tag:         tag,
		data:        append([]byte(nil), data...),
		refs:        1,
	}
	copy(tx.sender[:], priv.Public().(ed25519.PublicKey))

	sig := ed25519.Sign(priv, tx.signaturePayload())
	copy(tx.signature[:], sig)

	tx.id = ID(blake3.Sum256(tx.Serialize()))
	return tx, nil
}

// signaturePayload is the suffix of the wire layout starting at
// sender_nonce: the bytes the signature covers.
func (t *Transaction) signaturePayload() []byte {
	buf := make([]byte, 8+8+1+len(t.data))
	binary.LittleEndian.PutUint64(buf[0:8], t.senderNonce)
	binary.LittleEndian.PutUint64(buf[8:16], t.createdAt)
	buf[16] = byte(t.tag)
	copy(buf[17:], t.data)
	return buf
}

// Serialize renders the canonical wire layout:
// sender(32) || signature(64) || data_len:u32 || sender_nonce:u64 ||
// created_at:u64 || tag:u8 || data(data_len).
func (t *Transaction) Serialize() []byte {
	buf := make([]byte, 32+64+4+8+8+1+len(t.data))
	off := 0
	copy(buf[off:], t.sender[:])
	off += 32
	copy(buf[off:], t.signature[:])
	off += 64
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(t.data)))
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], t.senderNonce)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], t.createdAt)
	off += 8
	buf[off] = byte(t.tag)
	off++
	copy(buf[off:], t.data)
	return buf
}

// DecodeTransaction parses one Transaction from the front of data and
// returns it along with the unconsumed remainder, so callers can decode a
// concatenation of Transactions back to back (the push_transaction frame
// body). It recomputes id from the parsed fields; it does not verify the
// signature — that is the TransactionVerifier's job.
func DecodeTransaction(data []byte) (*Transaction, []byte, error) {
	const headerLen = 32 + 64 + 4 + 8 + 8 + 1
	if len(data) < headerLen {
		return nil, nil, ErrUnexpectedEndOfStream
	}

	tx := &Transaction{refs: 1}
	off := 0
	copy(tx.sender[:], data[off:off+32])
	off += 32
	copy(tx.signature[:], data[off:off+64])
	off += 64
	dataLen := binary.LittleEndian.Uint32(data[off:])
	off += 4
	if dataLen > MaxTransactionDataSize {
		return nil, nil, ErrTransactionTooLarge
	}
	tx.senderNonce = binary.LittleEndian.Uint64(data[off:])
	off += 8
	tx.createdAt = binary.LittleEndian.Uint64(data[off:])
	off += 8
	tag := Tag(data[off])
	off++
	if tag != TagNoOp {
		return nil, nil, ErrUnknownTag
	}
	tx.tag = tag

	if uint32(len(data)-off) < dataLen {
		return nil, nil, ErrUnexpectedEndOfStream
	}
	tx.data = append([]byte(nil), data[off:off+int(dataLen)]...)
	off += int(dataLen)

	tx.id = ID(blake3.Sum256(tx.Serialize()))
	return tx, data[off:], nil
}

// ID returns the content-address of the transaction.
func (t *Transaction) ID() ID { return t.id }

// Sender returns the 32-byte Ed25519 public key that signed this transaction.
func (t *Transaction) Sender() [32]byte { return t.sender }

// Signature returns the 64-byte signature over the signature payload.
func (t *Transaction) Signature() [64]byte { return t.signature }

// SignaturePayload exposes the bytes Verify must check the signature
// against (sender_nonce || created_at || tag || data).
func (t *Transaction) SignaturePayload() []byte { return t.signaturePayload() }

func (t *Transaction) SenderNonce() uint64 { return t.senderNonce }
func (t *Transaction) CreatedAt() uint64   { return t.createdAt }
func (t *Transaction) Tag() Tag            { return t.tag }
func (t *Transaction) Data() []byte        { return t.data }

// Size returns the length of the canonical wire serialization.
func (t *Transaction) Size() int {
	return 32 + 64 + 4 + 8 + 8 + 1 + len(t.data)
}

// Ref shares ownership of the handle, returning it for chaining.
func (t *Transaction) Ref() *Transaction {
	atomic.AddInt32(&t.refs, 1)
	return t
}

// Release drops a reference. At zero the backing buffer is dropped so it
// can be collected promptly instead of waiting on every other reference.
func (t *Transaction) Release() {
	if atomic.AddInt32(&t.refs, -1) <= 0 {
		t.data = nil
	}
}
