package types

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/zeebo/blake3"
)

// Block is an immutable, content-addressed container of transaction ids.
// Reference-counted the same way as Transaction.
type Block struct {
	height         uint64
	merkleRoot     [32]byte // always zero; reserved, never computed here
	transactionIDs []ID

	id   ID
	refs int32
}

// NewBlock builds a Block at height, carrying the given transaction ids in
// order. merkle_root is always zero (the field is reserved but unused).
func NewBlock(height uint64, transactionIDs []ID) (*Block, error) {
	if len(transactionIDs) > MaxBlockTransactionIDs {
		return nil, ErrBlockTooLarge
	}
	b := &Block{
		height:         height,
		transactionIDs: append([]ID(nil), transactionIDs...),
		refs:           1,
	}
	b.id = ID(blake3.Sum256(b.Serialize()))
	return b, nil
}

// Serialize renders the canonical wire layout:
// height:u64 || merkle_root(32) || num_ids:u16 || ids(num_ids * 32).
func (b *Block) Serialize() []byte {
	buf := make([]byte, 8+32+2+32*len(b.transactionIDs))
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], b.height)
	off += 8
	copy(buf[off:], b.merkleRoot[:])
	off += 32
	binary.LittleEndian.PutUint16(buf[off:], uint16(len(b.transactionIDs)))
	off += 2
	for _, id := range b.transactionIDs {
		copy(buf[off:], id[:])
		off += 32
	}
	return buf
}

// DecodeBlock parses one Block from the front of data and returns it along
// with the unconsumed remainder. It recomputes id; it does not read id off
// the wire.
func DecodeBlock(data []byte) (*Block, []byte, error) {
	const headerLen = 8 + 32 + 2
	if len(data) < headerLen {
		return nil, nil, ErrUnexpectedEndOfStream
	}

	b := &Block{refs: 1}
	off := 0
	b.height = binary.LittleEndian.Uint64(data[off:])
	off += 8
	copy(b.merkleRoot[:], data[off:off+32])
	off += 32
	numIDs := binary.LittleEndian.Uint16(data[off:])
	off += 2

	need := int(numIDs) * 32
	if len(data)-off < need {
		return nil, nil, ErrUnexpectedEndOfStream
	}
	b.transactionIDs = make([]ID, numIDs)
	for i := 0; i < int(numIDs); i++ {
		copy(b.transactionIDs[i][:], data[off:off+32])
		off += 32
	}

	b.id = ID(blake3.Sum256(b.Serialize()))
	return b, data[off:], nil
}

// ID returns the content-address of the block.
func (b *Block) ID() ID { return b.id }

func (b *Block) Height() uint64 { return b.height }

// TransactionIDs returns the ordered ids the block carries. The returned
// slice must not be mutated by the caller.
func (b *Block) TransactionIDs() []ID { return b.transactionIDs }

// Size returns the length of the canonical wire serialization.
func (b *Block) Size() int {
	return 8 + 32 + 2 + 32*len(b.transactionIDs)
}

// Ref shares ownership of the handle, returning it for chaining.
func (b *Block) Ref() *Block {
	atomic.AddInt32(&b.refs, 1)
	return b
}

// Release drops a reference. At zero the id slice is dropped so it can be
// collected promptly instead of waiting on every other reference.
func (b *Block) Release() {
	if atomic.AddInt32(&b.refs, -1) <= 0 {
		b.transactionIDs = nil
	}
}
