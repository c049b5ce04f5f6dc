package chain

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bermi/rheia/chain/types"
)

func newSignedTx(t *testing.T, nonce uint64) *types.Transaction {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	tx, err := types.NewTransaction(priv, nonce, 0, types.TagNoOp, nil)
	require.NoError(t, err)
	return tx
}

func TestChainReserveRespectsCapacity(t *testing.T) {
	c := New(Options{MaxPendingSize: 2})
	assert.True(t, c.Reserve(2))
	assert.False(t, c.Reserve(3))

	c.Insert(newSignedTx(t, 0))
	c.Insert(newSignedTx(t, 1))
	assert.False(t, c.Reserve(1))
}

func TestChainRunProposesAndFinalizes(t *testing.T) {
	c := New(Options{
		ProposeDelayMin: 0,
		ProposeDelayMax: 5 * time.Millisecond,
		SamplerAlpha:    0.80,
		SamplerBeta:     2,
	})

	tx := newSignedTx(t, 0)
	c.Insert(tx)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		b := c.LatestBlock()
		return b != nil && b.Height() == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, 0, c.PendingLen())

	cancel()
	<-done
}

func TestChainInsertOverwritesDuplicateID(t *testing.T) {
	c := New(Options{})
	tx := newSignedTx(t, 0)
	c.Insert(tx.Ref())
	c.Insert(tx)
	assert.Equal(t, 1, c.PendingLen())
}

func TestChainShutdownReleasesPending(t *testing.T) {
	c := New(Options{})
	c.Insert(newSignedTx(t, 0))
	c.Insert(newSignedTx(t, 1))
	c.Shutdown()
	assert.Equal(t, 0, c.PendingLen())
	assert.Nil(t, c.LatestBlock())
}
