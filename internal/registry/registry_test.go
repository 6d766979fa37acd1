package registry

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bidon15/rollupctl/internal/chain"
	"github.com/Bidon15/rollupctl/internal/component/componenttest"
)

var (
	registryAddr = common.HexToAddress("0x0000000000000000000000000000000000000aaa")
	addrA        = common.HexToAddress("0x000000000000000000000000000000000000000a")
	addrB        = common.HexToAddress("0x000000000000000000000000000000000000000b")
)

func TestNew_RequiresInterface(t *testing.T) {
	c := componenttest.New()
	c.HideMethod("Registry", MethodGetAddr)

	_, err := New(c.Attach("Registry", registryAddr), nil)
	assert.ErrorIs(t, err, ErrIncompatible)
}

func TestWrite_Batch(t *testing.T) {
	ctx := context.Background()
	c := componenttest.New()
	r, err := New(c.Attach("Registry", registryAddr), nil)
	require.NoError(t, err)
	assert.True(t, r.SupportsBatch())

	hashes, err := r.Write(ctx, []Entry{{Key: "A", Address: addrA}, {Key: "B", Address: addrB}})
	require.NoError(t, err)
	assert.Len(t, hashes, 1)
	assert.Equal(t, []string{"Registry"}, c.Names(componenttest.KindTransact, MethodSetAddressBatch))
	assert.Equal(t, map[string]common.Address{"A": addrA, "B": addrB}, c.Entries(registryAddr))
}

func TestWrite_FallsBackToSingleWrites(t *testing.T) {
	ctx := context.Background()
	c := componenttest.New()
	c.HideMethod("Registry", MethodSetAddressBatch)
	r, err := New(c.Attach("Registry", registryAddr), nil)
	require.NoError(t, err)
	assert.False(t, r.SupportsBatch())

	hashes, err := r.Write(ctx, []Entry{{Key: "A", Address: addrA}, {Key: "B", Address: addrB}})
	require.NoError(t, err)
	assert.Len(t, hashes, 2)
	assert.Len(t, c.Names(componenttest.KindTransact, MethodSetAddress), 2)

	got, err := r.GetAll(ctx, []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, map[string]common.Address{"A": addrA, "B": addrB, "C": {}}, got)
}

func TestWrite_PartialFailureReturnsConfirmedHashes(t *testing.T) {
	c := componenttest.New()
	c.HideMethod("Registry", MethodSetAddressBatch)
	r, err := New(c.Attach("Registry", registryAddr), nil)
	require.NoError(t, err)

	_, err = r.Write(context.Background(), []Entry{{Key: "A", Address: addrA}})
	require.NoError(t, err)
	c.FailTransact("Registry", MethodSetAddress)

	hashes, err := r.Write(context.Background(), []Entry{{Key: "B", Address: addrB}})
	require.Error(t, err)
	assert.ErrorIs(t, err, chain.ErrReverted)
	assert.Empty(t, hashes)
	_, ok := chain.TxHashOf(err)
	assert.True(t, ok)
}

func TestPending(t *testing.T) {
	c := componenttest.New()
	c.SetEntry(registryAddr, "A", addrA)
	c.SetEntry(registryAddr, "B", addrA)
	r, err := New(c.Attach("Registry", registryAddr), nil)
	require.NoError(t, err)

	current, err := r.GetAll(context.Background(), []string{"A", "B", "C"})
	require.NoError(t, err)
	pending := Pending(current, []Entry{
		{Key: "A", Address: addrA},
		{Key: "B", Address: addrB},
		{Key: "C", Address: addrB},
	})
	assert.Equal(t, []Entry{{Key: "B", Address: addrB}, {Key: "C", Address: addrB}}, pending)
}

func TestGet_EmptyResultReadsAsZero(t *testing.T) {
	c := componenttest.New()
	c.EmptyReads = true
	r, err := New(c.Attach("Registry", registryAddr), nil)
	require.NoError(t, err)

	addr, err := r.Get(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, addr)
}

func TestSetOne(t *testing.T) {
	c := componenttest.New()
	r, err := New(c.Attach("Registry", registryAddr), nil)
	require.NoError(t, err)

	hash, err := r.SetOne(context.Background(), "DAO", addrA)
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)
	assert.Equal(t, addrA, c.Entries(registryAddr)["DAO"])
}

func TestWrite_Empty(t *testing.T) {
	c := componenttest.New()
	r, err := New(c.Attach("Registry", registryAddr), nil)
	require.NoError(t, err)

	hashes, err := r.Write(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, hashes)
	assert.Empty(t, c.Events())
}
