package controlapi

import (
	"context"
	"testing"

	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/manager/state/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateNetwork(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	n, err := ts.CreateNetwork(ctx, &api.CreateNetworkRequest{Name: "home", CIDR: "10.10.0.7/24"})
	require.NoError(t, err)
	assert.Equal(t, "10.10.0.0/24", n.CIDR)
	assert.NotEmpty(t, n.CACert)
	assert.Nil(t, n.CAKey)

	// the key is kept in the store, sealed
	ts.store.View(func(tx store.ReadTx) error {
		stored := store.GetNetwork(tx, n.ID)
		require.NotNil(t, stored)
		assert.NotEmpty(t, stored.CAKey)
		assert.NotContains(t, string(stored.CAKey), "PRIVATE KEY")
		return nil
	})

	_, err = ts.CreateNetwork(ctx, &api.CreateNetworkRequest{Name: "home", CIDR: "10.20.0.0/24"})
	assertCode(t, api.CodeAlreadyExists, err)
	_, err = ts.CreateNetwork(ctx, &api.CreateNetworkRequest{Name: "v6", CIDR: "fd00::/64"})
	assertCode(t, api.CodeInvalidArgument, err)
	_, err = ts.CreateNetwork(ctx, &api.CreateNetworkRequest{Name: "bad", CIDR: "10.0.0.0"})
	assertCode(t, api.CodeInvalidArgument, err)
	_, err = ts.CreateNetwork(ctx, &api.CreateNetworkRequest{CIDR: "10.30.0.0/24"})
	assertCode(t, api.CodeInvalidArgument, err)

	got, err := ts.GetNetwork(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "home", got.Name)
	assert.Nil(t, got.CAKey)

	_, err = ts.GetNetwork(ctx, "nope")
	assertCode(t, api.CodeNotFound, err)

	ts.createNetwork(t, "office", "10.20.0.0/24")
	all, err := ts.ListNetworks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	for _, n := range all {
		assert.Nil(t, n.CAKey)
	}
}

func TestRemoveNetwork(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	network := ts.createNetwork(t, "home", "10.10.0.0/24")
	lh := ts.createNode(t, network.ID, "lh")

	err := ts.RemoveNetwork(ctx, network.ID)
	assertCode(t, api.CodeFailedPrecondition, err)

	require.NoError(t, ts.RemoveNode(ctx, lh.Node.ID))
	require.NoError(t, ts.RemoveNetwork(ctx, network.ID))

	ts.store.View(func(tx store.ReadTx) error {
		assert.Nil(t, store.GetNetwork(tx, network.ID))
		certs, err := store.FindCertificates(tx, store.ByNetworkID(network.ID))
		require.NoError(t, err)
		assert.Empty(t, certs)
		allocs, err := store.FindAllocations(tx, store.ByNetworkID(network.ID))
		require.NoError(t, err)
		assert.Empty(t, allocs)
		return nil
	})

	assertCode(t, api.CodeNotFound, ts.RemoveNetwork(ctx, network.ID))
}
