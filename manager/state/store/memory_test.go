package store

import (
	"context"
	"testing"
	"time"

	"github.com/meshkit/meshkit/api"
	digest "github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T, s *MemoryStore) {
	err := s.Update(func(tx Tx) error {
		for _, n := range []*api.Network{
			{ID: "net1", Name: "home", CIDR: "10.10.0.0/24"},
			{ID: "net2", Name: "office", CIDR: "10.20.0.0/24"},
		} {
			if err := CreateNetwork(tx, n); err != nil {
				return err
			}
		}
		for _, n := range []*api.Node{
			{ID: "node1", NetworkID: "net1", Spec: api.NodeSpec{Hostname: "lh", IsLighthouse: true}},
			{ID: "node2", NetworkID: "net1", Spec: api.NodeSpec{Hostname: "laptop"}},
			// same hostname in another network is fine
			{ID: "node3", NetworkID: "net2", Spec: api.NodeSpec{Hostname: "laptop"}},
		} {
			if err := CreateNode(tx, n); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestStoreNetwork(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()
	setupTestStore(t, s)

	err := s.View(func(tx ReadTx) error {
		all, err := FindNetworks(tx, All)
		require.NoError(t, err)
		assert.Len(t, all, 2)

		byName, err := FindNetworks(tx, ByName("office"))
		require.NoError(t, err)
		require.Len(t, byName, 1)
		assert.Equal(t, "net2", byName[0].ID)

		assert.Nil(t, GetNetwork(tx, "nope"))
		n := GetNetwork(tx, "net1")
		require.NotNil(t, n)
		assert.NotZero(t, n.Meta.Version.Index)
		assert.False(t, n.Meta.CreatedAt.IsZero())

		_, err = FindNetworks(tx, ByNodeID("x"))
		assert.Equal(t, ErrInvalidFindBy, err)
		return nil
	})
	require.NoError(t, err)

	err = s.Update(func(tx Tx) error {
		assert.Equal(t, ErrExist, CreateNetwork(tx, &api.Network{ID: "net1", Name: "other"}))
		assert.Equal(t, ErrNameConflict, CreateNetwork(tx, &api.Network{ID: "net3", Name: "home"}))
		assert.Equal(t, ErrNotExist, DeleteNetwork(tx, "net9"))

		n := GetNetwork(tx, "net2")
		n.Name = "home"
		assert.Equal(t, ErrNameConflict, UpdateNetwork(tx, n))
		n.Name = "branch"
		assert.NoError(t, UpdateNetwork(tx, n))
		return nil
	})
	require.NoError(t, err)

	s.View(func(tx ReadTx) error {
		found, err := FindNetworks(tx, ByName("branch"))
		require.NoError(t, err)
		assert.Len(t, found, 1)
		found, err = FindNetworks(tx, ByName("office"))
		require.NoError(t, err)
		assert.Len(t, found, 0)
		return nil
	})
}

func TestStoreNodeHostnames(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()
	setupTestStore(t, s)

	err := s.Update(func(tx Tx) error {
		err := CreateNode(tx, &api.Node{ID: "node4", NetworkID: "net1", Spec: api.NodeSpec{Hostname: "laptop"}})
		assert.Equal(t, ErrNameConflict, err)

		// hostnames are case sensitive
		assert.NoError(t, CreateNode(tx, &api.Node{ID: "node5", NetworkID: "net1", Spec: api.NodeSpec{Hostname: "Laptop"}}))

		// renaming onto an existing hostname conflicts, renaming to itself does not
		n := GetNode(tx, "node2")
		n.Spec.Hostname = "lh"
		assert.Equal(t, ErrNameConflict, UpdateNode(tx, n))
		n.Spec.Hostname = "laptop"
		assert.NoError(t, UpdateNode(tx, n))
		return nil
	})
	require.NoError(t, err)

	s.View(func(tx ReadTx) error {
		nodes, err := FindNodes(tx, ByNetworkID("net1"))
		require.NoError(t, err)
		assert.Len(t, nodes, 3)

		nodes, err = FindNodes(tx, ByHostname("net2", "laptop"))
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		assert.Equal(t, "node3", nodes[0].ID)
		return nil
	})
}

func TestStoreUpdateAbort(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()
	setupTestStore(t, s)

	boom := errors.New("boom")
	err := s.Update(func(tx Tx) error {
		require.NoError(t, DeleteNode(tx, "node1"))
		require.NoError(t, CreateAllocation(tx, &api.Allocation{ID: api.AllocationID("net1", "10.10.0.1"), NetworkID: "net1", Address: "10.10.0.1", NodeID: "node2"}))

		// changes are visible inside the transaction
		assert.Nil(t, GetNode(tx, "node1"))
		return boom
	})
	assert.Equal(t, boom, err)

	s.View(func(tx ReadTx) error {
		assert.NotNil(t, GetNode(tx, "node1"))
		allocs, err := FindAllocations(tx, All)
		require.NoError(t, err)
		assert.Empty(t, allocs)
		return nil
	})
}

func TestStoreSequenceConflict(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()
	setupTestStore(t, s)

	var stale *api.Node
	s.View(func(tx ReadTx) error {
		stale = GetNode(tx, "node2")
		return nil
	})

	require.NoError(t, s.Update(func(tx Tx) error {
		n := GetNode(tx, "node2")
		n.Spec.IsRelay = true
		return UpdateNode(tx, n)
	}))

	err := s.Update(func(tx Tx) error {
		stale.Spec.PublicEndpoint = "1.2.3.4:4242"
		return UpdateNode(tx, stale)
	})
	assert.Equal(t, ErrSequenceConflict, err)
}

func TestStoreGetReturnsCopies(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()
	setupTestStore(t, s)

	s.View(func(tx ReadTx) error {
		n := GetNode(tx, "node1")
		n.Spec.Hostname = "mutated"
		assert.Equal(t, "lh", GetNode(tx, "node1").Spec.Hostname)
		return nil
	})
}

func TestStoreDigestIndex(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()
	setupTestStore(t, s)

	d := digest.FromString("secret")
	require.NoError(t, s.Update(func(tx Tx) error {
		if err := CreateDeviceToken(tx, &api.DeviceToken{ID: "t1", NodeID: "node1", NetworkID: "net1", TokenDigest: d}); err != nil {
			return err
		}
		assert.Equal(t, ErrNameConflict, CreateDeviceToken(tx, &api.DeviceToken{ID: "t2", NodeID: "node2", TokenDigest: d}))
		return CreateEnrollmentCode(tx, &api.EnrollmentCode{ID: "c1", NodeID: "node2", NetworkID: "net1", CodeDigest: d, ExpiresAt: time.Now().Add(time.Hour)})
	}))

	s.View(func(tx ReadTx) error {
		tokens, err := FindDeviceTokens(tx, ByDigest(d))
		require.NoError(t, err)
		require.Len(t, tokens, 1)
		assert.Equal(t, "node1", tokens[0].NodeID)

		codes, err := FindEnrollmentCodes(tx, ByDigest(d))
		require.NoError(t, err)
		require.Len(t, codes, 1)
		assert.Equal(t, "node2", codes[0].NodeID)

		tokens, err = FindDeviceTokens(tx, ByDigest(digest.FromString("other")))
		require.NoError(t, err)
		assert.Empty(t, tokens)
		return nil
	})
}

func TestStoreEvents(t *testing.T) {
	s := NewMemoryStore(nil)
	defer s.Close()

	watch, cancel := s.WatchQueue().Watch()
	defer cancel()

	setupTestStore(t, s)

	expectEvent := func() interface{} {
		select {
		case ev := <-watch:
			return ev
		case <-time.After(5 * time.Second):
			t.Fatal("no event")
		}
		return nil
	}

	// two networks and three nodes, then the commit
	for i := 0; i < 5; i++ {
		ev := expectEvent()
		_, ok := ev.(EventCreate)
		assert.True(t, ok, "%#v", ev)
	}
	commit, ok := expectEvent().(EventCommit)
	require.True(t, ok)
	assert.Equal(t, uint64(1), commit.Version.Index)

	require.NoError(t, s.Update(func(tx Tx) error {
		return DeleteNode(tx, "node3")
	}))
	del, ok := expectEvent().(EventDelete)
	require.True(t, ok)
	assert.Equal(t, "node3", del.Object.GetID())
	_, ok = expectEvent().(EventCommit)
	assert.True(t, ok)
}

type recordingProposer struct {
	actions [][]StoreAction
	err     error
}

func (p *recordingProposer) ProposeValue(ctx context.Context, actions []StoreAction, cb func()) error {
	if p.err != nil {
		return p.err
	}
	p.actions = append(p.actions, actions)
	cb()
	return nil
}

func TestStoreProposer(t *testing.T) {
	p := &recordingProposer{}
	s := NewMemoryStore(p)
	defer s.Close()
	setupTestStore(t, s)

	require.Len(t, p.actions, 1)
	require.Len(t, p.actions[0], 5)
	assert.Equal(t, StoreActionKindCreate, p.actions[0][0].Kind)

	// read-only update transactions are not proposed
	require.NoError(t, s.Update(func(tx Tx) error { return nil }))
	assert.Len(t, p.actions, 1)

	p.err = errors.New("disk full")
	err := s.Update(func(tx Tx) error {
		return DeleteNode(tx, "node2")
	})
	assert.Equal(t, p.err, err)
	s.View(func(tx ReadTx) error {
		assert.NotNil(t, GetNode(tx, "node2"))
		return nil
	})
}

func TestStoreSaveRestore(t *testing.T) {
	s1 := NewMemoryStore(nil)
	defer s1.Close()
	setupTestStore(t, s1)

	var snapshot *Snapshot
	require.NoError(t, s1.View(func(tx ReadTx) error {
		var err error
		snapshot, err = s1.Save(tx)
		return err
	}))
	assert.Len(t, snapshot.Networks, 2)
	assert.Len(t, snapshot.Nodes, 3)

	s2 := NewMemoryStore(nil)
	defer s2.Close()
	require.NoError(t, s2.Restore(snapshot))

	s2.View(func(tx ReadTx) error {
		n := GetNode(tx, "node2")
		require.NotNil(t, n)
		assert.Equal(t, "laptop", n.Spec.Hostname)
		nets, err := FindNetworks(tx, ByName("office"))
		require.NoError(t, err)
		assert.Len(t, nets, 1)
		return nil
	})

	// versions continue after the restored ones, so restored objects can be
	// updated
	require.NoError(t, s2.Update(func(tx Tx) error {
		n := GetNode(tx, "node2")
		n.Spec.IsRelay = true
		return UpdateNode(tx, n)
	}))
	s2.View(func(tx ReadTx) error {
		assert.True(t, GetNode(tx, "node2").Meta.Version.Index > 1)
		return nil
	})
}
