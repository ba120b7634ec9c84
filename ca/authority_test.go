package ca

import (
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/manager/encryption"
	"github.com/meshkit/meshkit/manager/state/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAuthority struct {
	*Authority
	store   *store.MemoryStore
	network *api.Network
	clock   *fakeclock.FakeClock
}

func newTestAuthority(t *testing.T) *testAuthority {
	enc, dec := encryption.Defaults(encryption.GenerateSecretKey(), false)
	clk := fakeclock.NewFakeClock(time.Now())
	a := NewAuthority(AuthorityConfig{Encrypter: enc, Decrypter: dec, Clock: clk})

	cert, key, err := a.NewNetworkCA("home")
	require.NoError(t, err)

	s := store.NewMemoryStore(nil)
	t.Cleanup(func() { s.Close() })
	network := &api.Network{ID: "net1", Name: "home", CIDR: "10.10.0.0/24", CACert: cert, CAKey: key}
	require.NoError(t, s.Update(func(tx store.Tx) error {
		return store.CreateNetwork(tx, network)
	}))
	return &testAuthority{Authority: a, store: s, network: network, clock: clk}
}

func (ta *testAuthority) createNode(t *testing.T, id, hostname, preferred string) *Issued {
	var issued *Issued
	require.NoError(t, ta.store.Update(func(tx store.Tx) error {
		n := &api.Node{ID: id, NetworkID: ta.network.ID, Spec: api.NodeSpec{Hostname: hostname, Groups: []string{"servers"}}}
		if err := store.CreateNode(tx, n); err != nil {
			return err
		}
		var err error
		issued, err = ta.Create(tx, n, preferred, 0)
		return err
	}))
	return issued
}

func (ta *testAuthority) activeCertificates(t *testing.T, nodeID string) []*api.Certificate {
	var active []*api.Certificate
	ta.store.View(func(tx store.ReadTx) error {
		certs, err := store.FindCertificates(tx, store.ByNodeID(nodeID))
		require.NoError(t, err)
		for _, c := range certs {
			if !c.Revoked() {
				active = append(active, c)
			}
		}
		return nil
	})
	return active
}

func TestNetworkCAKeyIsSealed(t *testing.T) {
	ta := newTestAuthority(t)
	assert.NotContains(t, string(ta.network.CAKey), "PRIVATE KEY")

	rca, err := ta.RootCA(ta.network)
	require.NoError(t, err)
	assert.True(t, rca.CanSign())

	// a different key cannot open it
	other := NewAuthority(AuthorityConfig{})
	_, err = other.RootCA(ta.network)
	assert.Error(t, err)
}

func TestAuthorityCreate(t *testing.T) {
	ta := newTestAuthority(t)

	issued := ta.createNode(t, "node1", "lh", "")
	assert.Equal(t, "10.10.0.1", issued.Address)
	assert.Contains(t, string(issued.PrivateKey), "PRIVATE KEY")
	assert.Equal(t, ta.network.CACert, issued.CACert)
	assert.Equal(t, api.CertificateModeServerGenerated, issued.Certificate.Mode)

	cert, err := ParseCertificate(issued.CertPEM)
	require.NoError(t, err)
	assert.Equal(t, "lh", cert.Subject.CommonName)
	assert.Equal(t, []string{"servers"}, cert.Subject.OrganizationalUnit)
	assert.WithinDuration(t, time.Now().Add(DefaultNodeCertExpiration), cert.NotAfter, 2*time.Hour)

	ta.store.View(func(tx store.ReadTx) error {
		n := store.GetNode(tx, "node1")
		assert.Equal(t, "10.10.0.1", n.Address)
		assert.Equal(t, issued.Certificate.ID, n.CertificateID)

		stored := store.GetCertificate(tx, n.CertificateID)
		require.NotNil(t, stored)
		// the stored key is sealed but opens to the issued key
		assert.NotEqual(t, issued.PrivateKey, stored.PrivateKey)
		key, err := ta.PrivateKey(stored)
		require.NoError(t, err)
		assert.Equal(t, issued.PrivateKey, key)
		return nil
	})

	issued = ta.createNode(t, "node2", "laptop", "10.10.0.50")
	assert.Equal(t, "10.10.0.50", issued.Address)
}

func TestAuthoritySign(t *testing.T) {
	ta := newTestAuthority(t)
	csr, key, err := GenerateNewCSR()
	require.NoError(t, err)

	var issued *Issued
	require.NoError(t, ta.store.Update(func(tx store.Tx) error {
		n := &api.Node{ID: "node1", NetworkID: ta.network.ID, Spec: api.NodeSpec{Hostname: "phone"}}
		if err := store.CreateNode(tx, n); err != nil {
			return err
		}
		issued, err = ta.Sign(tx, n, csr, "", 0)
		return err
	}))
	assert.Nil(t, issued.PrivateKey)
	assert.Equal(t, api.CertificateModeClientSigned, issued.Certificate.Mode)
	assert.Empty(t, issued.Certificate.PrivateKey)

	// the certificate is for the device's own key
	cert, err := ParseCertificate(issued.CertPEM)
	require.NoError(t, err)
	priv, err := parsePrivateKey(key)
	require.NoError(t, err)
	assert.True(t, publicKeysEqual(priv.Public(), cert.PublicKey))

	err = ta.store.Update(func(tx store.Tx) error {
		_, err := ta.Sign(tx, store.GetNode(tx, "node1"), []byte("nope"), "", 0)
		return err
	})
	assert.Equal(t, api.CodeInvalidArgument, api.CodeOf(err))
}

func TestAuthorityAddressErrors(t *testing.T) {
	ta := newTestAuthority(t)
	ta.createNode(t, "node1", "lh", "10.10.0.7")

	err := ta.store.Update(func(tx store.Tx) error {
		n := &api.Node{ID: "node2", NetworkID: ta.network.ID, Spec: api.NodeSpec{Hostname: "other"}}
		if err := store.CreateNode(tx, n); err != nil {
			return err
		}
		_, err := ta.Create(tx, n, "10.10.0.7", 0)
		return err
	})
	assert.Equal(t, api.CodeAlreadyExists, api.CodeOf(err))

	err = ta.store.Update(func(tx store.Tx) error {
		n := &api.Node{ID: "node2", NetworkID: ta.network.ID, Spec: api.NodeSpec{Hostname: "other"}}
		if err := store.CreateNode(tx, n); err != nil {
			return err
		}
		_, err := ta.Create(tx, n, "192.168.1.1", 0)
		return err
	})
	assert.Equal(t, api.CodeInvalidArgument, api.CodeOf(err))

	// a node keeps its address; asking for another one is an error
	err = ta.store.Update(func(tx store.Tx) error {
		_, err := ta.Create(tx, store.GetNode(tx, "node1"), "10.10.0.9", 0)
		return err
	})
	assert.Equal(t, api.CodeInvalidArgument, api.CodeOf(err))

	// nothing of the failed transactions survived
	ta.store.View(func(tx store.ReadTx) error {
		assert.Nil(t, store.GetNode(tx, "node2"))
		allocs, err := store.FindAllocations(tx, store.All)
		require.NoError(t, err)
		assert.Len(t, allocs, 1)
		return nil
	})
}

func TestAuthorityFailedSigningReleasesAddress(t *testing.T) {
	ta := newTestAuthority(t)

	broken := ta.network.Copy()
	broken.ID = "net2"
	broken.Name = "broken"
	broken.CAKey = []byte("not sealed")
	require.NoError(t, ta.store.Update(func(tx store.Tx) error {
		return store.CreateNetwork(tx, broken)
	}))

	err := ta.store.Update(func(tx store.Tx) error {
		n := &api.Node{ID: "node1", NetworkID: "net2", Spec: api.NodeSpec{Hostname: "lh"}}
		if err := store.CreateNode(tx, n); err != nil {
			return err
		}
		_, err := ta.Create(tx, n, "", 0)
		return err
	})
	require.Error(t, err)

	ta.store.View(func(tx store.ReadTx) error {
		allocs, err := store.FindAllocations(tx, store.ByNetworkID("net2"))
		require.NoError(t, err)
		assert.Empty(t, allocs)
		certs, err := store.FindCertificates(tx, store.ByNetworkID("net2"))
		require.NoError(t, err)
		assert.Empty(t, certs)
		return nil
	})
}

func TestAuthorityRevoke(t *testing.T) {
	ta := newTestAuthority(t)
	issued := ta.createNode(t, "node1", "lh", "")

	ta.clock.Increment(time.Minute)
	require.NoError(t, ta.store.Update(func(tx store.Tx) error {
		return ta.Revoke(tx, store.GetNode(tx, "node1"))
	}))

	ta.store.View(func(tx store.ReadTx) error {
		n := store.GetNode(tx, "node1")
		assert.Empty(t, n.CertificateID)
		// the address is only released when the node is removed
		assert.Equal(t, issued.Address, n.Address)
		c := store.GetCertificate(tx, issued.Certificate.ID)
		require.NotNil(t, c.RevokedAt)
		assert.Equal(t, ta.clock.Now().UTC(), *c.RevokedAt)
		return nil
	})

	err := ta.store.Update(func(tx store.Tx) error {
		return ta.Revoke(tx, store.GetNode(tx, "node1"))
	})
	assert.Equal(t, api.CodeFailedPrecondition, api.CodeOf(err))
}

func TestAuthorityReEnroll(t *testing.T) {
	ta := newTestAuthority(t)
	first := ta.createNode(t, "node1", "lh", "")

	require.NoError(t, ta.store.Update(func(tx store.Tx) error {
		return store.CreateDeviceToken(tx, &api.DeviceToken{ID: "tok1", NodeID: "node1", NetworkID: "net1"})
	}))

	var second *Issued
	require.NoError(t, ta.store.Update(func(tx store.Tx) error {
		var err error
		second, err = ta.ReEnroll(tx, store.GetNode(tx, "node1"), 0)
		return err
	}))
	assert.NotEqual(t, first.Certificate.ID, second.Certificate.ID)
	assert.Equal(t, first.Address, second.Address)

	active := ta.activeCertificates(t, "node1")
	require.Len(t, active, 1)
	assert.Equal(t, second.Certificate.ID, active[0].ID)

	ta.store.View(func(tx store.ReadTx) error {
		assert.True(t, store.GetCertificate(tx, first.Certificate.ID).Revoked())
		tokens, err := store.FindDeviceTokens(tx, store.ByNodeID("node1"))
		require.NoError(t, err)
		assert.Empty(t, tokens)
		return nil
	})

	// issuing again without re-enrolling also leaves exactly one current
	// certificate
	require.NoError(t, ta.store.Update(func(tx store.Tx) error {
		_, err := ta.Create(tx, store.GetNode(tx, "node1"), "", 0)
		return err
	}))
	assert.Len(t, ta.activeCertificates(t, "node1"), 1)
}
