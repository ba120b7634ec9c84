package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/manager/state/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorNodeStatus(t *testing.T) {
	clk := fakeclock.NewFakeClock(time.Now())
	s := store.NewMemoryStore(nil)
	defer s.Close()

	now := clk.Now()
	polled := now.Add(-45 * time.Minute)
	revoked := now.Add(-time.Hour)
	require.NoError(t, s.Update(func(tx store.Tx) error {
		if err := store.CreateNetwork(tx, &api.Network{ID: "net1", Name: "home", CIDR: "10.10.0.0/24"}); err != nil {
			return err
		}
		for _, n := range []*api.Node{
			{ID: "n1", NetworkID: "net1", Spec: api.NodeSpec{Hostname: "lh", IsLighthouse: true}, FirstPolledAt: &polled, LastSeen: &now},
			{ID: "n2", NetworkID: "net1", Spec: api.NodeSpec{Hostname: "nas"}, FirstPolledAt: &polled},
			{ID: "n3", NetworkID: "net1", Spec: api.NodeSpec{Hostname: "laptop"}},
		} {
			if err := store.CreateNode(tx, n); err != nil {
				return err
			}
		}
		for _, c := range []*api.Certificate{
			{ID: "c1", NodeID: "n1", NetworkID: "net1", NotAfter: now.Add(time.Hour)},
			{ID: "c2", NodeID: "n1", NetworkID: "net1", NotAfter: now.Add(time.Hour), RevokedAt: &revoked},
			{ID: "c3", NodeID: "n2", NetworkID: "net1", NotAfter: now.Add(-time.Hour)},
		} {
			if err := store.CreateCertificate(tx, c); err != nil {
				return err
			}
		}
		return nil
	}))

	c := NewCollector(s, clk)
	expected := `
# HELP meshkit_manager_nodes Number of nodes by network and derived status.
# TYPE meshkit_manager_nodes gauge
meshkit_manager_nodes{network="home",status="active"} 1
meshkit_manager_nodes{network="home",status="idle_healthy"} 1
meshkit_manager_nodes{network="home",status="idle_stale"} 0
meshkit_manager_nodes{network="home",status="idle_warning"} 0
meshkit_manager_nodes{network="home",status="needs_reenrollment"} 0
meshkit_manager_nodes{network="home",status="pending_enrollment"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "meshkit_manager_nodes"))

	expected = `
# HELP meshkit_manager_certificates Number of certificates by network and state.
# TYPE meshkit_manager_certificates gauge
meshkit_manager_certificates{network="home",state="active"} 1
meshkit_manager_certificates{network="home",state="expired"} 1
meshkit_manager_certificates{network="home",state="revoked"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "meshkit_manager_certificates"))

	// status moves with the clock, not with store changes
	clk.Increment(2 * time.Hour)
	assert.Equal(t, 12, testutil.CollectAndCount(c))
}

func TestCollectorRunStop(t *testing.T) {
	s := store.NewMemoryStore(nil)
	defer s.Close()
	c := NewCollector(s, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(context.Background()) }()

	require.NoError(t, s.Update(func(tx store.Tx) error {
		return store.CreateNetwork(tx, &api.Network{ID: "net1", Name: "home", CIDR: "10.10.0.0/24"})
	}))

	c.Stop()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("collector did not stop")
	}
}
