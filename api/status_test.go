package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveStatus(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	n := &Node{}
	assert.Equal(t, NodeStatusPendingEnrollment, DeriveStatus(n, now))

	// last_seen alone does not count as enrolled
	n.LastSeen = ago(time.Minute)
	assert.Equal(t, NodeStatusPendingEnrollment, DeriveStatus(n, now))

	n.FirstPolledAt = ago(48 * time.Hour)
	for _, tc := range []struct {
		since    time.Duration
		expected NodeStatus
	}{
		{0, NodeStatusActive},
		{30 * time.Minute, NodeStatusActive},
		{31 * time.Minute, NodeStatusIdleHealthy},
		{60 * time.Minute, NodeStatusIdleHealthy},
		{2 * time.Hour, NodeStatusIdleWarning},
		{3 * time.Hour, NodeStatusIdleWarning},
		{4 * time.Hour, NodeStatusIdleStale},
		{24 * time.Hour, NodeStatusIdleStale},
		{25 * time.Hour, NodeStatusNeedsReEnrollment},
	} {
		n.LastSeen = ago(tc.since)
		assert.Equal(t, tc.expected, DeriveStatus(n, now), tc.since.String())
	}
}

func TestStatusOrdering(t *testing.T) {
	windows := []time.Duration{ActiveWindow, IdleHealthyWindow, IdleWarningWindow, ReEnrollmentWindow}
	for i := 1; i < len(windows); i++ {
		assert.True(t, windows[i-1] < windows[i])
	}
	for i := 1; i < len(AllNodeStatuses); i++ {
		assert.True(t, AllNodeStatuses[i-1] < AllNodeStatuses[i])
	}
}

func TestStatusText(t *testing.T) {
	b, err := json.Marshal(NodeView{Node: &Node{ID: "n1"}, Status: NodeStatusIdleWarning})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"status":"idle_warning"`)
	assert.Contains(t, string(b), `"id":"n1"`)

	var view NodeView
	require.NoError(t, json.Unmarshal(b, &view))
	assert.Equal(t, NodeStatusIdleWarning, view.Status)
	assert.Equal(t, "n1", view.ID)
}

func TestErrorCodes(t *testing.T) {
	err := Errorf(CodeNotFound, "node %s not found", "abc")
	assert.Equal(t, CodeNotFound, CodeOf(err))
	assert.Equal(t, CodeNotFound, CodeOf(errors.Wrap(err, "lookup")))
	assert.Equal(t, "node abc not found", MessageOf(errors.Wrap(err, "lookup")))
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("boom")))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestDurationJSON(t *testing.T) {
	var req CreateEnrollmentCodeRequest
	require.NoError(t, json.Unmarshal([]byte(`{"node_id":"n","ttl":"1h30m"}`), &req))
	assert.Equal(t, 90*time.Minute, time.Duration(req.TTL))

	require.NoError(t, json.Unmarshal([]byte(`{"ttl":60}`), &req))
	assert.Equal(t, time.Minute, time.Duration(req.TTL))

	assert.Error(t, json.Unmarshal([]byte(`{"ttl":"soon"}`), &req))

	b, err := json.Marshal(Duration(24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, `"24h0m0s"`, string(b))
}

func TestCopyIsDeep(t *testing.T) {
	now := time.Now()
	n := &Node{ID: "n", Spec: NodeSpec{Groups: []string{"a"}}, LastSeen: &now}
	c := n.Copy()
	c.Spec.Groups[0] = "b"
	*c.LastSeen = now.Add(time.Hour)
	assert.Equal(t, "a", n.Spec.Groups[0])
	assert.Equal(t, now, *n.LastSeen)

	cert := &Certificate{PrivateKey: []byte("secret"), CertPEM: []byte("pem")}
	pub := cert.Public()
	assert.Nil(t, pub.PrivateKey)
	assert.Equal(t, []byte("secret"), cert.PrivateKey)
}
