package api

import "time"

// NodeStatus is derived from a node's poll timestamps. It is never stored.
type NodeStatus int

const (
	NodeStatusPendingEnrollment NodeStatus = iota
	NodeStatusActive
	NodeStatusIdleHealthy
	NodeStatusIdleWarning
	NodeStatusIdleStale
	NodeStatusNeedsReEnrollment
)

// Thresholds for status derivation. They must stay ordered.
const (
	ActiveWindow       = 30 * time.Minute
	IdleHealthyWindow  = 60 * time.Minute
	IdleWarningWindow  = 180 * time.Minute
	ReEnrollmentWindow = 24 * time.Hour
)

var nodeStatusNames = map[NodeStatus]string{
	NodeStatusPendingEnrollment: "pending_enrollment",
	NodeStatusActive:            "active",
	NodeStatusIdleHealthy:       "idle_healthy",
	NodeStatusIdleWarning:       "idle_warning",
	NodeStatusIdleStale:         "idle_stale",
	NodeStatusNeedsReEnrollment: "needs_reenrollment",
}

// AllNodeStatuses lists the statuses in order of increasing staleness.
var AllNodeStatuses = []NodeStatus{
	NodeStatusPendingEnrollment,
	NodeStatusActive,
	NodeStatusIdleHealthy,
	NodeStatusIdleWarning,
	NodeStatusIdleStale,
	NodeStatusNeedsReEnrollment,
}

func (s NodeStatus) String() string {
	if name, ok := nodeStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the status by name in JSON and YAML.
func (s NodeStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name.
func (s *NodeStatus) UnmarshalText(text []byte) error {
	for status, name := range nodeStatusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return Errorf(CodeInvalidArgument, "unknown node status %q", text)
}

// DeriveStatus computes the status of n at now.
func DeriveStatus(n *Node, now time.Time) NodeStatus {
	if n.FirstPolledAt == nil {
		return NodeStatusPendingEnrollment
	}

	lastSeen := *n.FirstPolledAt
	if n.LastSeen != nil {
		lastSeen = *n.LastSeen
	}

	since := now.Sub(lastSeen)
	switch {
	case since <= ActiveWindow:
		return NodeStatusActive
	case since <= IdleHealthyWindow:
		return NodeStatusIdleHealthy
	case since <= IdleWarningWindow:
		return NodeStatusIdleWarning
	case since <= ReEnrollmentWindow:
		return NodeStatusIdleStale
	default:
		return NodeStatusNeedsReEnrollment
	}
}
