package controlapi

import (
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/manager/state/store"
	"github.com/pkg/errors"
)

var (
	isValidHostname    = regexp.MustCompile(`^[a-zA-Z0-9](?:[-a-zA-Z0-9]*[a-zA-Z0-9])?$`)
	isValidGroup       = regexp.MustCompile(`^[a-zA-Z0-9][-_.a-zA-Z0-9]*$`)
	isValidNetworkName = regexp.MustCompile(`^[a-zA-Z0-9](?:[-_. a-zA-Z0-9]*[a-zA-Z0-9])?$`)
)

const (
	maxHostnameLength = 63
	maxGroupLength    = 64
	maxGroups         = 32
	maxNameLength     = 64
)

func validateHostname(hostname string) error {
	if hostname == "" {
		return api.Errorf(api.CodeInvalidArgument, "hostname must be provided")
	}
	if len(hostname) > maxHostnameLength || !isValidHostname.MatchString(hostname) {
		return api.Errorf(api.CodeInvalidArgument,
			"invalid hostname %q: use letters, digits and inner dashes, at most %d characters", hostname, maxHostnameLength)
	}
	return nil
}

func validateGroups(groups []string) error {
	if len(groups) > maxGroups {
		return api.Errorf(api.CodeInvalidArgument, "a node can be in at most %d groups", maxGroups)
	}
	seen := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		if len(g) > maxGroupLength || !isValidGroup.MatchString(g) {
			return api.Errorf(api.CodeInvalidArgument, "invalid group %q", g)
		}
		if _, ok := seen[g]; ok {
			return api.Errorf(api.CodeInvalidArgument, "duplicate group %q", g)
		}
		seen[g] = struct{}{}
	}
	return nil
}

// validateEndpoint checks a host:port pair. The host may be a name or an
// address.
func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return nil
	}
	host, port, err := net.SplitHostPort(endpoint)
	if err != nil || host == "" {
		return api.Errorf(api.CodeInvalidArgument, "invalid public endpoint %q: must be host:port", endpoint)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p < 1 || p > 65535 {
		return api.Errorf(api.CodeInvalidArgument, "invalid public endpoint %q: bad port", endpoint)
	}
	return nil
}

func validateSpec(spec *api.NodeSpec) error {
	if err := validateHostname(spec.Hostname); err != nil {
		return err
	}
	if err := validateGroups(spec.Groups); err != nil {
		return err
	}
	if err := validateEndpoint(spec.PublicEndpoint); err != nil {
		return err
	}
	if spec.Lighthouse.DNSPort < 0 || spec.Lighthouse.DNSPort > 65535 {
		return api.Errorf(api.CodeInvalidArgument, "invalid lighthouse DNS port %d", spec.Lighthouse.DNSPort)
	}
	if spec.Lighthouse.Interval < 0 {
		return api.Errorf(api.CodeInvalidArgument, "lighthouse interval must not be negative")
	}
	switch strings.ToLower(spec.Logging.Level) {
	case "", "panic", "fatal", "error", "warning", "info", "debug":
	default:
		return api.Errorf(api.CodeInvalidArgument, "invalid log level %q", spec.Logging.Level)
	}
	switch spec.Logging.Format {
	case "", "text", "json":
	default:
		return api.Errorf(api.CodeInvalidArgument, "invalid log format %q", spec.Logging.Format)
	}
	return nil
}

func validateNetworkName(name string) error {
	if name == "" {
		return api.Errorf(api.CodeInvalidArgument, "network name must be provided")
	}
	if len(name) > maxNameLength || !isValidNetworkName.MatchString(name) {
		return api.Errorf(api.CodeInvalidArgument, "invalid network name %q", name)
	}
	return nil
}

// storeError turns store sentinel errors into API errors. Errors that
// already carry a code are returned unchanged.
func storeError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return err
	}
	switch errors.Cause(err) {
	case store.ErrNameConflict, store.ErrExist:
		return api.Errorf(api.CodeAlreadyExists, format, args...)
	case store.ErrNotExist:
		return api.Errorf(api.CodeNotFound, format, args...)
	case store.ErrSequenceConflict:
		return api.Errorf(api.CodeFailedPrecondition, "concurrent update, retry: "+format, args...)
	}
	return err
}

// lighthouses counts the lighthouses of a network.
func lighthouses(tx store.ReadTx, networkID string) (int, int, error) {
	nodes, err := store.FindNodes(tx, store.ByNetworkID(networkID))
	if err != nil {
		return 0, 0, err
	}
	count := 0
	for _, n := range nodes {
		if n.Spec.IsLighthouse {
			count++
		}
	}
	return count, len(nodes), nil
}

const lastLighthouseMessage = "cannot remove the only lighthouse: designate another node as lighthouse first"

// checkLighthouseRemoval rejects removing the lighthouse role from node,
// either by demotion or deletion, when it would leave the network with
// nodes but no lighthouse.
func checkLighthouseRemoval(tx store.ReadTx, node *api.Node, deleting bool) error {
	if !node.Spec.IsLighthouse {
		return nil
	}
	count, total, err := lighthouses(tx, node.NetworkID)
	if err != nil {
		return err
	}
	remaining := total
	if deleting {
		remaining--
	}
	if count <= 1 && remaining > 0 {
		return api.Errorf(api.CodeFailedPrecondition, lastLighthouseMessage)
	}
	return nil
}
