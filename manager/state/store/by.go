package store

import digest "github.com/opencontainers/go-digest"

// By is an interface type passed to Find methods. Implementations must be
// defined in this package.
type By interface {
	// isBy allows this interface to only be satisfied by certain internal
	// types.
	isBy()
}

type byAll struct{}

func (a byAll) isBy() {
}

// All is an argument that can be passed to find to list all items in the
// set.
var All byAll

type byName string

func (b byName) isBy() {
}

// ByName creates an object to pass to Find to select by name.
func ByName(name string) By {
	return byName(name)
}

type byNetwork string

func (b byNetwork) isBy() {
}

// ByNetworkID creates an object to pass to Find to select by network.
func ByNetworkID(networkID string) By {
	return byNetwork(networkID)
}

type byNode string

func (b byNode) isBy() {
}

// ByNodeID creates an object to pass to Find to select by node.
func ByNodeID(nodeID string) By {
	return byNode(nodeID)
}

type byHostname struct {
	networkID string
	hostname  string
}

func (b byHostname) isBy() {
}

// ByHostname creates an object to pass to Find to select nodes by hostname
// within a network.
func ByHostname(networkID, hostname string) By {
	return byHostname{networkID: networkID, hostname: hostname}
}

type byDigest string

func (b byDigest) isBy() {
}

// ByDigest creates an object to pass to Find to select secrets by the
// digest of their value.
func ByDigest(d digest.Digest) By {
	return byDigest(d.String())
}
