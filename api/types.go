package api

import (
	"time"

	digest "github.com/opencontainers/go-digest"
)

// Version tracks the last time an object in the store was updated.
type Version struct {
	Index uint64 `json:"index"`
}

// Meta contains metadata about objects. Every object contains a meta field.
type Meta struct {
	// Version tracks the current version of the object.
	Version Version `json:"version"`

	// Object timestamps.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Network is an overlay network with its own address block and its own
// certificate authority.
type Network struct {
	ID   string `json:"id"`
	Meta Meta   `json:"meta"`

	Name string `json:"name"`

	// CIDR is the network's address block. It is fixed at creation.
	CIDR string `json:"cidr"`

	// CACert is the PEM encoded root certificate of the network.
	CACert []byte `json:"ca_cert"`
	// CAKey is the PEM encoded CA private key, encrypted at rest.
	CAKey []byte `json:"ca_key"`
}

// LighthouseOptions configures the DNS responder and update interval of a
// lighthouse node.
type LighthouseOptions struct {
	ServeDNS bool   `json:"serve_dns,omitempty"`
	DNSHost  string `json:"dns_host,omitempty"`
	DNSPort  int    `json:"dns_port,omitempty"`
	// Interval is the number of seconds between lighthouse updates.
	Interval int `json:"interval,omitempty"`
}

// LoggingOptions configures the network daemon's own logging.
type LoggingOptions struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"`
}

// PunchyOptions configures NAT hole punching.
type PunchyOptions struct {
	Punch   bool   `json:"punch"`
	Respond bool   `json:"respond"`
	Delay   string `json:"delay,omitempty"`
}

// NodeSpec is the operator controlled part of a node.
type NodeSpec struct {
	Hostname string `json:"hostname"`

	IsLighthouse bool `json:"is_lighthouse"`
	IsRelay      bool `json:"is_relay"`

	// PublicEndpoint is the host:port other nodes use to reach a
	// lighthouse or relay from outside the overlay.
	PublicEndpoint string `json:"public_endpoint,omitempty"`

	// Groups are embedded in the node certificate and used by firewall
	// rules.
	Groups []string `json:"groups,omitempty"`

	Lighthouse LighthouseOptions `json:"lighthouse"`
	Logging    LoggingOptions    `json:"logging"`
	Punchy     PunchyOptions     `json:"punchy"`
}

// Node is a device registered to a network.
type Node struct {
	ID   string `json:"id"`
	Meta Meta   `json:"meta"`

	NetworkID string   `json:"network_id"`
	Spec      NodeSpec `json:"spec"`

	// Address is the overlay address held by the node. Empty until the
	// first certificate is issued.
	Address string `json:"address,omitempty"`

	// CertificateID points at the node's current certificate. Empty when
	// the node has no active certificate.
	CertificateID string `json:"certificate_id,omitempty"`

	LastSeen      *time.Time `json:"last_seen,omitempty"`
	FirstPolledAt *time.Time `json:"first_polled_at,omitempty"`
}

// CertificateMode records who generated the key pair behind a certificate.
type CertificateMode string

const (
	// CertificateModeServerGenerated means the manager generated and kept
	// the private key.
	CertificateModeServerGenerated CertificateMode = "server_generated"
	// CertificateModeClientSigned means the device generated the key and
	// the manager only signed its public key.
	CertificateModeClientSigned CertificateMode = "client_signed"
)

// Certificate is an issued node certificate. Certificates are never updated
// except to record revocation.
type Certificate struct {
	ID   string `json:"id"`
	Meta Meta   `json:"meta"`

	NodeID    string   `json:"node_id"`
	NetworkID string   `json:"network_id"`
	Hostname  string   `json:"hostname"`
	Address   string   `json:"address"`
	Groups    []string `json:"groups,omitempty"`

	Mode    CertificateMode `json:"mode"`
	CertPEM []byte          `json:"cert_pem"`
	// PrivateKey is encrypted at rest and only set for server generated
	// certificates.
	PrivateKey []byte `json:"private_key,omitempty"`

	// Fingerprint is the hex sha256 of the DER certificate.
	Fingerprint string    `json:"fingerprint"`
	NotBefore   time.Time `json:"not_before"`
	NotAfter    time.Time `json:"not_after"`

	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Revoked reports whether the certificate has been revoked.
func (c *Certificate) Revoked() bool {
	return c.RevokedAt != nil
}

// EnrollmentCode is a single-use credential that a device exchanges for a
// DeviceToken.
type EnrollmentCode struct {
	ID   string `json:"id"`
	Meta Meta   `json:"meta"`

	NodeID    string `json:"node_id"`
	NetworkID string `json:"network_id"`

	// CodeDigest is the digest of the normalized code. The code itself is
	// only returned once, when it is issued.
	CodeDigest digest.Digest `json:"code_digest"`

	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// DeviceToken is the long-lived bearer credential of an enrolled device.
type DeviceToken struct {
	ID   string `json:"id"`
	Meta Meta   `json:"meta"`

	NodeID    string `json:"node_id"`
	NetworkID string `json:"network_id"`

	TokenDigest digest.Digest `json:"token_digest"`

	// DeviceHostname and RemoteAddr are what the device presented when it
	// enrolled.
	DeviceHostname string `json:"device_hostname,omitempty"`
	RemoteAddr     string `json:"remote_addr,omitempty"`
}

// Allocation records that an address of a network is held by a node.
type Allocation struct {
	ID   string `json:"id"`
	Meta Meta   `json:"meta"`

	NetworkID string `json:"network_id"`
	Address   string `json:"address"`
	NodeID    string `json:"node_id"`
}

// AllocationID returns the store ID of the allocation of address in network.
func AllocationID(networkID, address string) string {
	return networkID + "/" + address
}
