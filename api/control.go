package api

import (
	"encoding/json"
	"time"
)

// Duration is a time.Duration that travels as a Go duration string ("24h")
// in JSON. Plain numbers are read as seconds.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var secs int64
		if err := json.Unmarshal(b, &secs); err != nil {
			return Errorf(CodeInvalidArgument, "invalid duration %s", b)
		}
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return Errorf(CodeInvalidArgument, "invalid duration %q", s)
	}
	*d = Duration(parsed)
	return nil
}

// CreateNetworkRequest creates a network and its certificate authority.
type CreateNetworkRequest struct {
	Name string `json:"name"`
	CIDR string `json:"cidr"`
}

// CreateNodeRequest creates a node and issues its first certificate.
type CreateNodeRequest struct {
	NetworkID string   `json:"network_id"`
	Spec      NodeSpec `json:"spec"`

	PreferredAddress string `json:"preferred_address,omitempty"`
	// CSR, when set, selects the sign-only path: the device generated its
	// own key and only the public key in the CSR is used.
	CSR string `json:"csr,omitempty"`
	// CertificateDuration overrides the manager's default.
	CertificateDuration Duration `json:"certificate_duration,omitempty"`

	// EnrollmentCodeTTL, when non-zero, also issues an enrollment code.
	EnrollmentCodeTTL Duration `json:"enrollment_code_ttl,omitempty"`
}

// CreateNodeResponse is returned by CreateNode.
type CreateNodeResponse struct {
	Node        *Node        `json:"node"`
	Certificate *Certificate `json:"certificate"`

	EnrollmentCode          string     `json:"enrollment_code,omitempty"`
	EnrollmentCodeExpiresAt *time.Time `json:"enrollment_code_expires_at,omitempty"`
}

// UpdateNodeRequest changes the operator controlled fields of a node. Nil
// fields are left alone.
type UpdateNodeRequest struct {
	NodeID string `json:"node_id"`

	Hostname       *string            `json:"hostname,omitempty"`
	IsLighthouse   *bool              `json:"is_lighthouse,omitempty"`
	IsRelay        *bool              `json:"is_relay,omitempty"`
	PublicEndpoint *string            `json:"public_endpoint,omitempty"`
	Groups         *[]string          `json:"groups,omitempty"`
	Lighthouse     *LighthouseOptions `json:"lighthouse,omitempty"`
	Logging        *LoggingOptions    `json:"logging,omitempty"`
	Punchy         *PunchyOptions     `json:"punchy,omitempty"`
}

// NodeView is a node together with its status at the time of the request.
type NodeView struct {
	*Node
	Status NodeStatus `json:"status"`
}

// CreateEnrollmentCodeRequest asks for a new enrollment code for a node.
type CreateEnrollmentCodeRequest struct {
	NodeID string   `json:"node_id"`
	TTL    Duration `json:"ttl,omitempty"`
}

// CreateEnrollmentCodeResponse carries the only copy of the code the
// manager ever hands out.
type CreateEnrollmentCodeResponse struct {
	NodeID    string    `json:"node_id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueCertificateRequest issues a new certificate for an existing node.
type IssueCertificateRequest struct {
	NodeID           string   `json:"node_id"`
	CSR              string   `json:"csr,omitempty"`
	PreferredAddress string   `json:"preferred_address,omitempty"`
	Duration         Duration `json:"duration,omitempty"`
}

// IssueCertificateResponse is returned whenever a certificate is issued.
type IssueCertificateResponse struct {
	Address     string       `json:"address"`
	Certificate *Certificate `json:"certificate"`
	// PrivateKey is the PEM private key, only for server generated keys.
	PrivateKey string `json:"private_key,omitempty"`
	CACert     string `json:"ca_cert"`
}

// ReEnrollRequest replaces a node's certificate and device token.
type ReEnrollRequest struct {
	NodeID   string   `json:"node_id"`
	Duration Duration `json:"duration,omitempty"`
	// DemoteLighthouse also clears the lighthouse role in the same step.
	DemoteLighthouse bool `json:"demote_lighthouse,omitempty"`
	// EnrollmentCodeTTL, when non-zero, issues a fresh enrollment code.
	EnrollmentCodeTTL Duration `json:"enrollment_code_ttl,omitempty"`
}

// ReEnrollResponse is returned by ReEnroll.
type ReEnrollResponse struct {
	IssueCertificateResponse
	EnrollmentCode          string     `json:"enrollment_code,omitempty"`
	EnrollmentCodeExpiresAt *time.Time `json:"enrollment_code_expires_at,omitempty"`
}

// ListCertificatesRequest filters certificates by network or node.
type ListCertificatesRequest struct {
	NetworkID string `json:"network_id,omitempty"`
	NodeID    string `json:"node_id,omitempty"`
}

// Public returns a copy of the certificate without key material, safe to
// hand to operators.
func (c *Certificate) Public() *Certificate {
	if c == nil {
		return nil
	}
	p := c.Copy()
	p.PrivateKey = nil
	return p
}

// Public returns a copy of the network without the CA key.
func (m *Network) Public() *Network {
	if m == nil {
		return nil
	}
	p := m.Copy()
	p.CAKey = nil
	return p
}
