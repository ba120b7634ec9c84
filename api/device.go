package api

import "time"

// EnrollRequest is sent by a device to exchange an enrollment code for a
// device token.
type EnrollRequest struct {
	Code string `json:"code"`
	// Hostname is the device's own idea of its name, recorded for
	// operators.
	Hostname string `json:"hostname,omitempty"`
}

// EnrollResponse carries the device token. It is the only time the manager
// sends the token.
type EnrollResponse struct {
	Token     string `json:"token"`
	NodeID    string `json:"node_id"`
	NetworkID string `json:"network_id"`
	Hostname  string `json:"hostname"`
}

// CertificateBundle is everything a device needs on disk to bring up its
// network daemon.
type CertificateBundle struct {
	CACert      string          `json:"ca_cert"`
	Certificate string          `json:"certificate"`
	PrivateKey  string          `json:"private_key,omitempty"`
	Mode        CertificateMode `json:"mode"`
	NotAfter    time.Time       `json:"not_after"`
}
