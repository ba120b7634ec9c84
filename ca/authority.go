package ca

import (
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/cloudflare/cfssl/helpers"
	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/identity"
	"github.com/meshkit/meshkit/manager/allocator/ipam"
	"github.com/meshkit/meshkit/manager/encryption"
	"github.com/meshkit/meshkit/manager/state/store"
	"github.com/pkg/errors"
)

// Issued is the result of a certificate issuance.
type Issued struct {
	Certificate *api.Certificate
	Address     string
	// CertPEM is the signed node certificate.
	CertPEM []byte
	// PrivateKey is the plaintext PEM key. It is only set when the manager
	// generated the key pair.
	PrivateKey []byte
	// CACert is the network's root certificate.
	CACert []byte
}

// AuthorityConfig holds the dependencies of an Authority.
type AuthorityConfig struct {
	// Encrypter seals CA and node private keys before they are stored.
	Encrypter encryption.Encrypter
	// Decrypter opens keys sealed by Encrypter, or by earlier keys.
	Decrypter encryption.Decrypter

	// RootCAExpiration is the lifetime of network CAs.
	RootCAExpiration time.Duration
	// NodeCertExpiration is used when an issuance doesn't request a
	// duration.
	NodeCertExpiration time.Duration

	Clock clock.Clock
}

// Authority issues and revokes node certificates. Every operation runs
// inside the caller's store transaction so issuance and address allocation
// commit or abort together.
type Authority struct {
	config AuthorityConfig
}

// NewAuthority returns an Authority. Encrypter and Decrypter default to the
// no-op crypter.
func NewAuthority(config AuthorityConfig) *Authority {
	if config.Encrypter == nil {
		config.Encrypter = encryption.NoopCrypter
	}
	if config.Decrypter == nil {
		config.Decrypter = encryption.NoopCrypter
	}
	if config.RootCAExpiration == 0 {
		config.RootCAExpiration = DefaultRootCAExpiration
	}
	if config.NodeCertExpiration == 0 {
		config.NodeCertExpiration = DefaultNodeCertExpiration
	}
	if config.Clock == nil {
		config.Clock = clock.NewClock()
	}
	return &Authority{config: config}
}

// NewNetworkCA creates the root CA of a new network. The returned key is
// sealed and can be stored as is.
func (a *Authority) NewNetworkCA(name string) (cert, sealedKey []byte, err error) {
	rca, err := CreateRootCA("meshkit "+name+" CA", a.config.RootCAExpiration)
	if err != nil {
		return nil, nil, err
	}
	sealedKey, err = encryption.Encrypt(rca.Key, a.config.Encrypter)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to seal CA key")
	}
	return rca.Cert, sealedKey, nil
}

// RootCA opens the CA of a network.
func (a *Authority) RootCA(network *api.Network) (RootCA, error) {
	key, err := encryption.Decrypt(network.CAKey, a.config.Decrypter)
	if err != nil {
		return RootCA{}, errors.Wrapf(err, "failed to open CA key of network %s", network.ID)
	}
	return NewRootCA(network.CACert, key)
}

// PrivateKey opens the sealed private key of a server generated
// certificate. It returns nil for client signed certificates.
func (a *Authority) PrivateKey(cert *api.Certificate) ([]byte, error) {
	if len(cert.PrivateKey) == 0 {
		return nil, nil
	}
	key, err := encryption.Decrypt(cert.PrivateKey, a.config.Decrypter)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open key of certificate %s", cert.ID)
	}
	return key, nil
}

// Create generates a key pair for node and issues a certificate for it. The
// private key is returned and kept, sealed, with the certificate.
func (a *Authority) Create(tx store.Tx, node *api.Node, preferred string, duration time.Duration) (*Issued, error) {
	csr, key, err := GenerateNewCSR()
	if err != nil {
		return nil, err
	}
	return a.issue(tx, node, csr, key, preferred, duration)
}

// Sign issues a certificate for the public key in csrPEM. The device keeps
// its private key.
func (a *Authority) Sign(tx store.Tx, node *api.Node, csrPEM []byte, preferred string, duration time.Duration) (*Issued, error) {
	if _, err := helpers.ParseCSRPEM(csrPEM); err != nil {
		return nil, api.Errorf(api.CodeInvalidArgument, "invalid certificate signing request: %v", err)
	}
	return a.issue(tx, node, csrPEM, nil, preferred, duration)
}

func (a *Authority) issue(tx store.Tx, node *api.Node, csr, key []byte, preferred string, duration time.Duration) (*Issued, error) {
	network := store.GetNetwork(tx, node.NetworkID)
	if network == nil {
		return nil, api.Errorf(api.CodeNotFound, "network %s not found", node.NetworkID)
	}
	if duration == 0 {
		duration = a.config.NodeCertExpiration
	}
	if duration < MinNodeCertExpiration {
		return nil, api.Errorf(api.CodeInvalidArgument, "certificate duration must be at least %s", MinNodeCertExpiration)
	}

	address := node.Address
	switch {
	case address != "" && preferred != "" && preferred != address:
		return nil, api.Errorf(api.CodeInvalidArgument,
			"node %s already holds address %s; remove the node to change its address", node.Spec.Hostname, address)
	case address == "":
		var err error
		address, err = ipam.Allocate(tx, network, node.ID, preferred)
		if err != nil {
			return nil, allocationError(err)
		}
	}

	now := a.config.Clock.Now().UTC()
	if err := a.revokeCurrent(tx, node, now); err != nil {
		return nil, err
	}

	rca, err := a.RootCA(network)
	if err != nil {
		return nil, err
	}
	certPEM, err := rca.ParseValidateAndSignCSR(csr, Subject{
		Hostname:  node.Spec.Hostname,
		NetworkID: network.ID,
		Groups:    node.Spec.Groups,
		Address:   address,
	}, duration)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseCertificate(certPEM)
	if err != nil {
		return nil, errors.Wrap(err, "signer returned an unparseable certificate")
	}

	cert := &api.Certificate{
		ID:          identity.NewID(),
		NodeID:      node.ID,
		NetworkID:   network.ID,
		Hostname:    node.Spec.Hostname,
		Address:     address,
		Groups:      append([]string(nil), node.Spec.Groups...),
		Mode:        api.CertificateModeClientSigned,
		CertPEM:     certPEM,
		Fingerprint: Fingerprint(parsed),
		NotBefore:   parsed.NotBefore.UTC(),
		NotAfter:    parsed.NotAfter.UTC(),
	}
	if key != nil {
		cert.Mode = api.CertificateModeServerGenerated
		cert.PrivateKey, err = encryption.Encrypt(key, a.config.Encrypter)
		if err != nil {
			return nil, errors.Wrap(err, "failed to seal node key")
		}
	}
	if err := store.CreateCertificate(tx, cert); err != nil {
		return nil, err
	}

	node.Address = address
	node.CertificateID = cert.ID
	if err := store.UpdateNode(tx, node); err != nil {
		return nil, err
	}

	return &Issued{
		Certificate: cert,
		Address:     address,
		CertPEM:     certPEM,
		PrivateKey:  key,
		CACert:      network.CACert,
	}, nil
}

// revokeCurrent revokes the node's current certificate, if any. The node is
// updated in memory only; callers write it.
func (a *Authority) revokeCurrent(tx store.Tx, node *api.Node, now time.Time) error {
	if node.CertificateID == "" {
		return nil
	}
	cert := store.GetCertificate(tx, node.CertificateID)
	if cert != nil && !cert.Revoked() {
		cert.RevokedAt = &now
		if err := store.UpdateCertificate(tx, cert); err != nil {
			return err
		}
	}
	node.CertificateID = ""
	return nil
}

// Revoke revokes the node's current certificate. The node keeps its
// address until it is removed.
func (a *Authority) Revoke(tx store.Tx, node *api.Node) error {
	if node.CertificateID == "" {
		return api.Errorf(api.CodeFailedPrecondition, "node %s has no active certificate", node.Spec.Hostname)
	}
	if err := a.revokeCurrent(tx, node, a.config.Clock.Now().UTC()); err != nil {
		return err
	}
	return store.UpdateNode(tx, node)
}

// ReEnroll revokes the node's current certificate, issues a new server
// generated one and deletes the node's device token, so the device has to
// enroll again with a fresh code.
func (a *Authority) ReEnroll(tx store.Tx, node *api.Node, duration time.Duration) (*Issued, error) {
	issued, err := a.Create(tx, node, "", duration)
	if err != nil {
		return nil, err
	}
	tokens, err := store.FindDeviceTokens(tx, store.ByNodeID(node.ID))
	if err != nil {
		return nil, err
	}
	for _, t := range tokens {
		if err := store.DeleteDeviceToken(tx, t.ID); err != nil {
			return nil, err
		}
	}
	return issued, nil
}

// allocationError gives address allocation failures an API code.
func allocationError(err error) error {
	cause := errors.Cause(err)
	switch {
	case ipam.IsErrAddressSpaceExhausted(cause):
		return api.Errorf(api.CodeResourceExhausted, "%v", cause)
	case ipam.IsErrAddressUnavailable(cause):
		return api.Errorf(api.CodeAlreadyExists, "%v", cause)
	case ipam.IsErrAddressOutOfRange(cause), ipam.IsErrInvalidAddress(cause):
		return api.Errorf(api.CodeInvalidArgument, "%v", cause)
	}
	return err
}
