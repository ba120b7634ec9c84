package ca

import (
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"time"

	cfconfig "github.com/cloudflare/cfssl/config"
	cfcsr "github.com/cloudflare/cfssl/csr"
	"github.com/cloudflare/cfssl/helpers"
	"github.com/cloudflare/cfssl/initca"
	cflog "github.com/cloudflare/cfssl/log"
	cfsigner "github.com/cloudflare/cfssl/signer"
	"github.com/cloudflare/cfssl/signer/local"
	"github.com/meshkit/meshkit/log"
	"github.com/pkg/errors"
)

const (
	// RootKeySize is the default size of the root CA key
	RootKeySize = 256
	// RootKeyAlgo defines the default algorithm for the root CA Key
	RootKeyAlgo = "ecdsa"
	// DefaultRootCAExpiration is the lifetime of a network's root CA.
	DefaultRootCAExpiration = 10 * 365 * 24 * time.Hour
	// DefaultNodeCertExpiration is the default lifetime of a node
	// certificate.
	DefaultNodeCertExpiration = 365 * 24 * time.Hour
	// MinNodeCertExpiration is the shortest lifetime a node certificate can
	// be issued with.
	MinNodeCertExpiration = 1 * time.Hour
)

func init() {
	cflog.Level = 5
}

// ErrNoValidSigner is returned when a RootCA has no private key to sign with.
var ErrNoValidSigner = errors.New("no valid signer found")

// RootCA is the root certificate of one network, and, when the key is
// available, the ability to sign node certificates with it.
type RootCA struct {
	// Cert is the PEM encoded root certificate.
	Cert []byte
	// Key is the PEM encoded private key. It is nil for a RootCA that can
	// only verify.
	Key []byte
	// Pool contains only Cert.
	Pool *x509.CertPool

	cert   *x509.Certificate
	signer crypto.Signer
}

// CanSign reports whether the RootCA holds a private key.
func (rca *RootCA) CanSign() bool {
	return rca.signer != nil
}

// Subject is the identity bound into a node certificate.
type Subject struct {
	// Hostname becomes the common name and a DNS subject alternative name.
	Hostname string
	// NetworkID becomes the organization.
	NetworkID string
	// Groups become organizational units.
	Groups []string
	// Address is the node's overlay address, added as an IP subject
	// alternative name.
	Address string
}

func (s Subject) names() []cfcsr.Name {
	names := []cfcsr.Name{{O: s.NetworkID}}
	for _, g := range s.Groups {
		names = append(names, cfcsr.Name{OU: g})
	}
	return names
}

// SigningPolicy returns the cfssl policy used to issue node certificates
// valid for expiry.
func SigningPolicy(expiry time.Duration) *cfconfig.Signing {
	if expiry < MinNodeCertExpiration {
		expiry = DefaultNodeCertExpiration
	}
	return &cfconfig.Signing{
		Default: &cfconfig.SigningProfile{
			Usage:        []string{"signing", "key encipherment", "server auth", "client auth"},
			Expiry:       expiry,
			ExpiryString: expiry.String(),
			// Only trust the key components from the CSR. Everything else should
			// come directly from API call params.
			CSRWhitelist: &cfconfig.CSRWhitelist{
				PublicKey:          true,
				PublicKeyAlgorithm: true,
				SignatureAlgorithm: true,
			},
		},
	}
}

// CreateRootCA creates a certificate authority for a new network.
func CreateRootCA(rootCN string, expiry time.Duration) (RootCA, error) {
	if expiry <= 0 {
		expiry = DefaultRootCAExpiration
	}
	req := cfcsr.CertificateRequest{
		CN:         rootCN,
		KeyRequest: &cfcsr.KeyRequest{A: RootKeyAlgo, S: RootKeySize},
		CA:         &cfcsr.CAConfig{Expiry: fmt.Sprintf("%dh", int64(expiry/time.Hour))},
	}

	// Generate the CA and get the certificate and private key
	cert, _, key, err := initca.New(&req)
	if err != nil {
		return RootCA{}, errors.Wrap(err, "failed to generate root CA")
	}

	return NewRootCA(cert, key)
}

// NewRootCA validates a PEM encoded self-signed CA certificate and, if key is
// set, that key belongs to it.
func NewRootCA(certBytes, keyBytes []byte) (RootCA, error) {
	cert, err := helpers.ParseSelfSignedCertificatePEM(certBytes)
	if err != nil {
		return RootCA{}, errors.Wrap(err, "invalid root CA certificate")
	}
	if !cert.IsCA {
		return RootCA{}, errors.New("root certificate is not a CA")
	}

	pool := x509.NewCertPool()
	pool.AddCert(cert)

	rca := RootCA{Cert: certBytes, Pool: pool, cert: cert}
	if len(keyBytes) == 0 {
		return rca, nil
	}

	priv, err := parsePrivateKey(keyBytes)
	if err != nil {
		return RootCA{}, errors.Wrap(err, "malformed root CA private key")
	}
	if !publicKeysEqual(priv.Public(), cert.PublicKey) {
		return RootCA{}, errors.New("root CA private key does not match the certificate")
	}
	rca.Key = keyBytes
	rca.signer = priv
	return rca, nil
}

type equaler interface {
	Equal(crypto.PublicKey) bool
}

func publicKeysEqual(a, b crypto.PublicKey) bool {
	e, ok := a.(equaler)
	return ok && e.Equal(b)
}

// ParseValidateAndSignCSR signs the public key in csrBytes for subject and
// returns the PEM encoded certificate.
func (rca *RootCA) ParseValidateAndSignCSR(csrBytes []byte, subject Subject, expiry time.Duration) ([]byte, error) {
	if !rca.CanSign() {
		return nil, ErrNoValidSigner
	}
	if _, err := helpers.ParseCSRPEM(csrBytes); err != nil {
		return nil, errors.Wrap(err, "invalid certificate signing request")
	}

	signer, err := local.NewSigner(rca.signer, rca.cert, cfsigner.DefaultSigAlgo(rca.signer), SigningPolicy(expiry))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create signer")
	}

	hosts := []string{subject.Hostname}
	if subject.Address != "" {
		hosts = append(hosts, subject.Address)
	}
	cert, err := signer.Sign(cfsigner.SignRequest{
		Request: string(csrBytes),
		Subject: &cfsigner.Subject{CN: subject.Hostname, Names: subject.names()},
		Hosts:   hosts,
	})
	if err != nil {
		log.L.Debugf("failed to sign node certificate: %v", err)
		return nil, errors.Wrap(err, "failed to sign node certificate")
	}
	return cert, nil
}

// GenerateNewCSR returns a newly generated key and CSR signed with said key
func GenerateNewCSR() (csr, key []byte, err error) {
	req := &cfcsr.CertificateRequest{
		KeyRequest: cfcsr.NewKeyRequest(),
	}

	csr, key, err = cfcsr.ParseRequest(req)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to generate CSR")
	}
	return csr, key, nil
}

// ParseCertificate parses the first certificate of a PEM block.
func ParseCertificate(certPEM []byte) (*x509.Certificate, error) {
	return helpers.ParseCertificatePEM(certPEM)
}

// Fingerprint returns the hex encoded sha256 of a certificate.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

func parsePrivateKey(keyPEM []byte) (crypto.Signer, error) {
	return helpers.ParsePrivateKeyPEM(keyPEM)
}
