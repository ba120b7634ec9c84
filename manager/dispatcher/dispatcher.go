// Package dispatcher implements the operations devices call: enrollment,
// config polling and certificate bundle download. Every authenticated call
// counts as a heartbeat.
package dispatcher

import (
	"context"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/ca"
	"github.com/meshkit/meshkit/log"
	"github.com/meshkit/meshkit/manager/enrollment"
	"github.com/meshkit/meshkit/manager/netconfig"
	"github.com/meshkit/meshkit/manager/state/store"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrNoCertificate is returned to devices whose node has no current
// certificate.
var ErrNoCertificate = &api.Error{Code: api.CodeNotFound, Message: "node has no certificate; ask an operator to issue one"}

// Config is configuration for Dispatcher.
type Config struct {
	// DefaultPKIDir is used when a device doesn't say where it keeps its
	// certificates.
	DefaultPKIDir string
	Clock         clock.Clock
}

// DefaultConfig returns default config for Dispatcher.
func DefaultConfig() *Config {
	return &Config{
		DefaultPKIDir: netconfig.DefaultPKIDir,
		Clock:         clock.NewClock(),
	}
}

// Dispatcher serves devices.
type Dispatcher struct {
	store     *store.MemoryStore
	exchange  *enrollment.Exchange
	authority *ca.Authority
	config    *Config
}

// New returns a Dispatcher.
func New(s *store.MemoryStore, exchange *enrollment.Exchange, authority *ca.Authority, c *Config) *Dispatcher {
	if c == nil {
		c = DefaultConfig()
	}
	if c.Clock == nil {
		c.Clock = clock.NewClock()
	}
	if c.DefaultPKIDir == "" {
		c.DefaultPKIDir = netconfig.DefaultPKIDir
	}
	return &Dispatcher{store: s, exchange: exchange, authority: authority, config: c}
}

// Enroll exchanges an enrollment code for a device token.
func (d *Dispatcher) Enroll(ctx context.Context, r *api.EnrollRequest, remoteAddr string) (*api.EnrollResponse, error) {
	if r.Code == "" {
		return nil, api.Errorf(api.CodeInvalidArgument, "enrollment code must be provided")
	}
	token, node, err := d.exchange.Consume(ctx, r.Code, enrollment.Proof{Hostname: r.Hostname, RemoteAddr: remoteAddr})
	if err != nil {
		log.G(ctx).WithFields(logrus.Fields{
			"remote": remoteAddr,
			"reason": api.CodeOf(err),
		}).Warn("enrollment rejected")
		return nil, err
	}
	return &api.EnrollResponse{
		Token:     token,
		NodeID:    node.ID,
		NetworkID: node.NetworkID,
		Hostname:  node.Spec.Hostname,
	}, nil
}

// Authenticate returns the node token belongs to, without recording a
// heartbeat.
func (d *Dispatcher) Authenticate(ctx context.Context, token string) (*api.Node, error) {
	return d.exchange.Authenticate(ctx, token)
}

// heartbeat authenticates token and records the poll on the node.
func (d *Dispatcher) heartbeat(ctx context.Context, token string) (*api.Node, error) {
	node, err := d.exchange.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}

	now := d.config.Clock.Now().UTC()
	err = d.store.Update(func(tx store.Tx) error {
		node = store.GetNode(tx, node.ID)
		if node == nil {
			return enrollment.ErrInvalidToken
		}
		if node.FirstPolledAt == nil {
			node.FirstPolledAt = &now
			log.G(ctx).WithField("node.id", node.ID).Info("first poll from device")
		}
		node.LastSeen = &now
		return store.UpdateNode(tx, node)
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// Config returns the rendered config of the token's node. pkiDir overrides
// the directory the config points the daemon at.
func (d *Dispatcher) Config(ctx context.Context, token, pkiDir string) ([]byte, error) {
	node, err := d.heartbeat(ctx, token)
	if err != nil {
		return nil, err
	}
	if pkiDir == "" {
		pkiDir = d.config.DefaultPKIDir
	}

	in := netconfig.Input{Node: node, PKIDir: pkiDir}
	now := d.config.Clock.Now()
	err = d.store.View(func(tx store.ReadTx) error {
		var err error
		in.Peers, err = store.FindNodes(tx, store.ByNetworkID(node.NetworkID))
		if err != nil {
			return err
		}
		in.Blocklist, err = blocklist(tx, node.NetworkID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	out, err := netconfig.Render(in)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render config")
	}
	return out, nil
}

// blocklist returns the fingerprints of revoked certificates of a network
// that have not expired yet.
func blocklist(tx store.ReadTx, networkID string, now time.Time) ([]string, error) {
	certs, err := store.FindCertificates(tx, store.ByNetworkID(networkID))
	if err != nil {
		return nil, err
	}
	var fingerprints []string
	for _, c := range certs {
		if c.Revoked() && c.NotAfter.After(now) {
			fingerprints = append(fingerprints, c.Fingerprint)
		}
	}
	return fingerprints, nil
}

// Bundle returns the CA certificate, the node's current certificate and, for
// server generated certificates, its private key.
func (d *Dispatcher) Bundle(ctx context.Context, token string) (*api.CertificateBundle, error) {
	node, err := d.heartbeat(ctx, token)
	if err != nil {
		return nil, err
	}

	var (
		network *api.Network
		cert    *api.Certificate
	)
	d.store.View(func(tx store.ReadTx) error {
		network = store.GetNetwork(tx, node.NetworkID)
		if node.CertificateID != "" {
			cert = store.GetCertificate(tx, node.CertificateID)
		}
		return nil
	})
	if network == nil || cert == nil || cert.Revoked() {
		return nil, ErrNoCertificate
	}

	key, err := d.authority.PrivateKey(cert)
	if err != nil {
		return nil, err
	}
	return &api.CertificateBundle{
		CACert:      string(network.CACert),
		Certificate: string(cert.CertPEM),
		PrivateKey:  string(key),
		Mode:        cert.Mode,
		NotAfter:    cert.NotAfter,
	}, nil
}
