// Package enrollment implements the exchange of single-use enrollment codes
// for long-lived device tokens, and the authentication of devices by token.
package enrollment

import (
	"context"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/meshkit/meshkit/api"
	"github.com/meshkit/meshkit/identity"
	"github.com/meshkit/meshkit/log"
	"github.com/meshkit/meshkit/manager/state/store"
	digest "github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"
)

// DefaultCodeTTL is how long an enrollment code stays valid unless the
// operator asks otherwise.
const DefaultCodeTTL = 24 * time.Hour

var (
	// ErrCodeNotFound is returned when no code matches.
	ErrCodeNotFound = &api.Error{Code: api.CodeNotFound, Message: "enrollment code not found"}
	// ErrCodeExpired is returned when the code's TTL has passed.
	ErrCodeExpired = &api.Error{Code: api.CodeExpired, Message: "enrollment code has expired; ask for a new one"}
	// ErrCodeConsumed is returned when the code was already exchanged.
	ErrCodeConsumed = &api.Error{Code: api.CodeAlreadyConsumed, Message: "enrollment code was already used; ask for a new one"}
	// ErrInvalidToken is returned when a device token is unknown or was
	// superseded.
	ErrInvalidToken = &api.Error{Code: api.CodeUnauthenticated, Message: "invalid device token"}
)

// Proof is what a device presents along with its code. It is recorded on
// the device token.
type Proof struct {
	Hostname   string
	RemoteAddr string
}

// Exchange issues and consumes enrollment codes.
type Exchange struct {
	store *store.MemoryStore
	clock clock.Clock
}

// New returns an Exchange operating on s. clk may be nil.
func New(s *store.MemoryStore, clk clock.Clock) *Exchange {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Exchange{store: s, clock: clk}
}

// IssueCode creates a new enrollment code for node, valid for ttl. The
// plaintext code is only ever returned here.
func (e *Exchange) IssueCode(tx store.Tx, node *api.Node, ttl time.Duration) (string, *api.EnrollmentCode, error) {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	code := identity.NewEnrollmentCode()
	ec := &api.EnrollmentCode{
		ID:         identity.NewID(),
		NodeID:     node.ID,
		NetworkID:  node.NetworkID,
		CodeDigest: digest.FromString(code),
		ExpiresAt:  e.clock.Now().UTC().Add(ttl),
	}
	if err := store.CreateEnrollmentCode(tx, ec); err != nil {
		return "", nil, err
	}
	return code, ec, nil
}

// Consume exchanges code for a new device token. The check and the marking
// of the code happen in one store transaction, so of several concurrent
// attempts exactly one succeeds and the others see ErrCodeConsumed. Any
// token the node held before is deleted.
func (e *Exchange) Consume(ctx context.Context, code string, proof Proof) (string, *api.Node, error) {
	normalized := identity.NormalizeEnrollmentCode(code)
	if !identity.ValidEnrollmentCode(normalized) {
		return "", nil, ErrCodeNotFound
	}
	codeDigest := digest.FromString(normalized)
	token := identity.NewDeviceToken()

	var node *api.Node
	err := e.store.Update(func(tx store.Tx) error {
		codes, err := store.FindEnrollmentCodes(tx, store.ByDigest(codeDigest))
		if err != nil {
			return err
		}
		if len(codes) == 0 {
			return ErrCodeNotFound
		}
		ec := codes[0]
		if ec.ConsumedAt != nil {
			return ErrCodeConsumed
		}
		now := e.clock.Now().UTC()
		if !now.Before(ec.ExpiresAt) {
			return ErrCodeExpired
		}
		node = store.GetNode(tx, ec.NodeID)
		if node == nil {
			return ErrCodeNotFound
		}

		ec.ConsumedAt = &now
		if err := store.UpdateEnrollmentCode(tx, ec); err != nil {
			return err
		}
		if err := deleteTokens(tx, node.ID); err != nil {
			return err
		}
		return store.CreateDeviceToken(tx, &api.DeviceToken{
			ID:             identity.NewID(),
			NodeID:         node.ID,
			NetworkID:      node.NetworkID,
			TokenDigest:    digest.FromString(token),
			DeviceHostname: proof.Hostname,
			RemoteAddr:     proof.RemoteAddr,
		})
	})
	if err != nil {
		return "", nil, err
	}

	log.G(ctx).WithFields(logrus.Fields{
		"node.id":       node.ID,
		"node.hostname": node.Spec.Hostname,
		"remote":        proof.RemoteAddr,
	}).Info("device enrolled")
	return token, node, nil
}

// Authenticate returns the node a device token belongs to.
func (e *Exchange) Authenticate(ctx context.Context, token string) (*api.Node, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	tokenDigest := digest.FromString(token)

	var node *api.Node
	err := e.store.View(func(tx store.ReadTx) error {
		tokens, err := store.FindDeviceTokens(tx, store.ByDigest(tokenDigest))
		if err != nil {
			return err
		}
		if len(tokens) == 0 {
			return ErrInvalidToken
		}
		node = store.GetNode(tx, tokens[0].NodeID)
		if node == nil {
			return ErrInvalidToken
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// InvalidateNode deletes every enrollment code and device token of a node.
func InvalidateNode(tx store.Tx, nodeID string) error {
	codes, err := store.FindEnrollmentCodes(tx, store.ByNodeID(nodeID))
	if err != nil {
		return err
	}
	for _, c := range codes {
		if err := store.DeleteEnrollmentCode(tx, c.ID); err != nil {
			return err
		}
	}
	return deleteTokens(tx, nodeID)
}

func deleteTokens(tx store.Tx, nodeID string) error {
	tokens, err := store.FindDeviceTokens(tx, store.ByNodeID(nodeID))
	if err != nil {
		return err
	}
	for _, t := range tokens {
		if err := store.DeleteDeviceToken(tx, t.ID); err != nil {
			return err
		}
	}
	return nil
}
