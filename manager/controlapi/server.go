package controlapi

import (
	"errors"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/meshkit/meshkit/ca"
	"github.com/meshkit/meshkit/manager/enrollment"
	"github.com/meshkit/meshkit/manager/state/store"
)

// Server is the operator facing control API.
type Server struct {
	store     *store.MemoryStore
	authority *ca.Authority
	exchange  *enrollment.Exchange
	clock     clock.Clock

	defaultCodeTTL time.Duration
}

// New creates a control API server.
func New(opts ...ServerOption) (*Server, error) {
	var s Server

	for _, opt := range opts {
		if err := opt(&s); err != nil {
			return nil, err
		}
	}

	if s.store == nil {
		return nil, errors.New("no memory store provided")
	}
	if s.authority == nil {
		return nil, errors.New("no certificate authority provided")
	}
	if s.clock == nil {
		s.clock = clock.NewClock()
	}
	if s.exchange == nil {
		s.exchange = enrollment.New(s.store, s.clock)
	}
	if s.defaultCodeTTL == 0 {
		s.defaultCodeTTL = enrollment.DefaultCodeTTL
	}
	return &s, nil
}

// ServerOption is a functional argument to configure a new server.
type ServerOption func(*Server) error

// WithMemoryStore configures the server's memory store.
func WithMemoryStore(store *store.MemoryStore) ServerOption {
	return func(s *Server) error {
		s.store = store
		return nil
	}
}

// WithAuthority configures the certificate authority used to issue and
// revoke node certificates.
func WithAuthority(authority *ca.Authority) ServerOption {
	return func(s *Server) error {
		s.authority = authority
		return nil
	}
}

// WithEnrollment configures the enrollment code exchange. It must share the
// server's store.
func WithEnrollment(exchange *enrollment.Exchange) ServerOption {
	return func(s *Server) error {
		s.exchange = exchange
		return nil
	}
}

// WithClock configures the time source used for status derivation.
func WithClock(clk clock.Clock) ServerOption {
	return func(s *Server) error {
		s.clock = clk
		return nil
	}
}

// WithDefaultCodeTTL configures the lifetime of enrollment codes issued
// without an explicit TTL.
func WithDefaultCodeTTL(ttl time.Duration) ServerOption {
	return func(s *Server) error {
		if ttl < 0 {
			return errors.New("enrollment code TTL must not be negative")
		}
		s.defaultCodeTTL = ttl
		return nil
	}
}
