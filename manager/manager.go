// Package manager wires the state store, durable storage, the certificate
// authority and both HTTP surfaces into a running control plane.
package manager

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/docker/go-connections/sockets"
	"github.com/docker/go-connections/tlsconfig"
	"github.com/meshkit/meshkit/ca"
	"github.com/meshkit/meshkit/ioutils"
	"github.com/meshkit/meshkit/log"
	"github.com/meshkit/meshkit/manager/controlapi"
	"github.com/meshkit/meshkit/manager/dispatcher"
	"github.com/meshkit/meshkit/manager/encryption"
	"github.com/meshkit/meshkit/manager/enrollment"
	"github.com/meshkit/meshkit/manager/httpapi"
	"github.com/meshkit/meshkit/manager/metrics"
	"github.com/meshkit/meshkit/manager/state/storage"
	"github.com/meshkit/meshkit/manager/state/store"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	dbFilename  = "meshkit.db"
	keyFilename = "unlock.key"

	shutdownTimeout = 10 * time.Second
)

// Config is used to tune the Manager.
type Config struct {
	// StateDir holds the database and, when no key is configured, the
	// generated key encryption key.
	StateDir string

	// ControlSocket is the unix socket of the operator API, owned by
	// ControlSocketGroup.
	ControlSocket      string
	ControlSocketGroup int
	// ControlListener is used instead of ControlSocket when set.
	ControlListener net.Listener

	// DeviceAddr is the TCP address of the device API.
	DeviceAddr string
	// DeviceListener is used instead of DeviceAddr when set.
	DeviceListener net.Listener
	// TLSCertFile and TLSKeyFile enable TLS on the device API.
	TLSCertFile string
	TLSKeyFile  string

	// KeyEncryptionKey seals CA and node private keys at rest.
	// PreviousKeys can still open records sealed before a key rotation.
	KeyEncryptionKey []byte
	PreviousKeys     [][]byte
	FernetOnly       bool

	RootCAExpiration   time.Duration
	NodeCertExpiration time.Duration
	DefaultCodeTTL     time.Duration

	HTTP httpapi.Config

	Clock clock.Clock
}

// Manager is the high-level object holding and initializing all the
// manager subsystems.
type Manager struct {
	config Config

	db        *storage.DB
	store     *store.MemoryStore
	control   *controlapi.Server
	http      *httpapi.Server
	collector *metrics.Collector

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// New opens the state in config.StateDir and creates a Manager which has
// not started to accept requests yet.
func New(config Config) (*Manager, error) {
	if config.StateDir == "" {
		return nil, errors.New("a state directory is required")
	}
	if config.ControlListener == nil && config.ControlSocket == "" {
		return nil, errors.New("a control socket is required")
	}
	if config.DeviceListener == nil && config.DeviceAddr == "" {
		return nil, errors.New("a device API address is required")
	}
	if (config.TLSCertFile == "") != (config.TLSKeyFile == "") {
		return nil, errors.New("TLS needs both a certificate and a key")
	}
	if config.Clock == nil {
		config.Clock = clock.NewClock()
	}

	if err := os.MkdirAll(config.StateDir, 0700); err != nil {
		return nil, errors.Wrap(err, "failed to create state directory")
	}

	key := config.KeyEncryptionKey
	if len(key) == 0 {
		var err error
		key, err = loadOrCreateKey(filepath.Join(config.StateDir, keyFilename))
		if err != nil {
			return nil, err
		}
	}
	encrypter, decrypter := encryption.Defaults(key, config.FernetOnly)
	if len(config.PreviousKeys) > 0 {
		decrypters := []encryption.Decrypter{decrypter}
		for _, k := range config.PreviousKeys {
			_, d := encryption.Defaults(k, config.FernetOnly)
			decrypters = append(decrypters, d)
		}
		decrypter = encryption.NewMultiDecrypter(decrypters...)
	}

	db, err := storage.Open(filepath.Join(config.StateDir, dbFilename))
	if err != nil {
		return nil, err
	}
	snapshot, err := db.Load()
	if err != nil {
		db.Close()
		return nil, err
	}
	s := store.NewMemoryStore(db)
	if err := s.Restore(snapshot); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to restore state")
	}

	authority := ca.NewAuthority(ca.AuthorityConfig{
		Encrypter:          encrypter,
		Decrypter:          decrypter,
		RootCAExpiration:   config.RootCAExpiration,
		NodeCertExpiration: config.NodeCertExpiration,
		Clock:              config.Clock,
	})
	exchange := enrollment.New(s, config.Clock)

	opts := []controlapi.ServerOption{
		controlapi.WithMemoryStore(s),
		controlapi.WithAuthority(authority),
		controlapi.WithEnrollment(exchange),
		controlapi.WithClock(config.Clock),
	}
	if config.DefaultCodeTTL != 0 {
		opts = append(opts, controlapi.WithDefaultCodeTTL(config.DefaultCodeTTL))
	}
	control, err := controlapi.New(opts...)
	if err != nil {
		db.Close()
		return nil, err
	}

	d := dispatcher.New(s, exchange, authority, &dispatcher.Config{Clock: config.Clock})
	httpConfig := config.HTTP
	defaults := httpapi.DefaultConfig()
	if httpConfig.EnrollLimit.Requests == 0 {
		httpConfig.EnrollLimit = defaults.EnrollLimit
	}
	if httpConfig.ConfigLimit.Requests == 0 {
		httpConfig.ConfigLimit = defaults.ConfigLimit
	}
	if httpConfig.BundleLimit.Requests == 0 {
		httpConfig.BundleLimit = defaults.BundleLimit
	}
	if httpConfig.DeviceRate == 0 {
		httpConfig.DeviceRate, httpConfig.DeviceBurst = defaults.DeviceRate, defaults.DeviceBurst
	}
	httpConfig.Clock = config.Clock

	return &Manager{
		config:    config,
		db:        db,
		store:     s,
		control:   control,
		http:      httpapi.New(control, d, httpConfig),
		collector: metrics.NewCollector(s, config.Clock),
	}, nil
}

// loadOrCreateKey reads the key encryption key from path, generating it on
// first start.
func loadOrCreateKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return encryption.ParseHumanReadableKey(strings.TrimSpace(string(data)))
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to read key encryption key")
	}
	key := encryption.GenerateSecretKey()
	if err := ioutils.AtomicWriteFile(path, []byte(encryption.HumanReadableKey(key)), 0600); err != nil {
		return nil, errors.Wrap(err, "failed to write key encryption key")
	}
	log.L.WithField("path", path).Warn("generated a new key encryption key; back it up, private keys cannot be recovered without it")
	return key, nil
}

// Control returns the control API server, for in-process callers.
func (m *Manager) Control() *controlapi.Server {
	return m.control
}

func (m *Manager) controlListener() (net.Listener, error) {
	if m.config.ControlListener != nil {
		return m.config.ControlListener, nil
	}
	if err := os.MkdirAll(filepath.Dir(m.config.ControlSocket), 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create control socket directory")
	}
	l, err := sockets.NewUnixSocket(m.config.ControlSocket, m.config.ControlSocketGroup)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", m.config.ControlSocket)
	}
	return l, nil
}

func (m *Manager) deviceListener() (net.Listener, error) {
	l := m.config.DeviceListener
	if l == nil {
		var err error
		l, err = net.Listen("tcp", m.config.DeviceAddr)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to listen on %s", m.config.DeviceAddr)
		}
	}
	if m.config.TLSCertFile == "" {
		return l, nil
	}

	cert, err := tls.LoadX509KeyPair(m.config.TLSCertFile, m.config.TLSKeyFile)
	if err != nil {
		l.Close()
		return nil, errors.Wrap(err, "failed to load TLS key pair")
	}
	tlsConfig := tlsconfig.ServerDefault()
	tlsConfig.Certificates = []tls.Certificate{cert}
	return tls.NewListener(l, tlsConfig), nil
}

// Run serves both APIs until ctx is cancelled or Stop is called, then shuts
// them down gracefully and closes the store.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("manager already started")
	}
	m.started = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()
	defer m.close()

	ctx = log.WithModule(ctx, "manager")

	controlL, err := m.controlListener()
	if err != nil {
		return err
	}
	deviceL, err := m.deviceListener()
	if err != nil {
		controlL.Close()
		return err
	}

	if err := prometheus.Register(m.collector); err != nil {
		log.G(ctx).WithError(err).Warn("node status metrics not registered")
	} else {
		defer prometheus.Unregister(m.collector)
	}
	go func() {
		if err := m.collector.Run(ctx); err != nil && err != context.Canceled {
			log.G(ctx).WithError(err).Error("metrics collector exited with an error")
		}
	}()
	defer m.collector.Stop()

	servers := []*http.Server{
		{Handler: m.http.ControlHandler(), ReadHeaderTimeout: 10 * time.Second, BaseContext: baseContext(ctx, "controlapi")},
		{Handler: m.http.DeviceHandler(), ReadHeaderTimeout: 10 * time.Second, BaseContext: baseContext(ctx, "dispatcher")},
	}
	listeners := []net.Listener{controlL, deviceL}

	errCh := make(chan error, len(servers))
	for i, srv := range servers {
		go func(srv *http.Server, l net.Listener) {
			errCh <- srv.Serve(l)
		}(srv, listeners[i])
	}
	log.G(ctx).WithFields(map[string]interface{}{
		"control": controlL.Addr().String(),
		"device":  deviceL.Addr().String(),
		"tls":     m.config.TLSCertFile != "",
	}).Info("manager started")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		log.G(ctx).WithError(runErr).Error("listener failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.G(ctx).WithError(err).Warn("forced shutdown")
		}
	}
	log.G(ctx).Info("manager stopped")
	return runErr
}

func baseContext(ctx context.Context, module string) func(net.Listener) context.Context {
	return func(net.Listener) context.Context {
		return log.WithModule(ctx, module)
	}
}

// Stop makes Run return.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Manager) close() {
	m.store.Close()
	if err := m.db.Close(); err != nil {
		log.L.WithError(err).Error("failed to close database")
	}
}

// Close releases the state of a Manager that was never run.
func (m *Manager) Close() {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()
	if !started {
		m.close()
	}
}
