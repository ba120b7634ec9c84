// Package agent implements the device side of the mesh: it polls the
// manager for the device's configuration and certificates, writes them to
// disk and keeps the overlay daemon running with them.
package agent

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/meshkit/meshkit/ioutils"
	"github.com/meshkit/meshkit/log"
	"github.com/meshkit/meshkit/manager/netconfig"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Result describes what a reconciliation changed.
type Result struct {
	// Changed lists the files rewritten, by name.
	Changed []string
	// Restarted is set when the daemon was restarted.
	Restarted bool
}

// Agent reconciles the files in the output directory with the manager's
// view of the device.
type Agent struct {
	config *Config
	logger *logrus.Entry

	mu      sync.Mutex
	started bool
	// pendingRestart is set once new files are written and cleared when
	// the daemon has been restarted with them.
	pendingRestart bool
}

// New returns a new agent.
func New(config *Config) (*Agent, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &Agent{
		config: config,
		logger: log.L.WithFields(logrus.Fields{
			"module": "agent",
			"server": config.Client.Server(),
		}),
	}, nil
}

type desiredFile struct {
	name string
	data []byte
	perm os.FileMode
}

// Reconcile fetches the configuration and the certificate bundle, writes
// the files that differ from what is on disk, and restarts the daemon if
// anything changed. A failed restart is retried by the next call even when
// nothing changed since. Otherwise the daemon is only started if it is not
// running.
func (a *Agent) Reconcile(ctx context.Context) (Result, error) {
	var result Result

	token, err := ReadToken(a.config.TokenPath)
	if err != nil {
		return result, err
	}

	config, err := a.config.Client.Config(ctx, token, a.config.OutputDir)
	if err != nil {
		return result, errors.Wrap(err, "failed to fetch configuration")
	}
	bundle, err := a.config.Client.Bundle(ctx, token)
	if err != nil {
		return result, errors.Wrap(err, "failed to fetch certificate bundle")
	}

	files := []desiredFile{
		{name: netconfig.CAFile, data: []byte(bundle.CACert), perm: 0644},
		{name: netconfig.CertFile, data: []byte(bundle.Certificate), perm: 0644},
	}
	keyPath := filepath.Join(a.config.OutputDir, netconfig.KeyFile)
	if bundle.PrivateKey != "" {
		files = append(files, desiredFile{name: netconfig.KeyFile, data: []byte(bundle.PrivateKey), perm: 0600})
	} else if _, err := os.Stat(keyPath); err != nil {
		if os.IsNotExist(err) {
			return result, ErrMissingPrivateKey
		}
		return result, errors.Wrap(err, "failed to check private key")
	}
	// the configuration goes last so the daemon never sees it before the
	// files it refers to
	files = append(files, desiredFile{name: netconfig.ConfigFile, data: config, perm: 0644})

	if err := os.MkdirAll(a.config.OutputDir, 0755); err != nil {
		return result, errors.Wrap(err, "failed to create output directory")
	}
	for _, f := range files {
		path := filepath.Join(a.config.OutputDir, f.name)
		same, err := ioutils.SameContent(path, f.data)
		if err != nil {
			return result, errors.Wrapf(err, "failed to read %s", path)
		}
		if same {
			continue
		}
		if err := ioutils.AtomicWriteFile(path, f.data, f.perm); err != nil {
			return result, errors.Wrapf(err, "failed to write %s", path)
		}
		result.Changed = append(result.Changed, f.name)
		a.setPendingRestart(true)
	}

	if len(result.Changed) > 0 {
		log.G(ctx).WithField("files", result.Changed).Info("configuration updated")
	} else if !a.restartPending() {
		return result, a.config.Supervisor.Ensure(ctx)
	}
	if err := a.config.Supervisor.Restart(ctx); err != nil {
		return result, errors.Wrap(err, "failed to restart daemon")
	}
	a.setPendingRestart(false)
	result.Restarted = true
	return result, nil
}

func (a *Agent) restartPending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pendingRestart
}

func (a *Agent) setPendingRestart(pending bool) {
	a.mu.Lock()
	a.pendingRestart = pending
	a.mu.Unlock()
}

// Run reconciles every Interval until ctx is cancelled. A missing token or
// private key stops it with an error; a rejected token or an unreachable
// manager is logged and retried at the next interval. The daemon is stopped
// when Run returns.
func (a *Agent) Run(ctx context.Context) error {
	if _, err := ReadToken(a.config.TokenPath); err != nil {
		return err
	}

	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return errAgentStarted
	}
	a.started = true
	a.mu.Unlock()

	ctx = log.WithLogger(ctx, a.logger)
	defer func() {
		if err := a.config.Supervisor.Stop(context.Background()); err != nil {
			log.G(ctx).WithError(err).Error("failed to stop daemon")
		}
	}()

	log.G(ctx).WithFields(logrus.Fields{
		"output": a.config.OutputDir,
		"every":  a.config.Interval,
	}).Info("polling manager")

	for {
		_, err := a.Reconcile(ctx)
		switch {
		case err == nil:
		case errors.Cause(err) == ErrUnauthorized:
			log.G(ctx).Error("device token rejected by the manager; re-run enroll with a new code")
		case err == ErrMissingPrivateKey, err == ErrNoToken:
			return err
		case ctx.Err() != nil:
			return nil
		default:
			log.G(ctx).WithError(err).Warn("reconciliation failed, retrying at next interval")
		}

		timer := a.config.Clock.NewTimer(a.config.Interval)
		select {
		case <-timer.C():
		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}
}
