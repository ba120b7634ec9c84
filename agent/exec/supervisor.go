// Package exec keeps the overlay daemon running with the configuration the
// agent writes. Two variants exist: ProcessSupervisor runs the daemon as a
// child process, ServiceSupervisor asks the service manager to restart a
// unit and never touches processes itself.
package exec

import (
	"context"
	"path/filepath"
)

// DefaultExecutable is run when neither an executable nor a service is
// configured. It is looked up on PATH.
const DefaultExecutable = "nebula"

// Supervisor controls the overlay daemon.
//
// All methods must be safe to call repeatedly.
type Supervisor interface {
	// Ensure starts the daemon if it is not running. It does not restart a
	// running daemon.
	Ensure(ctx context.Context) error

	// Restart stops the daemon if needed and starts it again, so it picks up
	// new configuration.
	Restart(ctx context.Context) error

	// Stop stops the daemon if this supervisor started it.
	Stop(ctx context.Context) error
}

// Config selects and configures a Supervisor.
type Config struct {
	// ExecPath is the daemon executable for process mode.
	ExecPath string
	// RestartService is the systemd unit restarted in service mode.
	RestartService string

	// ConfigPath is passed to the daemon with -config.
	ConfigPath string
	// Dir is the working directory of the daemon. Defaults to the directory
	// holding ConfigPath.
	Dir string
}

// New returns the Supervisor selected by config. Setting both ExecPath and
// RestartService is an error; setting neither selects process mode with
// DefaultExecutable.
func New(config Config) (Supervisor, error) {
	if config.ExecPath != "" && config.RestartService != "" {
		return nil, ErrConflictingModes
	}
	if config.RestartService != "" {
		return NewServiceSupervisor(config.RestartService), nil
	}
	if config.ExecPath == "" {
		config.ExecPath = DefaultExecutable
	}
	if config.Dir == "" {
		config.Dir = filepath.Dir(config.ConfigPath)
	}
	return NewProcessSupervisor(config.ExecPath, config.ConfigPath, config.Dir), nil
}
