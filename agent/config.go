package agent

import (
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/meshkit/meshkit/agent/exec"
)

const (
	// DefaultOutputDir is where the daemon configuration is written.
	DefaultOutputDir = "/etc/nebula"
	// DefaultInterval is the polling interval.
	DefaultInterval = 60 * time.Second
)

// Config provides values for an Agent.
type Config struct {
	// Client talks to the manager's device API.
	Client *Client

	// TokenPath is the file holding the device token.
	TokenPath string

	// OutputDir receives config.yml, ca.crt, host.crt and host.key.
	OutputDir string

	// Interval between two reconciliations.
	Interval time.Duration

	// Supervisor keeps the overlay daemon running.
	Supervisor exec.Supervisor

	Clock clock.Clock
}

func (c *Config) validate() error {
	if c.Client == nil {
		return fmt.Errorf("config: Client required")
	}
	if c.TokenPath == "" {
		return fmt.Errorf("config: TokenPath required")
	}
	if c.Supervisor == nil {
		return fmt.Errorf("config: Supervisor required")
	}
	if c.Interval < 0 {
		return fmt.Errorf("config: Interval must not be negative")
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.Clock == nil {
		c.Clock = clock.NewClock()
	}
	return nil
}
