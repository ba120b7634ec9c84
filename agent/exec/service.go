package exec

import (
	"context"
	osexec "os/exec"
	"strings"
	"time"

	"github.com/meshkit/meshkit/log"
	"github.com/pkg/errors"
)

// DefaultServiceTimeout bounds a service manager call.
const DefaultServiceTimeout = 30 * time.Second

// ServiceSupervisor restarts a systemd unit. The unit's lifecycle belongs to
// the service manager, so Ensure and Stop do nothing.
type ServiceSupervisor struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewServiceSupervisor returns a supervisor for the unit name.
func NewServiceSupervisor(name string) *ServiceSupervisor {
	return &ServiceSupervisor{
		name:    name,
		timeout: DefaultServiceTimeout,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return osexec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// Ensure is a no-op.
func (s *ServiceSupervisor) Ensure(ctx context.Context) error {
	return nil
}

// Restart runs systemctl restart on the unit.
func (s *ServiceSupervisor) Restart(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.run(ctx, "systemctl", "restart", s.name)
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return errors.Wrapf(err, "systemctl restart %s: %s", s.name, msg)
		}
		return errors.Wrapf(err, "systemctl restart %s", s.name)
	}
	log.G(ctx).WithField("service", s.name).Info("service restarted")
	return nil
}

// Stop is a no-op.
func (s *ServiceSupervisor) Stop(ctx context.Context) error {
	return nil
}
