package exec

import (
	"context"
	"os"
	osexec "os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/meshkit/meshkit/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultStopTimeout is how long a terminated daemon gets to exit before it
// is killed.
const DefaultStopTimeout = 10 * time.Second

// ProcessSupervisor runs the daemon as a child process and tracks its PID.
type ProcessSupervisor struct {
	path       string
	configPath string
	dir        string

	// StopTimeout bounds the wait between terminate and kill.
	StopTimeout time.Duration

	mu   sync.Mutex
	proc *process
}

type process struct {
	cmd      *osexec.Cmd
	done     chan struct{}
	stopping atomic.Bool
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// NewProcessSupervisor returns a supervisor running path -config configPath
// in dir.
func NewProcessSupervisor(path, configPath, dir string) *ProcessSupervisor {
	return &ProcessSupervisor{
		path:        path,
		configPath:  configPath,
		dir:         dir,
		StopTimeout: DefaultStopTimeout,
	}
}

// PID returns the PID of the running daemon, or 0.
func (s *ProcessSupervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil || s.proc.exited() {
		return 0
	}
	return s.proc.cmd.Process.Pid
}

// Ensure starts the daemon unless it is already running. A daemon that
// exited on its own is started again.
func (s *ProcessSupervisor) Ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc != nil && !s.proc.exited() {
		return nil
	}
	return s.start(ctx)
}

// Restart terminates the daemon, if running, and starts it again.
func (s *ProcessSupervisor) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stop(ctx); err != nil {
		return err
	}
	return s.start(ctx)
}

// Stop terminates the daemon. It waits StopTimeout for a clean exit, then
// kills it.
func (s *ProcessSupervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop(ctx)
}

func (s *ProcessSupervisor) start(ctx context.Context) error {
	if _, err := os.Stat(s.configPath); err != nil {
		if os.IsNotExist(err) {
			return ErrNoConfig
		}
		return err
	}
	path, err := osexec.LookPath(s.path)
	if err != nil {
		return errors.Wrapf(err, "daemon executable %s not found", s.path)
	}

	cmd := osexec.Command(path, "-config", s.configPath)
	cmd.Dir = s.dir
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start %s", path)
	}

	proc := &process{cmd: cmd, done: make(chan struct{})}
	logger := log.G(ctx).WithFields(logrus.Fields{
		"exec": path,
		"pid":  cmd.Process.Pid,
	})
	go func() {
		err := cmd.Wait()
		if ee, ok := err.(*osexec.ExitError); ok {
			err = &ExitError{Code: ee.ExitCode(), Cause: err}
		}
		close(proc.done)

		if proc.stopping.Load() {
			logger.Debug("daemon stopped")
		} else {
			logger.WithError(err).Warn("daemon exited")
		}
	}()

	s.proc = proc
	logger.Info("daemon started")
	return nil
}

func (s *ProcessSupervisor) stop(ctx context.Context) error {
	proc := s.proc
	if proc == nil || proc.exited() {
		return nil
	}
	proc.stopping.Store(true)

	if err := proc.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// the platform may not support SIGTERM
		proc.cmd.Process.Kill()
	}

	timer := time.NewTimer(s.StopTimeout)
	defer timer.Stop()
	select {
	case <-proc.done:
		return nil
	case <-timer.C:
		log.G(ctx).WithField("pid", proc.cmd.Process.Pid).Warn("daemon did not exit in time, killing it")
	}
	if err := proc.cmd.Process.Kill(); err != nil && !proc.exited() {
		return errors.Wrap(err, "failed to kill daemon")
	}
	<-proc.done
	return nil
}
