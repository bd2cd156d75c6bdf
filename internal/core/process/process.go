package process

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// Command describes a child process to launch.
type Command struct {
	Name string
	Args []string
	Dir  string
}

// Handle is a running child process. Stdout and Stderr must be drained
// before calling Wait.
type Handle interface {
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until exit and returns the exit code. A non-nil error
	// means the exit status could not be determined.
	Wait() (int, error)
	// Stop asks the process to exit and kills it after a grace period.
	// It returns immediately and is safe to call more than once.
	Stop()
	PID() int
}

// Spawner starts child processes.
type Spawner interface {
	Spawn(cmd Command) (Handle, error)
}

const defaultStopGrace = 5 * time.Second

// ExecSpawner launches real OS processes.
type ExecSpawner struct {
	StopGrace time.Duration
}

func NewExecSpawner(stopGrace time.Duration) *ExecSpawner {
	if stopGrace <= 0 {
		stopGrace = defaultStopGrace
	}
	return &ExecSpawner{StopGrace: stopGrace}
}

func (s *ExecSpawner) Spawn(c Command) (Handle, error) {
	cmd := exec.Command(c.Name, c.Args...)
	cmd.Dir = c.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	log.Debug().Str("bin", c.Name).Int("pid", cmd.Process.Pid).Msg("process started")

	return &execHandle{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		grace:  s.StopGrace,
		done:   make(chan struct{}),
	}, nil
}

type execHandle struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr io.Reader
	grace  time.Duration

	done     chan struct{}
	stopOnce sync.Once
}

func (h *execHandle) Stdout() io.Reader { return h.stdout }
func (h *execHandle) Stderr() io.Reader { return h.stderr }
func (h *execHandle) PID() int          { return h.cmd.Process.Pid }

func (h *execHandle) Wait() (int, error) {
	err := h.cmd.Wait()
	close(h.done)
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func (h *execHandle) Stop() {
	h.stopOnce.Do(func() {
		go h.stop()
	})
}

func (h *execHandle) stop() {
	log.Debug().Int("pid", h.PID()).Msg("stopping process")

	// SIGTERM is unsupported on Windows; fall straight through to Kill.
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = h.cmd.Process.Kill()
		return
	}

	select {
	case <-h.done:
	case <-time.After(h.grace):
		_ = h.cmd.Process.Kill()
	}
}
