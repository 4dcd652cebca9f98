// Package program supervises the single program configured for supd: it
// spawns it in its own process group, signals and reaps it, and reports its
// status. There is no restart policy; a program that exits stays down until
// it is started again.
package program

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/axondata/go-sup/internal/config"
	"github.com/axondata/go-sup/internal/unix"
)

// Common errors returned by Program operations
var (
	// ErrAlreadyRunning indicates Start was called while the program runs
	ErrAlreadyRunning = errors.New("program already running")

	// ErrNotRunning indicates a signal operation was attempted with no process
	ErrNotRunning = errors.New("program not running")
)

// Status is a snapshot of the program's state
type Status struct {
	// Name is the configured program name
	Name string
	// Running reports whether a process is currently tracked
	Running bool
	// PID is the tracked process id, zero when not running
	PID int
	// StartedAt is when the tracked process was started
	StartedAt time.Time
	// Exited reports whether any process has exited since the daemon started
	Exited bool
	// ExitedAt is when the last process exited
	ExitedAt time.Time
	// ExitErr is the result of the last process's Wait, nil for a clean exit
	ExitErr error
}

// String describes the status in one line
func (s Status) String() string {
	switch {
	case s.Running:
		return fmt.Sprintf("%s is running (uptime %s)", s.Name, time.Since(s.StartedAt).Round(time.Second))
	case s.Exited && s.ExitErr != nil:
		return fmt.Sprintf("%s is not running (last exit: %v)", s.Name, s.ExitErr)
	case s.Exited:
		return fmt.Sprintf("%s is not running (last exit: clean)", s.Name)
	default:
		return fmt.Sprintf("%s is not running", s.Name)
	}
}

// process is one spawned instance of the program
type process struct {
	cmd     *exec.Cmd
	pid     int
	started time.Time
	done    chan struct{}
}

// Program controls one configured program
type Program struct {
	mu       sync.Mutex
	cfg      config.Program
	base     zerolog.Logger
	logger   zerolog.Logger
	current  *process
	exited   bool
	exitedAt time.Time
	exitErr  error
}

// New creates a Program for cfg. Nothing is started.
func New(cfg config.Program, logger zerolog.Logger) *Program {
	return &Program{
		cfg:    cfg,
		base:   logger,
		logger: logger.With().Str("program", cfg.Name).Logger(),
	}
}

// Name returns the configured program name
func (p *Program) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Name
}

// Config returns the configuration the next Start will use
func (p *Program) Config() config.Program {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Start spawns the program in a new process group and returns its PID
func (p *Program) Start() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		return p.current.pid, fmt.Errorf("%s: %w", p.cfg.Name, ErrAlreadyRunning)
	}

	cmd := exec.Command(p.cfg.Command, p.cfg.Args...)
	cmd.Dir = p.cfg.Directory
	cmd.Env = append(os.Environ(), p.cfg.Environ()...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = unix.ProcAttr()

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", p.cfg.Name, err)
	}

	proc := &process{
		cmd:     cmd,
		pid:     cmd.Process.Pid,
		started: time.Now(),
		done:    make(chan struct{}),
	}
	p.current = proc
	go p.reap(proc)

	p.logger.Info().Int("pid", proc.pid).Msg("program started")
	return proc.pid, nil
}

// reap waits for proc to exit and records the result
func (p *Program) reap(proc *process) {
	err := proc.cmd.Wait()

	p.mu.Lock()
	if p.current == proc {
		p.current = nil
	}
	p.exited = true
	p.exitedAt = time.Now()
	p.exitErr = err
	logger := p.logger
	p.mu.Unlock()

	close(proc.done)

	evt := logger.Info()
	if err != nil {
		evt = logger.Warn().Err(err)
	}
	evt.Int("pid", proc.pid).Msg("program exited")
}

// Stop sends the stop signal to the program's process group and waits up to
// the stop timeout before killing it.
func (p *Program) Stop(ctx context.Context) error {
	p.mu.Lock()
	proc := p.current
	name := p.cfg.Name
	sig := p.signal(p.cfg.StopSignal, syscall.SIGTERM)
	timeout := p.cfg.StopTimeout
	logger := p.logger
	p.mu.Unlock()

	if proc == nil {
		return fmt.Errorf("%s: %w", name, ErrNotRunning)
	}

	if err := unix.SignalGroup(proc.pid, sig); err != nil {
		return fmt.Errorf("stopping %s: %w", name, err)
	}

	if timeout <= 0 {
		timeout = config.DefaultStopTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-proc.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		logger.Warn().Int("pid", proc.pid).Dur("timeout", timeout).Msg("program ignored stop signal, killing")
	}

	return p.kill(ctx, proc)
}

// Kill sends SIGKILL to the program and every process in its group
func (p *Program) Kill(ctx context.Context) error {
	p.mu.Lock()
	proc := p.current
	name := p.cfg.Name
	p.mu.Unlock()

	if proc == nil {
		return fmt.Errorf("%s: %w", name, ErrNotRunning)
	}
	return p.kill(ctx, proc)
}

func (p *Program) kill(ctx context.Context, proc *process) error {
	if err := unix.SignalGroup(proc.pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("killing %s: %w", p.Name(), err)
	}

	select {
	case <-proc.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Restart stops the program if it is running and starts it again
func (p *Program) Restart(ctx context.Context) (int, error) {
	if err := p.Stop(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
		return 0, err
	}
	return p.Start()
}

// Reload replaces the configuration used by the next Start and, if the
// program is running, sends it the reload signal. It returns the PID that
// was signalled, or zero.
func (p *Program) Reload(cfg config.Program) (int, error) {
	p.mu.Lock()
	p.cfg = cfg
	p.logger = p.base.With().Str("program", cfg.Name).Logger()
	proc := p.current
	sig := p.signal(cfg.ReloadSignal, syscall.SIGHUP)
	p.mu.Unlock()

	if proc == nil {
		return 0, nil
	}
	if err := unix.SignalGroup(proc.pid, sig); err != nil {
		return 0, fmt.Errorf("reloading %s: %w", cfg.Name, err)
	}
	return proc.pid, nil
}

// Status returns a snapshot of the program's state
func (p *Program) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		Name:     p.cfg.Name,
		Exited:   p.exited,
		ExitedAt: p.exitedAt,
		ExitErr:  p.exitErr,
	}
	if p.current != nil {
		st.Running = true
		st.PID = p.current.pid
		st.StartedAt = p.current.started
	}
	return st
}

// signal parses name, falling back to def. Config validation has already
// rejected bad names, so the fallback only covers a hand-built config.
func (p *Program) signal(name string, def syscall.Signal) syscall.Signal {
	sig, err := unix.ParseSignal(name)
	if err != nil {
		return def
	}
	return sig
}
