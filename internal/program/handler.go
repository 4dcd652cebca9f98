package program

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/axondata/go-sup"
	"github.com/axondata/go-sup/internal/config"
)

// ReloadFunc returns a freshly loaded program configuration
type ReloadFunc func() (config.Program, error)

// Handler answers control requests by driving a Program. It implements sup.Handler.
type Handler struct {
	program   *Program
	reload    ReloadFunc
	logger    zerolog.Logger
	daemonPID uint32

	exitOnce sync.Once
	exited   chan struct{}
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithReloadFunc sets where the reload command reads configuration from.
// Without it, reload re-applies the current configuration.
func WithReloadFunc(fn ReloadFunc) HandlerOption {
	return func(h *Handler) {
		h.reload = fn
	}
}

// WithHandlerLogger sets the handler's logger
func WithHandlerLogger(l zerolog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = l
	}
}

// NewHandler creates a Handler for p
func NewHandler(p *Program, opts ...HandlerOption) *Handler {
	h := &Handler{
		program:   p,
		logger:    log.Logger,
		daemonPID: uint32(os.Getpid()),
		exited:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Exited is closed once an exit command has been answered
func (h *Handler) Exited() <-chan struct{} {
	return h.exited
}

// Handle performs req against the program. Failures are reported in the
// response message without a PID.
func (h *Handler) Handle(ctx context.Context, req sup.Request) sup.Response {
	name := h.program.Name()

	switch req.Cmd {
	case sup.CommandStart:
		pid, err := h.program.Start()
		if err != nil {
			return sup.ErrorResponse(err)
		}
		return sup.NewResponse(name+" started", uint32(pid))

	case sup.CommandStop:
		if err := h.program.Stop(ctx); err != nil {
			return sup.ErrorResponse(err)
		}
		return sup.NewResponse(name+" stopped", sup.NonePID)

	case sup.CommandRestart:
		pid, err := h.program.Restart(ctx)
		if err != nil {
			return sup.ErrorResponse(err)
		}
		return sup.NewResponse(name+" restarted", uint32(pid))

	case sup.CommandKill:
		if err := h.program.Kill(ctx); err != nil {
			return sup.ErrorResponse(err)
		}
		return sup.NewResponse(name+" killed", sup.NonePID)

	case sup.CommandReload:
		return h.handleReload()

	case sup.CommandStatus:
		st := h.program.Status()
		return sup.NewResponse(st.String(), uint32(st.PID))

	case sup.CommandExit:
		h.exitOnce.Do(func() {
			h.logger.Info().Msg("exit requested")
			close(h.exited)
		})
		return sup.NewResponse("sup exiting", h.daemonPID)

	default:
		return sup.ErrorResponse(sup.ErrUnknownCommand)
	}
}

func (h *Handler) handleReload() sup.Response {
	cfg := h.program.Config()
	if h.reload != nil {
		fresh, err := h.reload()
		if err != nil {
			h.logger.Warn().Err(err).Msg("reload failed, keeping current configuration")
			return sup.ErrorResponse(fmt.Errorf("reloading configuration: %w", err))
		}
		cfg = fresh
	}

	pid, err := h.program.Reload(cfg)
	if err != nil {
		return sup.ErrorResponse(err)
	}
	if pid == 0 {
		return sup.NewResponse(cfg.Name+" configuration reloaded", sup.NonePID)
	}
	return sup.NewResponse(cfg.Name+" configuration reloaded and signalled", uint32(pid))
}
