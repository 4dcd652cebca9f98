package sup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"vawter.tech/stopper"
)

// DefaultRequestTimeout bounds how long the server waits for a client to send
// its request and half-close. Connections are serviced one at a time, so a
// silent client holds up everyone queued behind it until this expires.
const DefaultRequestTimeout = 5 * time.Second

// Server connects a Transport to a Handler: it runs the transport's accept
// loop and services queued connections one at a time, in arrival order.
type Server struct {
	// ReadTimeout bounds reading one request
	ReadTimeout time.Duration

	// WriteTimeout bounds writing one response
	WriteTimeout time.Duration

	// Logger receives per-connection diagnostics
	Logger zerolog.Logger

	transport Transport
	handler   Handler
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithRequestTimeout sets how long to wait for a client's request
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.ReadTimeout = d
	}
}

// WithResponseTimeout sets how long to wait while writing a response
func WithResponseTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.WriteTimeout = d
	}
}

// WithServerLogger sets the server's logger
func WithServerLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.Logger = l
	}
}

// NewServer creates a Server that answers requests arriving on tp with h
func NewServer(tp Transport, h Handler, opts ...ServerOption) *Server {
	s := &Server{
		ReadTimeout:  DefaultRequestTimeout,
		WriteTimeout: DefaultWriteTimeout,
		Logger:       log.Logger,
		transport:    tp,
		handler:      h,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run binds the transport, starts its accept loop and services connections
// until ctx is done. A bind failure is returned before anything is started.
func (s *Server) Run(ctx context.Context) error {
	if l, ok := s.transport.(Listener); ok {
		if err := l.Listen(); err != nil {
			return err
		}
	}

	sctx := stopper.WithContext(ctx)

	sctx.Go(func(sctx *stopper.Context) error {
		return s.transport.Serve(sctx)
	})

	sctx.Go(func(sctx *stopper.Context) error {
		select {
		case <-sctx.Stopping():
		case <-sctx.Done():
		}
		_ = s.transport.Close()
		return nil
	})

	var runErr error
	for {
		conn, err := s.transport.Read(sctx)
		if err != nil {
			if ctx.Err() == nil && !sctx.IsStopping() {
				runErr = err
			}
			break
		}
		s.serveConn(sctx, conn)
	}

	sctx.Stop(shutdownGrace)
	if err := sctx.Wait(); err != nil && runErr == nil {
		runErr = err
	}

	s.dropQueued()
	return runErr
}

// dropQueued closes connections still queued after the accept loop stopped,
// so their clients see end of stream instead of waiting out their timeout.
func (s *Server) dropQueued() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	dropped := 0
	for {
		conn, err := s.transport.Read(ctx)
		if err != nil {
			break
		}
		_ = conn.Close()
		dropped++
	}
	if dropped > 0 {
		s.Logger.Warn().Int("connections", dropped).Msg("dropped queued connections on shutdown")
	}
}

// serveConn performs one request/response exchange and closes conn
func (s *Server) serveConn(ctx context.Context, conn Conn) {
	defer func() { _ = conn.Close() }()

	raw, err := readToEOF(conn, MaxRequestSize, s.ReadTimeout)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("reading request failed")
		return
	}

	size := int64(len(raw))
	if size == MaxRequestSize {
		extra, err := discardToEOF(conn)
		if err != nil {
			s.Logger.Warn().Err(err).Msg("reading oversized request failed")
			return
		}
		size += extra
	}

	req := DecodeRequest(raw)
	if req.Cmd == CommandUnknown {
		s.Logger.Warn().Int64("bytes", size).Msg("unrecognized request")
	}

	resp := s.dispatch(ctx, req)
	s.Logger.Debug().
		Stringer("command", req.Cmd).
		Uint32("pid", resp.PID).
		Str("message", resp.Message).
		Msg("command handled")

	if err := sendAndHalfClose(conn, resp.Encode(), s.WriteTimeout); err != nil {
		s.Logger.Warn().Err(err).Stringer("command", req.Cmd).Msg("writing response failed")
	}
}

// dispatch calls the handler, turning a panic into an error response
func (s *Server) dispatch(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.Error().Interface("panic", r).Stringer("command", req.Cmd).Msg("handler panicked")
			resp = ErrorResponse(fmt.Errorf("internal error handling %s", req.Cmd))
		}
	}()
	return s.handler.Handle(ctx, req)
}
