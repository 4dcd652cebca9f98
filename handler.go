package sup

import "context"

// Handler turns a decoded Request into a Response.
//
// Implementations must be total: failures of the process-lifecycle manager are
// reported as a Response with a descriptive message and no PID, and
// CommandUnknown is answered with an error instead of being acted on.
type Handler interface {
	Handle(ctx context.Context, req Request) Response
}

// HandlerFunc adapts an ordinary function to the Handler interface
type HandlerFunc func(ctx context.Context, req Request) Response

// Handle calls f(ctx, req)
func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// RejectUnknown wraps h so that CommandUnknown is answered with
// ErrUnknownCommand and never reaches h.
func RejectUnknown(h Handler) Handler {
	return HandlerFunc(func(ctx context.Context, req Request) Response {
		if req.Cmd == CommandUnknown {
			return ErrorResponse(ErrUnknownCommand)
		}
		return h.Handle(ctx, req)
	})
}
