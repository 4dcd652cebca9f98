package sup

import (
	"context"
	"sync"
	"time"
)

// Manager sends one command to several daemons concurrently.
// It provides bulk operations with configurable concurrency and timeouts.
type Manager struct {
	// Concurrency is the maximum number of concurrent exchanges
	Concurrency int
	// Timeout is the per-exchange timeout
	Timeout time.Duration
	// ClientOptions are applied to the Client created for each socket
	ClientOptions []Option
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithConcurrency sets the maximum number of concurrent exchanges
func WithConcurrency(n int) ManagerOption {
	return func(m *Manager) {
		m.Concurrency = n
	}
}

// WithTimeout sets the per-exchange timeout
func WithTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		m.Timeout = d
	}
}

// WithClientOptions sets the options used for every per-socket Client
func WithClientOptions(opts ...Option) ManagerOption {
	return func(m *Manager) {
		m.ClientOptions = opts
	}
}

// NewManager creates a new Manager with default settings
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		Concurrency: 10,
		Timeout:     DefaultReadTimeout,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.Concurrency < 1 {
		m.Concurrency = 1
	}

	return m
}

// Send delivers cmd to every socket and collects the responses by socket path.
// Sockets that fail are missing from the map and reported in the returned MultiError.
func (m *Manager) Send(ctx context.Context, cmd Command, sockets ...string) (map[string]Response, error) {
	results := make(map[string]Response, len(sockets))
	if len(sockets) == 0 {
		return results, nil
	}

	// Semaphore for concurrency control
	sem := make(chan struct{}, m.Concurrency)

	var wg sync.WaitGroup
	var mu sync.Mutex
	merr := &MultiError{}

	for _, socket := range sockets {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				merr.Add(&OpError{Op: OpSend, Path: path, Err: ctx.Err()})
				mu.Unlock()
				return
			}

			client, err := NewClient(path, m.ClientOptions...)
			if err != nil {
				mu.Lock()
				merr.Add(&OpError{Op: OpSend, Path: path, Err: err})
				mu.Unlock()
				return
			}

			opCtx := ctx
			if m.Timeout > 0 {
				var cancel context.CancelFunc
				opCtx, cancel = context.WithTimeout(ctx, m.Timeout)
				defer cancel()
			}

			resp, err := client.Send(opCtx, cmd)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				merr.Add(err)
				return
			}
			results[path] = resp
		}(socket)
	}

	wg.Wait()

	return results, merr.Err()
}
