package corella

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"i4.energy/across/corella/at"
)

// readChunkSize is the buffer handed to a single Transport.Read.
const readChunkSize = 256

// Module is a Corella radio module attached to the host. It performs one
// request/response exchange at a time: exchanges are serialized, never
// pipelined, and never retried.
type Module struct {
	mu sync.Mutex

	// transport provides the physical connection to the module (serial, WebSocket, etc.)
	transport Transport
	// config contains the module configuration settings
	config Config
	// closed indicates if the module has been shut down
	closed bool
	// state is updated after every exchange
	state ConnectionState
	logger *slog.Logger
}

// ConnectionState describes the connection as seen by the last exchange.
type ConnectionState struct {
	// Open is false after a timeout or transport fault until Open is called.
	Open bool
	// LastExchangeSucceeded is true when the last exchange returned a value
	// or a success status.
	LastExchangeSucceeded bool
}

// New creates a new Module with the given configuration and opens the
// connection through the configured Dialer.
func New(ctx context.Context, config Config) (*Module, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	m := &Module{
		config: config,
		logger: config.logger,
	}
	if err := m.open(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Open re-establishes the connection after a timeout or transport fault.
// The previous transport is closed and a new one dialed. Open on a
// connection that is already open does nothing.
func (m *Module) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrAlreadyClosed
	}
	if m.state.Open {
		m.logger.Warn("Already connected")
		return nil
	}
	return m.open(ctx)
}

func (m *Module) open(ctx context.Context) error {
	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			m.logger.Warn("Failed to close previous transport", "error", err)
		}
		m.transport = nil
	}

	transport, err := m.config.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("dial module: %w", err)
	}
	if transport == nil {
		return ErrNotInitialized
	}

	if err := transport.SetReadTimeout(m.config.readTimeout); err != nil {
		transport.Close()
		return fmt.Errorf("set read timeout: %w", err)
	}

	m.transport = transport
	m.state = ConnectionState{Open: true}
	m.config.metrics.setConnected(true)
	m.logger.Info("Connected", "dialer", m.config.dialer)
	return nil
}

// Close releases the transport. After Close the Module cannot be reused.
func (m *Module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrAlreadyClosed
	}

	m.closed = true
	m.state.Open = false
	m.config.metrics.setConnected(false)

	if m.transport != nil {
		return m.transport.Close()
	}

	return nil
}

// Connected reports whether the connection is open. It turns false after
// a timeout or transport fault.
func (m *Module) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Open
}

// State returns a snapshot of the connection state.
func (m *Module) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// exchange sends cmd and parses the module's answer, which must be of kind
// want. Argument errors are returned before the transport is touched and
// leave the state alone.
func (m *Module) exchange(ctx context.Context, cmd at.Command, want at.ResultKind) (at.Result, error) {
	wire, err := cmd.Encode()
	if err != nil {
		return at.Result{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return at.Result{}, ErrAlreadyClosed
	}
	if m.transport == nil {
		return at.Result{}, ErrNotInitialized
	}
	if !m.state.Open {
		return at.Result{}, ErrNotConnected
	}

	// Apply per-exchange timeout if context has none
	if _, ok := ctx.Deadline(); !ok && m.config.atTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.atTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := m.roundTrip(ctx, cmd, wire, want)
	m.config.metrics.observe(cmd.Kind, outcomeOf(res, err), time.Since(start))
	return res, err
}

func (m *Module) roundTrip(ctx context.Context, cmd at.Command, wire []byte, want at.ResultKind) (at.Result, error) {
	if r, ok := m.transport.(inputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			return at.Result{}, m.fail(cmd, fmt.Errorf("%w: reset input: %w", ErrTransport, err))
		}
	}

	m.logger.Debug("Requesting", "command", cmd.String())
	if _, err := m.transport.Write(wire); err != nil {
		return at.Result{}, m.fail(cmd, fmt.Errorf("%w: write command %q: %w", ErrTransport, cmd.String(), err))
	}

	raw, err := m.readResponse(ctx)
	if err != nil {
		return at.Result{}, m.fail(cmd, err)
	}

	lines := at.Lines(raw)
	m.logger.Debug("Response received", "command", cmd.String(), "response", lines)

	res, err := at.Parse(lines, cmd.String())
	if err != nil {
		m.state.LastExchangeSucceeded = false
		m.logger.Warn("Unparseable response", "command", cmd.String(), "response", lines, "error", err)
		return at.Result{}, fmt.Errorf("%s: %w", cmd.Kind, err)
	}
	if res.Kind != want {
		m.state.LastExchangeSucceeded = false
		err := unexpected(cmd, res)
		m.logger.Warn("Unexpected response", "command", cmd.String(), "response", lines, "error", err)
		return at.Result{}, err
	}

	m.state.LastExchangeSucceeded = res.Succeeded()
	return res, nil
}

// readResponse collects bytes until a final line arrives, or until a read
// returns nothing after data was received. A read that returns nothing
// before any data is a timeout.
func (m *Module) readResponse(ctx context.Context) ([]byte, error) {
	var raw []byte
	buf := make([]byte, readChunkSize)

	for {
		select {
		case <-ctx.Done():
			if len(raw) > 0 {
				return raw, nil
			}
			return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		default:
		}

		n, err := m.transport.Read(buf)
		raw = append(raw, buf[:n]...)
		if err != nil {
			return nil, fmt.Errorf("%w: read response: %w", ErrTransport, err)
		}

		if n == 0 {
			if len(raw) == 0 {
				return nil, fmt.Errorf("%w: no response within %s", ErrTimeout, m.config.readTimeout)
			}
			return raw, nil
		}

		if at.Terminated(raw) {
			return raw, nil
		}
	}
}

// fail marks the connection closed after a communication failure.
func (m *Module) fail(cmd at.Command, err error) error {
	m.state = ConnectionState{}
	m.config.metrics.setConnected(false)
	m.logger.Warn("Exchange failed", "command", cmd.String(), "error", err)
	return err
}
