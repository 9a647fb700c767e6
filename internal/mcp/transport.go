package mcp

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// SessionState reports whether the language server session can serve
type SessionState interface {
	IsOpen() bool
}

// State is the lifecycle state of a Transport
type State int32

const (
	StateIdle State = iota
	StateServing
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateServing:
		return "serving"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Transport serves the MCP server over a pair of streams. It runs once
type Transport struct {
	stdio   *server.StdioServer
	session SessionState
	logger  zerolog.Logger

	state atomic.Int32

	mu       sync.Mutex
	cancel   context.CancelFunc
	fatalErr error
	drain    func()
}

// NewTransport creates a transport for srv. session is checked before
// serving starts
func NewTransport(srv *server.MCPServer, session SessionState, logger zerolog.Logger) *Transport {
	logger = logger.With().Str("component", "transport").Logger()

	stdio := server.NewStdioServer(srv)
	stdio.SetErrorLogger(log.New(logger, "", 0))

	return &Transport{
		stdio:   stdio,
		session: session,
		logger:  logger,
	}
}

// OnDrain sets the function Run calls after the loop stops, before it
// returns. It should block until in-flight calls have finished
func (t *Transport) OnDrain(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.drain = fn
}

// State returns the current lifecycle state
func (t *Transport) State() State {
	return State(t.state.Load())
}

func (t *Transport) setState(s State) {
	old := State(t.state.Swap(int32(s)))
	t.logger.Debug().Stringer("from", old).Stringer("to", s).Msg("state change")
}

// Run serves line-delimited MCP messages from in, writing responses to out,
// until in is exhausted, ctx is cancelled or Fail is called. End of input
// and cancellation of ctx are a graceful stop and return nil
func (t *Transport) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	if t.State() != StateIdle {
		return ErrTransportStopped
	}
	if !t.session.IsOpen() {
		return ErrSessionNotOpen
	}
	if !t.state.CompareAndSwap(int32(StateIdle), int32(StateServing)) {
		return ErrTransportStopped
	}
	t.logger.Debug().Stringer("from", StateIdle).Stringer("to", StateServing).Msg("state change")

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.mu.Lock()
	t.cancel = cancel
	if t.fatalErr != nil {
		cancel()
	}
	t.mu.Unlock()

	t.logger.Info().Msg("serving")
	err := t.stdio.Listen(loopCtx, in, out)

	t.setState(StateDraining)
	defer t.setState(StateStopped)

	t.mu.Lock()
	drain := t.drain
	t.mu.Unlock()
	if drain != nil {
		drain()
	}

	if fatal := t.fatal(); fatal != nil {
		t.logger.Error().Err(fatal).Msg("stopped on fatal error")
		return fatal
	}
	switch {
	case err == nil, errors.Is(err, io.EOF):
		t.logger.Info().Msg("input closed")
		return nil
	case ctx.Err() != nil:
		t.logger.Info().Msg("cancelled")
		return nil
	default:
		t.logger.Error().Err(err).Msg("transport failed")
		return err
	}
}

// Fail stops the loop and makes Run return err. Only the first error is kept
func (t *Transport) Fail(err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fatalErr == nil {
		t.fatalErr = err
	}
	if t.cancel != nil {
		t.cancel()
	}
}

func (t *Transport) fatal() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fatalErr
}
