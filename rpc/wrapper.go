// Package rpc implements the retryable RPC state machine (spec.md §4.6,
// component C6) as a single Wrapper type parameterized by two strategy
// objects — a TargetResolver and a StatusHandler — instead of the
// teacher-adjacent multi-level class hierarchy Design Note 9 calls out.
// NewIndexWrapper (C7) and NewServerIdWrapper (C8) are thin constructors that
// supply those two strategies plus a TransportErrorHandler.
package rpc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ramcloud/ramcloud/metrics"
	"github.com/ramcloud/ramcloud/transport"
)

// State is one node of the wrapper's state machine (spec.md §4.6).
type State int32

const (
	StateNotStarted State = iota
	StateInProgress
	StateFinished
	StateRetry
	StateCanceled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NOT_STARTED"
	case StateInProgress:
		return "IN_PROGRESS"
	case StateFinished:
		return "FINISHED"
	case StateRetry:
		return "RETRY"
	case StateCanceled:
		return "CANCELED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Outcome is what a StatusHandler or TransportErrorHandler decides to do
// with the current attempt.
type Outcome int

const (
	OutcomeDone Outcome = iota
	OutcomeRetry
	OutcomeFatal
)

var (
	// ErrCanceled is raised by Wait when the wrapper reached CANCELED —
	// the resolver found no target (spec.md §4.6, §7 tier 2).
	ErrCanceled = errors.New("ramcloud: rpc canceled")
	// ErrShortResponse is raised when a FINISHED response is shorter than
	// the operation's declared header length (spec.md §4.6 wait()).
	ErrShortResponse = errors.New("ramcloud: rpc: response shorter than expected header")
)

// TargetResolver resolves the session an attempt should be sent on. A nil
// session with a nil error means the target does not exist and the
// wrapper should transition straight to CANCELED without transmitting
// (spec.md §4.6 send()).
type TargetResolver func(ctx context.Context) (transport.Session, error)

// StatusHandler inspects a FINISHED response's status word and decides
// whether the RPC is done, should be retried, or has failed fatally
// (spec.md §4.6 checkStatus()).
type StatusHandler func(response []byte) (Outcome, error)

// TransportErrorHandler reacts to a transport-level send failure
// (spec.md §4.6 handleTransportError()). The returned error replaces the
// original transport error when the outcome is fatal, so a wrapper can
// surface a more specific cause (e.g. "server no longer a cluster
// member") than the raw send failure.
type TransportErrorHandler func(err error) (Outcome, error)

// Wrapper drives one RPC through NOT_STARTED -> IN_PROGRESS ->
// (FINISHED | RETRY | CANCELED | FAILED) (spec.md §4.6).
type Wrapper struct {
	Name         string
	Opcode       uint16
	Service      uint8
	Request      []byte
	MinHeaderLen int

	dispatcher transport.Dispatcher
	resolve    TargetResolver
	onStatus   StatusHandler
	onTransErr TransportErrorHandler

	mu       sync.Mutex
	state    State
	notifier *transport.Notifier
	response []byte
	err      error
	started  time.Time
}

func NewWrapper(name string, dispatcher transport.Dispatcher, opcode uint16, service uint8, request []byte, minHeaderLen int, resolve TargetResolver, onStatus StatusHandler, onTransErr TransportErrorHandler) *Wrapper {
	return &Wrapper{
		Name:         name,
		Opcode:       opcode,
		Service:      service,
		Request:      request,
		MinHeaderLen: minHeaderLen,
		dispatcher:   dispatcher,
		resolve:      resolve,
		onStatus:     onStatus,
		onTransErr:   onTransErr,
		state:        StateNotStarted,
	}
}

func (w *Wrapper) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Send resolves a session and, on success, dispatches the request and
// arms a fresh notifier; on failure to resolve a target it transitions
// straight to CANCELED without transmitting. After Send returns, either
// state is IN_PROGRESS with a notifier pending, or state is CANCELED
// (spec.md §4.6 invariant).
func (w *Wrapper) Send(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sendLocked(ctx)
}

func (w *Wrapper) sendLocked(ctx context.Context) {
	if w.started.IsZero() {
		w.started = time.Now()
	}
	session, err := w.resolve(ctx)
	if err != nil {
		w.state = StateFailed
		w.err = err
		return
	}
	if session == nil {
		w.state = StateCanceled
		return
	}
	n := transport.NewNotifier()
	w.notifier = n
	w.state = StateInProgress
	session.Send(ctx, w.Opcode, w.Service, w.Request, n)
}

// Wait drives the dispatcher until the wrapper reaches a terminal state,
// retrying internally on RETRY-classified outcomes, then returns the
// response header on FINISHED or a typed error otherwise (spec.md §4.6
// wait()).
func (w *Wrapper) Wait(ctx context.Context) ([]byte, error) {
	if w.State() == StateNotStarted {
		w.Send(ctx)
	}
	for {
		switch w.State() {
		case StateCanceled:
			return nil, ErrCanceled
		case StateFailed:
			w.mu.Lock()
			err := w.err
			w.mu.Unlock()
			return nil, err
		case StateFinished:
			w.mu.Lock()
			resp := w.response
			w.mu.Unlock()
			return resp, nil
		}

		w.mu.Lock()
		n := w.notifier
		w.mu.Unlock()

		resp, sendErr := n.Wait(ctx, w.dispatcher)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		w.resolveAttempt(ctx, resp, sendErr)
	}
}

func (w *Wrapper) resolveAttempt(ctx context.Context, resp []byte, sendErr error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if sendErr != nil {
		outcome, ferr := w.onTransErr(sendErr)
		if ferr == nil {
			ferr = sendErr
		}
		w.applyOutcomeLocked(ctx, outcome, ferr)
		return
	}
	if len(resp) < w.MinHeaderLen {
		w.state = StateFailed
		w.err = ErrShortResponse
		return
	}
	outcome, statusErr := w.onStatus(resp)
	if outcome == OutcomeDone {
		w.response = resp
		w.state = StateFinished
		metrics.RPCDuration.WithLabelValues(w.Name).Observe(time.Since(w.started).Seconds())
		return
	}
	w.applyOutcomeLocked(ctx, outcome, statusErr)
}

func (w *Wrapper) applyOutcomeLocked(ctx context.Context, outcome Outcome, err error) {
	switch outcome {
	case OutcomeRetry:
		w.state = StateRetry
		w.sendLocked(ctx)
	default:
		w.state = StateFailed
		w.err = err
	}
}

// Cancel abandons an outstanding RPC. The caller-facing analogue of
// spec.md §5's "an outstanding RPC may be cancelled by the caller".
func (w *Wrapper) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateInProgress || w.state == StateNotStarted {
		w.state = StateCanceled
	}
}
