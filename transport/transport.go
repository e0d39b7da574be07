// Package transport defines the narrow contract the RPC wrapper state
// machine needs from the network layer: an opaque, reference-counted
// Session, a single-threaded cooperative Dispatcher, and a Notifier the
// transport uses to report completion. The raw network transport itself is
// an external collaborator (spec.md §1, §6); this package and its mock
// subpackage stand in for it.
package transport

import (
	"context"
	"errors"
)

// ErrNoRoute is returned by a TransportManager when a service locator
// cannot be resolved to a live server.
var ErrNoRoute = errors.New("ramcloud: transport: no route to service locator")

// Session is an opaque, reference-counted handle to a live connection to
// one server (spec.md §3, §9 Design Note "Sessions are reference-counted
// because the same connection can back many concurrent RPCs"). Sessions
// are values; invalidation is observed only as a transport error on
// Send, never synchronously.
type Session interface {
	ServiceLocator() string
	// Send transmits req asynchronously and arranges for exactly one of
	// notifier.Complete or notifier.Fail to be invoked once the operation
	// concludes, on the dispatcher's pump goroutine (spec.md §4.6, §5).
	Send(ctx context.Context, opcode uint16, service uint8, req []byte, notifier *Notifier)
	// Retain and Release adjust the session's reference count. The Config
	// Cache keeps the reference GetSession hands it while the session is
	// cached and releases it when the session's LRU entry is evicted
	// (capacity pressure, Flush, FlushSession); a wrapper resolving a session
	// for a single Send does not need to hold a reference of its own,
	// since sessions are never freed synchronously mid-attempt.
	Retain()
	Release()
}

// TransportManager resolves service locator strings into sessions.
type TransportManager interface {
	GetSession(locator string) (Session, error)
}

// Notifier is a single-use completion slot handed to a Session.Send call.
type Notifier struct {
	done chan struct{}
	resp []byte
	err  error
}

func NewNotifier() *Notifier {
	return &Notifier{done: make(chan struct{})}
}

// Complete records a successful response. Calling it more than once, or
// after Fail, panics: exactly one of completed/failed must fire per send
// (spec.md §4.6 invariant).
func (n *Notifier) Complete(resp []byte) {
	n.resp = resp
	close(n.done)
}

// Fail records a transport-level failure (dead session, timeout, ...).
func (n *Notifier) Fail(err error) {
	n.err = err
	close(n.done)
}

// Dispatcher drives the transport's cooperative event loop. It must be
// pumped by the calling thread while an RPC is outstanding; the transport's
// queued completion work (which resolves Notifiers) runs synchronously
// inside Pump and must not block (spec.md §5). The wrapper reacts to a
// resolved Notifier afterwards, in its own Wait loop.
type Dispatcher interface {
	Pump(ctx context.Context)
}

// Wait blocks until the notifier resolves or ctx is done, pumping the
// dispatcher in between. This is the suspension point spec.md §5 calls
// out: Wrapper.Wait drives this loop on the caller's behalf.
func (n *Notifier) Wait(ctx context.Context, d Dispatcher) ([]byte, error) {
	for {
		select {
		case <-n.done:
			return n.resp, n.err
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			d.Pump(ctx)
		}
	}
}
