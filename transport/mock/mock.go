// Package mock implements an in-process transport used by tests and the
// ramcloudctl CLI: no sockets, no wire format, just a routing table from
// service locator string to a registered Handler and a single job queue
// that stands in for the dispatcher's cooperative event loop. Grounded on
// the teacher's network.Net connection map (an xsync.MapOf of live peers)
// and its "mock:" locator convention from spec.md §6.
package mock

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ramcloud/ramcloud/transport"
)

// ErrServerDown simulates a dead session: the target server was reachable
// when the session was cached but no longer accepts traffic.
var ErrServerDown = errors.New("ramcloud: mock transport: server down")

// Handler processes one request on behalf of a registered server and
// returns the raw response bytes (the caller is responsible for decoding
// the status header from the front of the response).
type Handler func(ctx context.Context, opcode uint16, service uint8, req []byte) ([]byte, error)

type server struct {
	locator string
	handler Handler
	alive   bool
}

// Network is both a TransportManager and a Dispatcher: it resolves
// "mock:<name>" locators to registered handlers and pumps queued
// completions one at a time, the way a real dispatcher pumps socket I/O.
type Network struct {
	servers *xsync.MapOf[string, *server]
	queue   chan func()
}

func NewNetwork() *Network {
	return &Network{
		servers: xsync.NewMapOf[string, *server](),
		queue:   make(chan func(), 4096),
	}
}

// Locator builds the "mock:" service locator for a registered server name,
// matching the unit-test transport convention in spec.md §6.
func Locator(name string) string {
	return fmt.Sprintf("mock:%s", name)
}

// RegisterServer installs a handler under "mock:<name>" and marks it alive.
func (n *Network) RegisterServer(name string, h Handler) {
	n.servers.Store(Locator(name), &server{locator: Locator(name), handler: h, alive: true})
}

// SetAlive flips a registered server's liveness, simulating a crash or a
// migration target coming back up. A dead server fails every outstanding
// and future Send with ErrServerDown.
func (n *Network) SetAlive(name string, alive bool) {
	if s, ok := n.servers.Load(Locator(name)); ok {
		s.alive = alive
	}
}

// GetSession implements transport.TransportManager. The returned session
// starts with a reference count of one, owned by the caller.
func (n *Network) GetSession(locator string) (transport.Session, error) {
	s, ok := n.servers.Load(locator)
	if !ok {
		return nil, transport.ErrNoRoute
	}
	sess := &session{id: uuid.NewString(), server: s, net: n}
	sess.refs.Store(1)
	return sess, nil
}

// Pump implements transport.Dispatcher: it runs at most one queued
// completion job, waiting briefly for one to arrive so Notifier.Wait's
// loop doesn't busy-spin.
func (n *Network) Pump(ctx context.Context) {
	select {
	case job := <-n.queue:
		job()
	case <-ctx.Done():
	case <-time.After(5 * time.Millisecond):
	}
}

type session struct {
	id     string
	server *server
	net    *Network
	refs   atomic.Int32
}

func (s *session) ServiceLocator() string { return s.server.locator }

// Retain and Release implement transport.Session's reference counting.
// Nothing is actually torn down when refs reaches zero in this in-process
// mock; a real transport would close the underlying connection here.
func (s *session) Retain()  { s.refs.Add(1) }
func (s *session) Release() { s.refs.Add(-1) }

func (s *session) Send(ctx context.Context, opcode uint16, service uint8, req []byte, notifier *transport.Notifier) {
	srv := s.server
	job := func() {
		if !srv.alive {
			notifier.Fail(ErrServerDown)
			return
		}
		resp, err := srv.handler(ctx, opcode, service, req)
		if err != nil {
			notifier.Fail(err)
			return
		}
		notifier.Complete(resp)
	}
	select {
	case s.net.queue <- job:
	case <-ctx.Done():
		notifier.Fail(ctx.Err())
	}
}
