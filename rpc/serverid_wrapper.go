package rpc

import (
	"context"
	"time"

	"github.com/ramcloud/ramcloud/internal/logging"
	"github.com/ramcloud/ramcloud/metrics"
	"github.com/ramcloud/ramcloud/serverlist"
	"github.com/ramcloud/ramcloud/status"
	"github.com/ramcloud/ramcloud/transport"
)

// ErrServerNotUpError is returned when a server-id-routed RPC's target has
// been declared down by the coordinator: continuing to retry would spin
// forever against a server that will never come back (spec.md §4.7,
// component C8).
type ErrServerNotUpError struct {
	ServerId uint64
}

func (e *ErrServerNotUpError) Error() string {
	return status.NewError("serverid_rpc", status.ServerNotUp).Error()
}

// Locator resolves a server id to a service locator string, the narrow
// membership-directory dependency NewServerIdWrapper needs.
type Locator func(serverId uint64) (locator string, ok bool)

// Backoff computes how long to sleep before the (attempt+1)th retry.
type Backoff func(attempt int) time.Duration

// DefaultBackoff doubles from 1ms up to a 100ms ceiling, the same shape
// the teacher's repl.go retry loop uses for its resync backoff.
func DefaultBackoff(attempt int) time.Duration {
	d := time.Millisecond << uint(attempt)
	if d > 100*time.Millisecond || d <= 0 {
		d = 100 * time.Millisecond
	}
	return d
}

// NewServerIdWrapper builds a Wrapper that routes to a fixed serverId
// through a Locator, and on transport failure consults the ServerList: if
// the coordinator has since marked the server down, the RPC fails fatally
// rather than retrying against a server that will never answer; otherwise
// it backs off and retries, assuming the failure is transient (spec.md
// §4.7, component C8).
func NewServerIdWrapper(name string, dispatcher transport.Dispatcher, tm transport.TransportManager, locate Locator, servers serverlist.ServerList, serverId uint64, opcode uint16, service uint8, request []byte, minHeaderLen int, backoff Backoff, log logging.Logger) *Wrapper {
	if backoff == nil {
		backoff = DefaultBackoff
	}
	attempt := 0

	resolve := func(ctx context.Context) (transport.Session, error) {
		locator, ok := locate(serverId)
		if !ok {
			return nil, nil
		}
		return tm.GetSession(locator)
	}
	onStatus := func(resp []byte) (Outcome, error) {
		st := status.Status(resp[0])
		if st == status.OK {
			return OutcomeDone, nil
		}
		return OutcomeFatal, status.NewError(name, st)
	}
	onTransErr := func(err error) (Outcome, error) {
		if !servers.IsServerUp(serverId) {
			log.Warn("rpc: server declared down, failing rather than retrying",
				"rpc", name, "server_id", serverId)
			return OutcomeFatal, &ErrServerNotUpError{ServerId: serverId}
		}
		metrics.RPCRetries.WithLabelValues(name, "transport_error").Inc()
		time.Sleep(backoff(attempt))
		attempt++
		return OutcomeRetry, nil
	}

	w := NewWrapper(name, dispatcher, opcode, service, request, minHeaderLen, resolve, onStatus, onTransErr)
	return w
}
