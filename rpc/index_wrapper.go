package rpc

import (
	"context"

	"github.com/ramcloud/ramcloud"
	"github.com/ramcloud/ramcloud/directory"
	"github.com/ramcloud/ramcloud/internal/logging"
	"github.com/ramcloud/ramcloud/metrics"
	"github.com/ramcloud/ramcloud/status"
	"github.com/ramcloud/ramcloud/transport"
)

// NewIndexWrapper builds a Wrapper that routes through the Config Cache's
// LookupIndex and reacts to UNKNOWN_INDEXLET and transport errors by
// flushing the table's directory entries and retrying (spec.md §4.7,
// component C7). A nil session from LookupIndex — the index does not
// exist — cancels the RPC instead of retrying indefinitely, matching
// spec.md §5 scenario 6.
func NewIndexWrapper(name string, dispatcher transport.Dispatcher, cache *directory.Cache, tableId uint64, indexId uint8, key ramcloud.Key, opcode uint16, service uint8, request []byte, minHeaderLen int, log logging.Logger) *Wrapper {
	resolve := func(ctx context.Context) (transport.Session, error) {
		return cache.LookupIndex(ctx, tableId, indexId, key)
	}
	onStatus := func(resp []byte) (Outcome, error) {
		st := status.Status(resp[0])
		switch st {
		case status.OK:
			return OutcomeDone, nil
		case status.UnknownIndexlet:
			metrics.RPCRetries.WithLabelValues(name, "unknown_indexlet").Inc()
			log.Info("rpc: unknown indexlet, flushing and retrying",
				"rpc", name, "table_id", tableId, "index_id", indexId)
			cache.Flush(tableId)
			return OutcomeRetry, nil
		default:
			return OutcomeFatal, status.NewError(name, st)
		}
	}
	onTransErr := func(err error) (Outcome, error) {
		metrics.RPCRetries.WithLabelValues(name, "transport_error").Inc()
		cache.Flush(tableId)
		return OutcomeRetry, nil
	}
	return NewWrapper(name, dispatcher, opcode, service, request, minHeaderLen, resolve, onStatus, onTransErr)
}

// WaitIndex drives an index-routed Wrapper to completion, translating a
// CANCELED outcome (no indexlet covers the key) into (false, nil, nil)
// rather than an error, the calling convention spec.md §5 scenario 6
// expects of an index lookup against a dropped or never-created index.
func WaitIndex(ctx context.Context, w *Wrapper) (ok bool, response []byte, err error) {
	resp, err := w.Wait(ctx)
	if err == ErrCanceled {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	return true, resp, nil
}
