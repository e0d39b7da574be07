package rpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramcloud/ramcloud/status"
	"github.com/ramcloud/ramcloud/transport"
	"github.com/ramcloud/ramcloud/transport/mock"
)

func TestWrapper_FinishesOnOKStatus(t *testing.T) {
	net := mock.NewNetwork()
	net.RegisterServer("master-a", func(ctx context.Context, opcode uint16, service uint8, req []byte) ([]byte, error) {
		return []byte{byte(status.OK)}, nil
	})

	resolve := func(ctx context.Context) (transport.Session, error) {
		return net.GetSession(mock.Locator("master-a"))
	}
	onStatus := func(resp []byte) (Outcome, error) {
		if status.Status(resp[0]) == status.OK {
			return OutcomeDone, nil
		}
		return OutcomeFatal, status.NewError("test", status.Status(resp[0]))
	}
	onTransErr := func(err error) (Outcome, error) { return OutcomeFatal, err }

	w := NewWrapper("test", net, 1, 1, []byte{0}, 1, resolve, onStatus, onTransErr)
	resp, err := w.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, byte(status.OK), resp[0])
	assert.Equal(t, StateFinished, w.State())
}

func TestWrapper_CanceledWhenResolverFindsNoTarget(t *testing.T) {
	resolve := func(ctx context.Context) (transport.Session, error) { return nil, nil }
	onStatus := func(resp []byte) (Outcome, error) { return OutcomeDone, nil }
	onTransErr := func(err error) (Outcome, error) { return OutcomeFatal, err }

	net := mock.NewNetwork()
	w := NewWrapper("test", net, 1, 1, []byte{0}, 1, resolve, onStatus, onTransErr)
	_, err := w.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Equal(t, StateCanceled, w.State())
}

func TestWrapper_FailsFatallyOnUnhandledStatus(t *testing.T) {
	net := mock.NewNetwork()
	net.RegisterServer("master-a", func(ctx context.Context, opcode uint16, service uint8, req []byte) ([]byte, error) {
		return []byte{byte(status.ObjectDoesntExist)}, nil
	})
	resolve := func(ctx context.Context) (transport.Session, error) {
		return net.GetSession(mock.Locator("master-a"))
	}
	onStatus := func(resp []byte) (Outcome, error) {
		if status.Status(resp[0]) == status.OK {
			return OutcomeDone, nil
		}
		return OutcomeFatal, status.NewError("test", status.Status(resp[0]))
	}
	onTransErr := func(err error) (Outcome, error) { return OutcomeFatal, err }

	w := NewWrapper("test", net, 1, 1, []byte{0}, 1, resolve, onStatus, onTransErr)
	_, err := w.Wait(context.Background())
	require.Error(t, err)
	var statusErr *status.Error
	assert.ErrorAs(t, err, &statusErr)
	assert.Equal(t, StateFailed, w.State())
}
