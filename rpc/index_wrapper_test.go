package rpc

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramcloud/ramcloud"
	"github.com/ramcloud/ramcloud/coordinator"
	"github.com/ramcloud/ramcloud/directory"
	"github.com/ramcloud/ramcloud/internal/logging"
	"github.com/ramcloud/ramcloud/status"
	"github.com/ramcloud/ramcloud/transport/mock"
)

// TestIndexWrapper_RetriesAfterStaleRoute is spec.md §8 scenario 5: the
// Config Cache points at master A, which replies UNKNOWN_INDEXLET; the
// wrapper flushes and the next resolve (after a coordinator refresh finds
// master B) completes with OK.
func TestIndexWrapper_RetriesAfterStaleRoute(t *testing.T) {
	fetcher := coordinator.NewMockConfigFetcher()
	net := mock.NewNetwork()

	fetcher.SetIndexlets(1, []coordinator.IndexletRecord{
		{TableId: 1, IndexId: 0, FirstKey: ramcloud.Key("\x00"), FirstNotOwned: ramcloud.Key{}, ServiceLocator: mock.Locator("master-a")},
	})
	net.RegisterServer("master-a", func(ctx context.Context, opcode uint16, service uint8, req []byte) ([]byte, error) {
		return []byte{byte(status.UnknownIndexlet)}, nil
	})
	net.RegisterServer("master-b", func(ctx context.Context, opcode uint16, service uint8, req []byte) ([]byte, error) {
		return []byte{byte(status.OK)}, nil
	})

	cache := directory.New(fetcher, net, logging.NewDefaultLogger(slog.LevelError))

	// Warm the cache against master A before the coordinator learns the
	// indexlet has moved, so the wrapper's first attempt uses the stale
	// route and must flush-and-retry to reach master B.
	_, err := cache.LookupIndex(context.Background(), 1, 0, ramcloud.Key("apple"))
	require.NoError(t, err)
	fetcher.SetIndexlets(1, []coordinator.IndexletRecord{
		{TableId: 1, IndexId: 0, FirstKey: ramcloud.Key("\x00"), FirstNotOwned: ramcloud.Key{}, ServiceLocator: mock.Locator("master-b")},
	})

	req := InsertIndexEntryRequest{TableId: 1, IndexId: 0, IndexKey: ramcloud.Key("apple"), PrimaryKeyHash: 7}
	w := NewIndexWrapper("insert_index_entry", net, cache, 1, 0, ramcloud.Key("apple"), OpInsertIndexEntry, ServiceIndexlet, req.Encode(), InsertIndexEntryMinHeaderLen, logging.NewDefaultLogger(slog.LevelError))

	ok, resp, err := WaitIndex(context.Background(), w)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte(status.OK), resp[0])
	assert.Equal(t, StateFinished, w.State())
}

// TestIndexWrapper_CancelsWhenIndexAbsent is spec.md §8 scenario 6: no
// indexlet covers the key even after a refresh, so WaitIndex reports
// false rather than an error.
func TestIndexWrapper_CancelsWhenIndexAbsent(t *testing.T) {
	fetcher := coordinator.NewMockConfigFetcher()
	net := mock.NewNetwork()
	cache := directory.New(fetcher, net, logging.NewDefaultLogger(slog.LevelError))

	req := InsertIndexEntryRequest{TableId: 1, IndexId: 9, IndexKey: ramcloud.Key("apple"), PrimaryKeyHash: 7}
	w := NewIndexWrapper("insert_index_entry", net, cache, 1, 9, ramcloud.Key("apple"), OpInsertIndexEntry, ServiceIndexlet, req.Encode(), InsertIndexEntryMinHeaderLen, logging.NewDefaultLogger(slog.LevelError))

	ok, resp, err := WaitIndex(context.Background(), w)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, resp)
	assert.Equal(t, StateCanceled, w.State())
}
