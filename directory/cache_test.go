package directory

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramcloud/ramcloud"
	"github.com/ramcloud/ramcloud/coordinator"
	"github.com/ramcloud/ramcloud/internal/logging"
	"github.com/ramcloud/ramcloud/transport/mock"
)

func newTestCache(t *testing.T) (*Cache, *coordinator.MockConfigFetcher, *mock.Network) {
	t.Helper()
	fetcher := coordinator.NewMockConfigFetcher()
	net := mock.NewNetwork()
	net.RegisterServer("master-a", func(ctx context.Context, opcode uint16, service uint8, req []byte) ([]byte, error) {
		return []byte{0}, nil
	})
	c := New(fetcher, net, logging.NewDefaultLogger(slog.LevelError))
	return c, fetcher, net
}

func TestCache_LookupRefreshesOnMiss(t *testing.T) {
	c, fetcher, _ := newTestCache(t)
	fetcher.SetTablets(1, []coordinator.TabletRecord{
		{TableId: 1, StartKeyHash: 0, EndKeyHash: ^uint64(0), State: coordinator.TabletNormal, ServiceLocator: mock.Locator("master-a")},
	})

	sess, err := c.Lookup(context.Background(), 1, 42)
	require.NoError(t, err)
	assert.Equal(t, mock.Locator("master-a"), sess.ServiceLocator())
	assert.Equal(t, 1, fetcher.CallCount(1))

	// Second lookup within the same range hits the cache, no extra fetch.
	_, err = c.Lookup(context.Background(), 1, 43)
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.CallCount(1))
}

func TestCache_LookupUnknownTableFails(t *testing.T) {
	c, _, _ := newTestCache(t)
	_, err := c.Lookup(context.Background(), 99, 1)
	require.Error(t, err)
	var tnf *TableNotFoundError
	assert.ErrorAs(t, err, &tnf)
}

func TestCache_FlushForcesRefetch(t *testing.T) {
	c, fetcher, _ := newTestCache(t)
	fetcher.SetTablets(1, []coordinator.TabletRecord{
		{TableId: 1, StartKeyHash: 0, EndKeyHash: ^uint64(0), ServiceLocator: mock.Locator("master-a")},
	})

	_, err := c.Lookup(context.Background(), 1, 5)
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.CallCount(1))

	c.Flush(1)

	_, err = c.Lookup(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.CallCount(1))
}

func TestCache_LookupIndexAbsentReturnsNilSession(t *testing.T) {
	c, _, _ := newTestCache(t)
	sess, err := c.LookupIndex(context.Background(), 1, 9, ramcloud.Key("x"))
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestCache_LookupIndexRoutesByContainment(t *testing.T) {
	c, fetcher, _ := newTestCache(t)
	fetcher.SetIndexlets(1, []coordinator.IndexletRecord{
		{TableId: 1, IndexId: 0, FirstKey: ramcloud.Key("\x00"), FirstNotOwned: ramcloud.Key{}, ServiceLocator: mock.Locator("master-a")},
	})

	sess, err := c.LookupIndex(context.Background(), 1, 0, ramcloud.Key("apple"))
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, mock.Locator("master-a"), sess.ServiceLocator())
}

func TestCache_WaitForAllTabletsNormalTimesOut(t *testing.T) {
	c, fetcher, _ := newTestCache(t)
	fetcher.SetTablets(1, []coordinator.TabletRecord{
		{TableId: 1, StartKeyHash: 0, EndKeyHash: ^uint64(0), State: coordinator.TabletSplitting, ServiceLocator: mock.Locator("master-a")},
	})

	err := c.WaitForAllTabletsNormal(context.Background(), 1, 20*time.Millisecond, 5*time.Millisecond)
	assert.Error(t, err)
}

func TestCache_WaitForTabletDownReturnsWhenNotNormal(t *testing.T) {
	c, fetcher, _ := newTestCache(t)
	fetcher.SetTablets(1, []coordinator.TabletRecord{
		{TableId: 1, StartKeyHash: 0, EndKeyHash: ^uint64(0), State: coordinator.TabletRecovering, ServiceLocator: mock.Locator("master-a")},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, c.WaitForTabletDown(ctx, 1, 5*time.Millisecond))
}
