package listener

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zilazol/internal"
	"zilazol/internal/config"
	"zilazol/internal/portal"
	"zilazol/internal/storage"
)

const storesXML = `<?xml version="1.0" encoding="utf-8"?>
<Root>
  <ChainId>7290058140886</ChainId>
  <ChainName>רמי לוי</ChainName>
  <SubChains>
    <SubChain>
      <SubChainId>1</SubChainId>
      <SubChainName>רמי לוי שיווק השקמה</SubChainName>
      <Stores>
        <Store>
          <StoreId>39</StoreId>
          <BikoretNo>7</BikoretNo>
          <StoreType>1</StoreType>
          <StoreName>מודיעין</StoreName>
          <Address>ישפרו סנטר</Address>
          <City>מודיעין</City>
          <ZipCode>7170000</ZipCode>
        </Store>
      </Stores>
    </SubChain>
  </SubChains>
</Root>`

type stubFetcher struct {
	calls *int
}

func (f stubFetcher) Fetch(_ context.Context, chain internal.Chain, category internal.Category, _ int) ([]portal.File, error) {
	*f.calls++
	if category != internal.CategoryStores {
		return nil, portal.ErrStatus
	}
	return []portal.File{{Name: "Stores" + chain.ID + ".xml", Content: []byte(storesXML), Chain: chain, Category: category, Dialect: chain.Dialect}}, nil
}

func newTestService(t *testing.T, calls *int) (*Service, config.Config, *storage.DB) {
	t.Helper()
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{
		RawDir:               filepath.Join(tmp, "raw"),
		OutputDir:            filepath.Join(tmp, "out"),
		NameTokenRatio:       0.33,
		NameSimilarityCutoff: 0.8,
		ListenerIntervalSec:  1,
		ListenerCategories:   []internal.Category{internal.CategoryStores, internal.CategoryPricesFull},
		ListenerChains:       []string{"RamiLevi"},
		ListenerFetchMax:     5,
		ListenerProcessBatch: 10,
		ListenerCanonicalize: true,
		ListenerAutoExport:   true,
	}
	svc := NewService(db, cfg, internal.DefaultChains()).WithFetcherFactory(func(internal.Dialect) (portal.Fetcher, error) {
		return stubFetcher{calls: calls}, nil
	})
	return svc, cfg, db
}

func TestRunCycle(t *testing.T) {
	calls := 0
	svc, cfg, db := newTestService(t, &calls)

	res, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "one request per configured category")
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, 1, res.Stored)
	assert.Equal(t, 1, res.Processed)
	assert.Zero(t, res.Failed)

	n, err := db.CountEntities(internal.KindStore)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(filepath.Join(cfg.OutputDir, "listener", "stores.xlsx"))
	assert.NoError(t, err)

	again, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Stored)
	assert.Zero(t, again.Processed)
}

func TestRunCycleUnknownChain(t *testing.T) {
	calls := 0
	svc, _, _ := newTestService(t, &calls)
	svc.cfg.ListenerChains = []string{"Nowhere"}
	_, err := svc.RunCycle(context.Background())
	assert.EqualError(t, err, "unknown chain: Nowhere")
	assert.Zero(t, calls)
}

func TestRunCycleSkipsChainWithoutClient(t *testing.T) {
	calls := 0
	svc, _, _ := newTestService(t, &calls)
	svc.WithFetcherFactory(func(internal.Dialect) (portal.Fetcher, error) {
		return nil, errors.New("unsupported dialect")
	})
	res, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Fetched)
}

func TestRunStopsOnCancel(t *testing.T) {
	calls := 0
	svc, _, _ := newTestService(t, &calls)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("listener did not stop")
	}
	assert.GreaterOrEqual(t, calls, 2)
}
