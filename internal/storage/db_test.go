package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zilazol/internal"
	"zilazol/internal/entity"
	"zilazol/internal/util"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func item(store, code, name string, price float64) entity.Item {
	return entity.Item{
		ChainID:    util.StringPtr("7290058140886"),
		SubchainID: util.StringPtr("1"),
		StoreID:    util.StringPtr(store),
		Code:       util.StringPtr(code),
		Name:       name,
		Type:       entity.TypeNormal,
		Price:      util.FloatPtr(price),
		IsWeighted: util.BoolPtr(false),
		Status:     entity.StatusUpdated,
	}
}

func TestUpsertChains(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.UpsertChains(internal.DefaultChains().All()))
	require.NoError(t, db.UpsertChains([]internal.Chain{{Name: "Rami Levi", ID: "7290058140886", Dialect: internal.DialectCerberus}}))

	chains, err := db.ListChains()
	require.NoError(t, err)
	assert.Len(t, chains, len(internal.DefaultChains().All()))

	var found bool
	for _, c := range chains {
		if c.ID == "7290058140886" {
			found = true
			assert.Equal(t, "Rami Levi", c.Name)
		}
	}
	assert.True(t, found)
}

func TestInsertEntitiesReplacesOnKey(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	n, err := db.InsertEntities(ctx, []entity.Entity{
		item("39", "7290000000123", "Milk 1L", 5.9),
		item("40", "7290000000123", "Milk", 6.1),
		entity.Subchain{ID: util.StringPtr("1"), ChainID: util.StringPtr("7290058140886"), Name: "Rami Levi"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = db.InsertEntities(ctx, []entity.Entity{item("39", "7290000000123", "Milk 1 L", 6.5)})
	require.NoError(t, err)

	count, err := db.CountEntities(internal.KindItem)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = db.CountEntities(internal.KindSubchain)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	n, err = db.InsertEntities(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestItemNameGroups(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.InsertEntities(ctx, []entity.Entity{
		item("1", "100", "Coca Cola 330ml", 3),
		item("2", "100", "CocaCola", 3),
		item("1", "200", "Bamba", 4),
		item("2", "300", "", 4),
	})
	require.NoError(t, err)

	groups, err := db.ItemNameGroups(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{"100": {"Coca Cola 330ml", "CocaCola"}, "200": {"Bamba"}}, groups)

	groups, err = db.ItemNameGroups(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
	assert.Contains(t, groups, "100")
}

func TestFilesLifecycle(t *testing.T) {
	db := openTestDB(t)
	row := internal.FileRow{
		Chain: "RamiLevi", ChainID: "7290058140886", Dialect: internal.DialectCerberus,
		Category: internal.CategoryPrices, Name: "Price-1.gz", Hash: "h1", RawRef: "/raw/h1", Status: internal.FileFetched,
	}
	stored, err := db.UpsertFile(row)
	require.NoError(t, err)
	assert.NotZero(t, stored.ID)
	assert.Equal(t, internal.FileFetched, stored.Status)

	pending, err := db.ListFilesByStatus(internal.FileFetched, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, internal.CategoryPrices, pending[0].Category)

	require.NoError(t, db.UpdateFileStatus(stored.ID, internal.FileProcessed, ""))

	again, err := db.UpsertFile(row)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, again.ID)
	assert.Equal(t, internal.FileProcessed, again.Status, "unchanged content keeps its status")

	row.Hash = "h2"
	changed, err := db.UpsertFile(row)
	require.NoError(t, err)
	assert.Equal(t, internal.FileFetched, changed.Status)
	assert.Equal(t, "h2", changed.Hash)

	byID, err := db.GetFileByID(stored.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "h2", byID.Hash)

	missing, err := db.GetFileByID(999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCanonicalNames(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.UpsertCanonicalNames(ctx, []internal.CanonicalNameRow{
		{Code: "200", Name: "Bamba", Variants: 1},
		{Code: "100", Name: "Coca Cola", Variants: 2},
	}))
	require.NoError(t, db.UpsertCanonicalNames(ctx, []internal.CanonicalNameRow{{Code: "100", Name: "CocaCola", Variants: 3}}))

	rows, err := db.ListCanonicalNames(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "100", rows[0].Code)
	assert.Equal(t, "CocaCola", rows[0].Name)
	assert.Equal(t, 3, rows[0].Variants)
	assert.NotEmpty(t, rows[0].UpdatedAt)
}

func TestListStoresJoinsSubchainName(t *testing.T) {
	db := openTestDB(t)
	chain := util.StringPtr("7290058140886")
	_, err := db.InsertEntities(context.Background(), []entity.Entity{
		entity.Subchain{ID: util.StringPtr("1"), ChainID: chain, Name: "Rami Levi"},
		entity.Store{ID: util.StringPtr("39"), ChainID: chain, SubchainID: util.StringPtr("1"), Type: entity.StorePhysical, Name: "Modiin", City: "Modiin"},
		entity.Store{ID: util.StringPtr("4"), ChainID: chain, SubchainID: util.StringPtr("1"), Type: entity.StoreOnline, Name: "Online"},
	})
	require.NoError(t, err)

	stores, err := db.ListStores()
	require.NoError(t, err)
	require.Len(t, stores, 2)
	assert.Equal(t, "4", *stores[0].StoreID, "ordered by numeric store id")
	assert.Equal(t, "Rami Levi", *stores[0].SubchainName)
	assert.Equal(t, "online", stores[0].Type)
	assert.Equal(t, "7290058140886", stores[1].ChainID)
	assert.Nil(t, stores[1].ZipCode)
}

func TestRunsAndMetadata(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.InsertRun("trace-1", 0, map[string]float64{"totalMs": 12}, map[string]int{"entities": 3}))

	runs, err := db.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "trace-1", runs[0].TraceID)
	assert.Nil(t, runs[0].FileID)
	assert.Equal(t, 3, runs[0].Counts["entities"])

	v, err := db.GetMetadata("missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, db.SetMetadata("k", "1"))
	require.NoError(t, db.SetMetadata("k", "2"))
	v, err = db.GetMetadata("k")
	require.NoError(t, err)
	assert.Equal(t, "2", *v)
}
