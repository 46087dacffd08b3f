package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	_ "modernc.org/sqlite"

	"zilazol/internal"
	"zilazol/internal/config"
	"zilazol/internal/portal"
	"zilazol/internal/storage"
)

const pricesXML = `<?xml version="1.0" encoding="utf-8"?>
<root>
  <ChainId>7290058140886</ChainId>
  <SubChainId>001</SubChainId>
  <StoreId>%s</StoreId>
  <Items>
    <Item>
      <ItemCode>7290000000123</ItemCode>
      <ItemType>1</ItemType>
      <ItemName>%s</ItemName>
      <UnitQty>ליטר</UnitQty>
      <bIsWeighted>0</bIsWeighted>
      <ItemPrice>6.90</ItemPrice>
      <ItemStatus>1</ItemStatus>
    </Item>
  </Items>
</root>`

func prices(store, name string) []byte {
	return []byte(fmt.Sprintf(pricesXML, store, name))
}

type fakeFetcher struct {
	files []portal.File
	err   error
}

func (f fakeFetcher) Fetch(_ context.Context, chain internal.Chain, category internal.Category, max int) ([]portal.File, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]portal.File, 0, len(f.files))
	for _, file := range f.files {
		file.Chain, file.Category, file.Dialect = chain, category, chain.Dialect
		out = append(out, file)
	}
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

var ramiLevi = internal.Chain{Name: "RamiLevi", ID: "7290058140886", Dialect: internal.DialectCerberus}

func setup(t *testing.T) (*storage.DB, config.Config) {
	t.Helper()
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{
		RawDir:               filepath.Join(tmp, "raw"),
		OutputDir:            filepath.Join(tmp, "out"),
		ExtractWorkers:       2,
		NameTokenRatio:       0.33,
		NameSimilarityCutoff: 0.8,
	}
	return db, cfg
}

func TestFetchProcessAndCanonicalize(t *testing.T) {
	db, cfg := setup(t)
	ctx := context.Background()

	fetcher := fakeFetcher{files: []portal.File{
		{Name: "Price7290058140886-039.gz", Content: prices("039", "Milk 1L")},
		{Name: "Price7290058140886-040.gz", Content: prices("040", "Milk 1 ליטר")},
		{Name: "Price7290058140886-041.gz", Content: []byte("<root><Items>")},
	}}
	fetch := NewFetchService(db, cfg.RawDir, fetcher)
	res, err := fetch.FetchAndStore(ctx, ramiLevi, internal.CategoryPrices, 10)
	require.NoError(t, err)
	assert.Equal(t, FetchResult{Fetched: 3, Stored: 3}, res)

	proc, err := NewProcessingService(db, cfg)
	require.NoError(t, err)
	summary, err := proc.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Files)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Entities)
	assert.NotEmpty(t, summary.TraceID)

	failed, err := db.ListFilesByStatus(internal.FileFailed, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "Price7290058140886-041.gz", failed[0].Name)

	runs, err := db.ListRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, summary.TraceID, runs[0].TraceID)
	assert.Equal(t, 2, runs[0].Counts["processed"])

	last, err := proc.LastIngest("7290058140886", internal.CategoryPrices)
	require.NoError(t, err)
	assert.NotNil(t, last)

	again, err := fetch.FetchAndStore(ctx, ramiLevi, internal.CategoryPrices, 2)
	require.NoError(t, err)
	assert.Equal(t, FetchResult{Fetched: 2, Stored: 0}, again, "unchanged files are not queued again")

	n, err := proc.CanonicalizeNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	names, err := db.ListCanonicalNames(ctx)
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "7290000000123", names[0].Code)
	assert.Equal(t, "Milk", names[0].Name)
	assert.Equal(t, 2, names[0].Variants)
}

func TestFetchError(t *testing.T) {
	db, cfg := setup(t)
	fetch := NewFetchService(db, cfg.RawDir, fakeFetcher{err: portal.ErrStatus})
	_, err := fetch.FetchAndStore(context.Background(), ramiLevi, internal.CategoryPrices, 1)
	assert.ErrorIs(t, err, portal.ErrStatus)
}

func TestProcessFile(t *testing.T) {
	db, cfg := setup(t)
	ctx := context.Background()
	fetch := NewFetchService(db, cfg.RawDir, fakeFetcher{})
	row, err := fetch.Store(portal.File{Name: "p.xml", Content: prices("039", "Bamba"), Chain: ramiLevi, Category: internal.CategoryPrices, Dialect: internal.DialectCerberus})
	require.NoError(t, err)

	proc, err := NewProcessingService(db, cfg)
	require.NoError(t, err)
	summary, err := proc.ProcessFile(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)

	stored, err := db.GetFileByID(row.ID)
	require.NoError(t, err)
	assert.Equal(t, internal.FileProcessed, stored.Status)

	_, err = proc.ProcessFile(ctx, 404)
	assert.EqualError(t, err, "file not found: id=404")
}

func TestMetadataFailuresAreLogged(t *testing.T) {
	db, cfg := setup(t)
	ctx := context.Background()

	raw, err := sql.Open("sqlite", filepath.Join(filepath.Dir(cfg.RawDir), "app.db"))
	require.NoError(t, err)
	_, err = raw.Exec(`DROP TABLE metadata`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	fetch := NewFetchService(db, cfg.RawDir, fakeFetcher{})
	_, err = fetch.Store(portal.File{Name: "p.xml", Content: prices("039", "Bamba"), Chain: ramiLevi, Category: internal.CategoryPrices, Dialect: internal.DialectCerberus})
	require.NoError(t, err)

	proc, err := NewProcessingService(db, cfg)
	require.NoError(t, err)
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	proc.log = logrus.NewEntry(l)

	summary, err := proc.ProcessPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Contains(t, buf.String(), "cannot record metadata")
	assert.Contains(t, buf.String(), "ingest.last.7290058140886.prices")

	n, err := proc.CanonicalizeNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, buf.String(), "names.last_canonicalize")
}

func TestCanonicalizeNamesSkipsEmptyNames(t *testing.T) {
	db, cfg := setup(t)
	ctx := context.Background()
	fetch := NewFetchService(db, cfg.RawDir, fakeFetcher{})
	_, err := fetch.Store(portal.File{Name: "p.xml", Content: prices("039", "500 גרם"), Chain: ramiLevi, Category: internal.CategoryPrices, Dialect: internal.DialectCerberus})
	require.NoError(t, err)

	proc, err := NewProcessingService(db, cfg)
	require.NoError(t, err)
	_, err = proc.ProcessPending(ctx, 10)
	require.NoError(t, err)

	n, err := proc.CanonicalizeNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	names, err := db.ListCanonicalNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestProcessingServiceRejectsBadRegistryFile(t *testing.T) {
	db, cfg := setup(t)
	cfg.RegistryFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := NewProcessingService(db, cfg)
	assert.Error(t, err)
}

func TestExtractLocalFileGzipped(t *testing.T) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(prices("039", "Bamba"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	path := filepath.Join(t.TempDir(), "Price.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	res, err := ExtractLocalFile(path, internal.DialectCerberus, internal.CategoryPrices, "")
	require.NoError(t, err)
	require.Len(t, res.Entities, 1)

	summary := Summarize(path, res)
	assert.Equal(t, "7290058140886", summary.ChainID)
	assert.Equal(t, "item", summary.Kind)
	assert.Equal(t, "Bamba", summary.Sample["name"])

	blob, err := json.Marshal(summary)
	require.NoError(t, err)
	assert.Contains(t, string(blob), `"entities":1`)

	_, err = ExtractLocalFile(filepath.Join(t.TempDir(), "none.xml"), internal.DialectCerberus, internal.CategoryPrices, "")
	assert.Error(t, err)
}

func TestExports(t *testing.T) {
	dir := t.TempDir()
	namesPath := filepath.Join(dir, "names", "names.xlsx")
	require.NoError(t, ExportCanonicalNamesToXLSX([]internal.CanonicalNameRow{{Code: "100", Name: "CocaCola", Variants: 3}}, namesPath))

	f, err := excelize.OpenFile(namesPath)
	require.NoError(t, err)
	sheet := f.GetSheetName(0)
	v, err := f.GetCellValue(sheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "CocaCola", v)
	require.NoError(t, f.Close())

	storesPath := filepath.Join(dir, "stores.xlsx")
	sub := "1"
	require.NoError(t, ExportStoresToXLSX([]internal.StoreRow{{ChainID: "7290058140886", SubchainID: &sub, Type: "physical"}}, storesPath))

	f, err = excelize.OpenFile(storesPath)
	require.NoError(t, err)
	defer f.Close()
	header, err := f.GetCellValue(f.GetSheetName(0), "C1")
	require.NoError(t, err)
	assert.Equal(t, "subchain_name", header)
	v, err = f.GetCellValue(f.GetSheetName(0), "B2")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}
