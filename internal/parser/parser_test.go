package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zilazol/internal"
	"zilazol/internal/document"
	"zilazol/internal/entity"
	"zilazol/internal/registry"
)

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	blob, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return blob
}

var fixtures = map[internal.Dialect]map[internal.Category]string{
	internal.DialectCerberus: {
		internal.CategoryPrices:     "cerberus_prices.xml",
		internal.CategoryPromotions: "cerberus_promotions.xml",
		internal.CategoryStores:     "cerberus_stores.xml",
	},
	internal.DialectBinaProjects: {
		internal.CategoryPrices:     "cerberus_prices.xml",
		internal.CategoryPromotions: "cerberus_promotions.xml",
		internal.CategoryStores:     "cerberus_stores.xml",
	},
	internal.DialectShufersal: {
		internal.CategoryPrices:     "cerberus_prices.xml",
		internal.CategoryPromotions: "cerberus_promotions.xml",
		internal.CategoryStores:     "shufersal_stores.xml",
	},
	internal.DialectSuperPharm: {
		internal.CategoryPrices:     "superpharm_prices.xml",
		internal.CategoryPromotions: "superpharm_promotions.xml",
		internal.CategoryStores:     "superpharm_stores.xml",
	},
	internal.DialectNibit: {
		internal.CategoryPrices:     "nibit_prices.xml",
		internal.CategoryPromotions: "nibit_promotions.xml",
		internal.CategoryStores:     "nibit_stores.xml",
	},
}

func fixtureFor(d internal.Dialect, c internal.Category) string {
	switch c {
	case internal.CategoryPricesFull:
		c = internal.CategoryPrices
	case internal.CategoryPromotionsFull:
		c = internal.CategoryPromotions
	}
	return fixtures[d][c]
}

func TestEveryDescriptorResolvesOnAFixture(t *testing.T) {
	for _, desc := range registry.Default().Entries() {
		name := fixtureFor(desc.Dialect, desc.Category)
		require.NotEmpty(t, name, "no fixture for %s/%s", desc.Dialect, desc.Category)

		doc, err := document.Decode(fixture(t, name))
		require.NoError(t, err)

		path := desc.EntityListPath
		if desc.Grouped() {
			groups, err := document.Resolve(doc, desc.GroupPath)
			require.NoError(t, err, "%s/%s", desc.Dialect, desc.Category)
			require.NotEmpty(t, groups)
			_, err = document.Resolve(groups[0], path)
			assert.NoError(t, err, "%s/%s", desc.Dialect, desc.Category)
			continue
		}
		nodes, err := document.Resolve(doc, path)
		assert.NoError(t, err, "%s/%s", desc.Dialect, desc.Category)
		assert.NotEmpty(t, nodes, "%s/%s", desc.Dialect, desc.Category)
	}
}

func TestExtractItems(t *testing.T) {
	x := Default(2)
	res, err := x.Extract(fixture(t, "cerberus_prices.xml"), internal.DialectCerberus, internal.CategoryPricesFull, "")
	require.NoError(t, err)

	assert.Equal(t, internal.KindItem, res.Kind)
	assert.Equal(t, "7290058140886", res.ChainID, "chain id read from the header")
	require.Len(t, res.Entities, 2)
	assert.Empty(t, res.Rejected)

	first := res.Entities[0].(entity.Item)
	assert.Equal(t, "1", *first.SubchainID)
	assert.Equal(t, "39", *first.StoreID)
	assert.Equal(t, entity.StatusNew, first.Status)

	second := res.Entities[1].(entity.Item)
	assert.Equal(t, entity.TypeInternal, second.Type)
	assert.Equal(t, entity.UnitKilogram, second.UnitOfQuantity)
	assert.True(t, *second.IsWeighted)
}

func TestExtractCallerChainWins(t *testing.T) {
	res, err := Default(1).Extract(fixture(t, "nibit_prices.xml"), internal.DialectNibit, internal.CategoryPrices, "0007290455000004")
	require.NoError(t, err)
	assert.Equal(t, "7290455000004", res.ChainID)
	item := res.Entities[0].(entity.Item)
	assert.Equal(t, "7290455000004", *item.ChainID)
	assert.Equal(t, "אסם", item.ManufacturerName)
	assert.Equal(t, entity.StatusRemoved, item.Status)
	assert.Equal(t, entity.UnitGram, item.UnitOfMeasure)
}

func TestExtractSinglePromotion(t *testing.T) {
	res, err := Default(1).Extract(fixture(t, "cerberus_promotions.xml"), internal.DialectShufersal, internal.CategoryPromotions, "7290027600007")
	require.NoError(t, err)
	require.Len(t, res.Entities, 1, "a single Promotion element must still yield one entity")
	promo := res.Entities[0].(entity.Promotion)
	assert.Equal(t, []string{"7290000000123"}, promo.Items)
	assert.Equal(t, "1234", *promo.ID)
}

func TestExtractRejectsOnlyTheBadEntity(t *testing.T) {
	res, err := Default(1).Extract(fixture(t, "nibit_promotions.xml"), internal.DialectNibit, internal.CategoryPromotionsFull, "")
	require.NoError(t, err)
	require.Len(t, res.Entities, 1)
	require.Len(t, res.Rejected, 1)

	var fe *entity.FieldValidationError
	require.ErrorAs(t, res.Rejected[0], &fe)
	assert.Equal(t, "allow_multiple_discounts", fe.Field)
}

func TestExtractStoresNested(t *testing.T) {
	res, err := Default(1).Extract(fixture(t, "cerberus_stores.xml"), internal.DialectCerberus, internal.CategoryStores, "7290058140886")
	require.NoError(t, err)
	require.Len(t, res.Subchains, 2)
	require.Len(t, res.Entities, 3)

	sub := res.Subchains[0].(entity.Subchain)
	assert.Equal(t, "1", *sub.ID)
	assert.Equal(t, "רמי לוי שיווק השקמה", sub.Name)

	store := res.Entities[0].(entity.Store)
	assert.Equal(t, "39", *store.ID)
	assert.Equal(t, "1", *store.SubchainID)
	assert.Equal(t, "7170000", *store.ZipCode)

	second := res.Entities[1].(entity.Store)
	assert.Nil(t, second.ZipCode)
	assert.Equal(t, entity.StorePhysicalAndOnline, second.Type)

	online := res.Entities[2].(entity.Store)
	assert.Equal(t, "2", *online.SubchainID)
	assert.Equal(t, entity.StoreOnline, online.Type)
}

func TestExtractStoresFlatDeduplicatesSubchains(t *testing.T) {
	res, err := Default(1).Extract(fixture(t, "nibit_stores.xml"), internal.DialectNibit, internal.CategoryStores, "")
	require.NoError(t, err)

	require.Len(t, res.Subchains, 1)
	sub := res.Subchains[0].(entity.Subchain)
	assert.Equal(t, "5", *sub.ID)
	assert.Equal(t, "ויקטורי", sub.Name, "first seen name wins")
	assert.Equal(t, "7290696200003", *sub.ChainID)

	require.Len(t, res.Entities, 3)
	for _, e := range res.Entities {
		assert.Equal(t, "5", *e.(entity.Store).SubchainID)
	}
}

func TestExtractStoresShufersalFallbackName(t *testing.T) {
	res, err := Default(1).Extract(fixture(t, "shufersal_stores.xml"), internal.DialectShufersal, internal.CategoryStores, "")
	require.NoError(t, err)

	require.Len(t, res.Subchains, 1, "ids 5 and 05 are the same subchain")
	sub := res.Subchains[0].(entity.Subchain)
	assert.Equal(t, "Be", sub.Name)
	assert.Equal(t, "7290027600007", *sub.ChainID)

	require.Len(t, res.Entities, 3)
	assert.Nil(t, res.Entities[2].(entity.Store).ZipCode)
}

func TestExtractStoresEnvelope(t *testing.T) {
	res, err := Default(1).Extract(fixture(t, "superpharm_stores.xml"), internal.DialectSuperPharm, internal.CategoryStores, "")
	require.NoError(t, err)

	require.Len(t, res.Subchains, 1)
	sub := res.Subchains[0].(entity.Subchain)
	assert.Equal(t, "1", *sub.ID)
	assert.Equal(t, "סופר פארם", sub.Name)
	assert.Equal(t, "7290172900007", *sub.ChainID)

	require.Len(t, res.Entities, 2)
	assert.Equal(t, "1", *res.Entities[1].(entity.Store).SubchainID)
}

func TestExtractEmptyFeed(t *testing.T) {
	raw := []byte(`<root><ChainId>1</ChainId><Items Count="0"/></root>`)
	res, err := Default(1).Extract(raw, internal.DialectCerberus, internal.CategoryPrices, "")
	require.NoError(t, err)
	assert.Empty(t, res.Entities)
}

func TestExtractStructuralError(t *testing.T) {
	_, err := Default(1).Extract(fixture(t, "nibit_prices.xml"), internal.DialectCerberus, internal.CategoryPrices, "7290058140886")
	var se *StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, internal.DialectCerberus, se.Dialect)
	assert.Equal(t, internal.CategoryPrices, se.Category)
	assert.Equal(t, "7290058140886", se.Chain)
	assert.ErrorIs(t, err, document.ErrMissingPath)

	_, err = Default(1).Extract([]byte("not xml"), internal.DialectCerberus, internal.CategoryPrices, "")
	assert.ErrorAs(t, err, &se)
}

func TestExtractTaxonomyErrors(t *testing.T) {
	x := Default(1)
	_, err := x.Extract(nil, "ftp", internal.CategoryPrices, "")
	assert.ErrorIs(t, err, internal.ErrUnknownDialect)

	_, err = x.Extract(nil, internal.DialectNibit, "coupons", "")
	assert.ErrorIs(t, err, internal.ErrUnknownCategory)

	_, err = x.Extract(nil, internal.DialectNibit, internal.CategoryAll, "")
	assert.ErrorIs(t, err, registry.ErrNotAvailable)
}

func TestExtractAllIsolatesFailures(t *testing.T) {
	docs := []Document{
		{Name: "good", Raw: fixture(t, "cerberus_prices.xml"), Dialect: internal.DialectCerberus, Category: internal.CategoryPrices},
		{Name: "bad", Raw: []byte("<oops"), Dialect: internal.DialectCerberus, Category: internal.CategoryPrices},
		{Name: "stores", Raw: fixture(t, "nibit_stores.xml"), Dialect: internal.DialectNibit, Category: internal.CategoryStores},
	}
	out := Default(2).ExtractAll(context.Background(), docs)
	require.Len(t, out, 3)

	assert.NoError(t, out[0].Err)
	assert.Len(t, out[0].Result.Entities, 2)
	assert.Equal(t, "good", out[0].Document.Name)

	var se *StructuralError
	assert.ErrorAs(t, out[1].Err, &se)

	assert.NoError(t, out[2].Err)
	assert.Len(t, out[2].Result.Subchains, 1)
}

func TestExtractAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := Default(1).ExtractAll(ctx, []Document{{Name: "x", Raw: fixture(t, "cerberus_prices.xml"), Dialect: internal.DialectCerberus, Category: internal.CategoryPrices}})
	require.Len(t, out, 1)
	assert.ErrorIs(t, out[0].Err, context.Canceled)
}

func TestLayoutFor(t *testing.T) {
	b := entity.NewBuilder(registry.Default(), entity.DefaultTables())
	l, err := LayoutFor(internal.DialectBinaProjects, b)
	require.NoError(t, err)
	assert.IsType(t, nestedLayout{}, l)

	l, err = LayoutFor(internal.DialectShufersal, b)
	require.NoError(t, err)
	assert.IsType(t, flatLayout{}, l)

	_, err = LayoutFor("ftp", b)
	assert.ErrorIs(t, err, internal.ErrUnknownDialect)
}
