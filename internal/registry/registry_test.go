package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zilazol/internal"
)

func TestDefaultCoversEveryDialect(t *testing.T) {
	reg := Default()
	for _, d := range internal.Dialects {
		for _, c := range internal.Categories {
			desc, err := reg.Lookup(d, c)
			if c == internal.CategoryAll {
				assert.ErrorIs(t, err, ErrNotAvailable, "%s/%s", d, c)
				continue
			}
			require.NoError(t, err, "%s/%s", d, c)
			assert.NotEmpty(t, desc.EntityListPath)
			assert.Equal(t, d, desc.Dialect)
			assert.Equal(t, c, desc.Category)
		}
	}
	assert.Len(t, reg.Entries(), len(internal.Dialects)*5)
}

func TestLookupFieldMaps(t *testing.T) {
	reg := Default()

	nibit, err := reg.Lookup(internal.DialectNibit, internal.CategoryPrices)
	require.NoError(t, err)
	src, ok := nibit.Field("manufacturer_name")
	assert.True(t, ok)
	assert.Equal(t, "ManufactureName", src)

	pharm, err := reg.Lookup(internal.DialectSuperPharm, internal.CategoryPricesFull)
	require.NoError(t, err)
	_, ok = pharm.Field("type")
	assert.False(t, ok, "null target must resolve to a default")
	_, ok = pharm.Field("not_a_field")
	assert.False(t, ok)

	promo, err := reg.Lookup(internal.DialectCerberus, internal.CategoryPromotions)
	require.NoError(t, err)
	src, _ = promo.Field("items")
	assert.Equal(t, "PromotionItems Item", src)

	stores, err := reg.Lookup(internal.DialectBinaProjects, internal.CategoryStores)
	require.NoError(t, err)
	assert.True(t, stores.Grouped())
	assert.Equal(t, []string{"Root", "SubChains", "SubChain"}, stores.GroupPath)
}

func TestLookupErrors(t *testing.T) {
	reg := Default()
	_, err := reg.Lookup("victory", internal.CategoryPrices)
	assert.ErrorIs(t, err, internal.ErrUnknownDialect)

	_, err = reg.Lookup(internal.DialectShufersal, "coupons")
	assert.ErrorIs(t, err, internal.ErrUnknownCategory)
}

func TestLookupReturnsCopies(t *testing.T) {
	reg := Default()
	first, err := reg.Lookup(internal.DialectShufersal, internal.CategoryPrices)
	require.NoError(t, err)
	first.EntityListPath[0] = "mutated"
	name := "Mutated"
	first.FieldMap["name"] = &name

	second, err := reg.Lookup(internal.DialectShufersal, internal.CategoryPrices)
	require.NoError(t, err)
	assert.Equal(t, "root", second.EntityListPath[0])
	src, _ := second.Field("name")
	assert.Equal(t, "ItemName", src)
}

func TestLoadSubstituteRegistry(t *testing.T) {
	blob := `dialects:
  nibit:
    stores:
      entity_list_path: [Branches, Branch]
      fields:
        id: BranchNo
        zip_code: ~
`
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(blob), 0o644))

	reg, err := LoadFile(path)
	require.NoError(t, err)

	desc, err := reg.Lookup(internal.DialectNibit, internal.CategoryStores)
	require.NoError(t, err)
	src, ok := desc.Field("id")
	assert.True(t, ok)
	assert.Equal(t, "BranchNo", src)
	_, ok = desc.Field("zip_code")
	assert.False(t, ok)
	_, present := desc.FieldMap["zip_code"]
	assert.True(t, present)

	_, err = reg.Lookup(internal.DialectNibit, internal.CategoryPrices)
	assert.ErrorIs(t, err, ErrNotAvailable)
}

func TestLoadRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"all category": "dialects:\n  nibit:\n    all:\n      entity_list_path: [a]\n",
		"empty path":   "dialects:\n  nibit:\n    prices:\n      fields: {code: ItemCode}\n",
		"bad dialect":  "dialects:\n  ftp:\n    prices:\n      entity_list_path: [a]\n",
		"no dialects":  "fields: {}\n",
		"bad category": "dialects:\n  nibit:\n    coupons:\n      entity_list_path: [a]\n",
	}
	for name, blob := range cases {
		_, err := Load(strings.NewReader(blob))
		assert.Error(t, err, name)
	}
}
