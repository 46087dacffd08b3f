package internal

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownDialect  = errors.New("unknown dialect")
	ErrUnknownCategory = errors.New("unknown category")
)

type Dialect string

const (
	DialectCerberus     Dialect = "cerberus"
	DialectShufersal    Dialect = "shufersal"
	DialectSuperPharm   Dialect = "superpharm"
	DialectNibit        Dialect = "nibit"
	DialectBinaProjects Dialect = "binaprojects"
)

var Dialects = []Dialect{DialectCerberus, DialectShufersal, DialectSuperPharm, DialectNibit, DialectBinaProjects}

func ParseDialect(value string) (Dialect, error) {
	v := Dialect(strings.ToLower(strings.TrimSpace(value)))
	for _, d := range Dialects {
		if d == v {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDialect, value)
}

type Category string

const (
	CategoryAll            Category = "all"
	CategoryPrices         Category = "prices"
	CategoryPricesFull     Category = "prices_full"
	CategoryPromotions     Category = "promotions"
	CategoryPromotionsFull Category = "promotions_full"
	CategoryStores         Category = "stores"
)

var Categories = []Category{CategoryAll, CategoryPrices, CategoryPricesFull, CategoryPromotions, CategoryPromotionsFull, CategoryStores}

func ParseCategory(value string) (Category, error) {
	v := Category(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(value), "-", "_")))
	for _, c := range Categories {
		if c == v {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, value)
}

type EntityKind string

const (
	KindItem      EntityKind = "item"
	KindPromotion EntityKind = "promotion"
	KindStore     EntityKind = "store"
	KindSubchain  EntityKind = "subchain"
)

// EntityKind reports the record type a category produces. All is a portal-side
// meta-category and has none.
func (c Category) EntityKind() (EntityKind, bool) {
	switch c {
	case CategoryPrices, CategoryPricesFull:
		return KindItem, true
	case CategoryPromotions, CategoryPromotionsFull:
		return KindPromotion, true
	case CategoryStores:
		return KindStore, true
	default:
		return "", false
	}
}

func (k EntityKind) Category() Category {
	switch k {
	case KindItem:
		return CategoryPrices
	case KindPromotion:
		return CategoryPromotions
	default:
		return CategoryStores
	}
}

type FileStatus string

const (
	FileFetched   FileStatus = "fetched"
	FileProcessed FileStatus = "processed"
	FileFailed    FileStatus = "failed"
)

type FileRow struct {
	ID        int
	Chain     string
	ChainID   string
	Dialect   Dialect
	Category  Category
	Name      string
	Hash      string
	RawRef    string
	Status    FileStatus
	FetchedAt string
}

type CanonicalNameRow struct {
	Code      string
	Name      string
	Variants  int
	UpdatedAt string
}

type StoreRow struct {
	ChainID      string
	StoreID      *string
	SubchainID   *string
	SubchainName *string
	Type         string
	Name         *string
	Address      *string
	City         *string
	ZipCode      *string
}
