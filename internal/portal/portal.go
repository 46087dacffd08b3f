// Package portal downloads raw feed files from the price-transparency portals
// the chains publish to.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"zilazol/internal"
	"zilazol/internal/config"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrWrongDialect  = errors.New("chain is not served by this portal")
	ErrNoParameter   = errors.New("category not offered by portal")
)

type File struct {
	Name     string
	Content  []byte
	Chain    internal.Chain
	Category internal.Category
	Dialect  internal.Dialect
}

type Fetcher interface {
	// Fetch downloads up to max decompressed files of category for chain.
	Fetch(ctx context.Context, chain internal.Chain, category internal.Category, max int) ([]File, error)
}

type Options struct {
	// BaseURL overrides the portal's default address. For binaprojects it may
	// hold a %s placeholder for the chain's subdomain.
	BaseURL      string
	Timeout      time.Duration
	RateLimitRPS int
	Transport    http.RoundTripper
	Now          func() time.Time
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Timeout:      time.Duration(cfg.PortalTimeoutMs) * time.Millisecond,
		RateLimitRPS: cfg.PortalRateLimitRPS,
	}
}

func New(dialect internal.Dialect, cfg config.Config) (Fetcher, error) {
	return NewWithOptions(dialect, OptionsFromConfig(cfg))
}

func NewWithOptions(dialect internal.Dialect, opts Options) (Fetcher, error) {
	d, err := internal.ParseDialect(string(dialect))
	if err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	client := NewClient(opts)
	base := func(def string) string {
		if strings.TrimSpace(opts.BaseURL) != "" {
			return strings.TrimRight(opts.BaseURL, "/")
		}
		return def
	}

	switch d {
	case internal.DialectCerberus:
		return &cerberus{client: client, baseURL: base("https://url.publishedprices.co.il")}, nil
	case internal.DialectShufersal:
		return &shufersal{client: client, baseURL: base("https://prices.shufersal.co.il")}, nil
	case internal.DialectSuperPharm:
		return &superPharm{client: client, baseURL: base("https://prices.super-pharm.co.il"), now: opts.Now}, nil
	case internal.DialectNibit:
		return &nibit{client: client, baseURL: base("https://laibcatalog.co.il"), now: opts.Now}, nil
	default:
		return &binaProjects{client: client, baseURL: base("https://%s.binaprojects.com"), now: opts.Now}, nil
	}
}

var categoryParameters = map[internal.Dialect]map[internal.Category]string{
	internal.DialectCerberus: {
		internal.CategoryAll:            "",
		internal.CategoryPrices:         "Price",
		internal.CategoryPricesFull:     "PriceFull",
		internal.CategoryPromotions:     "Promo",
		internal.CategoryPromotionsFull: "PromoFull",
		internal.CategoryStores:         "Stores",
	},
	internal.DialectShufersal: {
		internal.CategoryAll:            "0",
		internal.CategoryPrices:         "1",
		internal.CategoryPricesFull:     "2",
		internal.CategoryPromotions:     "3",
		internal.CategoryPromotionsFull: "4",
		internal.CategoryStores:         "5",
	},
	internal.DialectSuperPharm: {
		internal.CategoryAll:            "",
		internal.CategoryPrices:         "Price",
		internal.CategoryPricesFull:     "PriceFull",
		internal.CategoryPromotions:     "Promo",
		internal.CategoryPromotionsFull: "PromoFull",
		internal.CategoryStores:         "StoresFull",
	},
	internal.DialectNibit: {
		internal.CategoryAll:            "all",
		internal.CategoryPrices:         "price",
		internal.CategoryPricesFull:     "pricefull",
		internal.CategoryPromotions:     "promo",
		internal.CategoryPromotionsFull: "promofull",
		internal.CategoryStores:         "storesfull",
	},
	internal.DialectBinaProjects: {
		internal.CategoryAll:            "0",
		internal.CategoryStores:         "1",
		internal.CategoryPrices:         "2",
		internal.CategoryPromotions:     "3",
		internal.CategoryPricesFull:     "4",
		internal.CategoryPromotionsFull: "5",
	},
}

// CategoryParameter returns the portal's own name for category.
func CategoryParameter(dialect internal.Dialect, category internal.Category) (string, error) {
	p, ok := categoryParameters[dialect][category]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrNoParameter, dialect, category)
	}
	return p, nil
}

var fileNamePrefixes = []struct {
	prefix   string
	category internal.Category
}{
	{"pricefull", internal.CategoryPricesFull},
	{"price", internal.CategoryPrices},
	{"promofull", internal.CategoryPromotionsFull},
	{"promo", internal.CategoryPromotions},
	{"stores", internal.CategoryStores},
}

// CategoryFromFileName infers a file's category from the standard file name
// prefix, e.g. PriceFull7290027600007-001-202401010300.gz.
func CategoryFromFileName(name string) (internal.Category, bool) {
	base := strings.ToLower(path.Base(strings.ReplaceAll(name, "\\", "/")))
	for _, p := range fileNamePrefixes {
		if strings.HasPrefix(base, p.prefix) {
			return p.category, true
		}
	}
	return "", false
}

func checkChain(dialect internal.Dialect, chain internal.Chain, max int) error {
	if max < 1 {
		return ErrInvalidAmount
	}
	if chain.Dialect != dialect {
		return fmt.Errorf("%w: %s is served by %s, not %s", ErrWrongDialect, chain.Name, chain.Dialect, dialect)
	}
	return nil
}

// resolveCategory fixes the category of a file fetched under the "all"
// meta-category. Files whose category cannot be told are dropped.
func resolveCategory(requested internal.Category, name string) (internal.Category, bool) {
	if requested != internal.CategoryAll {
		return requested, true
	}
	return CategoryFromFileName(name)
}
