// Package parser extracts normalized entities from raw feed documents.
package parser

import (
	"context"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"zilazol/internal"
	"zilazol/internal/document"
	"zilazol/internal/entity"
	"zilazol/internal/logger"
	"zilazol/internal/registry"
	"zilazol/internal/util"
)

type Result struct {
	Dialect   internal.Dialect
	Category  internal.Category
	Kind      internal.EntityKind
	ChainID   string
	Entities  []entity.Entity
	Subchains []entity.Entity
	Rejected  []error
}

type Extractor struct {
	Builder *entity.Builder
	Workers int
	log     *logrus.Entry
}

func NewExtractor(b *entity.Builder, workers int) *Extractor {
	x := &Extractor{Builder: b, Workers: workers, log: logger.WithModule("parser")}
	if b.OnDefault == nil {
		b.OnDefault = func(dialect internal.Dialect, field, value string) {
			x.log.WithFields(logrus.Fields{"dialect": dialect, "field": field, "value": value}).Debug("value coerced to default")
		}
	}
	return x
}

// Default wires the embedded registry and the default tables.
func Default(workers int) *Extractor {
	return NewExtractor(entity.NewBuilder(registry.Default(), entity.DefaultTables()), workers)
}

// Extract decodes raw and builds every entity it holds. Unknown dialects and
// categories fail immediately; a document that cannot be walked fails with a
// *StructuralError; a single bad entity lands in Result.Rejected.
func (x *Extractor) Extract(raw []byte, dialect internal.Dialect, category internal.Category, chainID string) (Result, error) {
	d, err := internal.ParseDialect(string(dialect))
	if err != nil {
		return Result{}, err
	}
	c, err := internal.ParseCategory(string(category))
	if err != nil {
		return Result{}, err
	}
	desc, err := x.Builder.Registry.Lookup(d, c)
	if err != nil {
		return Result{}, err
	}
	kind, _ := c.EntityKind()

	structural := func(err error) (Result, error) {
		return Result{}, &StructuralError{Dialect: d, Category: c, Chain: chainID, Err: err}
	}

	doc, err := document.Decode(raw)
	if err != nil {
		return structural(err)
	}
	scope := headerScope(doc, desc, chainID)
	res := Result{Dialect: d, Category: c, Kind: kind, ChainID: util.TextOrEmpty(scope.ChainID)}

	if kind == internal.KindStore {
		layout, err := LayoutFor(d, x.Builder)
		if err != nil {
			return Result{}, err
		}
		subchains, stores, rejected, err := layout.ParseStores(doc, desc, scope)
		if err != nil {
			return structural(err)
		}
		res.Subchains, res.Entities, res.Rejected = subchains, stores, rejected
		x.logResult(res)
		return res, nil
	}

	nodes, err := document.Resolve(doc, desc.EntityListPath)
	if emptyList(err) {
		x.logResult(res)
		return res, nil
	}
	if err != nil {
		return structural(err)
	}
	res.Entities = make([]entity.Entity, 0, len(nodes))
	for _, node := range nodes {
		e, err := x.Builder.BuildWith(kind, desc, node, scope)
		if err != nil {
			res.Rejected = append(res.Rejected, err)
			continue
		}
		res.Entities = append(res.Entities, e)
	}
	x.logResult(res)
	return res, nil
}

func (x *Extractor) logResult(res Result) {
	entry := x.log.WithFields(logrus.Fields{
		"dialect":   res.Dialect,
		"category":  res.Category,
		"chain":     res.ChainID,
		"entities":  len(res.Entities),
		"subchains": len(res.Subchains),
		"rejected":  len(res.Rejected),
	})
	for _, err := range res.Rejected {
		entry.WithError(err).Debug("entity rejected")
	}
	entry.Debug("document extracted")
}

// headerScope collects chain, subchain and store ids from the document
// header. A caller-supplied chain id wins over the header's.
func headerScope(doc document.Node, desc registry.Descriptor, chainID string) entity.Scope {
	var scope entity.Scope
	var header document.Node
	if len(desc.HeaderPath) > 0 {
		if v, err := document.Value(doc, desc.HeaderPath); err == nil {
			header, _ = v.(document.Node)
		}
	}
	read := func(attr string) *string {
		field, ok := desc.HeaderField(attr)
		if !ok || header == nil {
			return nil
		}
		v, _ := document.Text(header, field)
		return util.NormalizeID(v)
	}

	scope.ChainID = util.NormalizeID(chainID)
	if scope.ChainID == nil && strings.TrimSpace(chainID) != "" {
		scope.ChainID = util.StringPtr(strings.TrimSpace(chainID))
	}
	if scope.ChainID == nil {
		scope.ChainID = read("chain_id")
	}
	scope.SubchainID = read("subchain_id")
	scope.StoreID = read("store_id")
	return scope
}

type Document struct {
	Name     string
	Raw      []byte
	Dialect  internal.Dialect
	Category internal.Category
	ChainID  string
}

type Outcome struct {
	Document Document
	Result   Result
	Err      error
}

// ExtractAll extracts independent documents in parallel. Each document's
// failure is recorded on its own outcome; outcomes keep the input order.
func (x *Extractor) ExtractAll(ctx context.Context, docs []Document) []Outcome {
	out := make([]Outcome, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.workers())
	for i := range docs {
		i := i
		g.Go(func() error {
			out[i].Document = docs[i]
			if err := gctx.Err(); err != nil {
				out[i].Err = err
				return nil
			}
			out[i].Result, out[i].Err = x.Extract(docs[i].Raw, docs[i].Dialect, docs[i].Category, docs[i].ChainID)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (x *Extractor) workers() int {
	if x.Workers > 0 {
		return x.Workers
	}
	return runtime.NumCPU()
}
