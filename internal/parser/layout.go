package parser

import (
	"errors"

	"zilazol/internal"
	"zilazol/internal/document"
	"zilazol/internal/entity"
	"zilazol/internal/registry"
)

// StoreLayout turns a stores document into subchain and store records. Each
// store yields exactly one Store, each distinct subchain id one Subchain.
type StoreLayout interface {
	ParseStores(doc document.Node, desc registry.Descriptor, scope entity.Scope) (subchains, stores []entity.Entity, rejected []error, err error)
}

func LayoutFor(dialect internal.Dialect, b *entity.Builder) (StoreLayout, error) {
	switch dialect {
	case internal.DialectCerberus, internal.DialectBinaProjects:
		return nestedLayout{b: b}, nil
	case internal.DialectShufersal, internal.DialectNibit:
		return flatLayout{b: b}, nil
	case internal.DialectSuperPharm:
		return envelopeLayout{b: b}, nil
	default:
		_, err := internal.ParseDialect(string(dialect))
		return nil, err
	}
}

// nestedLayout: stores grouped under repeated SubChain blocks.
type nestedLayout struct {
	b *entity.Builder
}

func (l nestedLayout) ParseStores(doc document.Node, desc registry.Descriptor, scope entity.Scope) ([]entity.Entity, []entity.Entity, []error, error) {
	if !desc.Grouped() {
		return flatLayout(l).ParseStores(doc, desc, scope)
	}
	groups, err := document.Resolve(doc, desc.GroupPath)
	if err != nil {
		return nil, nil, nil, err
	}

	seen := newSubchainSet()
	var subchains, stores []entity.Entity
	var rejected []error
	for _, group := range groups {
		sub, err := l.b.BuildWith(internal.KindSubchain, desc, group, scope)
		if err != nil {
			rejected = append(rejected, err)
			continue
		}
		if seen.add(sub) {
			subchains = append(subchains, sub)
		}

		groupScope := scope
		groupScope.SubchainID = sub.(entity.Subchain).ID

		nodes, err := document.Resolve(group, desc.EntityListPath)
		if emptyList(err) {
			continue
		}
		if err != nil {
			return nil, nil, nil, err
		}
		for _, node := range nodes {
			store, err := l.b.BuildWith(internal.KindStore, desc, node, groupScope)
			if err != nil {
				rejected = append(rejected, err)
				continue
			}
			stores = append(stores, store)
		}
	}
	return subchains, stores, rejected, nil
}

// flatLayout: one store list with a subchain id column, grouped client-side.
type flatLayout struct {
	b *entity.Builder
}

func (l flatLayout) ParseStores(doc document.Node, desc registry.Descriptor, scope entity.Scope) ([]entity.Entity, []entity.Entity, []error, error) {
	nodes, err := document.Resolve(doc, desc.EntityListPath)
	if emptyList(err) {
		return nil, nil, nil, nil
	}
	if err != nil {
		return nil, nil, nil, err
	}

	seen := newSubchainSet()
	var subchains, stores []entity.Entity
	var rejected []error
	for _, node := range nodes {
		sub, err := l.b.BuildWith(internal.KindSubchain, desc, node, scope)
		if err == nil && seen.add(sub) {
			subchains = append(subchains, sub)
		}
		store, err := l.b.BuildWith(internal.KindStore, desc, node, scope)
		if err != nil {
			rejected = append(rejected, err)
			continue
		}
		stores = append(stores, store)
	}
	return subchains, stores, rejected, nil
}

// envelopeLayout: the envelope header carries the subchain id, the first
// store line carries its name.
type envelopeLayout struct {
	b *entity.Builder
}

func (l envelopeLayout) ParseStores(doc document.Node, desc registry.Descriptor, scope entity.Scope) ([]entity.Entity, []entity.Entity, []error, error) {
	nodes, err := document.Resolve(doc, desc.EntityListPath)
	if emptyList(err) {
		nodes, err = nil, nil
	}
	if err != nil {
		return nil, nil, nil, err
	}

	var subchains, stores []entity.Entity
	var rejected []error
	first := document.Node{}
	if len(nodes) > 0 {
		first = nodes[0]
	}
	if sub, err := l.b.BuildWith(internal.KindSubchain, desc, first, scope); err == nil {
		if s := sub.(entity.Subchain); s.ID != nil || len(nodes) > 0 {
			subchains = append(subchains, sub)
		}
	}
	for _, node := range nodes {
		store, err := l.b.BuildWith(internal.KindStore, desc, node, scope)
		if err != nil {
			rejected = append(rejected, err)
			continue
		}
		stores = append(stores, store)
	}
	return subchains, stores, rejected, nil
}

type subchainSet map[string]struct{}

func newSubchainSet() subchainSet { return subchainSet{} }

// add reports whether sub's id had not been seen yet. Subchains without an id
// share one slot.
func (s subchainSet) add(e entity.Entity) bool {
	sub, ok := e.(entity.Subchain)
	if !ok {
		return false
	}
	key := ""
	if sub.ID != nil {
		key = *sub.ID
	}
	if _, dup := s[key]; dup {
		return false
	}
	s[key] = struct{}{}
	return true
}

// emptyList reports a document whose list parent exists but holds no
// entities, which is a valid empty feed rather than a malformed one.
func emptyList(err error) bool {
	var pe *document.PathError
	return errors.As(err, &pe) && errors.Is(err, document.ErrMissingPath) && pe.Terminal()
}
