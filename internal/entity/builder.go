package entity

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"zilazol/internal"
	"zilazol/internal/document"
	"zilazol/internal/registry"
	"zilazol/internal/util"
)

// Scope carries identifiers that live outside the entity node: the document
// header, or the enclosing subchain group for nested store lists.
type Scope struct {
	ChainID      *string
	SubchainID   *string
	SubchainName *string
	StoreID      *string
}

type Builder struct {
	Registry *registry.Registry
	Tables   *Tables
	// OnDefault, when set, is called for a mapped field whose value was
	// present but coerced to a default. It must be safe for concurrent use.
	OnDefault func(dialect internal.Dialect, field, value string)
}

func NewBuilder(reg *registry.Registry, tables *Tables) *Builder {
	return &Builder{Registry: reg, Tables: tables}
}

// Build looks up the dialect's descriptor for kind and builds one entity.
func (b *Builder) Build(kind internal.EntityKind, dialect internal.Dialect, node document.Node, scope Scope) (Entity, error) {
	desc, err := b.Registry.Lookup(dialect, kind.Category())
	if err != nil {
		return nil, err
	}
	return b.BuildWith(kind, desc, node, scope)
}

func (b *Builder) BuildWith(kind internal.EntityKind, desc registry.Descriptor, node document.Node, scope Scope) (Entity, error) {
	r := reader{b: b, desc: desc, node: node}
	var (
		e   Entity
		err error
	)
	switch kind {
	case internal.KindItem:
		e, err = b.item(r, scope)
	case internal.KindPromotion:
		e, err = b.promotion(r, scope)
	case internal.KindStore:
		e, err = b.store(r, scope)
	case internal.KindSubchain:
		e = b.subchain(r, scope)
	default:
		return nil, fmt.Errorf("build %q: %w", kind, internal.ErrUnknownCategory)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (b *Builder) item(r reader, scope Scope) (Entity, error) {
	weighted, err := r.boolean("is_weighted")
	if err != nil {
		return nil, err
	}
	allowDiscount, err := r.boolean("allow_discount")
	if err != nil {
		return nil, err
	}
	return Item{
		ChainID:            scope.ChainID,
		SubchainID:         r.idOr("subchain_id", scope.SubchainID),
		StoreID:            r.idOr("store_id", scope.StoreID),
		Code:               r.id("code"),
		Name:               r.text("name"),
		Type:               b.Tables.ItemType(r.raw("type")),
		ManufacturerName:   r.text("manufacturer_name"),
		ManufactureCountry: r.text("manufacture_country"),
		Description:        r.text("description"),
		UnitOfQuantity:     b.Tables.Unit(r.raw("unit_of_quantity")),
		Quantity:           r.decimal("quantity"),
		IsWeighted:         weighted,
		UnitOfMeasure:      b.Tables.Unit(r.raw("unit_of_measure")),
		UnitOfMeasurePrice: r.decimal("unit_of_measure_price"),
		QuantityInPackage:  r.decimal("quantity_in_package"),
		Price:              r.decimal("price"),
		AllowDiscount:      allowDiscount,
		Status:             b.Tables.ItemStatus(r.raw("status")),
		UpdateDate:         util.ParseTimestamp(r.raw("update_date")),
	}, nil
}

func (b *Builder) promotion(r reader, scope Scope) (Entity, error) {
	multiple, err := r.boolean("allow_multiple_discounts")
	if err != nil {
		return nil, err
	}
	return Promotion{
		ChainID:                scope.ChainID,
		SubchainID:             r.idOr("subchain_id", scope.SubchainID),
		StoreID:                r.idOr("store_id", scope.StoreID),
		ID:                     r.id("id"),
		Description:            r.text("description"),
		UpdateDate:             util.ParseTimestamp(r.raw("update_date")),
		StartAt:                util.ParseDateTime(r.raw("start_date"), r.raw("start_hour")),
		EndAt:                  util.ParseDateTime(r.raw("end_date"), r.raw("end_hour")),
		MinQuantity:            r.decimal("min_quantity"),
		RewardType:             r.id("reward_type"),
		DiscountedPrice:        r.decimal("discounted_price"),
		MinItemsOffered:        r.decimal("min_items_offered"),
		Items:                  r.itemCodes("items"),
		AdditionalRestrictions: r.flattened("additional_restrictions"),
		ClubID:                 r.id("club_id"),
		AllowMultipleDiscounts: multiple,
	}, nil
}

func (b *Builder) store(r reader, scope Scope) (Entity, error) {
	return Store{
		ID:            r.id("id"),
		ChainID:       scope.ChainID,
		SubchainID:    r.idOr("subchain_id", scope.SubchainID),
		BikoretNumber: r.id("bikoret_number"),
		Type:          b.Tables.StoreType(r.raw("type")),
		Name:          r.text("name"),
		Address:       r.text("address"),
		City:          r.text("city"),
		ZipCode:       util.NormalizeZip(r.raw("zip_code")),
	}, nil
}

// subchain reads the subchain id and name from node, falling back to scope
// and then to the dialect's static name table.
func (b *Builder) subchain(r reader, scope Scope) Entity {
	id := r.idOr("subchain_id", scope.SubchainID)
	name := r.text("subchain_name")
	if name == "" && scope.SubchainName != nil {
		name = util.TextOrEmpty(util.NormalizeText(*scope.SubchainName))
	}
	if name == "" && id != nil {
		if fallback, ok := b.Tables.SubchainName(r.desc.Dialect, *id); ok {
			name = fallback
		}
	}
	return Subchain{ID: id, ChainID: scope.ChainID, Name: name}
}

type reader struct {
	b    *Builder
	desc registry.Descriptor
	node document.Node
}

func (r reader) raw(attr string) string {
	field, ok := r.desc.Field(attr)
	if !ok {
		return ""
	}
	v, _ := document.Text(r.node, field)
	return v
}

func (r reader) text(attr string) string {
	return util.TextOrEmpty(util.NormalizeText(r.raw(attr)))
}

func (r reader) id(attr string) *string {
	v := r.raw(attr)
	id := util.NormalizeID(v)
	if id == nil && strings.TrimSpace(v) != "" {
		r.soft(attr, v)
	}
	return id
}

func (r reader) idOr(attr string, fallback *string) *string {
	if id := r.id(attr); id != nil {
		return id
	}
	return fallback
}

func (r reader) decimal(attr string) *float64 {
	v := r.raw(attr)
	f := util.NormalizeDecimal(v)
	if f == nil && strings.TrimSpace(v) != "" {
		r.soft(attr, v)
	}
	return f
}

func (r reader) boolean(attr string) (*bool, error) {
	v := r.raw(attr)
	out, err := ParseBool(v)
	if err != nil {
		var fe *FieldValidationError
		if errors.As(err, &fe) {
			fe.Field = attr
		}
		return nil, err
	}
	return out, nil
}

// itemCodes reads the promotion's item list. Entries may be nodes carrying an
// ItemCode or bare codes. Dialects that publish one row per promoted item
// carry ItemCode on the row itself.
func (r reader) itemCodes(attr string) []string {
	var codes []string
	if field, ok := r.desc.Field(attr); ok {
		if v, err := document.Value(r.node, strings.Fields(field)); err == nil {
			list, isList := v.([]any)
			if !isList {
				list = []any{v}
			}
			for _, el := range list {
				var raw string
				switch t := el.(type) {
				case document.Node:
					raw, _ = document.Text(t, "ItemCode")
				case string:
					raw = t
				}
				if id := util.NormalizeID(raw); id != nil {
					codes = append(codes, *id)
				}
			}
		}
	}
	if len(codes) == 0 {
		raw, _ := document.Text(r.node, "ItemCode")
		if id := util.NormalizeID(raw); id != nil {
			codes = append(codes, *id)
		}
	}
	return codes
}

// flattened renders a scalar or a small node of flags as "key=value" pairs.
func (r reader) flattened(attr string) string {
	field, ok := r.desc.Field(attr)
	if !ok {
		return ""
	}
	v, err := document.Value(r.node, strings.Fields(field))
	if err != nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return util.TextOrEmpty(util.NormalizeText(t))
	case document.Node:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s, ok := document.Text(t, k); ok && s != "" {
				parts = append(parts, k+"="+s)
			}
		}
		return strings.Join(parts, ";")
	default:
		return ""
	}
}

func (r reader) soft(attr, value string) {
	if r.b.OnDefault != nil {
		r.b.OnDefault(r.desc.Dialect, attr, value)
	}
}
