// Package entity builds normalized records from decoded feed nodes.
package entity

import (
	"strings"
	"time"

	"zilazol/internal"
	"zilazol/internal/util"
)

type Entity interface {
	Kind() internal.EntityKind
	// Values returns the attributes in the column order of the kind's table.
	Values() []any
	entity()
}

type Unit string

const (
	UnitGram       Unit = "gram"
	UnitKilogram   Unit = "kilogram"
	UnitLiter      Unit = "liter"
	UnitMilliliter Unit = "milliliter"
	UnitEach       Unit = "unit"
	UnitMeter      Unit = "meter"
	UnitUnknown    Unit = "unknown"
)

type ItemStatus string

const (
	StatusNew     ItemStatus = "new"
	StatusUpdated ItemStatus = "updated"
	StatusRemoved ItemStatus = "removed"
)

type ItemType string

const (
	TypeInternal ItemType = "internal"
	TypeNormal   ItemType = "normal"
	TypeWeighted ItemType = "weighted"
)

type StoreType string

const (
	StorePhysical          StoreType = "physical"
	StoreOnline            StoreType = "online"
	StorePhysicalAndOnline StoreType = "physical_and_online"
)

var (
	ItemColumns = []string{
		"chain_id", "subchain_id", "store_id", "code", "name", "type", "manufacturer_name",
		"manufacture_country", "description", "unit_of_quantity", "quantity", "is_weighted",
		"unit_of_measure", "unit_of_measure_price", "quantity_in_package", "price",
		"allow_discount", "status", "update_date",
	}
	PromotionColumns = []string{
		"chain_id", "subchain_id", "store_id", "id", "description", "update_date", "start_at",
		"end_at", "min_quantity", "reward_type", "discounted_price", "min_items_offered", "items",
		"additional_restrictions", "club_id", "allow_multiple_discounts",
	}
	StoreColumns = []string{
		"id", "chain_id", "subchain_id", "bikoret_number", "type", "name", "address", "city", "zip_code",
	}
	SubchainColumns = []string{"id", "chain_id", "name"}
)

// Columns returns the table column order for kind.
func Columns(kind internal.EntityKind) []string {
	switch kind {
	case internal.KindItem:
		return ItemColumns
	case internal.KindPromotion:
		return PromotionColumns
	case internal.KindStore:
		return StoreColumns
	case internal.KindSubchain:
		return SubchainColumns
	default:
		return nil
	}
}

type Item struct {
	ChainID            *string
	SubchainID         *string
	StoreID            *string
	Code               *string
	Name               string
	Type               ItemType
	ManufacturerName   string
	ManufactureCountry string
	Description        string
	UnitOfQuantity     Unit
	Quantity           *float64
	IsWeighted         *bool
	UnitOfMeasure      Unit
	UnitOfMeasurePrice *float64
	QuantityInPackage  *float64
	Price              *float64
	AllowDiscount      *bool
	Status             ItemStatus
	UpdateDate         *time.Time
}

func (Item) entity()                   {}
func (Item) Kind() internal.EntityKind { return internal.KindItem }

func (i Item) Values() []any {
	return []any{
		str(i.ChainID), str(i.SubchainID), str(i.StoreID), str(i.Code), i.Name, string(i.Type),
		i.ManufacturerName, i.ManufactureCountry, i.Description, string(i.UnitOfQuantity),
		num(i.Quantity), flag(i.IsWeighted), string(i.UnitOfMeasure), num(i.UnitOfMeasurePrice),
		num(i.QuantityInPackage), num(i.Price), flag(i.AllowDiscount), string(i.Status),
		util.FormatTimestamp(i.UpdateDate),
	}
}

type Promotion struct {
	ChainID                *string
	SubchainID             *string
	StoreID                *string
	ID                     *string
	Description            string
	UpdateDate             *time.Time
	StartAt                *time.Time
	EndAt                  *time.Time
	MinQuantity            *float64
	RewardType             *string
	DiscountedPrice        *float64
	MinItemsOffered        *float64
	Items                  []string
	AdditionalRestrictions string
	ClubID                 *string
	AllowMultipleDiscounts *bool
}

func (Promotion) entity()                   {}
func (Promotion) Kind() internal.EntityKind { return internal.KindPromotion }

func (p Promotion) Values() []any {
	return []any{
		str(p.ChainID), str(p.SubchainID), str(p.StoreID), str(p.ID), p.Description,
		util.FormatTimestamp(p.UpdateDate), util.FormatTimestamp(p.StartAt), util.FormatTimestamp(p.EndAt),
		num(p.MinQuantity), str(p.RewardType), num(p.DiscountedPrice), num(p.MinItemsOffered),
		strings.Join(p.Items, ","), p.AdditionalRestrictions, str(p.ClubID), flag(p.AllowMultipleDiscounts),
	}
}

type Store struct {
	ID            *string
	ChainID       *string
	SubchainID    *string
	BikoretNumber *string
	Type          StoreType
	Name          string
	Address       string
	City          string
	ZipCode       *string
}

func (Store) entity()                   {}
func (Store) Kind() internal.EntityKind { return internal.KindStore }

func (s Store) Values() []any {
	return []any{
		str(s.ID), str(s.ChainID), str(s.SubchainID), str(s.BikoretNumber), string(s.Type),
		s.Name, s.Address, s.City, str(s.ZipCode),
	}
}

type Subchain struct {
	ID      *string
	ChainID *string
	Name    string
}

func (Subchain) entity()                   {}
func (Subchain) Kind() internal.EntityKind { return internal.KindSubchain }

func (s Subchain) Values() []any {
	return []any{str(s.ID), str(s.ChainID), s.Name}
}

func str(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func num(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func flag(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}
