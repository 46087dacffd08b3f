package entity

import (
	"regexp"
	"strings"
	"sync"

	"zilazol/internal"
	"zilazol/internal/util"
)

var leadingQuantity = regexp.MustCompile(`^\d+(?:[.,]\d+)?\s*`)

// Tables holds the code and token lookups used while building entities.
// A Tables value is read-only once built and safe to share between goroutines.
type Tables struct {
	Units         map[string]Unit
	ItemStatuses  map[string]ItemStatus
	ItemTypes     map[string]ItemType
	StoreTypes    map[string]StoreType
	SubchainNames map[internal.Dialect]map[string]string
}

var (
	defaultTablesOnce sync.Once
	defaultTables     *Tables
)

func DefaultTables() *Tables {
	defaultTablesOnce.Do(func() {
		defaultTables = &Tables{
			Units:        unitTokens(),
			ItemStatuses: map[string]ItemStatus{"1": StatusNew, "2": StatusUpdated, "3": StatusRemoved},
			ItemTypes:    map[string]ItemType{"0": TypeInternal, "1": TypeNormal, "2": TypeWeighted},
			StoreTypes:   map[string]StoreType{"1": StorePhysical, "2": StoreOnline, "3": StorePhysicalAndOnline},
			SubchainNames: map[internal.Dialect]map[string]string{
				internal.DialectShufersal: {
					"1":  "שופרסל שלי",
					"2":  "שופרסל דיל",
					"3":  "שערי רווחה",
					"4":  "שופרסל דיל אקסטרא",
					"5":  "Be",
					"6":  "יש חסד",
					"7":  "שופרסל אקספרס",
					"18": "גוד מרקט",
					"50": "יש בשכונה",
				},
			},
		}
	})
	return defaultTables
}

func unitTokens() map[string]Unit {
	out := map[string]Unit{}
	for name, tokens := range util.UnitForms {
		for _, tok := range tokens {
			out[util.NormalizeToken(tok)] = Unit(name)
		}
	}
	for _, tok := range []string{"לא ידוע", "לא ידועה", "unknown"} {
		out[util.NormalizeToken(tok)] = UnitUnknown
	}
	return out
}

// Unit maps a unit token to its canonical unit. Unrecognized and blank
// tokens fall back to UnitEach, not UnitUnknown.
func (t *Tables) Unit(token string) Unit {
	s := util.NormalizeToken(token)
	s = strings.TrimSpace(leadingQuantity.ReplaceAllString(s, ""))
	if u, ok := t.Units[s]; ok {
		return u
	}
	if u, ok := t.Units[strings.TrimRight(s, ".")]; ok {
		return u
	}
	if u, ok := t.Units[strings.TrimRight(s, `.'"`)]; ok {
		return u
	}
	return UnitEach
}

func (t *Tables) ItemStatus(code string) ItemStatus {
	if s, ok := t.ItemStatuses[codeKey(code)]; ok {
		return s
	}
	return StatusUpdated
}

func (t *Tables) ItemType(code string) ItemType {
	if v, ok := t.ItemTypes[codeKey(code)]; ok {
		return v
	}
	return TypeNormal
}

func (t *Tables) StoreType(code string) StoreType {
	if v, ok := t.StoreTypes[codeKey(code)]; ok {
		return v
	}
	return StorePhysical
}

func (t *Tables) SubchainName(dialect internal.Dialect, id string) (string, bool) {
	name, ok := t.SubchainNames[dialect][id]
	return name, ok
}

func codeKey(code string) string {
	if id := util.NormalizeID(code); id != nil {
		return *id
	}
	return strings.TrimSpace(code)
}
