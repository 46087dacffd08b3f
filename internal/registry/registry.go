// Package registry holds the per-dialect feed formats: where the entity list
// lives in a decoded document and which source field feeds each canonical
// attribute.
package registry

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"zilazol/internal"
)

//go:embed registry.yaml
var builtin []byte

var ErrNotAvailable = errors.New("format not available")

type Descriptor struct {
	Dialect        internal.Dialect   `yaml:"-"`
	Category       internal.Category  `yaml:"-"`
	HeaderPath     []string           `yaml:"header_path"`
	HeaderFields   map[string]*string `yaml:"header_fields"`
	GroupPath      []string           `yaml:"group_path"`
	EntityListPath []string           `yaml:"entity_list_path"`
	FieldMap       map[string]*string `yaml:"fields"`
}

// Field resolves a canonical attribute to its source field. Unmapped and
// null-mapped attributes report ok=false so the caller can default.
func (d Descriptor) Field(attr string) (string, bool) {
	return lookupField(d.FieldMap, attr)
}

func (d Descriptor) HeaderField(attr string) (string, bool) {
	return lookupField(d.HeaderFields, attr)
}

func (d Descriptor) Grouped() bool { return len(d.GroupPath) > 0 }

func lookupField(m map[string]*string, attr string) (string, bool) {
	v, ok := m[attr]
	if !ok || v == nil || strings.TrimSpace(*v) == "" {
		return "", false
	}
	return *v, true
}

func (d Descriptor) clone() Descriptor {
	out := d
	out.HeaderPath = append([]string(nil), d.HeaderPath...)
	out.GroupPath = append([]string(nil), d.GroupPath...)
	out.EntityListPath = append([]string(nil), d.EntityListPath...)
	out.HeaderFields = cloneFields(d.HeaderFields)
	out.FieldMap = cloneFields(d.FieldMap)
	return out
}

func cloneFields(m map[string]*string) map[string]*string {
	if m == nil {
		return nil
	}
	out := make(map[string]*string, len(m))
	for k, v := range m {
		if v != nil {
			s := *v
			out[k] = &s
			continue
		}
		out[k] = nil
	}
	return out
}

type key struct {
	dialect  internal.Dialect
	category internal.Category
}

type Registry struct {
	entries map[key]Descriptor
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the registry built from the embedded format table.
func Default() *Registry {
	defaultOnce.Do(func() {
		reg, err := Load(bytes.NewReader(builtin))
		if err != nil {
			panic(fmt.Sprintf("embedded registry: %v", err))
		}
		defaultReg = reg
	})
	return defaultReg
}

type document struct {
	Dialects map[string]map[string]Descriptor `yaml:"dialects"`
}

func Load(r io.Reader) (*Registry, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	if len(doc.Dialects) == 0 {
		return nil, errors.New("parse registry: no dialects")
	}

	reg := &Registry{entries: map[key]Descriptor{}}
	for dialectName, categories := range doc.Dialects {
		dialect, err := internal.ParseDialect(dialectName)
		if err != nil {
			return nil, err
		}
		for categoryName, desc := range categories {
			category, err := internal.ParseCategory(categoryName)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", dialect, err)
			}
			if category == internal.CategoryAll {
				return nil, fmt.Errorf("%s: category all cannot carry a format", dialect)
			}
			if len(desc.EntityListPath) == 0 {
				return nil, fmt.Errorf("%s/%s: empty entity_list_path", dialect, category)
			}
			desc.Dialect = dialect
			desc.Category = category
			reg.entries[key{dialect, category}] = desc
		}
	}
	return reg, nil
}

func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func (r *Registry) Lookup(dialect internal.Dialect, category internal.Category) (Descriptor, error) {
	d, err := internal.ParseDialect(string(dialect))
	if err != nil {
		return Descriptor{}, err
	}
	c, err := internal.ParseCategory(string(category))
	if err != nil {
		return Descriptor{}, err
	}
	desc, ok := r.entries[key{d, c}]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s/%s", ErrNotAvailable, d, c)
	}
	return desc.clone(), nil
}

// Entries lists every registered descriptor ordered by dialect then category.
func (r *Registry) Entries() []Descriptor {
	out := make([]Descriptor, 0, len(r.entries))
	for _, d := range r.entries {
		out = append(out, d.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dialect != out[j].Dialect {
			return out[i].Dialect < out[j].Dialect
		}
		return out[i].Category < out[j].Category
	})
	return out
}
