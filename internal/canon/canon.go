// Package canon derives one representative product name from the many
// spellings different stores and chains publish for the same item code.
package canon

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"zilazol/internal/util"
)

// DefaultUnitTokens are the unit spellings stripped, together with their
// quantity, before names are tokenized. They share the unit table used when
// building items.
var DefaultUnitTokens = util.UnitSpellings()

type Options struct {
	// RatioThreshold is the minimum share of names a token must appear in.
	RatioThreshold float64
	// SimilarityCutoff is the Jaro-Winkler score at which two tokens merge.
	// 1.0 merges identical tokens only.
	SimilarityCutoff float64
	UnitTokens       []string
	Workers          int
}

func DefaultOptions() Options {
	return Options{RatioThreshold: 0.33, SimilarityCutoff: 0.8, UnitTokens: DefaultUnitTokens}
}

// LegacyOptions reproduces the earlier exact-match variant.
func LegacyOptions() Options {
	return Options{RatioThreshold: 0.5, SimilarityCutoff: 1.0, UnitTokens: DefaultUnitTokens}
}

type Canonicalizer struct {
	opts  Options
	units *regexp.Regexp
}

func New(opts Options) *Canonicalizer {
	if opts.UnitTokens == nil {
		opts.UnitTokens = DefaultUnitTokens
	}
	return &Canonicalizer{opts: opts, units: unitPattern(opts.UnitTokens)}
}

var (
	defaultOnce  sync.Once
	defaultCanon *Canonicalizer
)

func Default() *Canonicalizer {
	defaultOnce.Do(func() { defaultCanon = New(DefaultOptions()) })
	return defaultCanon
}

func (c *Canonicalizer) Options() Options { return c.opts }

type token struct {
	text      string
	positions []int
}

// Derive returns the canonical name for names. Empty input yields "".
func (c *Canonicalizer) Derive(names []string) string {
	if len(names) == 0 {
		return ""
	}

	var order []*token
	index := map[string]*token{}
	for _, name := range names {
		for i, tok := range strings.Fields(util.NormalizeSpaces(c.StripUnits(name))) {
			t, ok := index[tok]
			if !ok {
				t = &token{text: tok}
				index[tok] = t
				order = append(order, t)
			}
			t.positions = append(t.positions, i)
		}
	}

	kept := make([]*token, 0, len(order))
	for _, t := range c.cluster(order) {
		if float64(len(t.positions))/float64(len(names)) >= c.opts.RatioThreshold {
			kept = append(kept, t)
		}
	}

	means := make(map[*token]float64, len(kept))
	for _, t := range kept {
		means[t] = weightedMean(t.positions)
	}
	sort.SliceStable(kept, func(i, j int) bool { return means[kept[i]] < means[kept[j]] })

	out := make([]string, len(kept))
	for i, t := range kept {
		out[i] = t.text
	}
	return strings.Join(out, " ")
}

// cluster merges near-duplicate tokens in first-seen order. The longest token
// of a cluster survives and collects every member's positions; on equal length
// the token being processed wins.
func (c *Canonicalizer) cluster(order []*token) []*token {
	merged := make([]bool, len(order))
	out := make([]*token, 0, len(order))
	for i, t := range order {
		if merged[i] {
			continue
		}
		merged[i] = true
		members := []*token{t}
		for j := i + 1; j < len(order); j++ {
			if merged[j] {
				continue
			}
			if JaroWinkler(t.text, order[j].text) >= c.opts.SimilarityCutoff {
				merged[j] = true
				members = append(members, order[j])
			}
		}

		survivor := t
		for _, m := range members[1:] {
			if utf8.RuneCountInString(m.text) > utf8.RuneCountInString(survivor.text) {
				survivor = m
			}
		}
		positions := make([]int, 0, len(t.positions))
		for _, m := range members {
			positions = append(positions, m.positions...)
		}
		out = append(out, &token{text: survivor.text, positions: positions})
	}
	return out
}

// weightedMean weights every distinct position by its own frequency, so a
// position seen c times contributes c*c*p over a total weight of c*c.
func weightedMean(positions []int) float64 {
	counts := map[int]int{}
	for _, p := range positions {
		counts[p]++
	}
	var num, den float64
	for p, n := range counts {
		w := float64(n) * float64(n)
		num += w * float64(p)
		den += w
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// CanonicalizeNames derives a name per group. Groups are independent and run
// in parallel. Every key is returned; a group that cannot produce a name maps
// to "".
func (c *Canonicalizer) CanonicalizeNames(ctx context.Context, groups map[string][]string) (map[string]string, error) {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	results := make([]string, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers())
	for i, k := range keys {
		i, k := i, k
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = c.Derive(groups[k])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("canonicalize names: %w", err)
	}

	out := make(map[string]string, len(keys))
	for i, k := range keys {
		out[k] = results[i]
	}
	return out, nil
}

func (c *Canonicalizer) workers() int {
	if c.opts.Workers > 0 {
		return c.opts.Workers
	}
	return runtime.NumCPU()
}

// unitPattern matches a quantity and a unit token in either order, followed by
// a boundary that is captured so callers can inspect it. A quote closing an
// abbreviation (גר', מ"ל) belongs to the unit.
func unitPattern(units []string) *regexp.Regexp {
	sorted := append([]string(nil), units...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utf8.RuneCountInString(sorted[i]) > utf8.RuneCountInString(sorted[j])
	})
	quoted := make([]string, 0, len(sorted))
	for _, u := range sorted {
		if u = strings.TrimSpace(u); u != "" {
			quoted = append(quoted, regexp.QuoteMeta(u))
		}
	}
	alt := strings.Join(quoted, "|")
	num := `\d+(?:[.,]\d+)?`
	return regexp.MustCompile(`(?i)(?:(` + num + `) ?(?:` + alt + `)['"]?|(?:` + alt + `)['"]? ?(` + num + `))([^\p{L}\d.]|$)`)
}

// StripUnits removes "quantity unit" and "unit quantity" phrases from name.
// A phrase whose quantity is followed by % is a percentage and stays.
// Gershayim and geresh come back as their ASCII quotes.
func (c *Canonicalizer) StripUnits(name string) string {
	name = util.NormalizeHebrewPunct(name)
	var b strings.Builder
	copied, search := 0, 0
	for search <= len(name) {
		loc := c.units.FindStringSubmatchIndex(name[search:])
		if loc == nil {
			break
		}
		start, end := search+loc[0], search+loc[1]
		coreEnd := search + loc[6]
		trailing := name[coreEnd:end]

		unitFirst := loc[2] < 0
		if trailing == "%" || (unitFirst && !boundaryBefore(name, start)) {
			_, size := utf8.DecodeRuneInString(name[start:])
			if size == 0 {
				break
			}
			search = start + size
			continue
		}

		b.WriteString(name[copied:start])
		b.WriteByte(' ')
		copied, search = coreEnd, coreEnd
	}
	b.WriteString(name[copied:])
	return b.String()
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
