package pipeline

import (
	"os"

	"zilazol/internal"
	"zilazol/internal/entity"
	"zilazol/internal/parser"
	"zilazol/internal/portal"
)

// ExtractSummary is the printable outcome of a one-off extraction.
type ExtractSummary struct {
	File      string         `json:"file"`
	Dialect   string         `json:"dialect"`
	Category  string         `json:"category"`
	Kind      string         `json:"kind"`
	ChainID   string         `json:"chain_id"`
	Entities  int            `json:"entities"`
	Subchains int            `json:"subchains"`
	Rejected  int            `json:"rejected"`
	Errors    []string       `json:"errors,omitempty"`
	Sample    map[string]any `json:"sample,omitempty"`
}

// ExtractLocalFile extracts a feed file from disk. Gzip and zip archives are
// unpacked first.
func ExtractLocalFile(path string, dialect internal.Dialect, category internal.Category, chainID string) (parser.Result, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return parser.Result{}, err
	}
	raw, err := portal.Decompress(blob)
	if err != nil {
		return parser.Result{}, err
	}
	return parser.Default(0).Extract(raw, dialect, category, chainID)
}

const maxSummaryErrors = 10

func Summarize(file string, res parser.Result) ExtractSummary {
	out := ExtractSummary{
		File:      file,
		Dialect:   string(res.Dialect),
		Category:  string(res.Category),
		Kind:      string(res.Kind),
		ChainID:   res.ChainID,
		Entities:  len(res.Entities),
		Subchains: len(res.Subchains),
		Rejected:  len(res.Rejected),
	}
	for i, err := range res.Rejected {
		if i == maxSummaryErrors {
			break
		}
		out.Errors = append(out.Errors, err.Error())
	}
	if len(res.Entities) > 0 {
		first := res.Entities[0]
		values := first.Values()
		out.Sample = map[string]any{}
		for i, col := range entity.Columns(first.Kind()) {
			out.Sample[col] = values[i]
		}
	}
	return out
}
