package parser

import (
	"fmt"

	"zilazol/internal"
)

// StructuralError fails a whole document: the entity list could not be found
// or the tree did not have the expected shape.
type StructuralError struct {
	Dialect  internal.Dialect
	Category internal.Category
	Chain    string
	Err      error
}

func (e *StructuralError) Error() string {
	chain := e.Chain
	if chain == "" {
		chain = "unknown chain"
	}
	return fmt.Sprintf("extract %s/%s (%s): %v", e.Dialect, e.Category, chain, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }
