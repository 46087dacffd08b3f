package entity

import (
	"fmt"
	"strings"

	"zilazol/internal/util"
)

// FieldValidationError rejects a single entity. The rest of the document
// still extracts.
type FieldValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FieldValidationError) Error() string {
	field := e.Field
	if field == "" {
		field = "value"
	}
	return fmt.Sprintf("%s: %s (got %q)", field, e.Reason, e.Value)
}

// ParseBool accepts "1" and "0" only. Blank input is absent, not false.
func ParseBool(value string) (*bool, error) {
	switch strings.TrimSpace(value) {
	case "":
		return nil, nil
	case "1":
		return util.BoolPtr(true), nil
	case "0":
		return util.BoolPtr(false), nil
	default:
		return nil, &FieldValidationError{Value: value, Reason: `boolean must be "1" or "0"`}
	}
}
