package document

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingPath     = errors.New("missing path")
	ErrUnexpectedShape = errors.New("unexpected node shape")
)

type PathError struct {
	Path    []string
	Segment string
	Index   int
	Err     error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%v at %q (%s)", e.Err, e.Segment, strings.Join(e.Path, "/"))
}

func (e *PathError) Unwrap() error { return e.Err }

// Terminal reports whether the walk failed on the last segment of the path,
// i.e. the parent exists but holds no entity list.
func (e *PathError) Terminal() bool { return e.Index == len(e.Path)-1 }

// Resolve walks path from root and always returns the terminal value as a
// list of nodes, whether the markup held one occurrence or many.
func Resolve(root Node, path []string) ([]Node, error) {
	v, err := walk(root, path)
	if err != nil {
		return nil, err
	}
	nodes, err := asNodes(v)
	if err != nil {
		seg := ""
		if len(path) > 0 {
			seg = path[len(path)-1]
		}
		return nil, &PathError{Path: path, Segment: seg, Index: len(path) - 1, Err: err}
	}
	return nodes, nil
}

// ResolveFrom is Resolve for a path relative to an already resolved node.
func ResolveFrom(node Node, path []string) ([]Node, error) {
	if len(path) == 0 {
		return []Node{node}, nil
	}
	return Resolve(node, path)
}

func Value(root Node, path []string) (any, error) {
	return walk(root, path)
}

// Text reads a scalar field. field may be a space separated sub-path such as
// "PromotionItems Item". A repeated field yields its first occurrence.
func Text(node Node, field string) (string, bool) {
	path := strings.Fields(field)
	if len(path) == 0 || node == nil {
		return "", false
	}
	v, err := walk(node, path)
	if err != nil {
		return "", false
	}
	return scalar(v)
}

// Texts reads every occurrence of a repeated field as text.
func Texts(node Node, field string) []string {
	path := strings.Fields(field)
	if len(path) == 0 || node == nil {
		return nil
	}
	v, err := walk(node, path)
	if err != nil {
		return nil
	}
	var out []string
	items, ok := v.([]any)
	if !ok {
		items = []any{v}
	}
	for _, it := range items {
		if s, ok := scalar(it); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func walk(root Node, path []string) (any, error) {
	var cur any = root
	for i, seg := range path {
		node, ok := cur.(Node)
		if !ok {
			err := ErrMissingPath
			if _, isList := cur.([]any); isList {
				err = ErrUnexpectedShape
			}
			return nil, &PathError{Path: path, Segment: seg, Index: i, Err: err}
		}
		next, ok := node[seg]
		if !ok {
			return nil, &PathError{Path: path, Segment: seg, Index: i, Err: ErrMissingPath}
		}
		cur = next
	}
	return cur, nil
}

func asNodes(v any) ([]Node, error) {
	switch t := v.(type) {
	case nil:
		return []Node{}, nil
	case Node:
		return []Node{t}, nil
	case []any:
		out := make([]Node, 0, len(t))
		for _, el := range t {
			switch n := el.(type) {
			case Node:
				out = append(out, n)
			case nil:
			default:
				return nil, ErrUnexpectedShape
			}
		}
		return out, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return []Node{}, nil
		}
		return nil, ErrUnexpectedShape
	default:
		return nil, ErrUnexpectedShape
	}
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case nil:
		return "", true
	case Node:
		if s, ok := t[textKey].(string); ok {
			return s, true
		}
		return "", false
	case []any:
		if len(t) == 0 {
			return "", false
		}
		return scalar(t[0])
	default:
		return "", false
	}
}
