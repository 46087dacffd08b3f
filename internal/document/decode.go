// Package document decodes price-feed XML into a generic tree and walks it by
// node-name paths.
//
// The tree follows the usual markup-to-dict conventions: an element holding
// only text decodes to a string, an empty element to nil, anything with
// children or attributes to a Node. A child name that repeats becomes a []any;
// a child that occurs once stays a scalar. Callers must never assume a list,
// which is what Resolve is for.
package document

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

type Node map[string]any

const (
	attrPrefix = "@"
	textKey    = "#text"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type frame struct {
	name string
	node Node
	text strings.Builder
}

func Decode(raw []byte) (Node, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("empty document")
	}

	d := xml.NewDecoder(bytes.NewReader(raw))
	d.CharsetReader = charsetReader
	d.Entity = xml.HTMLEntity

	var stack []*frame
	var root Node

	for {
		tok, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			f := &frame{name: qualified(t.Name)}
			for _, a := range t.Attr {
				if f.node == nil {
					f.node = Node{}
				}
				f.node[attrPrefix+qualified(a.Name)] = a.Value
			}
			stack = append(stack, f)
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("decode xml: unexpected closing tag </%s>", qualified(t.Name))
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if name := qualified(t.Name); name != f.name {
				return nil, fmt.Errorf("decode xml: element <%s> closed by </%s>", f.name, name)
			}

			value := f.value()
			if len(stack) == 0 {
				if root != nil {
					return nil, errors.New("decode xml: multiple root elements")
				}
				root = Node{f.name: value}
				continue
			}
			stack[len(stack)-1].addChild(f.name, value)
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("decode xml: unclosed element <%s>", stack[len(stack)-1].name)
	}
	if root == nil {
		return nil, errors.New("decode xml: no root element")
	}
	return root, nil
}

func (f *frame) value() any {
	text := strings.TrimSpace(f.text.String())
	if f.node == nil {
		if text == "" {
			return nil
		}
		return text
	}
	if text != "" {
		f.node[textKey] = text
	}
	return f.node
}

func (f *frame) addChild(name string, value any) {
	if f.node == nil {
		f.node = Node{}
	}
	existing, ok := f.node[name]
	if !ok {
		f.node[name] = value
		return
	}
	if list, isList := existing.([]any); isList {
		f.node[name] = append(list, value)
		return
	}
	f.node[name] = []any{existing, value}
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	return enc.NewDecoder().Reader(input), nil
}
