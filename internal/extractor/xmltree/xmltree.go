// Package xmltree parses an XML part into a small typed tree so extractors
// can walk it without knowing the schema's nesting rules.
package xmltree

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

const (
	NamespaceDrawingML = "http://schemas.openxmlformats.org/drawingml/2006/main"
	NamespaceWordML    = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
)

// Node is one element: its name, attributes, the character data directly
// inside it, and its child elements in document order.
type Node struct {
	Name     xml.Name
	Attrs    []xml.Attr
	Text     string
	Children []*Node
}

// Predicate classifies nodes during a walk.
type Predicate func(n *Node) bool

// Parse reads exactly one root element from r. Malformed input, an empty
// document, or a second root element is an error.
func Parse(r io.Reader) (*Node, error) {
	decoder := xml.NewDecoder(r)

	var root *Node
	var stack []*Node
	var text [][]byte

	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) == 0 && root != nil {
				return nil, fmt.Errorf("parse xml: second root element <%s>", t.Name.Local)
			}
			n := &Node{Name: t.Name, Attrs: append([]xml.Attr(nil), t.Attr...)}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else {
				root = n
			}
			stack = append(stack, n)
			text = append(text, nil)

		case xml.CharData:
			if len(text) > 0 {
				text[len(text)-1] = append(text[len(text)-1], t...)
			}

		case xml.EndElement:
			top := stack[len(stack)-1]
			top.Text = string(text[len(text)-1])
			stack = stack[:len(stack)-1]
			text = text[:len(text)-1]
		}
	}

	if root == nil {
		return nil, errors.New("parse xml: no root element")
	}
	if len(stack) > 0 {
		return nil, fmt.Errorf("parse xml: unclosed element <%s>", stack[len(stack)-1].Name.Local)
	}
	return root, nil
}

// Walk visits n and its descendants depth-first in pre-order. Returning
// false from visit skips that node's children.
func (n *Node) Walk(visit func(*Node) bool) {
	if n == nil || !visit(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(visit)
	}
}

// Collect returns every node under n (n included) that matches, in
// pre-order.
func (n *Node) Collect(match Predicate) []*Node {
	var out []*Node
	n.Walk(func(c *Node) bool {
		if match(c) {
			out = append(out, c)
		}
		return true
	})
	return out
}

// Attr returns the value of the first attribute with the given local name.
func (n *Node) Attr(local string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// Child returns the first direct child with the given local name.
func (n *Node) Child(local string) *Node {
	for _, c := range n.Children {
		if c.Name.Local == local {
			return c
		}
	}
	return nil
}

func (n *Node) is(space, prefix, local string) bool {
	return n.Name.Local == local && (n.Name.Space == space || n.Name.Space == prefix)
}

// IsDrawingTextRun matches <a:t>, the text run of DrawingML (slides, notes).
func IsDrawingTextRun(n *Node) bool {
	return n.is(NamespaceDrawingML, "a", "t")
}

// IsWordTextRun matches <w:t>, the text run of WordprocessingML.
func IsWordTextRun(n *Node) bool {
	return n.is(NamespaceWordML, "w", "t")
}

// IsWordTab matches <w:tab/> inside a run.
func IsWordTab(n *Node) bool {
	return n.is(NamespaceWordML, "w", "tab")
}

// IsWordParagraph matches <w:p>.
func IsWordParagraph(n *Node) bool {
	return n.is(NamespaceWordML, "w", "p")
}
