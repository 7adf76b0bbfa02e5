package highlight

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Range is a span of the document between two boundary points. For a text
// node the offset is a byte offset into its data; for any other node it is a
// child index.
type Range struct {
	StartNode   *html.Node
	StartOffset int
	EndNode     *html.Node
	EndOffset   int
}

// TextRange covers data[start:end] of a single text node.
func TextRange(n *html.Node, start, end int) Range {
	return Range{StartNode: n, StartOffset: start, EndNode: n, EndOffset: end}
}

// Collapsed reports whether the range is empty.
func (r Range) Collapsed() bool {
	return r.StartNode == r.EndNode && r.StartOffset == r.EndOffset
}

// Text returns the text the range covers.
func (r Range) Text() string {
	if r.StartNode == nil || r.EndNode == nil {
		return ""
	}
	if r.StartNode == r.EndNode && r.StartNode.Type == html.TextNode {
		if validPoint(r.StartNode, r.StartOffset) && validPoint(r.EndNode, r.EndOffset) && r.StartOffset <= r.EndOffset {
			return r.StartNode.Data[r.StartOffset:r.EndOffset]
		}
		return ""
	}
	root := r.StartNode
	for root.Parent != nil {
		root = root.Parent
	}
	var b strings.Builder
	in := false
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.TextNode {
			lo, hi := 0, len(n.Data)
			if n == r.StartNode {
				in, lo = true, min(r.StartOffset, hi)
			}
			if !in {
				return false
			}
			if n == r.EndNode {
				b.WriteString(n.Data[lo:max(lo, min(r.EndOffset, hi))])
				return true
			}
			b.WriteString(n.Data[lo:hi])
			return false
		}
		i := 0
		for c := n.FirstChild; ; c = c.NextSibling {
			if n == r.StartNode && i == r.StartOffset {
				in = true
			}
			if n == r.EndNode && i == r.EndOffset {
				return true
			}
			if c == nil {
				return false
			}
			if walk(c) {
				return true
			}
			i++
		}
	}
	walk(root)
	return b.String()
}

// wrap moves the contents of r into a new marker element inserted where the
// contents were. Every check runs before the first mutation.
func wrap(r Range) error {
	s, so, e, eo := r.StartNode, r.StartOffset, r.EndNode, r.EndOffset
	if s == nil || e == nil || !validPoint(s, so) || !validPoint(e, eo) {
		return ErrInvalidRange
	}
	ca := commonAncestor(s, e)
	if ca == nil {
		return ErrInvalidRange
	}

	if ca.Type == html.TextNode {
		if so > eo {
			return ErrInvalidRange
		}
		if ca.Parent == nil {
			return ErrNotWrappable
		}
		if so > 0 {
			s = split(s, so)
			eo -= so
		}
		if eo < len(s.Data) {
			split(s, eo)
		}
		parent := s.Parent
		span := newMarker()
		parent.InsertBefore(span, s)
		parent.RemoveChild(s)
		span.AppendChild(s)
		return nil
	}

	if !boundaryOK(s, ca) || !boundaryOK(e, ca) {
		return ErrNotWrappable
	}
	si, ss := position(s, so, ca)
	ei, es := position(e, eo, ca)
	if si > ei || (si == ei && ss > es) {
		return ErrInvalidRange
	}

	var endRef *html.Node
	if e == ca {
		endRef = childAt(ca, eo)
	} else {
		endRef = textRef(e, eo)
	}
	var startRef *html.Node
	if s == ca {
		startRef = childAt(ca, so)
	} else {
		startRef = textRef(s, so)
	}

	span := newMarker()
	for n := startRef; n != endRef; {
		next := n.NextSibling
		ca.RemoveChild(n)
		span.AppendChild(n)
		n = next
	}
	ca.InsertBefore(span, endRef)
	return nil
}

// boundaryOK reports whether a boundary container leaves no element
// partially covered: it is the common ancestor itself or a text node
// directly under it.
func boundaryOK(n, ca *html.Node) bool {
	return n == ca || (n.Type == html.TextNode && n.Parent == ca)
}

// position locates a boundary point among the children of ca as
// (child index, offset inside that child).
func position(n *html.Node, off int, ca *html.Node) (int, int) {
	if n == ca {
		return off, 0
	}
	return indexOf(n), off
}

// textRef returns the child of n's parent the boundary sits before, splitting
// n when the boundary falls inside it.
func textRef(n *html.Node, off int) *html.Node {
	switch off {
	case 0:
		return n
	case len(n.Data):
		return n.NextSibling
	}
	return split(n, off)
}

// split cuts a text node at off and returns the new node holding the tail.
func split(n *html.Node, off int) *html.Node {
	tail := &html.Node{Type: html.TextNode, Data: n.Data[off:]}
	n.Data = n.Data[:off]
	n.Parent.InsertBefore(tail, n.NextSibling)
	return tail
}

func validPoint(n *html.Node, off int) bool {
	if off < 0 {
		return false
	}
	if n.Type == html.TextNode {
		return off <= len(n.Data) && (off == len(n.Data) || utf8.RuneStart(n.Data[off]))
	}
	return off <= childCount(n)
}

func commonAncestor(a, b *html.Node) *html.Node {
	seen := make(map[*html.Node]bool)
	for n := a; n != nil; n = n.Parent {
		seen[n] = true
	}
	for n := b; n != nil; n = n.Parent {
		if seen[n] {
			return n
		}
	}
	return nil
}

func childAt(n *html.Node, i int) *html.Node {
	c := n.FirstChild
	for ; c != nil && i > 0; i-- {
		c = c.NextSibling
	}
	return c
}

func childCount(n *html.Node) int {
	k := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		k++
	}
	return k
}

func indexOf(n *html.Node) int {
	i := 0
	for c := n.PrevSibling; c != nil; c = c.PrevSibling {
		i++
	}
	return i
}
