// Package dom is a thin adapter over golang.org/x/net/html documents.
// Queries are XPath (antchfx/htmlquery); mutations operate on nodes in place.
//
// Nothing here is safe for concurrent use. Callers serialize access to a
// document, the same way a browser confines DOM work to its main thread.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Parse parses an HTML document or fragment. Fragments are wrapped in
// html/head/body the way a browser's DOMParser would.
func Parse(r io.Reader) (*html.Node, error) {
	doc, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	return doc, nil
}

// ParseString parses HTML text.
func ParseString(s string) (*html.Node, error) {
	return Parse(strings.NewReader(s))
}

// Literal quotes s as an XPath string literal.
func Literal(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}

// One returns the first node matching expr under top, or nil.
// Invalid expressions are programming errors and yield nil.
func One(top *html.Node, expr string) *html.Node {
	if top == nil {
		return nil
	}
	n, err := htmlquery.Query(top, expr)
	if err != nil {
		return nil
	}
	return n
}

// All returns every node matching expr under top, in document order.
func All(top *html.Node, expr string) []*html.Node {
	if top == nil {
		return nil
	}
	nodes, err := htmlquery.QueryAll(top, expr)
	if err != nil {
		return nil
	}
	return nodes
}

// ByID finds the element with the given id under top.
func ByID(top *html.Node, id string) *html.Node {
	return One(top, "descendant-or-self::*[@id="+Literal(id)+"]")
}

// Attr returns an attribute value and whether it is present.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// AttrOr returns an attribute value or def when absent.
func AttrOr(n *html.Node, key, def string) string {
	if v, ok := Attr(n, key); ok {
		return v
	}
	return def
}

// HasAttr reports whether a boolean attribute such as disabled is present.
func HasAttr(n *html.Node, key string) bool {
	_, ok := Attr(n, key)
	return ok
}

// SetAttr sets or replaces an attribute.
func SetAttr(n *html.Node, key, val string) {
	if n == nil {
		return
	}
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes an attribute if present.
func RemoveAttr(n *html.Node, key string) {
	if n == nil {
		return
	}
	n.Attr = slices.DeleteFunc(n.Attr, func(a html.Attribute) bool {
		return a.Namespace == "" && a.Key == key
	})
}

// ToggleAttr adds a valueless attribute when on, removes it otherwise.
func ToggleAttr(n *html.Node, key string, on bool) {
	if on {
		SetAttr(n, key, "")
		return
	}
	RemoveAttr(n, key)
}

// Classes returns the element's class list.
func Classes(n *html.Node) []string {
	return strings.Fields(AttrOr(n, "class", ""))
}

// HasClass reports whether the element carries class c.
func HasClass(n *html.Node, c string) bool {
	return slices.Contains(Classes(n), c)
}

// ToggleClass adds c when on, removes it otherwise.
func ToggleClass(n *html.Node, c string, on bool) {
	if n == nil {
		return
	}
	classes := Classes(n)
	has := slices.Contains(classes, c)
	switch {
	case on && !has:
		classes = append(classes, c)
	case !on && has:
		classes = slices.DeleteFunc(classes, func(s string) bool { return s == c })
	default:
		return
	}
	if len(classes) == 0 {
		RemoveAttr(n, "class")
		return
	}
	SetAttr(n, "class", strings.Join(classes, " "))
}

// Text returns the concatenated text content of n.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	return htmlquery.InnerText(n)
}

// SetText replaces n's children with a single text node.
func SetText(n *html.Node, text string) {
	if n == nil {
		return
	}
	RemoveChildren(n)
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// InnerHTML renders n's children.
func InnerHTML(n *html.Node) string {
	if n == nil {
		return ""
	}
	return htmlquery.OutputHTML(n, false)
}

// OuterHTML renders n itself.
func OuterHTML(n *html.Node) string {
	if n == nil {
		return ""
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

// RemoveChildren detaches every child of n.
func RemoveChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
}

// Detach removes n from its parent, if any.
func Detach(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// CopyChildren replaces dst's children with deep copies of src's children.
// Equivalent to dst.innerHTML = src.innerHTML without a serialize round trip.
func CopyChildren(dst, src *html.Node) {
	if dst == nil || src == nil {
		return
	}
	RemoveChildren(dst)
	for c := src.FirstChild; c != nil; c = c.NextSibling {
		dst.AppendChild(Clone(c))
	}
}

// Replace swaps old for a deep copy of repl in old's parent and returns
// the inserted node.
func Replace(old, repl *html.Node) *html.Node {
	if old == nil || repl == nil || old.Parent == nil {
		return nil
	}
	clone := Clone(repl)
	old.Parent.InsertBefore(clone, old)
	old.Parent.RemoveChild(old)
	return clone
}

// Clone deep-copies n. The copy is detached.
func Clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      slices.Clone(n.Attr),
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(Clone(child))
	}
	return c
}

// Contains reports whether n is root or one of its descendants.
func Contains(root, n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == root {
			return true
		}
	}
	return false
}

// HasClassExpr is an XPath predicate body matching elements with class c.
func HasClassExpr(c string) string {
	return "contains(concat(' ', normalize-space(@class), ' '), " + Literal(" "+c+" ") + ")"
}

// ByClass returns the first element under top carrying class c.
func ByClass(top *html.Node, c string) *html.Node {
	return One(top, ".//*["+HasClassExpr(c)+"]")
}
