package dom

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Snapshot is a parsed HTML page snapshot implementing Document. Replay
// resolves locator strings against it; tests use it to build element trees.
type Snapshot struct {
	root *html.Node
}

// ParseSnapshot parses an HTML document into a queryable snapshot.
func ParseSnapshot(r io.Reader) (*Snapshot, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML snapshot: %w", err)
	}
	return &Snapshot{root: root}, nil
}

// ParseSnapshotString parses an HTML document held in a string.
func ParseSnapshotString(s string) (*Snapshot, error) {
	return ParseSnapshot(strings.NewReader(s))
}

// Query returns all elements matching the locator, in document order.
// The sentinels "window" and "html" resolve to the root element.
func (s *Snapshot) Query(selector string) []Element {
	if selector == "" {
		return nil
	}
	if selector == RootSelector || selector == "window" {
		if root := s.findRoot(); root != nil {
			return []Element{root}
		}
		return nil
	}

	var matches []Element
	s.walk(s.root, func(el *htmlElement) {
		if MatchesSelector(el, selector) {
			matches = append(matches, el)
		}
	})
	return matches
}

func (s *Snapshot) findRoot() Element {
	var root Element
	s.walk(s.root, func(el *htmlElement) {
		if root == nil && el.Tag() == "html" {
			root = el
		}
	})
	return root
}

func (s *Snapshot) walk(n *html.Node, visit func(*htmlElement)) {
	if n.Type == html.ElementNode {
		visit(&htmlElement{node: n})
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		s.walk(c, visit)
	}
}

// htmlElement adapts an html.Node to the Element interface.
type htmlElement struct {
	node *html.Node
}

func (e *htmlElement) Tag() string {
	return strings.ToLower(e.node.Data)
}

func (e *htmlElement) ID() string {
	return e.Attr("id")
}

func (e *htmlElement) Classes() []string {
	return strings.Fields(e.Attr("class"))
}

func (e *htmlElement) Attr(name string) string {
	for _, a := range e.node.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func (e *htmlElement) Parent() Element {
	for p := e.node.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode {
			return &htmlElement{node: p}
		}
	}
	return nil
}
