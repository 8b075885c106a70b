package dom

import (
	"strings"
)

// RootSelector is the sentinel locator for the document root and for nil
// input.
const RootSelector = "html"

// maxAncestors bounds how far Resolve walks up from the element.
const maxAncestors = 3

// Resolve derives a human-readable locator string for an element. It is a
// pure function of the current structure: tag name, then id (which stops
// further ascent) or class tokens, with up to three ancestor qualifiers
// joined by the descendant combinator. An id-qualified ancestor
// short-circuits the walk.
func Resolve(el Element) string {
	if el == nil || el.Tag() == "html" {
		return RootSelector
	}

	segments := []string{segmentFor(el)}
	if el.ID() != "" {
		return segments[0]
	}

	parent := el.Parent()
	for depth := 0; depth < maxAncestors && parent != nil; depth++ {
		if parent.Tag() == "html" {
			break
		}
		segments = append([]string{segmentFor(parent)}, segments...)
		if parent.ID() != "" {
			break
		}
		parent = parent.Parent()
	}

	return strings.Join(segments, " ")
}

func segmentFor(el Element) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(el.Tag()))

	if id := el.ID(); id != "" {
		b.WriteByte('#')
		b.WriteString(id)
		return b.String()
	}

	for _, class := range el.Classes() {
		class = strings.TrimSpace(class)
		if class == "" {
			continue
		}
		b.WriteByte('.')
		b.WriteString(class)
	}
	return b.String()
}

// selectorSegment is one parsed segment of a locator string.
type selectorSegment struct {
	tag     string
	id      string
	classes []string
}

// parseSelector splits a locator into its descendant segments. The grammar
// is exactly what Resolve produces: tag, tag#id, tag.a.b, separated by
// spaces.
func parseSelector(selector string) []selectorSegment {
	fields := strings.Fields(selector)
	segments := make([]selectorSegment, 0, len(fields))
	for _, f := range fields {
		segments = append(segments, parseSegment(f))
	}
	return segments
}

func parseSegment(s string) selectorSegment {
	var seg selectorSegment

	if i := strings.IndexByte(s, '#'); i >= 0 {
		seg.tag = s[:i]
		seg.id = s[i+1:]
		return seg
	}

	parts := strings.Split(s, ".")
	seg.tag = parts[0]
	for _, c := range parts[1:] {
		if c != "" {
			seg.classes = append(seg.classes, c)
		}
	}
	return seg
}

// matches reports whether a single element satisfies one segment.
func (seg selectorSegment) matches(el Element) bool {
	if seg.tag != "" && seg.tag != el.Tag() {
		return false
	}
	if seg.id != "" && seg.id != el.ID() {
		return false
	}
	for _, want := range seg.classes {
		found := false
		for _, have := range el.Classes() {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// MatchesSelector reports whether an element (with its ancestor chain)
// satisfies a locator string.
func MatchesSelector(el Element, selector string) bool {
	segments := parseSelector(selector)
	if len(segments) == 0 {
		return false
	}

	last := segments[len(segments)-1]
	if !last.matches(el) {
		return false
	}

	// Remaining segments must match ancestors in order, descendant
	// combinator semantics: any gap is allowed.
	idx := len(segments) - 2
	for parent := el.Parent(); parent != nil && idx >= 0; parent = parent.Parent() {
		if segments[idx].matches(parent) {
			idx--
		}
	}
	return idx < 0
}
