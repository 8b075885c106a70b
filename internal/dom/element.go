// Package dom provides the element abstraction the capture and replay
// pipelines use to talk about page structure, the selector resolver that
// derives stable locator strings, and an HTML snapshot adapter for querying
// them back.
package dom

// Element is a node in an observed page. The host supplies the concrete
// implementation; the core never installs DOM hooks itself.
type Element interface {
	// Tag returns the lowercase tag name.
	Tag() string
	// ID returns the element's id attribute, or "" when absent.
	ID() string
	// Classes returns the normalized class tokens.
	Classes() []string
	// Attr returns the value of the named attribute, or "".
	Attr(name string) string
	// Parent returns the parent element, or nil at the root.
	Parent() Element
}

// Document resolves locator strings back to elements in a live page or a
// page snapshot. A locator is advisory, not guaranteed unique: Query may
// return zero, one, or several matches.
type Document interface {
	Query(selector string) []Element
}
