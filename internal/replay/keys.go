package replay

import (
	"unicode/utf8"

	"github.com/NGWS-CD/forensic-final/internal/dom"
	"github.com/NGWS-CD/forensic-final/internal/schema"
)

// TextOpKind classifies keystroke-level text operations.
type TextOpKind string

const (
	// TextInsert inserts a character at the cursor position.
	TextInsert TextOpKind = "insert"
	// TextBackspace deletes the character before the cursor.
	TextBackspace TextOpKind = "backspace"
	// TextSubmit submits the enclosing form (Enter on an input).
	TextSubmit TextOpKind = "submit"
	// TextNewline inserts a line break (Enter in a textarea).
	TextNewline TextOpKind = "newline"
	// TextFocusNext advances focus to the next focusable element (Tab).
	TextFocusNext TextOpKind = "focus-next"
)

// TextOp is one text-entry operation synthesized from a recorded key code.
// Keystroke edits cannot be recovered from the final field value, so replay
// reconstructs them from the keys themselves.
type TextOp struct {
	Kind TextOpKind
	Char string // set for TextInsert
}

// TextOpFor derives the text operation for a keydown event, if any. Keys
// with no text effect (modifiers, arrows) report false.
func TextOpFor(ev *schema.Event, target dom.Element) (TextOp, bool) {
	key, _ := ev.Payload["key"].(string)
	if key == "" {
		return TextOp{}, false
	}

	switch key {
	case "Backspace":
		return TextOp{Kind: TextBackspace}, true
	case "Enter":
		if target != nil && target.Tag() == "textarea" {
			return TextOp{Kind: TextNewline}, true
		}
		return TextOp{Kind: TextSubmit}, true
	case "Tab":
		return TextOp{Kind: TextFocusNext}, true
	}

	// Printable keys arrive as the single character they produce; named
	// keys ("Shift", "ArrowLeft", ...) are longer and have no text effect.
	if utf8.RuneCountInString(key) == 1 {
		return TextOp{Kind: TextInsert, Char: key}, true
	}

	return TextOp{}, false
}
