package lsp

import (
	"strings"
	"unicode/utf8"
)

// applyChanges folds a didChange batch into the stored text. A change
// without a range replaces the whole document; ranged edits address UTF-16
// positions per the protocol, which matters for instrument files carrying
// non-ASCII comments or string parameters.
func applyChanges(text string, changes []textDocumentContentChangeEvent) string {
	for _, change := range changes {
		if change.Range == nil {
			text = change.Text
			continue
		}
		start := offsetForPosition(text, change.Range.Start)
		end := offsetForPosition(text, change.Range.End)
		start = min(max(start, 0), len(text))
		end = min(max(end, start), len(text))
		text = text[:start] + change.Text + text[end:]
	}
	return text
}

// offsetForPosition resolves a protocol position to a byte offset.
// Positions past the end of a line or of the document clamp instead of
// failing, matching how editors send edits at EOF.
func offsetForPosition(text string, pos position) int {
	if pos.Line < 0 || pos.Character < 0 {
		return 0
	}
	i := 0
	for line := 0; line < pos.Line; line++ {
		next := strings.IndexByte(text[i:], '\n')
		if next < 0 {
			return len(text)
		}
		i += next + 1
	}
	utf16Units := 0
	for i < len(text) && text[i] != '\n' {
		r, size := utf8.DecodeRuneInString(text[i:])
		need := 1
		if r > 0xFFFF {
			need = 2
		}
		if utf16Units+need > pos.Character {
			break
		}
		utf16Units += need
		i += size
		if utf16Units == pos.Character {
			break
		}
	}
	return i
}
