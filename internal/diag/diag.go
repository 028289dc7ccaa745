// Package diag defines the diagnostic model shared by the parser, the
// translation bridge and the language server. Diagnostics are plain data:
// collection, ordering and publication live with the callers.
package diag

// Severity defines the importance of a diagnostic.
type Severity uint8

const (
	// SevHint is for checker notes and other low-priority remarks.
	SevHint Severity = iota
	// SevInfo is for informational diagnostics.
	SevInfo
	// SevWarning is for warning diagnostics.
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevHint:
		return "HINT"
	case SevInfo:
		return "INFO"
	case SevWarning:
		return "WARNING"
	case SevError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// LSP reports the Language Server Protocol severity number.
func (s Severity) LSP() int {
	switch s {
	case SevError:
		return 1
	case SevWarning:
		return 2
	case SevInfo:
		return 3
	default:
		return 4
	}
}

// Diagnostic is one finding positioned in a source document. Line and Col
// are 0-based, the protocol convention; producers working in the 1-based
// convention of line markers convert at the boundary.
type Diagnostic struct {
	File     string
	Line     int
	Col      int
	EndLine  int
	EndCol   int
	Severity Severity
	Code     string
	Source   string
	Message  string
}
