package cbridge

import (
	"errors"
	"strings"
	"testing"

	"mclsp/internal/diag"
)

func TestSemanticDiagnosticUnknownComponent(t *testing.T) {
	source := "DEFINE INSTRUMENT U()\nTRACE\nCOMPONENT bad = Warp_drive()\nAT (0,0,0) ABSOLUTE\nEND\n"
	err := errors.New(`component type "Warp_drive" is not known`)
	d := SemanticDiagnostic("/ws/u.instr", source, err)
	if d.Severity != diag.SevError {
		t.Errorf("severity = %v", d.Severity)
	}
	if d.Line != 2 {
		t.Errorf("line = %d, want 2", d.Line)
	}
	// "COMPONENT bad = Warp_drive()" -- the type token starts at column 16.
	if d.Col != 16 {
		t.Errorf("col = %d, want 16", d.Col)
	}
	if d.EndCol != 16+len("Warp_drive") {
		t.Errorf("end col = %d", d.EndCol)
	}
}

func TestSemanticDiagnosticUnknownParameter(t *testing.T) {
	source := "DEFINE INSTRUMENT U()\nTRACE\nCOMPONENT g = Guide(warp = 9)\nAT (0,0,0) ABSOLUTE\nEND\n"
	err := errors.New(`parameter "warp" is not known for component "Guide"`)
	d := SemanticDiagnostic("/ws/u.instr", source, err)
	if d.Line != 2 {
		t.Errorf("line = %d, want 2", d.Line)
	}
	if d.Col != strings.Index("COMPONENT g = Guide(warp = 9)", "warp") {
		t.Errorf("col = %d", d.Col)
	}
}

func TestSemanticDiagnosticUnmatchedError(t *testing.T) {
	d := SemanticDiagnostic("/ws/u.instr", "whatever", errors.New("totally novel failure"))
	if d.Line != 0 || d.Col != 0 {
		t.Errorf("fallback position = %d:%d, want 0:0", d.Line, d.Col)
	}
	if d.Message != "totally novel failure" {
		t.Errorf("message = %q", d.Message)
	}
}
