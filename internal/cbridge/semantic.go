package cbridge

import (
	"regexp"
	"strings"

	"mclsp/internal/diag"
)

// semanticPatterns recognize translation errors that name an offending
// token and relocate the diagnostic onto that token in the source text.
// Errors no pattern matches land on the first line of the document.
var semanticPatterns = []struct {
	re     *regexp.Regexp
	locate func(m []string, source string) (line, col, length int, ok bool)
}{
	{
		re: regexp.MustCompile(`component type "([^"]+)" is not known`),
		locate: func(m []string, source string) (int, int, int, bool) {
			return findToken(source, regexp.MustCompile(`=\s*(`+regexp.QuoteMeta(m[1])+`)\b`))
		},
	},
	{
		re: regexp.MustCompile(`parameter "([^"]+)" is not known for component "([^"]+)"`),
		locate: func(m []string, source string) (int, int, int, bool) {
			return findToken(source, regexp.MustCompile(`\b(`+regexp.QuoteMeta(m[1])+`)\s*=`))
		},
	},
}

// findToken returns the 0-based position and length of the first capture
// group's first match in source.
func findToken(source string, re *regexp.Regexp) (line, col, length int, ok bool) {
	for i, l := range strings.Split(source, "\n") {
		if loc := re.FindStringSubmatchIndex(l); loc != nil {
			return i, loc[2], loc[3] - loc[2], true
		}
	}
	return 0, 0, 0, false
}

// SemanticDiagnostic turns a translation error into a diagnostic anchored
// at the token the error names, when it can be found in source.
func SemanticDiagnostic(file, source string, err error) diag.Diagnostic {
	msg := err.Error()
	d := diag.Diagnostic{
		File:     file,
		Severity: diag.SevError,
		Source:   "mclsp",
		Message:  msg,
	}
	for _, p := range semanticPatterns {
		m := p.re.FindStringSubmatch(msg)
		if m == nil {
			continue
		}
		if line, col, length, ok := p.locate(m, source); ok {
			d.Line, d.Col = line, col
			d.EndLine, d.EndCol = line, col+length
		}
		return d
	}
	return d
}
