// Package metadata validates METADATA block bodies against their declared
// MIME type. Only types with a cheap syntax check are validated; anything
// else passes through untouched.
package metadata

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"mclsp/internal/diag"
	"mclsp/internal/document"
)

// MIMEToLanguageID maps a METADATA MIME type to an editor language
// identifier, or "" when unknown.
func MIMEToLanguageID(mime string) string {
	switch mime {
	case "application/json", "text/json":
		return "json"
	case "text/x-yaml", "text/yaml", "application/x-yaml":
		return "yaml"
	case "text/xml", "application/xml":
		return "xml"
	case "text/x-csrc", "text/x-c":
		return "c"
	default:
		return ""
	}
}

// Validate checks every METADATA block of doc and returns one positioned
// error diagnostic per malformed body. Unknown MIME types are skipped.
func Validate(doc *document.Document) []diag.Diagnostic {
	if doc == nil || doc.Def == nil {
		return nil
	}
	var out []diag.Diagnostic
	for _, block := range doc.Def.Metadata {
		msg := ""
		switch MIMEToLanguageID(block.MIME) {
		case "json":
			if err := validateJSON(block.Content); err != nil {
				msg = fmt.Sprintf("METADATA %s: invalid JSON: %v", block.Name, err)
			}
		case "yaml":
			if err := validateYAML(block.Content); err != nil {
				msg = fmt.Sprintf("METADATA %s: invalid YAML: %v", block.Name, err)
			}
		}
		if msg == "" {
			continue
		}
		out = append(out, diag.Diagnostic{
			File:     doc.URI,
			Line:     block.BodyLine - 1,
			Col:      0,
			Severity: diag.SevError,
			Source:   "mclsp",
			Message:  msg,
		})
	}
	return out
}

func validateJSON(content string) error {
	var v any
	return json.Unmarshal([]byte(content), &v)
}

func validateYAML(content string) error {
	var v any
	return yaml.Unmarshal([]byte(content), &v)
}
