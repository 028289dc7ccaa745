// Package mcdoc extracts the structured documentation header McCode
// components conventionally carry: an identification section (%I) with a
// short description, a long description (%D) and per-parameter docs (%P).
package mcdoc

import (
	"regexp"
	"strings"
)

// ParamDoc documents one component parameter.
type ParamDoc struct {
	Unit string
	Text string
}

// Doc is the parsed documentation header of a component source.
type Doc struct {
	Short       string
	Category    string
	Description string
	Params      map[string]ParamDoc
}

var categoryRe = regexp.MustCompile(`(?i)^category\s*:\s*(.+)$`)

// Lines like "Written by: ..." carry authorship metadata, not description.
var metaLineRe = regexp.MustCompile(`(?i)^\s*(written by|author|date|origin|version|modified by|release)\s*:`)

// "name: [unit] text" or "name: text"
var paramDocRe = regexp.MustCompile(`^\s*(\w+)\s*:\s*(?:\[([^\]]*)\]\s*)?(.*)$`)

var sectionRe = regexp.MustCompile(`^%\s*([A-Za-z]+)`)

// Parse reads the leading comment of source. Both /* */ block headers and
// runs of // line comments are accepted; a missing header yields an empty
// Doc, never an error.
func Parse(source string) Doc {
	doc := Doc{Params: map[string]ParamDoc{}}
	lines := headerLines(source)
	if len(lines) == 0 {
		return doc
	}

	section := "I"
	var short, desc []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if m := sectionRe.FindStringSubmatch(trimmed); m != nil {
			switch strings.ToUpper(m[1][:1]) {
			case "I", "D", "P", "E":
				section = strings.ToUpper(m[1][:1])
			}
			continue
		}
		switch section {
		case "I":
			if trimmed == "" || metaLineRe.MatchString(trimmed) {
				continue
			}
			if m := categoryRe.FindStringSubmatch(trimmed); m != nil {
				doc.Category = strings.TrimSpace(m[1])
				continue
			}
			if rest, ok := strings.CutPrefix(trimmed, "Component:"); ok {
				trimmed = strings.TrimSpace(rest)
				if trimmed == "" {
					continue
				}
			}
			short = append(short, trimmed)
		case "D":
			desc = append(desc, trimmed)
		case "P":
			if trimmed == "" {
				continue
			}
			if m := paramDocRe.FindStringSubmatch(trimmed); m != nil {
				doc.Params[m[1]] = ParamDoc{Unit: m[2], Text: strings.TrimSpace(m[3])}
			}
		case "E":
			// done
		}
	}
	doc.Short = strings.Join(short, " ")
	doc.Description = strings.TrimSpace(strings.Join(desc, "\n"))
	return doc
}

// headerLines returns the comment lines leading the source with comment
// punctuation stripped.
func headerLines(source string) []string {
	trimmed := strings.TrimLeft(source, " \t\r\n")
	if strings.HasPrefix(trimmed, "/*") {
		end := strings.Index(trimmed, "*/")
		if end < 0 {
			return nil
		}
		raw := strings.Split(trimmed[2:end], "\n")
		out := make([]string, 0, len(raw))
		for _, line := range raw {
			line = strings.TrimSpace(line)
			line = strings.TrimLeft(line, "*")
			if strings.Trim(line, "* ") == "" && strings.Contains(line, "*") {
				continue // decoration rows
			}
			out = append(out, strings.TrimPrefix(line, " "))
		}
		return out
	}
	var out []string
	for _, line := range strings.Split(trimmed, "\n") {
		t := strings.TrimSpace(line)
		if !strings.HasPrefix(t, "//") {
			break
		}
		out = append(out, strings.TrimSpace(strings.TrimPrefix(t, "//")))
	}
	return out
}
