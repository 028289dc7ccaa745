// Package cbridge maintains the bidirectional bridge between an
// instrument document and the C text generated from it: region extraction
// from line markers, position mapping in both directions, on-disk
// persistence of the generated text and the external syntax check.
package cbridge

import (
	"regexp"
	"strconv"
	"strings"
)

// Region is one contiguous run of generated lines copied verbatim from the
// source document. All line numbers are 1-based and inclusive. Section and
// Label are best-effort tags taken from the attribution comment the
// translator writes before each marker; they may be empty and nothing
// downstream depends on them.
type Region struct {
	Section            string `json:"section,omitempty"`
	Label              string `json:"label,omitempty"`
	SourceStartLine    int    `json:"sourceStartLine"`
	SourceEndLine      int    `json:"sourceEndLine"`
	GeneratedStartLine int    `json:"generatedStartLine"`
	GeneratedEndLine   int    `json:"generatedEndLine"`
	Content            string `json:"content"`
}

// SourceLines is the number of source lines the region covers.
func (r Region) SourceLines() int { return r.SourceEndLine - r.SourceStartLine + 1 }

// ContainsSource reports whether the 1-based source line falls inside r.
func (r Region) ContainsSource(line int) bool {
	return line >= r.SourceStartLine && line <= r.SourceEndLine
}

// ContainsGenerated reports whether the 1-based generated line falls inside r.
func (r Region) ContainsGenerated(line int) bool {
	return line >= r.GeneratedStartLine && line <= r.GeneratedEndLine
}

var lineMarkerRe = regexp.MustCompile(`^\s*#line\s+(\d+)\s+"([^"]*)"`)

// regionTagRe matches the attribution comment emitted on the line before a
// marker: /* region: SECTION label */
var regionTagRe = regexp.MustCompile(`^\s*/\* region: (\S+)(?:\s+(.*?))?\s*\*/\s*$`)

// ExtractRegions scans generated text for #line markers naming sourceFile
// and returns the regions they open, in generated order. A region spans
// from the line after its marker to the line before the next marker of any
// file, or the end of the text. Regions that contain only blank lines are
// dropped.
func ExtractRegions(generated, sourceFile string) []Region {
	lines := strings.Split(generated, "\n")
	var regions []Region
	open := false // a region for sourceFile is being extended
	srcAt := 0    // source line the open region started at
	genAt := 0    // generated line the open region started at
	blank := true // open region has seen no non-blank line yet
	var section, label string

	closeOpen := func(lastGen int) {
		if !open {
			return
		}
		open = false
		if blank || lastGen < genAt {
			return
		}
		regions = append(regions, Region{
			Section:            section,
			Label:              label,
			SourceStartLine:    srcAt,
			SourceEndLine:      srcAt + (lastGen - genAt),
			GeneratedStartLine: genAt,
			GeneratedEndLine:   lastGen,
			Content:            strings.Join(lines[genAt-1:lastGen], "\n"),
		})
	}

	for i, line := range lines {
		gen := i + 1 // 1-based
		m := lineMarkerRe.FindStringSubmatch(line)
		if m == nil {
			if open && strings.TrimSpace(line) != "" {
				blank = false
			}
			continue
		}
		closeOpen(gen - 1)
		if m[2] != sourceFile {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			continue
		}
		open, srcAt, genAt, blank = true, n, gen+1, true
		section, label = "", ""
		if i > 0 {
			if tag := regionTagRe.FindStringSubmatch(lines[i-1]); tag != nil {
				section, label = tag[1], tag[2]
			}
		}
	}
	closeOpen(len(lines))
	return regions
}
