package document

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	defineInstrRe = regexp.MustCompile(`(?i)^\s*DEFINE\s+INSTRUMENT\s+(\w+)\s*(\(?)`)
	defineCompRe  = regexp.MustCompile(`(?i)^\s*DEFINE\s+COMPONENT\s+(\w+)`)
	paramsRe      = regexp.MustCompile(`(?i)^\s*(DEFINITION|SETTING|OUTPUT)\s+PARAMETERS\s*\(`)
	sectionRe     = regexp.MustCompile(`(?i)^\s*(DECLARE|USERVARS|SHARE|INITIALIZE|TRACE|SAVE|FINALLY|DISPLAY)\b`)
	metadataRe    = regexp.MustCompile(`(?i)^\s*METADATA\s+"([^"]*)"\s+(\w+)`)
	componentRe   = regexp.MustCompile(`(?i)^\s*(?:SPLIT\s+)?COMPONENT\s+(\w+)\s*=\s*(\w+)\s*(\(?)`)
	placementRe   = regexp.MustCompile(`(?i)^\s*(AT|ROTATED)\b`)
	extendRe      = regexp.MustCompile(`(?i)^\s*EXTEND\b`)
	searchRe      = regexp.MustCompile(`(?i)^\s*SEARCH\s+(SHELL\s+)?"([^"]*)"`)
	endRe         = regexp.MustCompile(`(?i)^\s*END\b`)
	blockOpenRe   = regexp.MustCompile(`%\{`)
	blockCloseRe  = regexp.MustCompile(`%\}`)
)

type scanner struct {
	lines []string
	kind  Kind
	def   *Definition
	errs  []ParseError
}

// scan walks the source line by line. It is deliberately forgiving: every
// construct it does not recognize is skipped, and errors accumulate instead
// of aborting, so a half-typed document still yields a usable Definition.
func scan(source string, kind Kind) (*Definition, []ParseError) {
	s := &scanner{
		lines: strings.Split(source, "\n"),
		kind:  kind,
		def:   &Definition{},
	}
	s.run()
	return s.def, s.errs
}

func (s *scanner) errorf(line, col int, format string, args ...any) {
	s.errs = append(s.errs, ParseError{Line: line, Col: col, Message: fmt.Sprintf(format, args...)})
}

func (s *scanner) run() {
	sawDefine := false
	sawEnd := false
	i := 0
	for i < len(s.lines) {
		line := s.lines[i]
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "//"):
			i++
		case endRe.MatchString(line):
			sawEnd = true
			i = len(s.lines)
		case defineInstrRe.MatchString(line):
			sawDefine = true
			i = s.scanInstrumentHeader(i)
		case defineCompRe.MatchString(line):
			sawDefine = true
			m := defineCompRe.FindStringSubmatch(line)
			s.def.Name = m[1]
			i++
		case paramsRe.MatchString(line):
			i = s.scanParamList(i)
		case metadataRe.MatchString(line):
			i = s.scanMetadata(i)
		case searchRe.MatchString(line):
			m := searchRe.FindStringSubmatch(line)
			if m[1] == "" && m[2] != "" {
				// SEARCH SHELL output is not evaluated here; only literal
				// directory directives extend the search path.
				s.def.SearchDirs = append(s.def.SearchDirs, m[2])
			}
			i++
		case s.kind == KindInstrument && componentRe.MatchString(line):
			i = s.scanInstance(i)
		case sectionRe.MatchString(line):
			i = s.scanSection(i)
		default:
			i++
		}
	}
	if !sawDefine {
		s.errorf(1, 0, "missing DEFINE %s header", strings.ToUpper(s.kind.String()))
	}
	if !sawEnd {
		s.errorf(len(s.lines), 0, "missing END")
	}
}

func (s *scanner) scanInstrumentHeader(i int) int {
	line := s.lines[i]
	m := defineInstrRe.FindStringSubmatch(line)
	s.def.Name = m[1]
	if m[2] == "" {
		// Headerless parameter list is legal: DEFINE INSTRUMENT Name
		return i + 1
	}
	open := strings.Index(line, "(")
	text, next, ok := s.collectParen(i, open)
	if !ok {
		s.errorf(i+1, open, "unterminated parameter list for instrument %s", s.def.Name)
		return next
	}
	s.def.Params = parseParams(text)
	return next
}

func (s *scanner) scanParamList(i int) int {
	line := s.lines[i]
	m := paramsRe.FindStringSubmatch(line)
	open := strings.Index(line, "(")
	text, next, ok := s.collectParen(i, open)
	if !ok {
		s.errorf(i+1, open, "unterminated %s PARAMETERS list", strings.ToUpper(m[1]))
		return next
	}
	params := parseParams(text)
	switch strings.ToUpper(m[1]) {
	case "DEFINITION":
		s.def.DefParams = append(s.def.DefParams, params...)
	case "SETTING":
		s.def.Params = append(s.def.Params, params...)
	}
	// OUTPUT parameters carry no defaults the bridge cares about.
	return next
}

func (s *scanner) scanSection(i int) int {
	m := sectionRe.FindStringSubmatch(s.lines[i])
	section := strings.ToUpper(m[1])
	if s.kind == KindInstrument && section == "TRACE" {
		// Instrument TRACE is a sequence of COMPONENT statements handled by
		// the main loop, not a code block.
		return i + 1
	}
	block, next, ok := s.collectBlock(i)
	if !ok {
		return next
	}
	block.Section = section
	s.def.Blocks = append(s.def.Blocks, *block)
	return next
}

func (s *scanner) scanMetadata(i int) int {
	m := metadataRe.FindStringSubmatch(s.lines[i])
	block, next, ok := s.collectBlock(i)
	if !ok {
		return next
	}
	s.def.Metadata = append(s.def.Metadata, MetadataBlock{
		MIME:     m[1],
		Name:     m[2],
		BodyLine: block.BodyLine,
		Content:  block.Content,
	})
	return next
}

func (s *scanner) scanInstance(i int) int {
	line := s.lines[i]
	m := componentRe.FindStringSubmatch(line)
	inst := Instance{
		Name: m[1],
		Type: m[2],
		Line: i + 1,
	}
	next := i + 1
	if m[3] == "(" {
		open := strings.Index(line, "(")
		text, after, ok := s.collectParen(i, open)
		if !ok {
			s.errorf(i+1, open, "unterminated argument list for component %s", inst.Name)
			s.def.Instances = append(s.def.Instances, inst)
			return after
		}
		inst.Args = parseArgs(text)
		next = after
	}
	// Trailing clauses: AT/ROTATED placement, WHEN, GROUP, EXTEND.
	for next < len(s.lines) {
		rest := s.lines[next]
		trimmed := strings.TrimSpace(rest)
		switch {
		case trimmed == "" || strings.HasPrefix(trimmed, "//"):
			next++
		case placementRe.MatchString(rest):
			inst.HasPlacement = true
			next++
		case extendRe.MatchString(rest):
			block, after, ok := s.collectBlock(next)
			if ok {
				block.Section = "EXTEND"
				inst.Extend = block
			}
			next = after
		case strings.HasPrefix(strings.ToUpper(trimmed), "WHEN"),
			strings.HasPrefix(strings.ToUpper(trimmed), "GROUP"),
			strings.HasPrefix(strings.ToUpper(trimmed), "JUMP"),
			strings.HasPrefix(strings.ToUpper(trimmed), "RELATIVE"),
			strings.HasPrefix(strings.ToUpper(trimmed), "ABSOLUTE"):
			next++
		default:
			if !inst.HasPlacement {
				s.errorf(inst.Line, 0, "component %s has no AT placement", inst.Name)
			}
			s.def.Instances = append(s.def.Instances, inst)
			return next
		}
	}
	if !inst.HasPlacement {
		s.errorf(inst.Line, 0, "component %s has no AT placement", inst.Name)
	}
	s.def.Instances = append(s.def.Instances, inst)
	return next
}

// collectBlock gathers a %{ ... %} body starting at the header line i.
// The opening brace may sit on the header line or on one of the next lines.
// On a missing terminator an error is recorded at the opening brace.
func (s *scanner) collectBlock(i int) (*Block, int, bool) {
	j := i
	for j < len(s.lines) {
		if blockOpenRe.MatchString(s.lines[j]) {
			break
		}
		if j > i && strings.TrimSpace(s.lines[j]) != "" {
			// Next construct began before any %{: section has no block.
			return nil, j, false
		}
		j++
	}
	if j >= len(s.lines) {
		return nil, j, false
	}
	openLine := j
	var body []string
	// Body text after %{ on the opening line, if any.
	afterOpen := s.lines[j][strings.Index(s.lines[j], "%{")+2:]
	if idx := strings.Index(afterOpen, "%}"); idx >= 0 {
		content := strings.TrimSpace(afterOpen[:idx])
		return &Block{BodyLine: openLine + 1, Content: content}, j + 1, true
	}
	if strings.TrimSpace(afterOpen) != "" {
		body = append(body, afterOpen)
	}
	bodyLine := openLine + 2 // 1-based first full body line
	if len(body) > 0 {
		bodyLine = openLine + 1
	}
	for k := j + 1; k < len(s.lines); k++ {
		if blockCloseRe.MatchString(s.lines[k]) {
			before := s.lines[k][:strings.Index(s.lines[k], "%}")]
			if strings.TrimSpace(before) != "" {
				body = append(body, before)
			}
			return &Block{BodyLine: bodyLine, Content: strings.Join(body, "\n")}, k + 1, true
		}
		body = append(body, s.lines[k])
	}
	s.errorf(openLine+1, strings.Index(s.lines[openLine], "%{"), "unterminated %%{ block")
	return nil, len(s.lines), false
}

// collectParen gathers text between a '(' at (line i, column open) and its
// matching ')', possibly spanning lines. ok=false at EOF.
func (s *scanner) collectParen(i, open int) (string, int, bool) {
	depth := 0
	var sb strings.Builder
	for j := i; j < len(s.lines); j++ {
		text := s.lines[j]
		start := 0
		if j == i {
			start = open
		}
		for k := start; k < len(text); k++ {
			switch text[k] {
			case '(':
				depth++
				if depth == 1 {
					continue
				}
			case ')':
				depth--
				if depth == 0 {
					return sb.String(), j + 1, true
				}
			}
			if depth > 0 && !(k == start && j == i) {
				sb.WriteByte(text[k])
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String(), len(s.lines), false
}

// parseParams splits "double L = 1.0, int n = 100" into Params.
func parseParams(text string) []Param {
	var params []Param
	for _, part := range splitTopLevel(text) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var p Param
		if eq := strings.Index(part, "="); eq >= 0 {
			p.Default = strings.TrimSpace(part[eq+1:])
			part = strings.TrimSpace(part[:eq])
		}
		fields := strings.Fields(part)
		switch len(fields) {
		case 0:
			continue
		case 1:
			p.Type = "double" // untyped instrument params default to double
			p.Name = fields[0]
		default:
			p.Type = strings.Join(fields[:len(fields)-1], " ")
			p.Name = fields[len(fields)-1]
		}
		// Vector declarations keep the brackets with the name stripped off.
		p.Name = strings.TrimSuffix(p.Name, "[]")
		params = append(params, p)
	}
	return params
}

// parseArgs splits "dist = 1.0, nx = 20" into Args.
func parseArgs(text string) []Arg {
	var args []Arg
	for _, part := range splitTopLevel(text) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if eq := strings.Index(part, "="); eq >= 0 {
			args = append(args, Arg{
				Name:  strings.TrimSpace(part[:eq]),
				Value: strings.TrimSpace(part[eq+1:]),
			})
		} else {
			args = append(args, Arg{Value: part})
		}
	}
	return args
}

// splitTopLevel splits on commas outside parentheses, brackets and strings.
func splitTopLevel(text string) []string {
	var parts []string
	depth := 0
	inString := false
	last := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '"':
			inString = !inString
		case '(', '[', '{':
			if !inString {
				depth++
			}
		case ')', ']', '}':
			if !inString {
				depth--
			}
		case ',':
			if depth == 0 && !inString {
				parts = append(parts, text[last:i])
				last = i + 1
			}
		}
	}
	parts = append(parts, text[last:])
	return parts
}
