package cbridge

// GeneratedDocument pairs generated C text with the regions extracted from
// it. The regions are rebuilt from the text on construction, so mapping is
// always consistent with whatever the translator actually emitted.
type GeneratedDocument struct {
	SourceURI  string
	SourceFile string // path the line markers attribute user code to
	Content    string
	Regions    []Region
	Err        error // parse or translation failure behind a placeholder
}

// NewGeneratedDocument extracts regions from generated text. sourceFile
// must match the filename the translator wrote into its line markers.
func NewGeneratedDocument(sourceURI, sourceFile, content string) *GeneratedDocument {
	return &GeneratedDocument{
		SourceURI:  sourceURI,
		SourceFile: sourceFile,
		Content:    content,
		Regions:    ExtractRegions(content, sourceFile),
	}
}

// SourceToGenerated maps a 0-based source position into the generated
// text. The first region containing the line wins; columns pass through
// unchanged. ok is false when no region covers the line.
func (g *GeneratedDocument) SourceToGenerated(line, col int) (genLine, genCol int, ok bool) {
	for _, r := range g.Regions {
		if r.ContainsSource(line + 1) {
			return r.GeneratedStartLine + (line + 1 - r.SourceStartLine) - 1, col, true
		}
	}
	return 0, 0, false
}

// GeneratedToSource maps a 0-based generated position back into the
// source document. ok is false for scaffolding lines outside any region.
func (g *GeneratedDocument) GeneratedToSource(line, col int) (srcLine, srcCol int, ok bool) {
	for _, r := range g.Regions {
		if r.ContainsGenerated(line + 1) {
			return r.SourceStartLine + (line + 1 - r.GeneratedStartLine) - 1, col, true
		}
	}
	return 0, 0, false
}

// RegionAtSource returns the first region containing the 0-based source
// line.
func (g *GeneratedDocument) RegionAtSource(line int) (Region, bool) {
	for _, r := range g.Regions {
		if r.ContainsSource(line + 1) {
			return r, true
		}
	}
	return Region{}, false
}
