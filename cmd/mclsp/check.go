package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mclsp/internal/cbridge"
	"mclsp/internal/config"
	"mclsp/internal/diag"
	"mclsp/internal/metadata"
)

var checkCmd = &cobra.Command{
	Use:          "check <file>",
	Short:        "Translate a file and run the external C checker over it",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		flavorName, _ := cmd.Flags().GetString("flavor")
		maxDiagnostics, _ := cmd.Flags().GetInt("max-diagnostics")
		quiet, _ := cmd.Flags().GetBool("quiet")
		configureColor(cmd)

		doc, gen, err := buildFromFile(args[0], flavorName)
		if err != nil {
			return err
		}
		abs, _ := filepath.Abs(args[0])

		bag := diag.NewBag(maxDiagnostics)
		for _, e := range doc.Errors {
			bag.Add(diag.Diagnostic{
				File:     abs,
				Line:     e.Line - 1,
				Col:      e.Col,
				EndLine:  e.Line - 1,
				EndCol:   e.Col,
				Severity: diag.SevError,
				Source:   "mclsp",
				Message:  e.Message,
			})
		}
		if doc.Def != nil {
			for _, d := range metadata.Validate(doc) {
				d.File = abs
				bag.Add(d)
			}
		}
		if gen.Err != nil {
			if doc.Def != nil {
				source, _ := os.ReadFile(abs)
				bag.Add(cbridge.SemanticDiagnostic(abs, string(source), gen.Err))
			}
		} else {
			cfg := config.Load()
			logger := log.New(os.Stderr, "mclsp: ", 0)
			lifecycle := cbridge.NewLifecycle(cfg, logger)
			for _, d := range checkerPass(cmd.Context(), lifecycle, gen, logger) {
				bag.Add(d)
			}
		}
		bag.Sort()
		bag.Dedup()

		for _, d := range bag.Items() {
			printDiagnostic(cmd, d)
		}
		if bag.HasErrors() {
			return fmt.Errorf("%s: check failed", args[0])
		}
		if !quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d diagnostics)\n", args[0], bag.Len())
		}
		return nil
	},
}

// checkerPass runs the external checker over the generated text. A failing
// checker degrades to no diagnostics, matching the server's slow pass; the
// persisted temp file is removed whether or not the run succeeded.
func checkerPass(ctx context.Context, lifecycle *cbridge.Lifecycle, gen *cbridge.GeneratedDocument, logger *log.Logger) []diag.Diagnostic {
	defer lifecycle.Forget(gen.SourceURI)
	diags, err := lifecycle.Check(ctx, gen)
	if err != nil {
		logger.Printf("checker: %v", err)
	}
	return diags
}

var (
	severityColors = map[diag.Severity]*color.Color{
		diag.SevError:   color.New(color.FgRed, color.Bold),
		diag.SevWarning: color.New(color.FgYellow, color.Bold),
		diag.SevInfo:    color.New(color.FgCyan),
		diag.SevHint:    color.New(color.FgHiBlack),
	}
	locationColor = color.New(color.Bold)
)

func configureColor(cmd *cobra.Command) {
	mode, _ := cmd.Flags().GetString("color")
	switch mode {
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		color.NoColor = !isTerminal(os.Stdout)
	}
}

func printDiagnostic(cmd *cobra.Command, d diag.Diagnostic) {
	c := severityColors[d.Severity]
	if c == nil {
		c = color.New()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n",
		locationColor.Sprintf("%s:%d:%d:", d.File, d.Line+1, d.Col+1),
		c.Sprint(d.Severity.String()),
		d.Message)
}
