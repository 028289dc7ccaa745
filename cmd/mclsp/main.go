package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"mclsp/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "mclsp",
	Short: "McCode language server and instrument tooling",
	Long:  `mclsp serves McStas/McXtrace instrument and component files over LSP and exposes the underlying C translation as standalone commands`,
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(lspCmd)
	rootCmd.AddCommand(translateCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")
	rootCmd.PersistentFlags().String("flavor", "", "force the McCode flavor (mcstas|mcxtrace)")
	rootCmd.PersistentFlags().Int("max-diagnostics", 100, "maximum number of diagnostics to show")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
