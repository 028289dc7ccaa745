package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mclsp/internal/config"
	"mclsp/internal/lsp"
)

var lspDebounce time.Duration

func init() {
	lspCmd.Flags().DurationVar(&lspDebounce, "debounce", 500*time.Millisecond, "delay before the external C check runs after an edit")
}

var lspCmd = &cobra.Command{
	Use:          "lsp",
	Short:        "Run the McCode language server over stdio",
	SilenceUsage: true,
	RunE:         runLSP,
}

func runLSP(cmd *cobra.Command, _ []string) error {
	flavorName, _ := cmd.Flags().GetString("flavor")
	maxDiagnostics, _ := cmd.Flags().GetInt("max-diagnostics")
	server := lsp.NewServer(os.Stdin, os.Stdout, lsp.ServerOptions{
		Debounce:       lspDebounce,
		MaxDiagnostics: maxDiagnostics,
		Config:         config.Load(),
		Flavor:         flavorName,
	})
	if err := server.Run(cmd.Context()); err != nil {
		if errors.Is(err, lsp.ErrExit) {
			return nil
		}
		if errors.Is(err, lsp.ErrExitWithoutShutdown) {
			return fmt.Errorf("lsp exit without shutdown")
		}
		return err
	}
	return nil
}
