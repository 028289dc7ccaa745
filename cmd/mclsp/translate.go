package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mclsp/internal/cbridge"
	"mclsp/internal/config"
	"mclsp/internal/document"
	"mclsp/internal/flavor"
	"mclsp/internal/registry"
)

var (
	translateOutput  string
	translateRegions bool
)

func init() {
	translateCmd.Flags().StringVarP(&translateOutput, "output", "o", "", "write the generated C to a file instead of stdout")
	translateCmd.Flags().BoolVar(&translateRegions, "regions", false, "print the source/generated region table as JSON instead of the C text")
}

var translateCmd = &cobra.Command{
	Use:          "translate <file>",
	Short:        "Translate an instrument or component file to C",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		flavorName, _ := cmd.Flags().GetString("flavor")
		_, gen, err := buildFromFile(args[0], flavorName)
		if err != nil {
			return err
		}
		if gen.Err != nil {
			return fmt.Errorf("translate %s: %w", args[0], gen.Err)
		}
		if translateRegions {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(gen.Regions)
		}
		if translateOutput != "" {
			return os.WriteFile(translateOutput, []byte(gen.Content), 0o644)
		}
		fmt.Fprint(cmd.OutOrStdout(), gen.Content)
		return nil
	},
}

// buildFromFile runs the full translation pipeline over a file on disk the
// same way the server runs it over an open buffer.
func buildFromFile(path, flavorName string) (*document.Document, *cbridge.GeneratedDocument, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, err
	}
	source, err := os.ReadFile(abs)
	if err != nil {
		return nil, nil, err
	}
	cfg := config.Load()
	logger := log.New(os.Stderr, "mclsp: ", 0)
	live := registry.NewInMemory("session")
	names := registry.NewNameCache(registry.DefaultStacks(live, cfg), "")
	resolver := flavor.NewResolver(filepath.Dir(abs), names)
	if flavorName != "" {
		f, ok := flavor.FromString(flavorName)
		if !ok {
			return nil, nil, fmt.Errorf("unknown flavor %q", flavorName)
		}
		resolver.SetOverride(&f)
	}
	doc := document.Parse("file://"+abs, string(source))
	f := resolver.Resolve("file://"+abs, string(source))
	bridge := cbridge.NewBridge(cfg, live, filepath.Dir(abs), logger)
	return doc, bridge.Build(doc, abs, f), nil
}
