package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/park285/tessu-bridge/internal/config"
	"github.com/spf13/cobra"
)

type options struct {
	SettingsFile string
	Output       string
}

func (o *options) settings() (*config.Settings, error) {
	raw, err := os.ReadFile(o.SettingsFile)
	if err != nil {
		if os.IsNotExist(err) {
			return config.DefaultSettings(), nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	return config.ParseSettings(raw)
}

func (o *options) print(w io.Writer, v any, text func(io.Writer)) error {
	if o.Output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

// NewRootCmd builds the tessuctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{
		SettingsFile: envDefault("SETTINGS_FILE", "configs/tessu_bridge/settings.yaml"),
		Output:       "text",
	}

	root := &cobra.Command{
		Use:   "tessuctl",
		Short: "Diagnostics for the voice chat bridge",
		Long: `tessuctl checks nickname matching offline.

It reads the same settings file as the bridge and can dry-run the
resolver against a roster file, validate extraction patterns, and
inspect the pairing cache.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.SettingsFile, "settings", opts.SettingsFile, "Settings file (env: SETTINGS_FILE)")
	root.PersistentFlags().StringVarP(&opts.Output, "output", "o", opts.Output, "Output format: text, json")

	root.AddCommand(newResolveCmd(opts))
	root.AddCommand(newPatternsCmd(opts))
	root.AddCommand(newCacheCmd(opts))
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func envDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
