package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pasteup/internal/config"
)

var version = "dev"

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

type globalOptions struct {
	configPath string
	logLevel   string
}

func (g *globalOptions) configOptions() []config.Option {
	if g.configPath == "" {
		return nil
	}
	return []config.Option{config.WithConfigPath(g.configPath)}
}

func (g *globalOptions) store() *config.FileStore {
	return config.NewFileStore(g.configOptions()...)
}

// NewRootCommand assembles the pasteup command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "pasteup",
		Short: "Upload pasted and dropped images, insert markdown links",
		Long: fmt.Sprintf(`%s

Pasteup uploads images to a configured HTTP endpoint and writes a markdown
image reference into the note being edited. When the upload fails the image is
saved into the vault instead.

%s
  pasteup serve                          # Run the editor bridge
  pasteup upload shot.png --note inbox.md
  pasteup config set endpoint_url https://img.example/upload
  pasteup config show`,
			bold("pasteup "+version),
			bold("EXAMPLES:")),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default $PASTEUP_CONFIG or ~/.pasteup/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log_level (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newUploadCommand(opts))
	rootCmd.AddCommand(newConfigCommand(opts))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", version)
		},
	}
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		os.Exit(1)
	}
}
