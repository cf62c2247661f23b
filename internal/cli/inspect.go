package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/pipeline"
	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/sanitize"
)

// NewCmdPrintConfig creates the print-config command.
func NewCmdPrintConfig(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "print-config",
		Short: "Print the host configuration block for this installation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			return pipeline.RenderExample(app.Stdout, exampleFor(app, cfg))
		},
	}
}

// NewCmdEnv creates the env command.
func NewCmdEnv(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the names of server-related environment variables that are set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			for _, name := range sanitize.EnvNames(app.Environ(), cfg.EnvPrefixes) {
				fmt.Fprintln(app.Stdout, name)
			}
			return nil
		},
	}
}
