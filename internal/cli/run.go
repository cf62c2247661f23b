package cli

import (
	"github.com/spf13/cobra"

	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/metrics"
	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/runner"
	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/sanitize"
)

// NewCmdRun creates the run command.
func NewCmdRun(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the server with sanitized output and a persistent log",
		Long: "run starts the server, drops its startup banner lines and appends everything else\n" +
			"to the log file while passing it through. It is configured by environment variables only.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			logger := app.logger(cfg)

			envNames := sanitize.EnvNames(app.Environ(), cfg.EnvPrefixes)
			session, err := sanitize.Open(logger, cfg.LogFile, sanitize.NewFilter(cfg.NoisePatterns), envNames)
			if err != nil {
				return err
			}

			var m *metrics.Metrics
			if cfg.MetricsFile != "" {
				m = metrics.New()
			}

			r := runner.New(logger, cfg.CommandTemplate(),
				runner.WithStdin(app.Stdin),
				runner.WithStdout(app.Stdout),
				runner.WithDir(cfg.InstallDir),
				runner.WithSession(session),
				runner.WithMetrics(m),
			)
			code, runErr := r.Run(cmd.Context())
			if runErr != nil {
				logger.Error().Err(runErr).Msg("run finished with errors")
			}
			if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
				logger.Error().Err(err).Str("path", cfg.MetricsFile).Msg("failed to write metrics textfile")
			}

			if code != 0 {
				return &ExitError{Code: code}
			}
			if runErr != nil {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}
}
