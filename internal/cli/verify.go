package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/check"
	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/config"
	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/hostconfig"
	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/metrics"
	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/pipeline"
	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/probe"
	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/process"
	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/report"
)

// NewCmdVerify creates the verify command.
func NewCmdVerify(app *App) *cobra.Command {
	var hostConfig, reportFile string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the host configuration and that the server starts",
		Long: "verify checks the host application's config file for the server registration,\n" +
			"its working directory and secrets file, then starts the server once to confirm it stays up.\n" +
			"It exits non-zero at the first hard failure.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			if hostConfig != "" {
				cfg.HostConfigPath = hostConfig
			}
			if reportFile != "" {
				cfg.ReportFile = reportFile
			}
			return verify(cmd.Context(), app, cfg)
		},
	}

	cmd.Flags().StringVar(&hostConfig, "host-config", "", "path to the host application's config file (overrides LABARCHIVES_MCP_HOST_CONFIG)")
	cmd.Flags().StringVar(&reportFile, "report", "", "write the verification result as JSON to this path (overrides LABARCHIVES_MCP_REPORT_FILE)")
	return cmd
}

func verify(ctx context.Context, app *App, cfg config.Config) error {
	logger := app.logger(cfg)
	template := cfg.CommandTemplate()

	configProbe := probe.New(logger, probe.Config{
		HostConfigPath: cfg.HostConfigPath,
		ServerName:     cfg.ServerName,
		ExpectedCwd:    cfg.InstallDir,
		SecretsPath:    cfg.SecretsPath,
	})

	// Held open for the whole probe so a stdio server does not read EOF.
	stdinReader, stdinWriter, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create server stdin: %w", err)
	}
	defer stdinReader.Close()
	defer stdinWriter.Close()

	healthCheck := process.NewHealthCheck(logger, process.Spec{
		Template: template,
		Env:      map[string]string{probe.SecretsEnvVar: cfg.SecretsPath(cfg.InstallDir)},
		Dir:      cfg.InstallDir,
		Stdin:    stdinReader,
	}, cfg.GraceInterval)

	var m *metrics.Metrics
	if cfg.MetricsFile != "" {
		m = metrics.New()
	}

	logger.Info().
		Str("host_config", cfg.HostConfigPath).
		Str("install_dir", cfg.InstallDir).
		Str("server", cfg.ServerName).
		Msg("verification started")

	verdict := pipeline.New(logger, configProbe.Steps(), healthCheck, pipeline.WithRecorder(m)).Run(ctx)

	if err := pipeline.Render(app.Stdout, verdict); err != nil {
		return err
	}
	if verdict.Passed {
		fmt.Fprintln(app.Stdout)
		fmt.Fprintln(app.Stdout, "Expected host configuration:")
		if err := pipeline.RenderExample(app.Stdout, exampleFor(app, cfg)); err != nil {
			return err
		}
	}

	if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
		logger.Error().Err(err).Str("path", cfg.MetricsFile).Msg("failed to write metrics textfile")
	}
	saveReport(ctx, logger, cfg, verdict, configProbe.Snapshot(), template)

	if !verdict.Passed {
		logger.Info().Err(verdict.Err()).Msg("verification failed")
		return &ExitError{Code: 1}
	}
	logger.Info().Int("warnings", len(verdict.Warnings())).Msg("verification passed")
	return nil
}

func saveReport(ctx context.Context, logger zerolog.Logger, cfg config.Config, verdict pipeline.Verdict, snap probe.Snapshot, template process.Template) {
	if cfg.ReportFile == "" {
		return
	}
	// Saved even when interrupted; the report records the Aborted result.
	ctx = context.WithoutCancel(ctx)
	store := report.NewFileStore(cfg.ReportFile, logger)

	rep := report.FromVerdict(verdict)
	rep.HostConfigPath = cfg.HostConfigPath
	rep.InstallDir = cfg.InstallDir
	rep.Command = template.String()
	rep.Fields = snap.ExtractedFields
	if hash, err := hostconfig.Fingerprint([]byte(snap.RawText)); err == nil {
		rep.HostConfigHash = hash
	}

	previous, ok, err := store.Load(ctx)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.ReportFile).Msg("failed to read previous report")
	}
	var prev *report.Report
	if ok {
		prev = &previous
		if prev.HostConfigHash != "" && rep.HostConfigHash != "" && prev.HostConfigHash != rep.HostConfigHash {
			logger.Info().Str("path", cfg.HostConfigPath).Msg("host config changed since last verification")
		}
	}
	for _, change := range report.DetectTransitions(prev, rep) {
		event := logger.Info()
		if change.Current == check.StatusFailed {
			event = logger.Warn()
		}
		event.Str("check", change.Check).
			Str("previous_status", string(change.Previous)).
			Str("current_status", string(change.Current)).
			Str("kind", string(change.Kind)).
			Msg("check status changed")
	}

	if err := store.Save(ctx, rep); err != nil {
		logger.Error().Err(err).Str("path", cfg.ReportFile).Msg("failed to write verification report")
	}
}

// exampleFor builds the host configuration block from resolved paths only.
func exampleFor(app *App, cfg config.Config) pipeline.Example {
	argv := cfg.CommandTemplate().Argv()
	command := argv[0]
	if resolved, err := app.LookPath(command); err == nil {
		command = resolved
	}
	return pipeline.Example{
		ServerName: cfg.ServerName,
		Command:    command,
		Args:       argv[1:],
		Cwd:        cfg.InstallDir,
		Env:        map[string]string{probe.SecretsEnvVar: cfg.SecretsPath(cfg.InstallDir)},
	}
}
