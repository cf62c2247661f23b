package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/config"
	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/logging"
)

// ExitError carries a process exit code out of a command without printing
// anything further. The command has already told the operator what happened.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// App holds the process-level collaborators shared by every subcommand.
type App struct {
	Stdin      io.Reader
	Stdout     io.Writer
	Stderr     io.Writer
	LoadConfig func() (config.Config, error)
	LookPath   func(string) (string, error)
	Environ    func() []string
}

func defaultApp() *App {
	return &App{
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		LoadConfig: config.Load,
		LookPath:   exec.LookPath,
		Environ:    os.Environ,
	}
}

func (a *App) logger(cfg config.Config) zerolog.Logger {
	return logging.NewWriter(a.Stderr, cfg.LogLevel)
}

// NewCmdRoot creates the root command with all subcommands attached.
func NewCmdRoot(version string, app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "labarchives-mcp-launcher",
		Short: "Verify and run the LabArchives MCP server",
		Long: "labarchives-mcp-launcher checks that a desktop MCP host is configured to start the\n" +
			"LabArchives MCP server and runs the server with sanitized, persistent logging.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetIn(app.Stdin)
	rootCmd.SetOut(app.Stdout)
	rootCmd.SetErr(app.Stderr)

	rootCmd.AddCommand(
		NewCmdVerify(app),
		NewCmdRun(app),
		NewCmdPrintConfig(app),
		NewCmdEnv(app),
	)
	return rootCmd
}

// Execute runs the command tree against the real process and returns the
// exit code.
func Execute(version string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := defaultApp()
	return run(ctx, NewCmdRoot(version, app), app.Stderr, os.Args[1:])
}

func run(ctx context.Context, cmd *cobra.Command, stderr io.Writer, args []string) int {
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintln(stderr, "Error:", err)
	return 1
}
