package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/process"
)

const (
	envInstallDir  = "LABARCHIVES_MCP_DIR"
	envEnvironment = "LABARCHIVES_MCP_ENV"
	envHostConfig  = "LABARCHIVES_MCP_HOST_CONFIG"
	envServerName  = "LABARCHIVES_MCP_SERVER_NAME"
	envLogFile     = "LABARCHIVES_MCP_LOG_FILE"
	envGrace       = "LABARCHIVES_MCP_GRACE"
	envLogLevel    = "LABARCHIVES_MCP_LOG_LEVEL"
	envMetricsFile = "LABARCHIVES_MCP_METRICS_FILE"
	envReportFile  = "LABARCHIVES_MCP_REPORT_FILE"
)

const (
	defaultEnvironment = "default"
	defaultServerName  = "labarchives"
	defaultGrace       = time.Second
	defaultExecutable  = "pixi"
	defaultEntryPoint  = "labarchives-mcp"
	manifestName       = "pixi.toml"
	hostConfigName     = "claude_desktop_config.json"
	hostConfigVendor   = "Claude"
)

// SecretsSuffix is the secrets file location relative to the server's working directory.
var SecretsSuffix = filepath.Join("conf", "secrets.yml")

// DefaultNoisePatterns are banner fragments the MCP server prints on every start.
var DefaultNoisePatterns = []string{
	"FastMCP",
	"Transport:",
	"Docs:",
	"Deploy:",
	"MCP SDK",
	"Server name:",
}

// DefaultEnvPrefixes select the variables whose names are recorded at run start.
var DefaultEnvPrefixes = []string{"LABARCHIVES_", "FASTMCP_"}

// Config describes runtime configuration loaded from the environment.
type Config struct {
	InstallDir     string
	Environment    string
	HostConfigPath string
	ServerName     string
	LogFile        string
	GraceInterval  time.Duration
	LogLevel       string
	MetricsFile    string
	ReportFile     string
	Executable     string
	EntryPoint     string
	NoisePatterns  []string
	EnvPrefixes    []string
}

// Load reads configuration from environment variables and a local .env file if present.
// Existing environment variables take precedence over values in .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment:   defaultEnvironment,
		ServerName:    defaultServerName,
		GraceInterval: defaultGrace,
		Executable:    defaultExecutable,
		EntryPoint:    defaultEntryPoint,
		NoisePatterns: append([]string(nil), DefaultNoisePatterns...),
		EnvPrefixes:   append([]string(nil), DefaultEnvPrefixes...),
	}

	if value, ok := lookupTrimmed(envInstallDir); ok && value != "" {
		dir, err := filepath.Abs(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envInstallDir, err)
		}
		cfg.InstallDir = dir
	} else {
		exe, err := os.Executable()
		if err != nil {
			return Config{}, fmt.Errorf("resolve executable: %w", err)
		}
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		cfg.InstallDir = ResolveInstallDir(filepath.Dir(exe))
	}

	if value, ok := lookupTrimmed(envEnvironment); ok && value != "" {
		cfg.Environment = value
	}

	if value, ok := lookupTrimmed(envServerName); ok && value != "" {
		if strings.Contains(value, ".") {
			return Config{}, fmt.Errorf("invalid %s: must not contain '.'", envServerName)
		}
		cfg.ServerName = value
	}

	if value, ok := lookupTrimmed(envHostConfig); ok && value != "" {
		cfg.HostConfigPath = value
	} else {
		home, _ := os.UserHomeDir()
		cfg.HostConfigPath = DefaultHostConfigPath(runtime.GOOS, home, os.Getenv("APPDATA"), os.Getenv("XDG_CONFIG_HOME"))
	}

	if value, ok := lookupTrimmed(envLogFile); ok && value != "" {
		cfg.LogFile = value
	} else {
		cfg.LogFile = filepath.Join(cfg.InstallDir, "logs", "labarchives-mcp.log")
	}

	if value, ok := lookupTrimmed(envGrace); ok && value != "" {
		grace, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envGrace, err)
		}
		if grace <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envGrace)
		}
		cfg.GraceInterval = grace
	}

	if value, ok := lookupTrimmed(envLogLevel); ok {
		cfg.LogLevel = value
	}

	if value, ok := lookupTrimmed(envMetricsFile); ok {
		cfg.MetricsFile = value
	}

	if value, ok := lookupTrimmed(envReportFile); ok {
		cfg.ReportFile = value
	}

	return cfg, nil
}

// ManifestPath is the pixi manifest inside the installation directory.
func (c Config) ManifestPath() string {
	return filepath.Join(c.InstallDir, manifestName)
}

// CommandTemplate is the server command line for this installation.
func (c Config) CommandTemplate() process.Template {
	return process.Template{
		Executable:  c.Executable,
		Prefix:      []string{"run", "--manifest-path", c.ManifestPath()},
		EnvFlag:     "--environment",
		Environment: c.Environment,
		Suffix:      []string{c.EntryPoint},
	}
}

// SecretsPath derives the secrets file location from a server working directory.
func (c Config) SecretsPath(cwd string) string {
	return filepath.Join(cwd, SecretsSuffix)
}

// ResolveInstallDir walks up from start looking for the pixi manifest and
// returns start itself when none is found.
func ResolveInstallDir(start string) string {
	dir := filepath.Clean(start)
	for {
		if info, err := os.Stat(filepath.Join(dir, manifestName)); err == nil && !info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return filepath.Clean(start)
		}
		dir = parent
	}
}

// DefaultHostConfigPath returns the platform location of the host application's config.
func DefaultHostConfigPath(goos, home, appData, xdgConfig string) string {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", hostConfigVendor, hostConfigName)
	case "windows":
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, hostConfigVendor, hostConfigName)
	default:
		if xdgConfig == "" {
			xdgConfig = filepath.Join(home, ".config")
		}
		return filepath.Join(xdgConfig, hostConfigVendor, hostConfigName)
	}
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}
