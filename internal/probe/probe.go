package probe

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/check"
	"github.com/SamuelBrudner/lab-archives-mcp-sub003/internal/hostconfig"
)

// Step names, in execution order.
const (
	StepHostConfigExists = "host-config-exists"
	StepServerRegistered = "server-registered"
	StepCwdConfigured    = "cwd-configured"
	StepCwdMatches       = "cwd-matches-install"
	StepSecretsExist     = "secrets-file-exists"
)

// Extracted field names.
const (
	FieldServer     = "server"
	FieldCommand    = "command"
	FieldCwd        = "cwd"
	FieldSecretsEnv = "env." + SecretsEnvVar
)

// SecretsEnvVar is the server's environment key pointing at its secrets file.
const SecretsEnvVar = "LABARCHIVES_CONFIG_PATH"

// Config parameterizes a ConfigProbe.
type Config struct {
	HostConfigPath string
	ServerName     string
	ExpectedCwd    string
	// SecretsPath derives the secrets file location from the configured cwd.
	SecretsPath func(cwd string) string
}

// Snapshot is what one probe run learned about the host configuration.
type Snapshot struct {
	ConfigPath      string
	RawText         string
	ExtractedFields map[string]string
	Mode            hostconfig.Mode
}

// ConfigProbe checks the host application's registration of the server.
type ConfigProbe struct {
	cfg      Config
	logger   zerolog.Logger
	snapshot Snapshot
	lookup   hostconfig.Lookup
}

// New constructs a ConfigProbe.
func New(logger zerolog.Logger, cfg Config) *ConfigProbe {
	if cfg.SecretsPath == nil {
		cfg.SecretsPath = func(cwd string) string {
			return filepath.Join(cwd, "conf", "secrets.yml")
		}
	}
	return &ConfigProbe{cfg: cfg, logger: logger}
}

// Steps returns the ordered checks. Each later step reads fields recorded by
// the earlier ones, so callers must stop at the first hard failure.
func (p *ConfigProbe) Steps() []check.Step {
	p.snapshot = Snapshot{
		ConfigPath:      p.cfg.HostConfigPath,
		ExtractedFields: map[string]string{},
	}
	p.lookup = nil

	return []check.Step{
		{Name: StepHostConfigExists, Run: p.hostConfigExists},
		{Name: StepServerRegistered, Run: p.serverRegistered},
		{Name: StepCwdConfigured, Run: p.cwdConfigured},
		{Name: StepCwdMatches, Run: p.cwdMatches},
		{Name: StepSecretsExist, Run: p.secretsExist},
	}
}

// Snapshot returns a copy of what the current run has extracted so far.
func (p *ConfigProbe) Snapshot() Snapshot {
	out := p.snapshot
	out.ExtractedFields = make(map[string]string, len(p.snapshot.ExtractedFields))
	for key, value := range p.snapshot.ExtractedFields {
		out.ExtractedFields[key] = value
	}
	return out
}

func (p *ConfigProbe) serverKey(segments ...string) string {
	return hostconfig.Key(append([]string{"mcpServers", p.cfg.ServerName}, segments...)...)
}

func (p *ConfigProbe) hostConfigExists(_ context.Context) check.Result {
	path := p.cfg.HostConfigPath
	remediation := fmt.Sprintf("Create %s with an \"mcpServers\" entry named %q.", path, p.cfg.ServerName)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return check.Fail(StepHostConfigExists, check.KindMissingFile,
				fmt.Sprintf("host config not found at %s", path), remediation)
		}
		return check.Fail(StepHostConfigExists, check.KindMissingFile,
			fmt.Sprintf("host config at %s is not accessible: %v", path, err), remediation)
	}
	if info.IsDir() {
		return check.Fail(StepHostConfigExists, check.KindMissingFile,
			fmt.Sprintf("host config path %s is a directory", path), remediation)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return check.Fail(StepHostConfigExists, check.KindMissingFile,
			fmt.Sprintf("host config at %s could not be read: %v", path, err),
			fmt.Sprintf("Make %s readable by the current user.", path))
	}

	lookup, mode := hostconfig.Parse(raw)
	p.snapshot.RawText = string(raw)
	p.snapshot.Mode = mode
	p.lookup = lookup
	if mode == hostconfig.ModeLenient {
		p.logger.Warn().Str("path", path).Msg("host config is not well-formed, using lenient key lookup")
	}

	return check.Pass(StepHostConfigExists, fmt.Sprintf("found %s", path))
}

func (p *ConfigProbe) serverRegistered(_ context.Context) check.Result {
	if p.lookup == nil {
		return check.Fail(StepServerRegistered, check.KindNotConfigured, "host config was not loaded", "Run the host config check first.")
	}
	if _, ok := p.lookup.Lookup(p.serverKey()); !ok {
		return check.Fail(StepServerRegistered, check.KindNotConfigured,
			fmt.Sprintf("no %q server registered under mcpServers in %s", p.cfg.ServerName, p.cfg.HostConfigPath),
			fmt.Sprintf("Add an mcpServers.%s block to %s (see the example configuration).", p.cfg.ServerName, p.cfg.HostConfigPath))
	}
	p.snapshot.ExtractedFields[FieldServer] = p.cfg.ServerName
	if command, ok := p.lookup.Lookup(p.serverKey("command")); ok && command != "" {
		p.snapshot.ExtractedFields[FieldCommand] = command
	}
	if secrets, ok := p.lookup.Lookup(p.serverKey("env", SecretsEnvVar)); ok && secrets != "" {
		p.snapshot.ExtractedFields[FieldSecretsEnv] = secrets
	}
	return check.Pass(StepServerRegistered, fmt.Sprintf("server %q is registered", p.cfg.ServerName))
}

func (p *ConfigProbe) cwdConfigured(_ context.Context) check.Result {
	if p.lookup == nil {
		return check.Fail(StepCwdConfigured, check.KindMissingField, "host config was not loaded", "Run the host config check first.")
	}
	cwd, ok := p.lookup.Lookup(p.serverKey("cwd"))
	if !ok || cwd == "" {
		return check.Fail(StepCwdConfigured, check.KindMissingField,
			fmt.Sprintf("server %q has no \"cwd\" value", p.cfg.ServerName),
			fmt.Sprintf("Set \"cwd\": %q in the mcpServers.%s block of %s.", p.cfg.ExpectedCwd, p.cfg.ServerName, p.cfg.HostConfigPath))
	}
	p.snapshot.ExtractedFields[FieldCwd] = cwd
	return check.Pass(StepCwdConfigured, fmt.Sprintf("cwd is %s", cwd))
}

// cwdMatches only warns: a differing but valid checkout is allowed, the
// operator is just told about it.
func (p *ConfigProbe) cwdMatches(_ context.Context) check.Result {
	found := p.snapshot.ExtractedFields[FieldCwd]
	expected := p.cfg.ExpectedCwd
	if filepath.Clean(found) == filepath.Clean(expected) {
		return check.Pass(StepCwdMatches, fmt.Sprintf("cwd matches installation at %s", expected))
	}
	p.logger.Warn().Str("expected", expected).Str("found", found).Msg("configured cwd differs from installation")
	return check.Warn(StepCwdMatches, check.KindPathMismatch,
		fmt.Sprintf("cwd mismatch: expected %s, found %s", expected, found),
		fmt.Sprintf("If unintended, set \"cwd\": %q.", expected))
}

func (p *ConfigProbe) secretsExist(_ context.Context) check.Result {
	cwd, ok := p.snapshot.ExtractedFields[FieldCwd]
	if !ok {
		return check.Fail(StepSecretsExist, check.KindMissingField, "cwd was not extracted", "Run the cwd check first.")
	}
	path := p.cfg.SecretsPath(cwd)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return check.Fail(StepSecretsExist, check.KindMissingFile,
			fmt.Sprintf("secrets file not found at %s", path),
			fmt.Sprintf("Create %s with your LabArchives API credentials.", path))
	}

	if envPath, ok := p.snapshot.ExtractedFields[FieldSecretsEnv]; ok && filepath.Clean(envPath) != filepath.Clean(path) {
		return check.Warn(StepSecretsExist, check.KindPathMismatch,
			fmt.Sprintf("found %s, but %s points to %s", path, SecretsEnvVar, envPath),
			fmt.Sprintf("If unintended, set %s to %q.", SecretsEnvVar, path))
	}
	return check.Pass(StepSecretsExist, fmt.Sprintf("found %s", path))
}
