// Package config loads harness runtime settings from TOML files with
// environment variable overrides layered on top.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultMaxLaunchAttempts  = 3
	defaultTimeWaitNextLaunch = time.Second
	defaultSessionDirName     = "dgt-sessions"
	defaultSessionFileFormat  = "fnm"
	defaultChildPrompt        = "(lldb) "

	// EnvMaxLaunchCount overrides the launch retry attempt budget.
	EnvMaxLaunchCount = "DGT_MAX_LAUNCH_COUNT"
	// EnvTimeWaitNextLaunch overrides the inter-launch wait interval (seconds).
	EnvTimeWaitNextLaunch = "DGT_TIME_WAIT_NEXT_LAUNCH"
	// EnvSkipLongRunning set to "NO" re-enables long running tests.
	EnvSkipLongRunning = "DGT_SKIP_LONG_RUNNING_TEST"
	// EnvNoCleanup disables teardown cleanup actions when set.
	EnvNoCleanup = "DGT_NO_CLEANUP"
	// EnvNoInit set to "NO" lets spawned interactive sessions read init files.
	EnvNoInit = "DGT_NO_INIT"
	// EnvTrace enables live tracing of harness activity.
	EnvTrace = "DGT_TRACE"
)

// Config stores harness runtime settings.
type Config struct {
	MaxLaunchAttempts  int
	TimeWaitNextLaunch time.Duration
	SkipLongRunning    bool
	CleanupEnabled     bool
	NoInit             bool
	LogSuccess         bool
	Trace              bool
	SessionDir         string
	// SessionFileFormat is the ordered tag list assembled into session log
	// base names: f=module, n=case, c=compiler, a=architecture, m=method.
	SessionFileFormat string
	// Channels lists diagnostic log channels ("channel [categories...]")
	// enabled per test. Empty means no diagnostic channels.
	Channels []string
	// ConfirmDirectoryExclusivity enables the advisory per-directory lock.
	ConfirmDirectoryExclusivity bool
	// DebuggerExec is the interactive debugger binary used by spawned
	// child sessions.
	DebuggerExec string
	// ChildPrompt is the interactive prompt expected from a spawned child.
	ChildPrompt string
}

type fileConfig struct {
	MaxLaunchAttempts           *int      `toml:"max_launch_attempts"`
	TimeWaitNextLaunch          *string   `toml:"time_wait_next_launch"`
	SkipLongRunning             *bool     `toml:"skip_long_running"`
	CleanupEnabled              *bool     `toml:"cleanup_enabled"`
	NoInit                      *bool     `toml:"no_init"`
	LogSuccess                  *bool     `toml:"log_success"`
	Trace                       *bool     `toml:"trace"`
	SessionDir                  *string   `toml:"session_dir"`
	SessionFileFormat           *string   `toml:"session_file_format"`
	Channels                    *[]string `toml:"channels"`
	ConfirmDirectoryExclusivity *bool     `toml:"confirm_directory_exclusivity"`
	DebuggerExec                *string   `toml:"debugger_exec"`
	ChildPrompt                 *string   `toml:"child_prompt"`
}

// Load reads config from ~/.dgt/config.toml, overlays a project-local
// .dgt/config.toml, then applies environment overrides.
func Load(ctx context.Context) (*Config, error) {
	cfg := Defaults()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	workingDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	paths := []string{
		filepath.Join(homeDir, ".dgt", "config.toml"),
		filepath.Join(workingDir, ".dgt", "config.toml"),
	}
	for _, path := range paths {
		if err := overlayFromFile(&cfg, path); err != nil {
			return nil, err
		}
	}
	if err := applyEnvironment(&cfg, os.Getenv); err != nil {
		return nil, err
	}

	_ = ctx
	return &cfg, nil
}

// Defaults returns the built-in configuration values.
func Defaults() Config {
	return Config{
		MaxLaunchAttempts:  defaultMaxLaunchAttempts,
		TimeWaitNextLaunch: defaultTimeWaitNextLaunch,
		SkipLongRunning:    true,
		CleanupEnabled:     true,
		NoInit:             true,
		LogSuccess:         false,
		Trace:              false,
		SessionDir:         filepath.Join(os.TempDir(), defaultSessionDirName),
		SessionFileFormat:  defaultSessionFileFormat,
		Channels:           nil,
		ChildPrompt:        defaultChildPrompt,
	}
}

func overlayFromFile(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat config file %q: %w", path, err)
	}

	var decoded fileConfig
	if _, err := toml.DecodeFile(path, &decoded); err != nil {
		return fmt.Errorf("decode config file %q: %w", path, err)
	}

	if decoded.MaxLaunchAttempts != nil {
		if *decoded.MaxLaunchAttempts <= 0 {
			return fmt.Errorf("parse max_launch_attempts in %q: must be > 0", path)
		}
		cfg.MaxLaunchAttempts = *decoded.MaxLaunchAttempts
	}
	if decoded.TimeWaitNextLaunch != nil {
		value, err := parseDuration(*decoded.TimeWaitNextLaunch, "time_wait_next_launch", path)
		if err != nil {
			return err
		}
		cfg.TimeWaitNextLaunch = value
	}
	if decoded.SkipLongRunning != nil {
		cfg.SkipLongRunning = *decoded.SkipLongRunning
	}
	if decoded.CleanupEnabled != nil {
		cfg.CleanupEnabled = *decoded.CleanupEnabled
	}
	if decoded.NoInit != nil {
		cfg.NoInit = *decoded.NoInit
	}
	if decoded.LogSuccess != nil {
		cfg.LogSuccess = *decoded.LogSuccess
	}
	if decoded.Trace != nil {
		cfg.Trace = *decoded.Trace
	}
	if decoded.SessionDir != nil {
		cfg.SessionDir = strings.TrimSpace(*decoded.SessionDir)
	}
	if decoded.SessionFileFormat != nil {
		format := strings.TrimSpace(*decoded.SessionFileFormat)
		if err := validateSessionFileFormat(format, path); err != nil {
			return err
		}
		cfg.SessionFileFormat = format
	}
	if decoded.Channels != nil {
		cfg.Channels = normalizeChannels(*decoded.Channels)
	}
	if decoded.ConfirmDirectoryExclusivity != nil {
		cfg.ConfirmDirectoryExclusivity = *decoded.ConfirmDirectoryExclusivity
	}
	if decoded.DebuggerExec != nil {
		cfg.DebuggerExec = strings.TrimSpace(*decoded.DebuggerExec)
	}
	if decoded.ChildPrompt != nil {
		cfg.ChildPrompt = *decoded.ChildPrompt
	}
	return nil
}

// applyEnvironment overlays environment variable overrides. The lookup
// function is injectable for tests.
func applyEnvironment(cfg *Config, lookup func(string) string) error {
	if cfg == nil {
		return errors.New("config must not be nil")
	}

	if raw := strings.TrimSpace(lookup(EnvMaxLaunchCount)); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			return fmt.Errorf("parse %s=%q: positive integer required", EnvMaxLaunchCount, raw)
		}
		cfg.MaxLaunchAttempts = value
	}
	if raw := strings.TrimSpace(lookup(EnvTimeWaitNextLaunch)); raw != "" {
		seconds, err := strconv.ParseFloat(raw, 64)
		if err != nil || seconds < 0 {
			return fmt.Errorf("parse %s=%q: non-negative seconds required", EnvTimeWaitNextLaunch, raw)
		}
		cfg.TimeWaitNextLaunch = time.Duration(seconds * float64(time.Second))
	}
	// The skip and no-init variables keep the historical "NO" convention:
	// setting the variable to "NO" disables the behavior it names.
	if raw := strings.TrimSpace(lookup(EnvSkipLongRunning)); raw != "" {
		cfg.SkipLongRunning = !strings.EqualFold(raw, "NO")
	}
	if raw := strings.TrimSpace(lookup(EnvNoInit)); raw != "" {
		cfg.NoInit = !strings.EqualFold(raw, "NO")
	}
	if strings.TrimSpace(lookup(EnvNoCleanup)) != "" {
		cfg.CleanupEnabled = false
	}
	if strings.TrimSpace(lookup(EnvTrace)) != "" {
		cfg.Trace = true
	}
	return nil
}

func validateSessionFileFormat(format string, path string) error {
	if format == "" {
		return fmt.Errorf("parse session_file_format in %q: must not be empty", path)
	}
	for _, tag := range format {
		switch tag {
		case 'f', 'n', 'c', 'a', 'm':
		default:
			return fmt.Errorf("parse session_file_format in %q: unknown tag %q", path, string(tag))
		}
	}
	return nil
}

func normalizeChannels(channels []string) []string {
	normalized := make([]string, 0, len(channels))
	for _, channel := range channels {
		channel = strings.TrimSpace(channel)
		if channel == "" {
			continue
		}
		normalized = append(normalized, channel)
	}
	return normalized
}

func parseDuration(value, key, path string) (time.Duration, error) {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s in %q: %w", key, path, err)
	}
	return parsed, nil
}
