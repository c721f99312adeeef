package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 3, cfg.MaxLaunchAttempts)
	assert.Equal(t, time.Second, cfg.TimeWaitNextLaunch)
	assert.True(t, cfg.SkipLongRunning)
	assert.True(t, cfg.CleanupEnabled)
	assert.True(t, cfg.NoInit)
	assert.False(t, cfg.LogSuccess)
	assert.False(t, cfg.Trace)
	assert.Equal(t, "fnm", cfg.SessionFileFormat)
	assert.Equal(t, "(lldb) ", cfg.ChildPrompt)
	assert.Empty(t, cfg.Channels)
}

func TestApplyEnvironmentOverrides(t *testing.T) {
	cfg := Defaults()
	env := map[string]string{
		EnvMaxLaunchCount:     "5",
		EnvTimeWaitNextLaunch: "2.5",
		EnvNoCleanup:          "1",
		EnvTrace:              "yes",
	}

	err := applyEnvironment(&cfg, func(key string) string { return env[key] })
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.MaxLaunchAttempts)
	assert.Equal(t, 2500*time.Millisecond, cfg.TimeWaitNextLaunch)
	assert.False(t, cfg.CleanupEnabled)
	assert.True(t, cfg.Trace)
}

func TestApplyEnvironmentNoConvention(t *testing.T) {
	// Setting the skip/no-init variables to "NO" disables the behavior
	// they name; any other value keeps it on.
	tests := []struct {
		name     string
		value    string
		expected bool
	}{
		{name: "NO disables", value: "NO", expected: false},
		{name: "lowercase no disables", value: "no", expected: false},
		{name: "YES keeps enabled", value: "YES", expected: true},
		{name: "arbitrary keeps enabled", value: "1", expected: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			env := map[string]string{
				EnvSkipLongRunning: tc.value,
				EnvNoInit:          tc.value,
			}
			err := applyEnvironment(&cfg, func(key string) string { return env[key] })
			require.NoError(t, err)
			assert.Equal(t, tc.expected, cfg.SkipLongRunning)
			assert.Equal(t, tc.expected, cfg.NoInit)
		})
	}
}

func TestApplyEnvironmentRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "non-numeric launch count", env: map[string]string{EnvMaxLaunchCount: "lots"}},
		{name: "zero launch count", env: map[string]string{EnvMaxLaunchCount: "0"}},
		{name: "negative wait", env: map[string]string{EnvTimeWaitNextLaunch: "-1"}},
		{name: "non-numeric wait", env: map[string]string{EnvTimeWaitNextLaunch: "soon"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			err := applyEnvironment(&cfg, func(key string) string { return tc.env[key] })
			assert.Error(t, err)
		})
	}
}

func TestOverlayFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
max_launch_attempts = 7
time_wait_next_launch = "250ms"
skip_long_running = false
log_success = true
session_file_format = "nm"
channels = ["lldb process", " gdb-remote packets ", ""]
confirm_directory_exclusivity = true
debugger_exec = " lldb "
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := Defaults()
	require.NoError(t, overlayFromFile(&cfg, path))

	assert.Equal(t, 7, cfg.MaxLaunchAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.TimeWaitNextLaunch)
	assert.False(t, cfg.SkipLongRunning)
	assert.True(t, cfg.LogSuccess)
	assert.Equal(t, "nm", cfg.SessionFileFormat)
	assert.Equal(t, []string{"lldb process", "gdb-remote packets"}, cfg.Channels)
	assert.True(t, cfg.ConfirmDirectoryExclusivity)
	assert.Equal(t, "lldb", cfg.DebuggerExec)
}

func TestOverlayFromFileMissingIsIgnored(t *testing.T) {
	cfg := Defaults()
	err := overlayFromFile(&cfg, filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestOverlayFromFileRejectsBadFormatTag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`session_file_format = "fx"`), 0o600))

	cfg := Defaults()
	err := overlayFromFile(&cfg, path)
	assert.ErrorContains(t, err, "unknown tag")
}
