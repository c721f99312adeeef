package sessionlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debug-gauntlet/dgt/internal/outcome"
)

func testNamer(dir string) Namer {
	return Namer{
		SessionDir:   dir,
		Format:       "fnm",
		Module:       "TestBreakpoint",
		Case:         "BreakpointTestCase",
		Compiler:     "/usr/bin/clang",
		Architecture: "x86_64",
		Method:       "test_set_breakpoint",
	}
}

func TestBasenameAssembly(t *testing.T) {
	dir := t.TempDir()
	namer := testNamer(dir)

	basename, err := namer.Basename("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "TestBreakpoint-BreakpointTestCase-test_set_breakpoint"), basename)
}

func TestBasenameWithPrefixAndCompiler(t *testing.T) {
	dir := t.TempDir()
	namer := testNamer(dir)
	namer.Format = "fcm"

	basename, err := namer.Basename("Failure")
	require.NoError(t, err)
	assert.Equal(t,
		filepath.Join(dir, "Failure-TestBreakpoint-usr-bin-clang-test_set_breakpoint"),
		basename)
}

func TestBasenameDropsDriveDesignator(t *testing.T) {
	dir := t.TempDir()
	namer := testNamer(dir)
	namer.Format = "c"
	namer.Compiler = `C:\tools\clang.exe`

	basename, err := namer.Basename("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tools-clang.exe"), basename)
}

func TestBasenameRejectsUnknownTag(t *testing.T) {
	namer := testNamer(t.TempDir())
	namer.Format = "fx"

	_, err := namer.Basename("")
	assert.ErrorContains(t, err, "unknown session file format tag")
}

func TestBasenameCreatesSessionDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "sessions")
	namer := testNamer(dir)

	_, err := namer.Basename("")
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLogWriteAndFooter(t *testing.T) {
	basename := filepath.Join(t.TempDir(), "case")
	sessionLog, err := Open(basename)
	require.NoError(t, err)

	_, err = sessionLog.Write([]byte("runCmd: file a.out\n"))
	require.NoError(t, err)

	when := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	sessionLog.WriteFooter("-f Case.test_method", when)
	require.NoError(t, sessionLog.Close())

	content, err := os.ReadFile(basename + ".log")
	require.NoError(t, err)
	assert.Contains(t, string(content), "runCmd: file a.out")
	assert.Contains(t, string(content), "Session info generated @ "+when.Format(time.ANSIC))
	assert.Contains(t, string(content), "dgt run -f Case.test_method")
}

func TestTouchChannelFiles(t *testing.T) {
	basename := filepath.Join(t.TempDir(), "case")
	require.NoError(t, TouchChannelFiles(basename))

	assert.FileExists(t, HostChannelPath(basename))
	assert.FileExists(t, ServerChannelPath(basename))
}

func TestFinalizeRenamesOnFailure(t *testing.T) {
	dir := t.TempDir()
	basename := filepath.Join(dir, "case")
	require.NoError(t, os.WriteFile(basename+".log", []byte("transcript"), 0o600))
	require.NoError(t, os.WriteFile(basename+"-host.log", []byte("channel"), 0o600))

	prefixed := filepath.Join(dir, "Failure-case")
	require.NoError(t, Finalize(basename, prefixed, outcome.Failed, false))

	assert.FileExists(t, prefixed+".log")
	assert.FileExists(t, prefixed+"-host.log")
	assert.NoFileExists(t, basename+".log")
}

func TestFinalizeDeletesOnSuccess(t *testing.T) {
	dir := t.TempDir()
	basename := filepath.Join(dir, "case")
	require.NoError(t, os.WriteFile(basename+".log", []byte("transcript"), 0o600))

	require.NoError(t, Finalize(basename, basename, outcome.Success, false))
	assert.NoFileExists(t, basename+".log")
}

func TestFinalizeKeepsSuccessWhenRetaining(t *testing.T) {
	dir := t.TempDir()
	basename := filepath.Join(dir, "case")
	require.NoError(t, os.WriteFile(basename+".log", []byte("transcript"), 0o600))

	prefixed := filepath.Join(dir, "Success-case")
	require.NoError(t, Finalize(basename, prefixed, outcome.Success, true))
	assert.FileExists(t, prefixed+".log")
}

func TestRenameReplacingDeletesExistingDestination(t *testing.T) {
	previousSleep := sleep
	sleep = func(time.Duration) {}
	defer func() { sleep = previousSleep }()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.log")
	dst := filepath.Join(dir, "dst.log")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o600))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0o600))

	require.NoError(t, renameReplacing(src, dst))

	content, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(content))
}
