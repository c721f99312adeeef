// Package sessionlog manages per-test session log files: base-name
// assembly from the configured format tags, the append-only transcript
// file, and end-of-test finalization (outcome prefix renames or
// deletion).
package sessionlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/debug-gauntlet/dgt/internal/outcome"
)

const (
	removeRetries       = 1
	removeRetrySleep    = 500 * time.Millisecond
	transcriptExtension = ".log"
)

// sleep is swapped out in tests to keep retry paths fast.
var sleep = time.Sleep

// Namer assembles session log base names from the configured ordered tag
// list: f=module, n=case name, c=compiler, a=architecture, m=method.
type Namer struct {
	SessionDir   string
	Format       string
	Module       string
	Case         string
	Compiler     string
	Architecture string
	Method       string
}

// Basename returns <sessionDir>/<components>, creating the session
// directory if needed. A non-empty prefix is prepended as its own
// component.
func (n Namer) Basename(prefix string) (string, error) {
	if strings.TrimSpace(n.SessionDir) == "" {
		return "", errors.New("session directory is required")
	}
	if err := os.MkdirAll(n.SessionDir, 0o750); err != nil {
		return "", fmt.Errorf("create session directory: %w", err)
	}

	components := []string{}
	if prefix != "" {
		components = append(components, prefix)
	}
	for _, tag := range n.Format {
		switch tag {
		case 'f':
			components = append(components, n.Module)
		case 'n':
			components = append(components, n.Case)
		case 'c':
			components = append(components, compilerComponents(n.Compiler)...)
		case 'a':
			components = append(components, n.Architecture)
		case 'm':
			components = append(components, n.Method)
		default:
			return "", fmt.Errorf("unknown session file format tag %q", string(tag))
		}
	}

	nonEmpty := components[:0]
	for _, component := range components {
		if component != "" {
			nonEmpty = append(nonEmpty, component)
		}
	}
	return filepath.Join(n.SessionDir, strings.Join(nonEmpty, "-")), nil
}

// compilerComponents splits a compiler path into name components,
// dropping a leading drive designator.
func compilerComponents(compiler string) []string {
	if len(compiler) > 1 && compiler[1] == ':' {
		compiler = compiler[2:]
	}
	parts := strings.FieldsFunc(compiler, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	return parts
}

// Log is one test's append-only transcript file plus its sibling
// diagnostic channel files, all sharing a base name.
type Log struct {
	basename string
	file     *os.File
}

// Open creates the transcript file <basename>.log for writing.
func Open(basename string) (*Log, error) {
	if strings.TrimSpace(basename) == "" {
		return nil, errors.New("basename is required")
	}
	// #nosec G304 -- basename is assembled from configured local paths.
	file, err := os.OpenFile(basename+transcriptExtension, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	return &Log{basename: basename, file: file}, nil
}

// Basename returns the shared base name of this test's log files.
func (l *Log) Basename() string {
	if l == nil {
		return ""
	}
	return l.basename
}

// Write appends transcript text; Log satisfies io.Writer so it can serve
// as the recorder's transcript sink.
func (l *Log) Write(p []byte) (int, error) {
	if l == nil || l.file == nil {
		return len(p), nil
	}
	return l.file.Write(p)
}

// WriteFooter appends the session info footer: generation timestamp and
// the command line that reruns just this test.
func (l *Log) WriteFooter(rerunArgs string, now time.Time) {
	if l == nil || l.file == nil {
		return
	}
	fmt.Fprintf(l.file, "Session info generated @ %s\n", now.Format(time.ANSIC))
	fmt.Fprintf(l.file, "To rerun this test, issue the following command:\n\n")
	fmt.Fprintf(l.file, "dgt run %s\n", rerunArgs)
}

// Close flushes and closes the transcript file.
func (l *Log) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// HostChannelPath returns the per-test host diagnostic log path.
func HostChannelPath(basename string) string {
	return basename + "-host.log"
}

// ServerChannelPath returns the per-test server diagnostic log path.
func ServerChannelPath(basename string) string {
	return basename + "-server.log"
}

// TouchChannelFiles creates empty host/server channel files, confirming
// they are writable before channels are enabled.
func TouchChannelFiles(basename string) error {
	for _, path := range []string{HostChannelPath(basename), ServerChannelPath(basename)} {
		// #nosec G304 -- paths derive from the configured session directory.
		file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("create channel log %s: %w", path, err)
		}
		if err := file.Close(); err != nil {
			return fmt.Errorf("close channel log %s: %w", path, err)
		}
	}
	return nil
}

// Finalize applies the outcome to every log file sharing the base name.
// Non-success outcomes (or log retention) rename each file with the
// outcome prefix; plain success deletes them.
func Finalize(basename string, prefixedBasename string, result outcome.Outcome, logSuccess bool) error {
	files, err := filepath.Glob(basename + "*")
	if err != nil {
		return fmt.Errorf("enumerate session logs: %w", err)
	}

	if result != outcome.Success || logSuccess {
		for _, src := range files {
			info, err := os.Stat(src)
			if err != nil || info.IsDir() {
				continue
			}
			dst := strings.Replace(src, basename, prefixedBasename, 1)
			if err := renameReplacing(src, dst); err != nil {
				return err
			}
		}
		return nil
	}

	for _, file := range files {
		removeWithRetry(file)
	}
	return nil
}

// renameReplacing renames src to dst, deleting a pre-existing
// destination and retrying once. Some platforms fail the rename instead
// of silently replacing the destination.
func renameReplacing(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	removeWithRetry(dst)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("rename session log %s: %w", src, err)
	}
	return nil
}

// removeWithRetry deletes a file, retrying after a short sleep. The
// first delete of a recently-touched file can race with scanners on some
// platforms.
func removeWithRetry(path string) {
	for attempt := 0; attempt <= removeRetries; attempt++ {
		if err := os.Remove(path); err == nil || errors.Is(err, os.ErrNotExist) {
			return
		}
		sleep(removeRetrySleep)
	}
}
