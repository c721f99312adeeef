// Package session implements the per-test lifecycle controller: setup
// ordering, teardown hook execution, cleanup actions, subprocess
// reaping, and debugger reset between tests.
package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/debug-gauntlet/dgt/internal/build"
	"github.com/debug-gauntlet/dgt/internal/command"
	"github.com/debug-gauntlet/dgt/internal/config"
	"github.com/debug-gauntlet/dgt/internal/debugger"
	"github.com/debug-gauntlet/dgt/internal/events"
	"github.com/debug-gauntlet/dgt/internal/match"
	"github.com/debug-gauntlet/dgt/internal/outcome"
	"github.com/debug-gauntlet/dgt/internal/procs"
	"github.com/debug-gauntlet/dgt/internal/recorder"
	"github.com/debug-gauntlet/dgt/internal/sessionlog"
	"github.com/debug-gauntlet/dgt/internal/variant"
)

const noInitOption = "--no-lldbinit"

// Child is an interactive child session tied to one test, shut down
// first during teardown. Shutdown must tolerate an already-terminated
// child.
type Child interface {
	Shutdown() error
}

// Hook is a teardown action registered by the test body. Hooks run in
// reverse registration order; closures capture whatever state they need.
type Hook func() error

// Options configures session creation.
type Options struct {
	Config   config.Config
	Module   string
	Case     string
	Method   string
	Provider debugger.Provider
	Builder  build.Builder
	Bus      events.Bus
	// TraceSink receives transcript mirror output when tracing; defaults
	// to stderr.
	TraceSink io.Writer
	Now       func() time.Time
}

// Session owns one test execution: its transcript, debugger handles,
// registered teardown work, process registry, and classification.
type Session struct {
	cfg    config.Config
	method string
	name   string

	rec    *recorder.Recorder
	log    *sessionlog.Log
	namer  sessionlog.Namer
	dbg    debugger.Debugger
	interp debugger.Interpreter
	result *debugger.Result
	driver *command.Driver
	match  *match.Matcher
	build  build.Builder
	procs  *procs.Registry
	bus    events.Bus
	now    func() time.Time

	hooks       []Hook
	cleanupOpts map[string]string
	cleanupList []map[string]string
	doCleanup   bool
	doCleanups  bool

	child     Child
	debugInfo variant.Category
	verdict   outcome.Outcome
	ended     bool
}

// Begin establishes the session in the required order: working context,
// debugger handle, command interpreter, fresh result container, and
// diagnostic log channels. Any failure is fatal and aborts setup.
func Begin(opts Options) (*Session, error) {
	if opts.Provider == nil {
		return nil, errors.New("debugger provider is required")
	}
	if opts.Builder == nil {
		return nil, errors.New("builder is required")
	}
	if strings.TrimSpace(opts.Method) == "" {
		return nil, errors.New("test method name is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TraceSink == nil {
		opts.TraceSink = os.Stderr
	}

	namer := sessionlog.Namer{
		SessionDir:   opts.Config.SessionDir,
		Format:       opts.Config.SessionFileFormat,
		Module:       opts.Module,
		Case:         opts.Case,
		Compiler:     opts.Builder.Compiler(),
		Architecture: opts.Builder.Architecture(),
		Method:       opts.Method,
	}
	basename, err := namer.Basename("")
	if err != nil {
		return nil, fmt.Errorf("compute session log name: %w", err)
	}
	sessionLog, err := sessionlog.Open(basename)
	if err != nil {
		return nil, err
	}

	rec := recorder.New(sessionLog, opts.TraceSink, opts.Config.Trace)

	dbg, err := opts.Provider.Debugger()
	if err != nil {
		_ = sessionLog.Close()
		return nil, fmt.Errorf("acquire debugger: %w", err)
	}
	if dbg == nil {
		_ = sessionLog.Close()
		return nil, errors.New("invalid debugger instance")
	}
	// Every command must block the calling thread until completion.
	dbg.SetAsync(false)

	interp := dbg.CommandInterpreter()
	if interp == nil {
		_ = sessionLog.Close()
		return nil, errors.New("could not get the command interpreter")
	}

	result := debugger.NewResult()
	driver, err := command.New(interp, result, rec, command.Config{
		MaxLaunchAttempts:  opts.Config.MaxLaunchAttempts,
		TimeWaitNextLaunch: opts.Config.TimeWaitNextLaunch,
	})
	if err != nil {
		_ = sessionLog.Close()
		return nil, err
	}
	matcher, err := match.New(driver, rec)
	if err != nil {
		_ = sessionLog.Close()
		return nil, err
	}

	session := &Session{
		cfg:    opts.Config,
		method: opts.Method,
		name:   opts.Case,
		rec:    rec,
		log:    sessionLog,
		namer:  namer,
		dbg:    dbg,
		interp: interp,
		result: result,
		driver: driver,
		match:  matcher,
		build:  opts.Builder,
		procs:  procs.NewRegistry(opts.Config.Trace),
		bus:    opts.Bus,
		now:    opts.Now,
	}

	if err := session.enableLogChannels(); err != nil {
		_ = sessionLog.Close()
		return nil, err
	}
	return session, nil
}

// enableLogChannels opens the per-test diagnostic channel files and
// enables each configured channel through the interpreter. Only invoked
// when channels are configured; any failure is fatal.
func (s *Session) enableLogChannels() error {
	if len(s.cfg.Channels) == 0 {
		return nil
	}

	basename := s.log.Basename()
	if err := sessionlog.TouchChannelFiles(basename); err != nil {
		return err
	}

	hostLog := sessionlog.HostChannelPath(basename)
	for _, channel := range s.cfg.Channels {
		s.interp.HandleCommand(fmt.Sprintf("log enable -Tpn -f %s %s", hostLog, channel), s.result)
		if !s.result.Succeeded() {
			return fmt.Errorf("log enable failed for channel %q: %s", channel, s.result.Error())
		}
	}

	// The server-side collaborator discovers its log sink through the
	// environment.
	serverLog := sessionlog.ServerChannelPath(basename)
	if err := os.Setenv("DGT_SERVER_LOG_FILE", serverLog); err != nil {
		return fmt.Errorf("set server log file: %w", err)
	}
	if err := os.Setenv("DGT_SERVER_LOG_CHANNELS", strings.Join(s.cfg.Channels, ":")); err != nil {
		return fmt.Errorf("set server log channels: %w", err)
	}
	return nil
}

func (s *Session) disableLogChannels() error {
	if len(s.cfg.Channels) == 0 {
		return nil
	}
	for _, channelWithCategories := range s.cfg.Channels {
		channel := strings.SplitN(channelWithCategories, " ", 2)[0]
		s.interp.HandleCommand("log disable "+channel, s.result)
		if !s.result.Succeeded() {
			return fmt.Errorf("log disable failed for channel %q: %s", channel, s.result.Error())
		}
	}
	return nil
}

// Recorder exposes the transcript recorder.
func (s *Session) Recorder() *recorder.Recorder {
	if s == nil {
		return nil
	}
	return s.rec
}

// Result exposes the shared command result container.
func (s *Session) Result() *debugger.Result {
	if s == nil {
		return nil
	}
	return s.result
}

// Debugger exposes the acquired debugger handle.
func (s *Session) Debugger() debugger.Debugger {
	if s == nil {
		return nil
	}
	return s.dbg
}

// NoInitOption returns the launch option spawned interactive sessions
// must pass so init files stay unread, or empty when disabled.
func (s *Session) NoInitOption() string {
	if s == nil || !s.cfg.NoInit {
		return ""
	}
	return noInitOption
}

// RunCmd submits a command through the driver.
func (s *Session) RunCmd(cmd string, options ...command.RunOption) error {
	if s == nil {
		return errors.New("session is nil")
	}
	err := s.driver.RunCmd(cmd, options...)
	s.publish(events.TypeCommandExecuted, map[string]any{
		"command":   cmd,
		"succeeded": s.result.Succeeded(),
	})
	return err
}

// Expect validates command output (or supplied text) against criteria.
func (s *Session) Expect(input string, criteria match.Criteria) error {
	if s == nil {
		return errors.New("session is nil")
	}
	return s.match.Expect(input, criteria)
}

// Match searches command output (or supplied text) with the patterns and
// returns the first winning pattern's submatches.
func (s *Session) Match(input string, patterns []string, criteria match.Criteria) ([]string, error) {
	if s == nil {
		return nil, errors.New("session is nil")
	}
	return s.match.Match(input, patterns, criteria)
}

// SetDebugInfo records the active debug-info variant for this session.
func (s *Session) SetDebugInfo(category variant.Category) {
	if s == nil {
		return
	}
	s.debugInfo = category
}

// DebugInfo returns the active debug-info variant.
func (s *Session) DebugInfo() variant.Category {
	if s == nil {
		return variant.None
	}
	return s.debugInfo
}

// Build produces the test binaries for the active debug-info variant.
func (s *Session) Build(opts map[string]string) error {
	if s == nil {
		return errors.New("session is nil")
	}
	architecture := s.build.Architecture()
	compiler := s.build.Compiler()
	switch s.debugInfo {
	case variant.None:
		return s.build.BuildDefault(architecture, compiler, opts, true)
	case variant.Dsym:
		return s.build.BuildDsym(architecture, compiler, opts, true)
	case variant.Dwarf:
		return s.build.BuildDwarf(architecture, compiler, opts, true)
	case variant.Dwo:
		return s.build.BuildDwo(architecture, compiler, opts, true)
	default:
		return outcome.Usagef("can't build for debug info: %s", s.debugInfo)
	}
}

// AddTearDownHook registers a hook to run during End, in reverse
// registration order.
func (s *Session) AddTearDownHook(hook Hook) *Session {
	if s == nil || hook == nil {
		return s
	}
	s.rec.Record(false, "Adding tearDown hook")
	s.hooks = append(s.hooks, hook)
	return s
}

// SetTearDownCleanup registers the single cleanup option map applied at
// teardown.
func (s *Session) SetTearDownCleanup(opts map[string]string) {
	if s == nil {
		return
	}
	s.cleanupOpts = opts
	s.doCleanup = true
}

// AddTearDownCleanup appends one of possibly several cleanup option
// maps; they are applied in reverse order at teardown.
func (s *Session) AddTearDownCleanup(opts map[string]string) {
	if s == nil {
		return
	}
	s.cleanupList = append(s.cleanupList, opts)
	s.doCleanups = true
}

// SetChild attaches the interactive child session torn down first.
func (s *Session) SetChild(child Child) {
	if s == nil {
		return
	}
	s.child = child
}

// SpawnSubprocess launches an auxiliary process tracked by the session.
// Callers must also register CleanupSubprocesses as a teardown hook or
// the suite will leak processes.
func (s *Session) SpawnSubprocess(executable string, args ...string) (procs.Handle, error) {
	if s == nil {
		return nil, errors.New("session is nil")
	}
	return s.procs.Spawn(executable, args...)
}

// ForkSubprocess starts a detached child in its own process group.
// Callers must also register CleanupSubprocesses as a teardown hook.
func (s *Session) ForkSubprocess(executable string, args ...string) (int, error) {
	if s == nil {
		return 0, errors.New("session is nil")
	}
	return s.procs.Fork(executable, args...)
}

// CleanupSubprocesses reaps every tracked subprocess.
func (s *Session) CleanupSubprocesses() error {
	if s == nil {
		return nil
	}
	err := s.procs.CleanupAll()
	s.publish(events.TypeSubprocessReaped, nil)
	return err
}

// Outcome returns the session classification.
func (s *Session) Outcome() outcome.Outcome {
	if s == nil {
		return outcome.Success
	}
	return s.verdict
}

// MarkErrored classifies the session as errored.
func (s *Session) MarkErrored() { s.mark(outcome.Errored) }

// MarkCleanupErrored classifies the session as errored during cleanup.
func (s *Session) MarkCleanupErrored() { s.mark(outcome.CleanupErrored) }

// MarkFailed classifies the session as an assertion failure.
func (s *Session) MarkFailed() { s.mark(outcome.Failed) }

// MarkExpectedFailure classifies the session as an expected failure.
func (s *Session) MarkExpectedFailure() { s.mark(outcome.ExpectedFailure) }

// MarkSkipped classifies the session as skipped.
func (s *Session) MarkSkipped() { s.mark(outcome.Skipped) }

// MarkUnexpectedSuccess classifies the session as unexpectedly passing.
func (s *Session) MarkUnexpectedSuccess() { s.mark(outcome.UnexpectedSuccess) }

func (s *Session) mark(result outcome.Outcome) {
	if s == nil {
		return
	}
	s.verdict = result
	s.rec.Record(false, "%s", result.String())
}

// End tears the session down in guaranteed order: interactive child,
// hooks (reverse order, aborting remaining hooks on the first error),
// cleanup maps, log channels, then debugger target reaping. Later steps
// run even when an earlier one fails; all errors are reported together.
func (s *Session) End() error {
	if s == nil || s.ended {
		return nil
	}
	s.ended = true

	var errs []error

	if s.child != nil {
		s.rec.Record(false, "tearing down the child process....")
		if err := s.child.Shutdown(); err != nil {
			// An already-dead child is the common case here; record and
			// move on.
			s.rec.Record(false, "child shutdown: %v", err)
		}
		s.child = nil
	}

	if err := s.runHooks(); err != nil {
		errs = append(errs, err)
	}

	if err := s.runCleanups(); err != nil {
		errs = append(errs, err)
	}

	if err := s.disableLogChannels(); err != nil {
		errs = append(errs, err)
	}

	if err := s.reapTargets(); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err != nil && s.verdict == outcome.Success {
		s.MarkCleanupErrored()
	}

	s.finishLog()
	return err
}

// runHooks executes registered hooks in reverse registration order. A
// failing hook aborts the remaining hooks, mirroring sequential
// exception propagation; the steps after the hook phase still run.
func (s *Session) runHooks() error {
	hooks := s.hooks
	s.hooks = nil
	for i := len(hooks) - 1; i >= 0; i-- {
		s.rec.Record(false, "Executing tearDown hook")
		s.publish(events.TypeTeardownHook, map[string]any{"index": i})
		if err := hooks[i](); err != nil {
			s.rec.Record(false, "tearDown hook failed: %v", err)
			return fmt.Errorf("teardown hook %d: %w", i, err)
		}
	}
	return nil
}

// runCleanups applies the registered cleanup option maps: the single map
// first, then the list in reverse order. Skipped entirely when cleanup
// is disabled. Build cleanup failures are fatal.
func (s *Session) runCleanups() error {
	if !s.cfg.CleanupEnabled {
		return nil
	}
	if s.doCleanup {
		if err := s.build.Cleanup(s.cleanupOpts); err != nil {
			return err
		}
	}
	if s.doCleanups {
		for i := len(s.cleanupList) - 1; i >= 0; i-- {
			if err := s.build.Cleanup(s.cleanupList[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// reapTargets kills every live inferior and deletes all targets so the
// shared debugger starts the next test pristine. This is the most
// important resource-model invariant in the harness.
func (s *Session) reapTargets() error {
	var errs []error
	targets := s.dbg.Targets()
	for _, target := range targets {
		if process := target.Process(); process != nil {
			if err := process.Kill(); err != nil {
				errs = append(errs, outcome.Assertionf("process is killed successfully: %v", err))
			}
		}
	}
	for _, target := range targets {
		if err := s.dbg.DeleteTarget(target); err != nil {
			errs = append(errs, fmt.Errorf("delete target: %w", err))
		}
	}
	return errors.Join(errs...)
}

// finishLog writes the session footer, closes the transcript, and
// renames or deletes the log files according to the classification.
func (s *Session) finishLog() {
	s.log.WriteFooter(s.RerunArgs(), s.now())
	basename := s.log.Basename()
	_ = s.log.Close()

	prefixed := basename
	if s.verdict != outcome.Success || s.cfg.LogSuccess {
		if name, err := s.namer.Basename(s.verdict.Prefix()); err == nil {
			prefixed = name
		}
	}
	if err := sessionlog.Finalize(basename, prefixed, s.verdict, s.cfg.LogSuccess); err != nil {
		s.publish(events.TypeFixtureError, map[string]any{"error": err.Error()})
	}
}

// RerunArgs returns the driver arguments that rerun just this test.
func (s *Session) RerunArgs() string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("-f %s.%s", s.name, s.method)
}

func (s *Session) publish(eventType string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		Type:      eventType,
		Timestamp: s.now().UTC(),
		Case:      fmt.Sprintf("%s.%s", s.name, s.method),
		Payload:   payload,
	})
}
