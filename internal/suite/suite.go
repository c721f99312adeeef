// Package suite holds the test registry and the runner that executes
// registered groups: debug-info variant expansion, per-case session
// lifecycle, outcome classification, and result aggregation.
package suite

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/debug-gauntlet/dgt/internal/build"
	"github.com/debug-gauntlet/dgt/internal/config"
	"github.com/debug-gauntlet/dgt/internal/debugger"
	"github.com/debug-gauntlet/dgt/internal/events"
	"github.com/debug-gauntlet/dgt/internal/outcome"
	"github.com/debug-gauntlet/dgt/internal/session"
	"github.com/debug-gauntlet/dgt/internal/variant"
)

// ErrSkipped is returned (or wrapped) by a case body to classify the
// case as skipped.
var ErrSkipped = errors.New("test skipped")

// ErrExpectedFailure is returned (or wrapped) by a case body when a
// known failure occurred, classifying the case as an expected failure.
var ErrExpectedFailure = errors.New("expected failure")

// Case is one registered test. Unless it opts out, the runner replicates
// it once per debug-info representation supported on the target
// platform.
type Case struct {
	// Name is the test method name, unique within its group.
	Name string
	// Categories are the declared category tags; the debug-info subset
	// controls variant replication.
	Categories []variant.Category
	// NoDebugInfo opts the case out of variant replication.
	NoDebugInfo bool
	// LongRunning marks the case skippable under the long-running filter.
	LongRunning bool
	// Run is the test body.
	Run func(*session.Session) error
}

// Group is one registered test group sharing a fixture.
type Group struct {
	// Name is the group (class) name.
	Name string
	// Module is the source module component used in session log names.
	Module string
	// Dir is the test directory the fixture enters; empty stays put.
	Dir string
	// Cleanup is the optional group-level cleanup action.
	Cleanup func() error
	// Cases are the registered tests, pre-expansion.
	Cases []Case
}

// Result records the classification of one expanded case.
type Result struct {
	Group   string
	Case    string
	Outcome outcome.Outcome
	Err     error
}

// Summary aggregates a run.
type Summary struct {
	Results []Result
	Counts  map[outcome.Outcome]int
}

// Failed reports whether any case ended in a failing classification.
// Skips and expected failures do not fail the run.
func (s Summary) Failed() bool {
	return s.Counts[outcome.Failed] > 0 ||
		s.Counts[outcome.Errored] > 0 ||
		s.Counts[outcome.CleanupErrored] > 0 ||
		s.Counts[outcome.UnexpectedSuccess] > 0
}

// Runner executes registered groups.
type Runner struct {
	cfg       config.Config
	provider  debugger.Provider
	builder   build.Builder
	bus       events.Bus
	logger    *log.Logger
	traceSink io.Writer
	now       func() time.Time

	// filter, when set, restricts execution to cases whose
	// "group.method" name it accepts.
	filter func(group, method string) bool
}

// RunnerOption customizes runner construction.
type RunnerOption func(*Runner)

// WithBus attaches the lifecycle event bus.
func WithBus(bus events.Bus) RunnerOption {
	return func(r *Runner) { r.bus = bus }
}

// WithLogger attaches the runtime logger.
func WithLogger(logger *log.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithTraceSink redirects trace output away from stderr.
func WithTraceSink(sink io.Writer) RunnerOption {
	return func(r *Runner) { r.traceSink = sink }
}

// WithFilter restricts execution to matching "group.method" names.
func WithFilter(filter func(group, method string) bool) RunnerOption {
	return func(r *Runner) { r.filter = filter }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner constructs a runner.
func NewRunner(cfg config.Config, provider debugger.Provider, builder build.Builder, options ...RunnerOption) (*Runner, error) {
	if provider == nil {
		return nil, errors.New("debugger provider is required")
	}
	if builder == nil {
		return nil, errors.New("builder is required")
	}
	runner := &Runner{
		cfg:      cfg,
		provider: provider,
		builder:  builder,
		now:      time.Now,
	}
	for _, option := range options {
		if option != nil {
			option(runner)
		}
	}
	return runner, nil
}

// Run executes every group and returns the aggregated summary. Group
// fixture failures classify that group's cases as errored; execution
// continues with the remaining groups.
func (r *Runner) Run(groups []Group) (Summary, error) {
	if r == nil {
		return Summary{}, errors.New("runner is nil")
	}

	platform, err := r.resolvePlatform()
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{Counts: map[outcome.Outcome]int{}}
	for _, group := range groups {
		results := r.runGroup(group, platform)
		for _, result := range results {
			summary.Results = append(summary.Results, result)
			summary.Counts[result.Outcome]++
		}
	}
	return summary, nil
}

// resolvePlatform extracts the OS component of the debugger's selected
// platform triple; variant planning keys off it.
func (r *Runner) resolvePlatform() (string, error) {
	dbg, err := r.provider.Debugger()
	if err != nil {
		return "", fmt.Errorf("resolve platform: %w", err)
	}
	if dbg == nil {
		return "", errors.New("resolve platform: invalid debugger instance")
	}
	return variant.PlatformFromTriple(dbg.SelectedPlatformTriple()), nil
}

func (r *Runner) runGroup(group Group, platform string) []Result {
	cases := Expand(group.Cases, platform)
	if r.filter != nil {
		filtered := cases[:0]
		for _, c := range cases {
			if r.filter(group.Name, c.Name) {
				filtered = append(filtered, c)
			}
		}
		cases = filtered
	}
	if len(cases) == 0 {
		return nil
	}

	fixture, err := session.NewFixture(group.Name, group.Dir, r.cfg, r.builder, r.logger)
	if err == nil {
		fixture.Cleanup = group.Cleanup
		err = fixture.Begin()
	}
	if err != nil {
		r.logf("fixture setup failed: group=%s err=%v", group.Name, err)
		r.publishFixtureError(group.Name, err)
		results := make([]Result, 0, len(cases))
		for _, c := range cases {
			results = append(results, Result{Group: group.Name, Case: c.Name, Outcome: outcome.Errored, Err: err})
		}
		return results
	}

	results := make([]Result, 0, len(cases))
	for _, c := range cases {
		results = append(results, r.runCase(group, c))
	}

	if err := fixture.End(); err != nil {
		r.logf("fixture teardown failed: group=%s err=%v", group.Name, err)
		r.publishFixtureError(group.Name, err)
		results = append(results, Result{Group: group.Name, Case: "tearDownClass", Outcome: outcome.CleanupErrored, Err: err})
	}
	return results
}

func (r *Runner) runCase(group Group, c Case) Result {
	caseName := fmt.Sprintf("%s.%s", group.Name, c.Name)

	if r.cfg.SkipLongRunning && c.LongRunning {
		r.publishCase(events.TypeCaseFinished, caseName, outcome.Skipped)
		return Result{Group: group.Name, Case: c.Name, Outcome: outcome.Skipped, Err: ErrSkipped}
	}

	sess, err := session.Begin(session.Options{
		Config:    r.cfg,
		Module:    group.Module,
		Case:      group.Name,
		Method:    c.Name,
		Provider:  r.provider,
		Builder:   r.builder,
		Bus:       r.bus,
		TraceSink: r.traceSink,
		Now:       r.now,
	})
	if err != nil {
		r.logf("session setup failed: case=%s err=%v", caseName, err)
		return Result{Group: group.Name, Case: c.Name, Outcome: outcome.Errored, Err: err}
	}

	r.publishCase(events.TypeCaseStarted, caseName, outcome.Success)

	runErr := runProtected(c.Run, sess)
	classify(sess, runErr)

	endErr := sess.End()
	if endErr != nil {
		r.logf("session teardown: case=%s err=%v", caseName, endErr)
	}

	result := Result{
		Group:   group.Name,
		Case:    c.Name,
		Outcome: sess.Outcome(),
		Err:     errors.Join(runErr, endErr),
	}
	r.publishCase(events.TypeCaseFinished, caseName, result.Outcome)
	return result
}

// runProtected executes the case body, converting a panic into an error
// so one broken test cannot take down the whole run.
func runProtected(body func(*session.Session) error, sess *session.Session) (err error) {
	if body == nil {
		return outcome.Usagef("test case has no body")
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("test panicked: %v", recovered)
		}
	}()
	return body(sess)
}

// classify maps the case body's error to a session classification.
// Classifications the body set itself (expected failure, unexpected
// success) are left alone.
func classify(sess *session.Session, err error) {
	if sess.Outcome() != outcome.Success {
		return
	}
	if err == nil {
		return
	}

	var assertion *outcome.AssertionError
	switch {
	case errors.Is(err, ErrSkipped):
		sess.MarkSkipped()
	case errors.Is(err, ErrExpectedFailure):
		sess.MarkExpectedFailure()
	case errors.As(err, &assertion):
		sess.MarkFailed()
	default:
		sess.MarkErrored()
	}
}

func (r *Runner) publishCase(eventType, caseName string, result outcome.Outcome) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.Event{
		Type:      eventType,
		Timestamp: r.now().UTC(),
		Case:      caseName,
		Payload:   map[string]any{"outcome": result.Prefix()},
	})
}

func (r *Runner) publishFixtureError(group string, err error) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.Event{
		Type:      events.TypeFixtureError,
		Timestamp: r.now().UTC(),
		Case:      group,
		Payload:   map[string]any{"error": err.Error()},
	})
}

func (r *Runner) logf(format string, args ...any) {
	if r.logger == nil {
		return
	}
	r.logger.Warnf(format, args...)
}
