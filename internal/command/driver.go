// Package command implements the command driver: it submits command text
// to the debugger's interpreter, retries transient launch failures, and
// records every attempt in the session transcript.
package command

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/debug-gauntlet/dgt/internal/debugger"
	"github.com/debug-gauntlet/dgt/internal/outcome"
	"github.com/debug-gauntlet/dgt/internal/recorder"
)

const (
	targetCreateAlias     = "target create "
	targetCreatePrimitive = "file "

	defaultMaxLaunchAttempts  = 3
	defaultTimeWaitNextLaunch = time.Second
)

// Config bounds the launch retry loop.
type Config struct {
	MaxLaunchAttempts  int
	TimeWaitNextLaunch time.Duration
}

// Driver submits commands to one interpreter, writing outcomes into the
// session's shared result container.
type Driver struct {
	interp             debugger.Interpreter
	result             *debugger.Result
	rec                *recorder.Recorder
	maxLaunchAttempts  int
	timeWaitNextLaunch time.Duration

	// notify observes the wait before each retried attempt; injectable in
	// tests.
	notify backoff.Notify
}

// New constructs a command driver bound to a session's interpreter,
// result container, and transcript recorder.
func New(interp debugger.Interpreter, result *debugger.Result, rec *recorder.Recorder, cfg Config) (*Driver, error) {
	if interp == nil {
		return nil, errors.New("interpreter is required")
	}
	if result == nil {
		return nil, errors.New("result container is required")
	}
	if rec == nil {
		return nil, errors.New("recorder is required")
	}
	if cfg.MaxLaunchAttempts <= 0 {
		cfg.MaxLaunchAttempts = defaultMaxLaunchAttempts
	}
	if cfg.TimeWaitNextLaunch <= 0 {
		cfg.TimeWaitNextLaunch = defaultTimeWaitNextLaunch
	}
	return &Driver{
		interp:             interp,
		result:             result,
		rec:                rec,
		maxLaunchAttempts:  cfg.MaxLaunchAttempts,
		timeWaitNextLaunch: cfg.TimeWaitNextLaunch,
	}, nil
}

// Result exposes the shared result container for output inspection.
func (d *Driver) Result() *debugger.Result {
	if d == nil {
		return nil
	}
	return d.result
}

// RunOption customizes one RunCmd invocation.
type RunOption func(*runOptions)

type runOptions struct {
	msg   string
	check bool
	trace bool
}

// WithMessage overrides the diagnostic used when the success assertion
// fails.
func WithMessage(msg string) RunOption {
	return func(opts *runOptions) {
		opts.msg = msg
	}
}

// NoCheck disables the final success assertion; the caller interprets
// the result container itself.
func NoCheck() RunOption {
	return func(opts *runOptions) {
		opts.check = false
	}
}

// WithTrace mirrors this command's transcript entries to the trace
// stream even when global tracing is off.
func WithTrace() RunOption {
	return func(opts *runOptions) {
		opts.trace = true
	}
}

// IsLaunch reports whether the command starts an inferior process and is
// therefore eligible for the retry loop.
func IsLaunch(cmd string) bool {
	return strings.HasPrefix(cmd, "run") || strings.HasPrefix(cmd, "process launch")
}

// RunCmd asks the interpreter to handle cmd and checks its return
// status. Empty command text is a usage error. Launch commands are
// retried up to the configured attempt budget with a constant wait
// between attempts, stopping at the first success. Unless NoCheck is
// given, a final unsuccessful result is an assertion failure naming the
// command.
func (d *Driver) RunCmd(cmd string, options ...RunOption) error {
	if d == nil {
		return errors.New("driver is nil")
	}
	if cmd == "" {
		return outcome.Usagef("bad 'cmd' parameter encountered: empty command")
	}

	opts := runOptions{check: true}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}

	// Normalize the high-level target creation alias to the primitive
	// form the interpreter expects.
	if strings.HasPrefix(cmd, targetCreateAlias) {
		cmd = targetCreatePrimitive + strings.TrimPrefix(cmd, targetCreateAlias)
	}

	launching := IsLaunch(cmd)
	attempts := 1
	if launching {
		attempts = d.maxLaunchAttempts
	}

	attemptFailed := errors.New("command attempt failed")
	operation := func() (struct{}, error) {
		d.interp.HandleCommand(cmd, d.result)

		scope := d.rec.Scope(opts.trace)
		scope.Printf("runCmd: %s", cmd)
		if !opts.check {
			scope.Printf("check of return status not required")
		}
		if d.result.Succeeded() {
			scope.Printf("output: %s", d.result.Output())
		} else {
			scope.Printf("runCmd failed!")
			scope.Printf("%s", d.result.Error())
		}
		scope.Close()

		if d.result.Succeeded() {
			return struct{}{}, nil
		}
		if launching {
			d.rec.Record(opts.trace, "Command '%s' failed!", cmd)
		}
		return struct{}{}, attemptFailed
	}

	// The constant backoff sleeps only between attempts, so a three-try
	// launch waits twice. Non-launch commands get a single try.
	retryOptions := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(d.timeWaitNextLaunch)),
		backoff.WithMaxTries(uint(attempts)),
	}
	if d.notify != nil {
		retryOptions = append(retryOptions, backoff.WithNotify(d.notify))
	}
	_, err := backoff.Retry(context.Background(), operation, retryOptions...)
	if err != nil && !errors.Is(err, attemptFailed) {
		return err
	}

	if opts.check && !d.result.Succeeded() {
		msg := opts.msg
		if msg == "" {
			msg = outcome.CommandMsg(cmd)
		}
		return outcome.Assertionf("%s", msg)
	}
	return nil
}
