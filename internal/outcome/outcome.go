// Package outcome defines test classification states and the error
// taxonomy shared by the command driver, matcher, and lifecycle
// controller.
package outcome

import (
	"fmt"
	"strings"
)

// Outcome classifies one finished test. Exactly one outcome applies to a
// session at any time.
type Outcome int

const (
	// Success is the default classification.
	Success Outcome = iota
	// Errored marks an unexpected error outside test assertions.
	Errored
	// CleanupErrored marks an error raised while a test was cleaning up.
	CleanupErrored
	// Failed marks a test assertion failure.
	Failed
	// ExpectedFailure marks a failure the test declared in advance.
	ExpectedFailure
	// Skipped marks a test that did not run.
	Skipped
	// UnexpectedSuccess marks a test that passed despite an expected failure.
	UnexpectedSuccess
)

// Prefix returns the session log file prefix for the outcome. Success has
// no prefix; successful logs are deleted unless log retention is on.
func (o Outcome) Prefix() string {
	switch o {
	case Errored:
		return "Error"
	case CleanupErrored:
		return "CleanupError"
	case Failed:
		return "Failure"
	case ExpectedFailure:
		return "ExpectedFailure"
	case Skipped:
		return "SkippedTest"
	case UnexpectedSuccess:
		return "UnexpectedSuccess"
	default:
		return "Success"
	}
}

// String returns the transcript marker recorded when the outcome is set.
func (o Outcome) String() string {
	switch o {
	case Errored:
		return "ERROR"
	case CleanupErrored:
		return "CLEANUP_ERROR"
	case Failed:
		return "FAIL"
	case ExpectedFailure:
		return "expected failure"
	case Skipped:
		return "skipped test"
	case UnexpectedSuccess:
		return "unexpected success"
	default:
		return "success"
	}
}

// AssertionError is an expectation failure: the product under test did
// not produce the expected result. It surfaces as a failed test.
type AssertionError struct {
	Msg string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return e.Msg
}

// Assertionf builds an assertion error from a format string.
func Assertionf(format string, args ...any) *AssertionError {
	return &AssertionError{Msg: fmt.Sprintf(format, args...)}
}

// UsageError is a broken-test error: the harness was driven incorrectly.
// It is fatal and classifies the test as errored, not failed.
type UsageError struct {
	Msg string
}

// Error implements the error interface.
func (e *UsageError) Error() string {
	return e.Msg
}

// Usagef builds a usage error from a format string.
func Usagef(format string, args ...any) *UsageError {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// CommandMsg is the default diagnostic for a command expected to succeed.
func CommandMsg(command string) string {
	return fmt.Sprintf("Command '%s' returns successfully", command)
}

// ExpectMsg is the default diagnostic for an expect/match mismatch. The
// verb depends on whether the text came from command execution or was
// supplied directly.
func ExpectMsg(command string, actual string, exe bool) string {
	verb := "matches"
	if exe {
		verb = "returns"
	}
	return fmt.Sprintf("'%s' %s expected result, got '%s'", command, verb, strings.TrimSpace(actual))
}
