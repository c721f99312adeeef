package outcome

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrefix(t *testing.T) {
	tests := []struct {
		outcome Outcome
		prefix  string
	}{
		{Success, "Success"},
		{Errored, "Error"},
		{CleanupErrored, "CleanupError"},
		{Failed, "Failure"},
		{ExpectedFailure, "ExpectedFailure"},
		{Skipped, "SkippedTest"},
		{UnexpectedSuccess, "UnexpectedSuccess"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.prefix, tc.outcome.Prefix())
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "ERROR", Errored.String())
	assert.Equal(t, "CLEANUP_ERROR", CleanupErrored.String())
	assert.Equal(t, "FAIL", Failed.String())
}

func TestAssertionErrorDistinctFromUsageError(t *testing.T) {
	var err error = Assertionf("value is %d", 42)

	var assertion *AssertionError
	var usage *UsageError
	assert.True(t, errors.As(err, &assertion))
	assert.False(t, errors.As(err, &usage))
	assert.Equal(t, "value is 42", err.Error())
}

func TestCommandMsg(t *testing.T) {
	assert.Equal(t, "Command 'file a.out' returns successfully", CommandMsg("file a.out"))
}

func TestExpectMsg(t *testing.T) {
	executed := ExpectMsg("frame variable", "  (int) x = 1\n", true)
	assert.Equal(t, "'frame variable' returns expected result, got '(int) x = 1'", executed)

	supplied := ExpectMsg("some text", "other text", false)
	assert.Equal(t, "'some text' matches expected result, got 'other text'", supplied)
}
