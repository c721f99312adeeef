package logging

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesLogFile(t *testing.T) {
	dir := t.TempDir()

	logger, err := New(context.Background(), WithDir(dir), WithRunID("run-123"))
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	assert.Equal(t, "run-123", logger.RunID())
	assert.True(t, strings.HasPrefix(logger.Path(), dir))
	assert.True(t, strings.HasSuffix(logger.Path(), "run-123.log"))

	content, err := os.ReadFile(logger.Path())
	require.NoError(t, err)
	assert.Contains(t, string(content), "logger initialized")
	assert.Contains(t, string(content), "run-123")
}

func TestNewGeneratesRunID(t *testing.T) {
	logger, err := New(context.Background(), WithDir(t.TempDir()))
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	assert.NotEmpty(t, logger.RunID())
}

func TestCloseIsNilSafe(t *testing.T) {
	var logger *RuntimeLogger
	assert.NoError(t, logger.Close())
	assert.Empty(t, logger.RunID())
	assert.Empty(t, logger.Path())
}
