package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debug-gauntlet/dgt/internal/config"
	"github.com/debug-gauntlet/dgt/internal/debugger"
	"github.com/debug-gauntlet/dgt/internal/debugger/debuggertest"
	"github.com/debug-gauntlet/dgt/internal/logging"
	"github.com/debug-gauntlet/dgt/internal/session"
	"github.com/debug-gauntlet/dgt/internal/suite"
)

func TestRunCommandExecutesRegisteredGroups(t *testing.T) {
	suite.SetDefaultProvider(debugger.ProviderFunc(func() (debugger.Debugger, error) {
		return debuggertest.NewDebugger(nil), nil
	}))
	suite.Register(suite.Group{
		Name: "SmokeTestCase",
		Cases: []suite.Case{
			{Name: "test_pass", NoDebugInfo: true, Run: func(*session.Session) error { return nil }},
		},
	})

	cfg := config.Defaults()
	cfg.SessionDir = t.TempDir()
	cfg.CleanupEnabled = false

	logger, err := logging.New(context.Background(), logging.WithDir(t.TempDir()))
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	root := newRootCommand(&cfg, logger.Logger)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"run"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Success")
	assert.Contains(t, out.String(), "SmokeTestCase.test_pass")
	assert.Contains(t, out.String(), "ran 1 cases")
}

func TestListCommandShowsRegisteredCases(t *testing.T) {
	suite.Register(suite.Group{
		Name: "ListedTestCase",
		Cases: []suite.Case{
			{Name: "test_listed", NoDebugInfo: true, Run: func(*session.Session) error { return nil }},
		},
	})

	cfg := config.Defaults()
	logger, err := logging.New(context.Background(), logging.WithDir(t.TempDir()))
	require.NoError(t, err)
	defer func() { _ = logger.Close() }()

	root := newRootCommand(&cfg, logger.Logger)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"list"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "ListedTestCase.test_listed")
}
