package build

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	invocations [][]string
	err         error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.invocations = append(r.invocations, append([]string{name}, args...))
	return nil, r.err
}

func newTestBuilder(t *testing.T, runner CommandRunner) *MakeBuilder {
	t.Helper()
	builder, err := NewMakeBuilderWithRunner(runner, MakeBuilderConfig{
		Architecture: "x86_64",
		Compiler:     "clang",
	})
	require.NoError(t, err)
	return builder
}

func TestBuildDwarfCleansThenBuilds(t *testing.T) {
	runner := &recordingRunner{}
	builder := newTestBuilder(t, runner)

	err := builder.BuildDwarf("x86_64", "clang", map[string]string{"CXXFLAGS": "-O0", "B": "2"}, true)
	require.NoError(t, err)

	require.Len(t, runner.invocations, 2)
	assert.Equal(t, []string{"make", "clean", "B=2", "CXXFLAGS=-O0"}, runner.invocations[0])
	assert.Equal(t, []string{"make", "MAKE_DSYM=NO", "ARCH=x86_64", "CC=clang", "B=2", "CXXFLAGS=-O0"},
		runner.invocations[1])
}

func TestBuildVariantsPassMakeVariables(t *testing.T) {
	tests := []struct {
		name     string
		build    func(b *MakeBuilder) error
		variable string
	}{
		{
			name:     "dsym",
			build:    func(b *MakeBuilder) error { return b.BuildDsym("", "", nil, false) },
			variable: "MAKE_DSYM=YES",
		},
		{
			name:     "dwo",
			build:    func(b *MakeBuilder) error { return b.BuildDwo("", "", nil, false) },
			variable: "MAKE_DWO=YES",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			runner := &recordingRunner{}
			builder := newTestBuilder(t, runner)
			require.NoError(t, tc.build(builder))
			require.Len(t, runner.invocations, 1)
			assert.Equal(t, tc.variable, runner.invocations[0][1])
		})
	}
}

func TestBuildDefaultOmitsVariantVariable(t *testing.T) {
	runner := &recordingRunner{}
	builder := newTestBuilder(t, runner)

	require.NoError(t, builder.BuildDefault("arm64", "gcc", nil, false))
	require.Len(t, runner.invocations, 1)
	assert.Equal(t, []string{"make", "ARCH=arm64", "CC=gcc"}, runner.invocations[0])
}

func TestCleanupError(t *testing.T) {
	runner := &recordingRunner{err: errors.New("make: *** no rule to make target")}
	builder := newTestBuilder(t, runner)

	err := builder.Cleanup(nil)
	assert.ErrorContains(t, err, "build cleanup")
}

func TestNewMakeBuilderDefaults(t *testing.T) {
	builder := NewMakeBuilder(MakeBuilderConfig{})

	assert.NotEmpty(t, builder.Architecture())
	assert.Equal(t, "cc", builder.Compiler())
	assert.False(t, strings.Contains(builder.Architecture(), "amd64"))
}

func TestNewMakeBuilderWithRunnerValidation(t *testing.T) {
	_, err := NewMakeBuilderWithRunner(nil, MakeBuilderConfig{})
	assert.Error(t, err)
}
