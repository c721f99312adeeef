// Package build defines the build collaborator contract used to produce
// test binaries for each debug-info representation, plus a make-backed
// default implementation.
package build

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"sort"
	"strings"
)

// Builder produces test binaries for the debug-info representations and
// cleans build products between tests.
type Builder interface {
	BuildDefault(architecture, compiler string, opts map[string]string, clean bool) error
	BuildDsym(architecture, compiler string, opts map[string]string, clean bool) error
	BuildDwarf(architecture, compiler string, opts map[string]string, clean bool) error
	BuildDwo(architecture, compiler string, opts map[string]string, clean bool) error
	Cleanup(opts map[string]string) error
	Architecture() string
	Compiler() string
}

// CommandRunner executes build commands.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type defaultCommandRunner struct{}

func (defaultCommandRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		trimmed := strings.TrimSpace(string(out))
		if trimmed == "" {
			return nil, fmt.Errorf("run %s %s: %w", name, strings.Join(args, " "), err)
		}
		return nil, fmt.Errorf("run %s %s: %w (%s)", name, strings.Join(args, " "), err, trimmed)
	}
	return out, nil
}

// MakeBuilder drives the per-test Makefile the way the platform build
// plugins do: one make invocation per requested representation, with the
// option map passed as VAR=value arguments.
type MakeBuilder struct {
	runner       CommandRunner
	architecture string
	compiler     string
}

// MakeBuilderConfig configures architecture/compiler reporting.
type MakeBuilderConfig struct {
	Architecture string
	Compiler     string
}

// NewMakeBuilder constructs a make-backed builder with default command
// execution.
func NewMakeBuilder(cfg MakeBuilderConfig) *MakeBuilder {
	builder, _ := NewMakeBuilderWithRunner(defaultCommandRunner{}, cfg)
	return builder
}

// NewMakeBuilderWithRunner constructs a make-backed builder with an
// injectable command runner.
func NewMakeBuilderWithRunner(runner CommandRunner, cfg MakeBuilderConfig) (*MakeBuilder, error) {
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	architecture := strings.TrimSpace(cfg.Architecture)
	if architecture == "" {
		architecture = runtime.GOARCH
		if architecture == "amd64" {
			architecture = "x86_64"
		}
	}
	compiler := strings.TrimSpace(cfg.Compiler)
	if compiler == "" {
		compiler = "cc"
	}
	return &MakeBuilder{
		runner:       runner,
		architecture: architecture,
		compiler:     compiler,
	}, nil
}

// BuildDefault builds with the platform default debug-info representation.
func (b *MakeBuilder) BuildDefault(architecture, compiler string, opts map[string]string, clean bool) error {
	return b.invoke("", architecture, compiler, opts, clean)
}

// BuildDsym builds with a dSYM debug-info bundle.
func (b *MakeBuilder) BuildDsym(architecture, compiler string, opts map[string]string, clean bool) error {
	return b.invoke("MAKE_DSYM=YES", architecture, compiler, opts, clean)
}

// BuildDwarf builds with inline DWARF debug info.
func (b *MakeBuilder) BuildDwarf(architecture, compiler string, opts map[string]string, clean bool) error {
	return b.invoke("MAKE_DSYM=NO", architecture, compiler, opts, clean)
}

// BuildDwo builds with DWARF fission (split dwo) debug info.
func (b *MakeBuilder) BuildDwo(architecture, compiler string, opts map[string]string, clean bool) error {
	return b.invoke("MAKE_DWO=YES", architecture, compiler, opts, clean)
}

// Cleanup removes build products for the current test directory.
func (b *MakeBuilder) Cleanup(opts map[string]string) error {
	if b == nil {
		return errors.New("builder is nil")
	}
	args := append([]string{"clean"}, optionArgs(opts)...)
	if _, err := b.runner.Run(context.Background(), "make", args...); err != nil {
		return fmt.Errorf("build cleanup: %w", err)
	}
	return nil
}

// Architecture returns the architecture the suite builds for.
func (b *MakeBuilder) Architecture() string {
	if b == nil {
		return ""
	}
	return b.architecture
}

// Compiler returns the compiler the suite builds with.
func (b *MakeBuilder) Compiler() string {
	if b == nil {
		return ""
	}
	return b.compiler
}

func (b *MakeBuilder) invoke(variant string, architecture, compiler string, opts map[string]string, clean bool) error {
	if b == nil {
		return errors.New("builder is nil")
	}
	if clean {
		if err := b.Cleanup(opts); err != nil {
			return err
		}
	}

	args := make([]string, 0, len(opts)+4)
	if variant != "" {
		args = append(args, variant)
	}
	if architecture = strings.TrimSpace(architecture); architecture != "" {
		args = append(args, "ARCH="+architecture)
	}
	if compiler = strings.TrimSpace(compiler); compiler != "" {
		args = append(args, "CC="+compiler)
	}
	args = append(args, optionArgs(opts)...)

	if _, err := b.runner.Run(context.Background(), "make", args...); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	return nil
}

func optionArgs(opts map[string]string) []string {
	keys := make([]string, 0, len(opts))
	for key := range opts {
		if strings.TrimSpace(key) == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys))
	for _, key := range keys {
		args = append(args, fmt.Sprintf("%s=%s", key, opts[key]))
	}
	return args
}

var _ Builder = (*MakeBuilder)(nil)
