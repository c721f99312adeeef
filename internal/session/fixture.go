package session

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/debug-gauntlet/dgt/internal/build"
	"github.com/debug-gauntlet/dgt/internal/config"
	"github.com/debug-gauntlet/dgt/internal/dirlock"
)

// Fixture is the shared environment for every expanded case of one test
// group: working directory, optional directory exclusivity lock, and the
// group-level cleanup action.
type Fixture struct {
	// Name identifies the group in lock ownership and diagnostics.
	Name string
	// Dir is the test directory the fixture enters for the duration of
	// the group. Empty keeps the current directory.
	Dir string
	// Cleanup is the optional group-level cleanup action. Its failure is
	// reported, not propagated, so teardown always completes.
	Cleanup func() error

	cfg     config.Config
	builder build.Builder
	logger  *log.Logger

	previousDir string
	lock        *dirlock.Lock
	begun       bool
}

// NewFixture constructs a fixture. The builder handles build-product
// cleanup at group teardown; logger may be nil.
func NewFixture(name, dir string, cfg config.Config, builder build.Builder, logger *log.Logger) (*Fixture, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("fixture name is required")
	}
	if builder == nil {
		return nil, errors.New("builder is required")
	}
	return &Fixture{
		Name:    name,
		Dir:     dir,
		cfg:     cfg,
		builder: builder,
		logger:  logger,
	}, nil
}

// Begin enters the test directory and, when configured, acquires the
// directory exclusivity lock. A lock conflict is reported and returned;
// the lock itself is held so the colliding workers serialize.
func (f *Fixture) Begin() error {
	if f == nil {
		return errors.New("fixture is nil")
	}
	if f.begun {
		return errors.New("fixture already begun")
	}

	previousDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("capture working directory: %w", err)
	}
	f.previousDir = previousDir

	if f.Dir != "" {
		if err := os.Chdir(f.Dir); err != nil {
			return fmt.Errorf("enter test directory: %w", err)
		}
	}
	f.begun = true

	if f.cfg.ConfirmDirectoryExclusivity && f.Dir != "" {
		lock, err := dirlock.New(f.Dir, f.Name)
		if err != nil {
			f.rollback()
			return err
		}
		if err := lock.Acquire(); err != nil {
			if errors.Is(err, dirlock.ErrConflict) {
				f.logf("DIR LOCK ERROR: %v", err)
			}
			// The blocking acquire already serialized with the previous
			// holder; drop the lock instead of leaking it for the rest of
			// the process.
			_ = lock.Release()
			f.rollback()
			return err
		}
		f.lock = lock
	}
	return nil
}

// rollback undoes a partial Begin so a failed setup leaves no working
// directory change behind.
func (f *Fixture) rollback() {
	f.begun = false
	if f.previousDir != "" {
		_ = os.Chdir(f.previousDir)
	}
}

// End tears the fixture down: build-product cleanup (fatal on failure),
// the group cleanup action (reported only), lock release, and working
// directory restoration. Later steps always run.
func (f *Fixture) End() error {
	if f == nil || !f.begun {
		return nil
	}
	f.begun = false

	var errs []error

	if f.cfg.CleanupEnabled {
		if err := f.builder.Cleanup(nil); err != nil {
			errs = append(errs, err)
		}
	}

	if f.Cleanup != nil {
		if err := f.Cleanup(); err != nil {
			f.logf("fixture cleanup failed: %v", err)
		}
	}

	if f.lock != nil {
		if err := f.lock.Release(); err != nil {
			errs = append(errs, err)
		}
		f.lock = nil
	}

	if f.previousDir != "" {
		if err := os.Chdir(f.previousDir); err != nil {
			errs = append(errs, fmt.Errorf("restore working directory: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fixture) logf(format string, args ...any) {
	if f.logger == nil {
		return
	}
	f.logger.Warnf(format, args...)
}
