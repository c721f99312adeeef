// Package procs manages auxiliary child processes spawned by tests: local
// launches, detached forks, and the per-test registry that guarantees
// everything is reaped at teardown.
package procs

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

const defaultDelayAfterSignal = 100 * time.Millisecond

// ErrAlreadyLaunched indicates Launch was called twice on one handle.
var ErrAlreadyLaunched = errors.New("process already launched")

// Handle abstracts a child process owned by a test session. A handle's
// pid is undefined (zero) before Launch.
type Handle interface {
	PID() int
	Launch(executable string, args []string) error
	Terminate() error
	Poll() bool
}

// LocalProcess launches a child on the local host. Termination walks an
// escalating signal sequence, pausing briefly after each step and
// stopping as soon as the child is observed to have exited.
type LocalProcess struct {
	tracing bool
	delay   time.Duration
	sleep   func(time.Duration)

	mu      sync.Mutex
	cmd     *exec.Cmd
	done    chan struct{}
	waitErr error
}

// NewLocalProcess constructs an unlaunched local process handle. When
// tracing is enabled the child inherits the harness stdout/stderr,
// otherwise its output is discarded.
func NewLocalProcess(tracing bool) *LocalProcess {
	return &LocalProcess{
		tracing: tracing,
		delay:   defaultDelayAfterSignal,
		sleep:   time.Sleep,
	}
}

// PID returns the child pid, or zero before launch.
func (p *LocalProcess) PID() int {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Launch starts the child process.
func (p *LocalProcess) Launch(executable string, args []string) error {
	if p == nil {
		return errors.New("process handle is nil")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return ErrAlreadyLaunched
	}

	cmd := exec.Command(executable, args...)
	if p.tracing {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", executable, err)
	}

	done := make(chan struct{})
	p.cmd = cmd
	p.done = done
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.waitErr = err
		p.mu.Unlock()
		close(done)
	}()
	return nil
}

// Poll reports whether the child has exited. An unlaunched handle counts
// as exited.
func (p *LocalProcess) Poll() bool {
	if p == nil {
		return true
	}
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// Terminate walks the escalation sequence: SIGHUP, SIGCONT, SIGINT, then
// SIGTERM, then SIGKILL, sleeping after each signal and returning as soon
// as the child exits. Calling it on an exited or unlaunched handle is a
// no-op.
func (p *LocalProcess) Terminate() error {
	if p == nil || p.Poll() {
		return nil
	}
	p.mu.Lock()
	proc := p.cmd.Process
	p.mu.Unlock()
	if proc == nil {
		return nil
	}

	for _, sig := range []unix.Signal{unix.SIGHUP, unix.SIGCONT, unix.SIGINT, unix.SIGTERM} {
		// Signal errors mean the process is already gone; the poll below
		// settles it either way.
		_ = proc.Signal(sig)
		p.sleep(p.delay)
		if p.Poll() {
			return nil
		}
	}
	_ = proc.Kill()
	p.sleep(p.delay)
	return nil
}

var _ Handle = (*LocalProcess)(nil)

// Registry tracks every child a test creates so teardown can reap them.
// Tests that spawn or fork must register CleanupAll as a teardown hook.
type Registry struct {
	tracing bool
	kill    func(pid int, sig unix.Signal) error

	mu         sync.Mutex
	handles    []Handle
	forkedPids []int
}

// NewRegistry constructs an empty process registry.
func NewRegistry(tracing bool) *Registry {
	return &Registry{
		tracing: tracing,
		kill: func(pid int, sig unix.Signal) error {
			return unix.Kill(pid, sig)
		},
	}
}

// Spawn launches a local process and records it for teardown reaping.
func (r *Registry) Spawn(executable string, args ...string) (Handle, error) {
	if r == nil {
		return nil, errors.New("registry is nil")
	}
	handle := NewLocalProcess(r.tracing)
	if err := handle.Launch(executable, args); err != nil {
		return nil, err
	}
	r.Register(handle)
	return handle, nil
}

// Register adds an externally created handle to the registry.
func (r *Registry) Register(handle Handle) {
	if r == nil || handle == nil {
		return
	}
	r.mu.Lock()
	r.handles = append(r.handles, handle)
	r.mu.Unlock()
}

// Fork starts a detached child in its own process group with stdio
// discarded, records its pid, and returns it. The child is reaped by a
// background wait; teardown sends SIGTERM to the group if it is still
// alive.
func (r *Registry) Fork(executable string, args ...string) (int, error) {
	if r == nil {
		return 0, errors.New("registry is nil")
	}

	cmd := exec.Command(executable, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("fork %s: %w", executable, err)
	}
	pid := cmd.Process.Pid
	go func() { _ = cmd.Wait() }()

	r.mu.Lock()
	r.forkedPids = append(r.forkedPids, pid)
	r.mu.Unlock()
	return pid, nil
}

// CleanupAll terminates every registered handle and SIGTERMs any live
// forked process group, then empties the registry. Termination errors
// are collected rather than aborting the sweep.
func (r *Registry) CleanupAll() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	handles := r.handles
	forked := r.forkedPids
	r.handles = nil
	r.forkedPids = nil
	r.mu.Unlock()

	var errs []error
	for _, handle := range handles {
		if err := handle.Terminate(); err != nil {
			errs = append(errs, fmt.Errorf("terminate pid %d: %w", handle.PID(), err))
		}
	}
	for _, pid := range forked {
		if r.kill(pid, 0) != nil {
			continue
		}
		if err := r.kill(-pid, unix.SIGTERM); err != nil {
			errs = append(errs, fmt.Errorf("signal forked group %d: %w", pid, err))
		}
	}
	return errors.Join(errs...)
}

// Size returns the number of tracked handles and forked pids.
func (r *Registry) Size() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles) + len(r.forkedPids)
}
