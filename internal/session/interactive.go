package session

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/debug-gauntlet/dgt/internal/outcome"
)

const defaultChildTimeout = 30 * time.Second

// InteractiveChild drives a spawned interactive debugger process over
// its stdio, mirroring a user typing at the prompt. It satisfies Child
// so the session tears it down first.
type InteractiveChild struct {
	prompt  string
	timeout time.Duration
	cmd     *exec.Cmd
	stdin   io.WriteCloser

	chunks  chan []byte
	eof     chan struct{}
	done    chan struct{}
	pending strings.Builder
}

// SpawnInteractiveChild starts the configured debugger binary as an
// interactive child of this test, passing the no-init option when
// enabled, and registers it for teardown. The caller drives it with
// SendLine/ExpectPrompt.
func (s *Session) SpawnInteractiveChild(args ...string) (*InteractiveChild, error) {
	if s == nil {
		return nil, errors.New("session is nil")
	}
	if s.cfg.DebuggerExec == "" {
		return nil, outcome.Usagef("cannot spawn a child session: debugger_exec is not configured")
	}

	full := args
	if option := s.NoInitOption(); option != "" {
		full = append([]string{option}, args...)
	}

	child, err := startInteractiveChild(s.cfg.DebuggerExec, full, s.cfg.ChildPrompt)
	if err != nil {
		return nil, err
	}
	s.rec.Record(false, "spawned child session: %s %s", s.cfg.DebuggerExec, strings.Join(full, " "))
	s.SetChild(child)
	return child, nil
}

func startInteractiveChild(executable string, args []string, prompt string) (*InteractiveChild, error) {
	cmd := exec.Command(executable, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("child stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("child stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn child %s: %w", executable, err)
	}

	child := &InteractiveChild{
		prompt:  prompt,
		timeout: defaultChildTimeout,
		cmd:     cmd,
		stdin:   stdin,
		chunks:  make(chan []byte, 64),
		eof:     make(chan struct{}),
		done:    make(chan struct{}),
	}
	go child.pump(stdout)
	go func() {
		// Wait must run after the stdout pipe drains.
		<-child.eof
		_ = cmd.Wait()
		close(child.done)
	}()
	return child, nil
}

func (c *InteractiveChild) pump(r io.Reader) {
	defer close(c.eof)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.chunks <- chunk
		}
		if err != nil {
			return
		}
	}
}

// SendLine writes one input line to the child.
func (c *InteractiveChild) SendLine(text string) error {
	if c == nil {
		return errors.New("child is nil")
	}
	if _, err := io.WriteString(c.stdin, text+"\n"); err != nil {
		return fmt.Errorf("write to child: %w", err)
	}
	return nil
}

// ExpectPrompt reads child output until the prompt appears and returns
// everything up to and including it. Output past the prompt is kept for
// the next call.
func (c *InteractiveChild) ExpectPrompt() (string, error) {
	if c == nil {
		return "", errors.New("child is nil")
	}
	deadline := time.After(c.timeout)
	for {
		text := c.pending.String()
		if idx := strings.Index(text, c.prompt); idx >= 0 {
			end := idx + len(c.prompt)
			c.pending.Reset()
			c.pending.WriteString(text[end:])
			return text[:end], nil
		}

		select {
		case chunk := <-c.chunks:
			c.pending.Write(chunk)
		case <-c.done:
			// Drain whatever was queued before the exit notification.
			for {
				select {
				case chunk := <-c.chunks:
					c.pending.Write(chunk)
					continue
				default:
				}
				break
			}
			if strings.Contains(c.pending.String(), c.prompt) {
				continue
			}
			return c.pending.String(), errors.New("child exited before the prompt appeared")
		case <-deadline:
			return c.pending.String(), fmt.Errorf("timed out waiting for prompt %q", c.prompt)
		}
	}
}

// Exited reports whether the child process has terminated.
func (c *InteractiveChild) Exited() bool {
	if c == nil {
		return true
	}
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Shutdown quits the child the way a user would, escalating to a kill
// if it will not exit. Calling it on an exited child is a no-op.
func (c *InteractiveChild) Shutdown() error {
	if c == nil || c.Exited() {
		return nil
	}

	// Write errors here mean the child is already going away.
	_ = c.SendLine("quit")
	_ = c.stdin.Close()
	if c.waitExit(c.timeout) {
		return nil
	}

	_ = c.cmd.Process.Kill()
	if c.waitExit(time.Second) {
		return nil
	}
	return errors.New("child did not exit")
}

// waitExit waits for process exit, draining output so the pump never
// stalls on a chatty child.
func (c *InteractiveChild) waitExit(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case <-c.done:
			return true
		case <-c.chunks:
		case <-deadline:
			return false
		}
	}
}

var _ Child = (*InteractiveChild)(nil)
