// Package debugger defines the narrow contract the harness consumes from
// the debugger engine. The engine itself is an external collaborator; the
// harness only needs to execute interpreter commands, inspect their
// results, and enumerate/reset targets between tests.
package debugger

// Result carries the outcome of one interpreter command execution. A fresh
// Result container is attached to each test session and overwritten by
// every command; it is never retained across commands.
type Result struct {
	succeeded bool
	output    string
	errText   string
}

// NewResult constructs a result container in its zero (failed, empty) state.
func NewResult() *Result {
	return &Result{}
}

// Set overwrites the container with the outcome of the latest command.
func (r *Result) Set(succeeded bool, output string, errText string) {
	if r == nil {
		return
	}
	r.succeeded = succeeded
	r.output = output
	r.errText = errText
}

// Succeeded reports whether the latest command completed successfully.
func (r *Result) Succeeded() bool {
	return r != nil && r.succeeded
}

// Output returns the stdout text of the latest command.
func (r *Result) Output() string {
	if r == nil {
		return ""
	}
	return r.output
}

// Error returns the stderr text of the latest command.
func (r *Result) Error() string {
	if r == nil {
		return ""
	}
	return r.errText
}

// Interpreter executes command strings against the engine's command
// interpreter, writing the outcome into the supplied result container.
type Interpreter interface {
	HandleCommand(command string, result *Result)
}

// Process is a live inferior owned by a target.
type Process interface {
	Kill() error
}

// Target is one debug target registered with the debugger.
type Target interface {
	Process() Process
}

// Debugger is the engine handle a session acquires during setup. The
// handle is intentionally reusable across tests; Targets/DeleteTarget
// exist so teardown can return it to a pristine state.
type Debugger interface {
	SetAsync(async bool)
	CommandInterpreter() Interpreter
	Targets() []Target
	DeleteTarget(target Target) error
	SelectedPlatformTriple() string
}

// Provider yields the debugger instance for a session, reusing a shared
// instance when one exists. Modeling the process-wide singleton as an
// injected dependency keeps the reset-between-tests contract explicit.
type Provider interface {
	Debugger() (Debugger, error)
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc func() (Debugger, error)

// Debugger calls the wrapped function.
func (f ProviderFunc) Debugger() (Debugger, error) {
	return f()
}
