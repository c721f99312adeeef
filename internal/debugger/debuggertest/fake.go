// Package debuggertest provides scripted fakes for the debugger contract,
// used across harness package tests.
package debuggertest

import (
	"sync"

	"github.com/debug-gauntlet/dgt/internal/debugger"
)

// Response scripts the outcome of one HandleCommand invocation.
type Response struct {
	Succeeded bool
	Output    string
	Error     string
}

// Interpreter replays scripted responses keyed by command text. Commands
// without a script entry succeed with empty output. When a command is
// scripted with a slice, responses are consumed in order and the last one
// repeats, which makes retry behavior easy to exercise.
type Interpreter struct {
	mu        sync.Mutex
	scripts   map[string][]Response
	callIndex map[string]int
	Commands  []string
}

// NewInterpreter constructs an empty scripted interpreter.
func NewInterpreter() *Interpreter {
	return &Interpreter{
		scripts:   map[string][]Response{},
		callIndex: map[string]int{},
	}
}

// Script registers the ordered responses for a command.
func (i *Interpreter) Script(command string, responses ...Response) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.scripts[command] = responses
}

// HandleCommand records the command and replays its scripted response.
func (i *Interpreter) HandleCommand(command string, result *debugger.Result) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.Commands = append(i.Commands, command)
	responses := i.scripts[command]
	if len(responses) == 0 {
		result.Set(true, "", "")
		return
	}
	idx := i.callIndex[command]
	if idx >= len(responses) {
		idx = len(responses) - 1
	}
	i.callIndex[command] = idx + 1
	response := responses[idx]
	result.Set(response.Succeeded, response.Output, response.Error)
}

// Process is a fake inferior whose Kill outcome is scripted.
type Process struct {
	KillErr error
	Killed  bool
}

// Kill records the kill and returns the scripted error.
func (p *Process) Kill() error {
	p.Killed = true
	return p.KillErr
}

// Target is a fake debug target optionally owning a fake process.
type Target struct {
	Proc *Process
}

// Process returns the fake inferior, or nil when the target has none.
func (t *Target) Process() debugger.Process {
	if t.Proc == nil {
		return nil
	}
	return t.Proc
}

// Debugger is a fake engine handle tracking async mode and target set.
type Debugger struct {
	mu          sync.Mutex
	Interp      *Interpreter
	TargetList  []*Target
	Async       bool
	AsyncSet    bool
	Triple      string
	DeleteCalls int
}

// NewDebugger constructs a fake debugger around a scripted interpreter.
func NewDebugger(interp *Interpreter) *Debugger {
	if interp == nil {
		interp = NewInterpreter()
	}
	return &Debugger{Interp: interp, Triple: "x86_64-unknown-linux-gnu"}
}

// SetAsync records the requested mode.
func (d *Debugger) SetAsync(async bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Async = async
	d.AsyncSet = true
}

// CommandInterpreter returns the scripted interpreter.
func (d *Debugger) CommandInterpreter() debugger.Interpreter {
	if d.Interp == nil {
		return nil
	}
	return d.Interp
}

// Targets snapshots the current target list.
func (d *Debugger) Targets() []debugger.Target {
	d.mu.Lock()
	defer d.mu.Unlock()
	targets := make([]debugger.Target, 0, len(d.TargetList))
	for _, target := range d.TargetList {
		targets = append(targets, target)
	}
	return targets
}

// DeleteTarget removes the target from the fake's list.
func (d *Debugger) DeleteTarget(target debugger.Target) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DeleteCalls++
	kept := d.TargetList[:0]
	for _, candidate := range d.TargetList {
		if debugger.Target(candidate) == target {
			continue
		}
		kept = append(kept, candidate)
	}
	d.TargetList = kept
	return nil
}

// SelectedPlatformTriple returns the scripted platform triple.
func (d *Debugger) SelectedPlatformTriple() string {
	return d.Triple
}

var _ debugger.Debugger = (*Debugger)(nil)
var _ debugger.Interpreter = (*Interpreter)(nil)
