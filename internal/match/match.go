// Package match implements the expect/match output validation protocol:
// a stage-gated comparison of captured debugger output against
// start-string, end-string, substring, and regex pattern gates under a
// positive or negated polarity.
package match

import (
	"errors"
	"regexp"
	"strings"

	"github.com/debug-gauntlet/dgt/internal/command"
	"github.com/debug-gauntlet/dgt/internal/outcome"
	"github.com/debug-gauntlet/dgt/internal/recorder"
)

// Criteria describes one expect call. The zero value asserts positive
// matching against the output of executing the input as a command.
type Criteria struct {
	// StartsWith requires the output to begin with this literal.
	StartsWith string
	// EndsWith requires the output to end with this literal.
	EndsWith string
	// Substrings must each be found in the output, in the order given.
	Substrings []string
	// Patterns are regular expressions that must each find a match.
	Patterns []string
	// Negated inverts the polarity: the output must NOT match.
	Negated bool
	// Error expects the command to fail and matches its stderr text.
	Error bool
	// NoExec treats the input as pre-captured output instead of a command.
	NoExec bool
	// Trace mirrors gate evaluation to the trace stream.
	Trace bool
	// Msg overrides the default mismatch diagnostic.
	Msg string
}

// Matcher evaluates expect/match calls for one session.
type Matcher struct {
	driver *command.Driver
	rec    *recorder.Recorder
}

// New constructs a matcher. The driver may be nil for matchers that only
// evaluate pre-captured text.
func New(driver *command.Driver, rec *recorder.Recorder) (*Matcher, error) {
	if rec == nil {
		return nil, errors.New("recorder is required")
	}
	return &Matcher{driver: driver, rec: rec}, nil
}

// Expect validates output against the criteria gates, evaluated strictly
// in start, end, substring, pattern order. A later gate is evaluated
// only while the running verdict is still plausible under the requested
// polarity. The final verdict is asserted against the polarity; a
// mismatch is an assertion failure carrying the input and trimmed
// output.
func (m *Matcher) Expect(input string, criteria Criteria) error {
	if m == nil {
		return errors.New("matcher is nil")
	}

	output, err := m.resolveOutput(input, criteria)
	if err != nil {
		return err
	}

	heading := "Expecting"
	matching := !criteria.Negated
	if !matching {
		heading = "Not expecting"
	}

	// With no start-string gate the initial verdict is the polarity
	// default, so an empty criteria set trivially satisfies either
	// polarity.
	matched := matching
	if criteria.StartsWith != "" {
		matched = strings.HasPrefix(output, criteria.StartsWith)
		m.recordGate(criteria.Trace, heading, "start string", criteria.StartsWith, matched)
	}

	if criteria.EndsWith != "" && matched == matching {
		matched = strings.HasSuffix(output, criteria.EndsWith)
		m.recordGate(criteria.Trace, heading, "end string", criteria.EndsWith, matched)
	}

	if matched == matching {
		for _, substr := range criteria.Substrings {
			matched = strings.Contains(output, substr)
			m.recordGate(criteria.Trace, heading, "sub string", substr, matched)
			if matched != matching {
				break
			}
		}
	}

	if matched == matching {
		for _, pattern := range criteria.Patterns {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return outcome.Usagef("bad pattern %q: %v", pattern, err)
			}
			matched = re.MatchString(output)
			m.recordGate(criteria.Trace, heading, "pattern", pattern, matched)
			if matched != matching {
				break
			}
		}
	}

	if matched != matching {
		msg := criteria.Msg
		if msg == "" {
			msg = outcome.ExpectMsg(input, output, !criteria.NoExec)
		}
		return outcome.Assertionf("%s", msg)
	}
	return nil
}

// Match runs the input as a command (unless NoExec) and searches the
// output with each pattern in turn, stopping at the first pattern that
// matches. It returns the submatches of the winning pattern. Under
// negated polarity no pattern may match.
func (m *Matcher) Match(input string, patterns []string, criteria Criteria) ([]string, error) {
	if m == nil {
		return nil, errors.New("matcher is nil")
	}

	output, err := m.resolveOutput(input, criteria)
	if err != nil {
		return nil, err
	}

	heading := "Expecting"
	matching := !criteria.Negated
	if !matching {
		heading = "Not expecting"
	}

	var submatches []string
	matched := false
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, outcome.Usagef("bad pattern %q: %v", pattern, err)
		}
		submatches = re.FindStringSubmatch(output)
		matched = submatches != nil
		m.recordGate(criteria.Trace, heading, "pattern", pattern, matched)
		if matched {
			break
		}
	}

	if matched != matching {
		msg := criteria.Msg
		if msg == "" {
			msg = outcome.ExpectMsg(input, output, !criteria.NoExec)
		}
		return nil, outcome.Assertionf("%s", msg)
	}
	return submatches, nil
}

// resolveOutput either runs the input as a command and selects the
// stdout/stderr text, or passes the input through as pre-captured
// output.
func (m *Matcher) resolveOutput(input string, criteria Criteria) (string, error) {
	if criteria.NoExec {
		m.rec.Record(criteria.Trace, "looking at: %s", input)
		return input, nil
	}

	if m.driver == nil {
		return "", outcome.Usagef("cannot execute %q: matcher has no command driver", input)
	}

	runOptions := []command.RunOption{}
	if criteria.Msg != "" {
		runOptions = append(runOptions, command.WithMessage(criteria.Msg))
	}
	if criteria.Trace {
		runOptions = append(runOptions, command.WithTrace())
	}
	if criteria.Error {
		runOptions = append(runOptions, command.NoCheck())
	}
	if err := m.driver.RunCmd(input, runOptions...); err != nil {
		return "", err
	}

	result := m.driver.Result()
	if criteria.Error {
		// The caller declared the command must fail; succeeding is
		// itself a test failure.
		if result.Succeeded() {
			return "", outcome.Assertionf("Command '%s' is expected to fail!", input)
		}
		return result.Error(), nil
	}
	return result.Output(), nil
}

func (m *Matcher) recordGate(trace bool, heading, gate, value string, matched bool) {
	scope := m.rec.Scope(trace)
	scope.Printf("%s %s: %s", heading, gate, value)
	if matched {
		scope.Printf("Matched")
	} else {
		scope.Printf("Not matched")
	}
	scope.Close()
}
