package suite

import (
	"github.com/debug-gauntlet/dgt/internal/session"
	"github.com/debug-gauntlet/dgt/internal/variant"
)

// Expand replicates each case once per planned debug-info representation
// on the given platform, replacing the original case with the expanded
// set. Opted-out cases pass through unchanged; a case whose plan is
// empty on this platform produces nothing.
func Expand(cases []Case, platform string) []Case {
	expanded := make([]Case, 0, len(cases))
	for _, c := range cases {
		if c.NoDebugInfo {
			expanded = append(expanded, c)
			continue
		}
		for _, category := range variant.Plan(c.Categories, platform) {
			expanded = append(expanded, replicate(c, category))
		}
	}
	return expanded
}

// replicate synthesizes the per-representation case: same body, expanded
// name, and a wrapper that binds the representation to the session
// before the body runs.
func replicate(c Case, category variant.Category) Case {
	body := c.Run
	replica := c
	replica.Name = variant.ExpandedName(c.Name, category)
	replica.Run = func(s *session.Session) error {
		s.SetDebugInfo(category)
		if body == nil {
			return nil
		}
		return body(s)
	}
	return replica
}
