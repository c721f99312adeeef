package suite

import "github.com/debug-gauntlet/dgt/internal/build"

// DefaultBuilder returns the make-backed builder with host-derived
// architecture and compiler defaults.
func DefaultBuilder() build.Builder {
	return build.NewMakeBuilder(build.MakeBuilderConfig{})
}
