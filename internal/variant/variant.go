// Package variant models the debug-info representations a test can be
// replicated against and computes, per test, which representations apply
// on the resolved target platform.
package variant

import "strings"

// Category identifies one debug-info representation.
type Category string

const (
	// Dsym is the external dSYM bundle representation.
	Dsym Category = "dsym"
	// Dwarf is the in-executable DWARF representation.
	Dwarf Category = "dwarf"
	// Dwo is the DWARF fission (split dwo) representation.
	Dwo Category = "dwo"
	// None marks a test not bound to any representation.
	None Category = ""
)

// debugInfoCategories is the known debug-info category set, in expansion
// order.
var debugInfoCategories = []Category{Dsym, Dwarf, Dwo}

// KnownCategories returns the debug-info category set in expansion order.
func KnownCategories() []Category {
	out := make([]Category, len(debugInfoCategories))
	copy(out, debugInfoCategories)
	return out
}

// IsDebugInfoCategory reports whether c names a known debug-info
// representation.
func IsDebugInfoCategory(c Category) bool {
	for _, known := range debugInfoCategories {
		if c == known {
			return true
		}
	}
	return false
}

// PlatformFromTriple extracts the OS component from a target triple such
// as "x86_64-apple-darwin15" or "x86_64-unknown-linux-gnu".
func PlatformFromTriple(triple string) string {
	parts := strings.Split(strings.TrimSpace(triple), "-")
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

// SupportedOnPlatform reports whether the representation can be built on
// the given platform. dSYM bundles are an Apple toolchain feature; split
// dwo requires the ELF toolchains.
func (c Category) SupportedOnPlatform(platform string) bool {
	platform = strings.ToLower(strings.TrimSpace(platform))
	switch c {
	case Dsym:
		return strings.HasPrefix(platform, "darwin") ||
			strings.HasPrefix(platform, "macosx") ||
			strings.HasPrefix(platform, "ios")
	case Dwarf:
		return true
	case Dwo:
		return strings.HasPrefix(platform, "linux") ||
			strings.HasPrefix(platform, "freebsd")
	default:
		return false
	}
}

// Plan computes the ordered categories a test expands into: the declared
// tags intersected with the known debug-info set, falling back to the
// full set when the intersection is empty, then filtered to the
// categories supported on the platform.
func Plan(tags []Category, platform string) []Category {
	declared := map[Category]bool{}
	for _, tag := range tags {
		if IsDebugInfoCategory(tag) {
			declared[tag] = true
		}
	}

	planned := make([]Category, 0, len(debugInfoCategories))
	for _, category := range debugInfoCategories {
		if len(declared) > 0 && !declared[category] {
			continue
		}
		if !category.SupportedOnPlatform(platform) {
			continue
		}
		planned = append(planned, category)
	}
	return planned
}

// ExpandedName returns the synthesized test name for one representation.
func ExpandedName(base string, c Category) string {
	return base + "_" + string(c)
}
