package variant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlatformFromTriple(t *testing.T) {
	tests := []struct {
		triple   string
		platform string
	}{
		{"x86_64-apple-darwin15", "darwin"},
		{"x86_64-unknown-linux-gnu", "linux"},
		{"aarch64-unknown-freebsd13", "freebsd"},
		{"x86_64", ""},
		{"", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.platform, PlatformFromTriple(tc.triple), tc.triple)
	}
}

func TestSupportedOnPlatform(t *testing.T) {
	assert.True(t, Dsym.SupportedOnPlatform("darwin15"))
	assert.True(t, Dsym.SupportedOnPlatform("macosx"))
	assert.False(t, Dsym.SupportedOnPlatform("linux"))

	assert.True(t, Dwarf.SupportedOnPlatform("linux"))
	assert.True(t, Dwarf.SupportedOnPlatform("darwin15"))
	assert.True(t, Dwarf.SupportedOnPlatform("windows"))

	assert.True(t, Dwo.SupportedOnPlatform("linux"))
	assert.True(t, Dwo.SupportedOnPlatform("freebsd13"))
	assert.False(t, Dwo.SupportedOnPlatform("darwin15"))
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name     string
		tags     []Category
		platform string
		expected []Category
	}{
		{
			name:     "no tags falls back to full set",
			tags:     nil,
			platform: "linux",
			expected: []Category{Dwarf, Dwo},
		},
		{
			name:     "non debug-info tags fall back to full set",
			tags:     []Category{"pyapi", "expression"},
			platform: "darwin15",
			expected: []Category{Dsym, Dwarf},
		},
		{
			name:     "declared subset is honored",
			tags:     []Category{Dwo, "expression"},
			platform: "linux",
			expected: []Category{Dwo},
		},
		{
			name:     "declared category unsupported on platform",
			tags:     []Category{Dsym},
			platform: "linux",
			expected: []Category{},
		},
		{
			name:     "expansion order is stable",
			tags:     []Category{Dwo, Dwarf, Dsym},
			platform: "darwin15",
			expected: []Category{Dsym, Dwarf},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Plan(tc.tags, tc.platform))
		})
	}
}

func TestExpandedName(t *testing.T) {
	assert.Equal(t, "test_breakpoint_dwarf", ExpandedName("test_breakpoint", Dwarf))
}

func TestIsDebugInfoCategory(t *testing.T) {
	assert.True(t, IsDebugInfoCategory(Dsym))
	assert.True(t, IsDebugInfoCategory(Dwarf))
	assert.True(t, IsDebugInfoCategory(Dwo))
	assert.False(t, IsDebugInfoCategory(None))
	assert.False(t, IsDebugInfoCategory("pyapi"))
}
