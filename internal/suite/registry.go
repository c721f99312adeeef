package suite

import (
	"sort"
	"sync"

	"github.com/debug-gauntlet/dgt/internal/debugger"
)

// The process-wide registry. Test group packages register themselves
// from init functions; the driver binary runs whatever is registered.
var registry = struct {
	mu       sync.Mutex
	groups   []Group
	provider debugger.Provider
}{}

// Register adds a group to the process-wide registry.
func Register(group Group) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.groups = append(registry.groups, group)
}

// Registered returns the registered groups sorted by name.
func Registered() []Group {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	groups := make([]Group, len(registry.groups))
	copy(groups, registry.groups)
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups
}

// SetDefaultProvider installs the process-wide debugger binding used by
// the driver binary. The engine is an external collaborator; whichever
// package binds it registers the provider from an init function.
func SetDefaultProvider(provider debugger.Provider) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.provider = provider
}

// DefaultProvider returns the registered debugger binding, or nil.
func DefaultProvider() debugger.Provider {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	return registry.provider
}
