package executor

import (
	"sort"
	"sync"

	"github.com/droverlabs/drover/pkg/ports"
)

// Registry manages the available executors.
type Registry struct {
	mu    sync.RWMutex
	execs map[string]ports.Executor
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		execs: make(map[string]ports.Executor),
	}
}

// Register adds an executor to the registry.
// If one with the same name exists, it is overwritten.
func (r *Registry) Register(exec ports.Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execs[exec.Name()] = exec
}

// Get looks up an executor by name.
func (r *Registry) Get(name string) (ports.Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.execs[name]
	return exec, ok
}

// Names returns the registered executor names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.execs))
	for name := range r.execs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewDefaultRegistry builds a registry with the full executor set wired to
// the given capability gateway.
func NewDefaultRegistry(gateway ports.CapabilityGateway) *Registry {
	r := NewRegistry()
	r.Register(NewIngestion(gateway))
	r.Register(NewAnalysis())
	r.Register(NewReport())
	r.Register(NewQueryTranslation())
	r.Register(NewNotification(gateway))
	return r
}
