package archivers

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/interfaces"
)

// ErrNotRegistered is returned when no backend matches a requested name.
// The orchestrator treats this as a configuration error, never retried.
var ErrNotRegistered = errors.New("archiver not registered")

// AllArchivers is the sentinel name that expands to every registered backend.
const AllArchivers = "all"

// Registry resolves archiver backends by name. Populated at startup;
// lookups after that are read-only.
type Registry struct {
	mu        sync.RWMutex
	archivers map[string]interfaces.Archiver
	logger    arbor.ILogger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		archivers: make(map[string]interfaces.Archiver),
		logger:    logger,
	}
}

// Register adds a backend. A duplicate name replaces the prior backend.
func (r *Registry) Register(archiver interfaces.Archiver) {
	r.mu.Lock()
	r.archivers[archiver.Name()] = archiver
	r.mu.Unlock()

	r.logger.Debug().
		Str("archiver", archiver.Name()).
		Msg("Archiver registered")
}

// Get resolves a backend by name.
func (r *Registry) Get(name string) (interfaces.Archiver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	archiver, ok := r.archivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return archiver, nil
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.archivers))
	for name := range r.archivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ interfaces.ArchiverRegistry = (*Registry)(nil)
