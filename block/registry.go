package block

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/Steve19802/workbench/errors"
)

// Factory creates a block instance with the given unique name and initial
// property values. Factories parse their own property map, typically with
// mapstructure, and return a fully constructed block; they perform no I/O.
type Factory func(name string, properties map[string]any, logger *slog.Logger) (*Block, error)

// Registration holds the factory and static metadata for a block type.
type Registration struct {
	TypeID      string  `json:"type_id"`
	Description string  `json:"description"`
	Version     string  `json:"version"`
	Schema      Schema  `json:"schema"`
	Factory     Factory `json:"-"`
}

// Registry maps string type identifiers to block factories. The engine and
// any builder collaborator share one registry, so new block types can be
// introduced without modifying the engine itself.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]*Registration
}

// NewRegistry creates a new empty block registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]*Registration),
	}
}

// Register adds a block type to the registry. Registering a type identifier
// twice is rejected.
func (r *Registry) Register(registration *Registration) error {
	if registration == nil || registration.TypeID == "" {
		return errors.WrapInvalid(
			fmt.Errorf("%w: registration without type identifier", errors.ErrSchema),
			"Registry", "Register", "registration validation")
	}
	if registration.Factory == nil {
		return errors.WrapInvalid(
			fmt.Errorf("%w: type %q has no factory", errors.ErrSchema, registration.TypeID),
			"Registry", "Register", "factory validation")
	}
	if err := registration.Schema.Validate(); err != nil {
		return errors.Wrap(err, "Registry", "Register", "schema validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[registration.TypeID]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("%w: block type %q", errors.ErrDuplicateName, registration.TypeID),
			"Registry", "Register", "duplicate type check")
	}

	r.factories[registration.TypeID] = registration
	return nil
}

// Create instantiates a block of the given type with a unique instance name
// and initial property values.
func (r *Registry) Create(typeID, name string, properties map[string]any, logger *slog.Logger) (*Block, error) {
	r.mu.RLock()
	registration, exists := r.factories[typeID]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown block type %q", errors.ErrNotFound, typeID),
			"Registry", "Create", "type lookup")
	}

	b, err := registration.Factory(name, properties, logger)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "Create", "factory execution")
	}
	return b, nil
}

// Lookup returns the registration for a type identifier.
func (r *Registry) Lookup(typeID string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	registration, exists := r.factories[typeID]
	return registration, exists
}

// Types returns all registered type identifiers, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for typeID := range r.factories {
		types = append(types, typeID)
	}
	sort.Strings(types)
	return types
}
