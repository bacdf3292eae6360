package flow

import (
	"sort"
	"strings"
	"sync"

	"github.com/rendis/nodeflow/pkg/schema"
)

// ModelRegistry maps model type names to factories and display categories.
// It is safe for concurrent use; one registry is usually shared by many graphs.
type ModelRegistry struct {
	mu      sync.RWMutex
	entries map[string]modelEntry
}

type modelEntry struct {
	category string
	factory  ModelFactory
}

// ModelInfo describes a registered model type.
type ModelInfo struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// NewModelRegistry creates an empty ModelRegistry.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{entries: make(map[string]modelEntry)}
}

// Register adds a factory under name. Returns error on duplicate name.
func (r *ModelRegistry) Register(name, category string, factory ModelFactory) error {
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "model name is empty")
	}
	if factory == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "model %q has nil factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "model %q already registered", name)
	}
	r.entries[name] = modelEntry{category: category, factory: factory}
	return nil
}

// Create instantiates a new model of the named type.
func (r *ModelRegistry) Create(name string) (NodeDataModel, error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownModelType, "model type %q not registered", name)
	}
	model := entry.factory()
	if model == nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "factory for %q returned nil", name)
	}
	return model, nil
}

// Has checks if a model type is registered.
func (r *ModelRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Category returns the display category of a model type, or "" if unknown.
func (r *ModelRegistry) Category(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[name].category
}

// Names returns all registered model names, sorted.
func (r *ModelRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns info for all registered models, sorted by name.
func (r *ModelRegistry) List() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ModelInfo, 0, len(r.entries))
	for name, e := range r.entries {
		infos = append(infos, ModelInfo{Name: name, Category: e.category})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Categories groups model names by category. Names within a category are sorted.
func (r *ModelRegistry) Categories() map[string][]string {
	return r.Filter("")
}

// Filter is Categories restricted to names containing text, case-insensitively.
// Categories left without any match are omitted.
func (r *ModelRegistry) Filter(text string) map[string][]string {
	needle := strings.ToLower(strings.TrimSpace(text))
	out := make(map[string][]string)
	for _, info := range r.List() {
		if needle != "" && !strings.Contains(strings.ToLower(info.Name), needle) {
			continue
		}
		out[info.Category] = append(out[info.Category], info.Name)
	}
	return out
}

// Count returns the number of registered model types.
func (r *ModelRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
