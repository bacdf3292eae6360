package flow

import (
	"sort"
	"sync"

	"github.com/rendis/nodeflow/pkg/schema"
)

// ConverterFactory constructs a single-input, single-output model that
// adapts one data type to another.
type ConverterFactory func() NodeDataModel

// ConverterPair is a registered (from, to) conversion.
type ConverterPair struct {
	From DataType `json:"from"`
	To   DataType `json:"to"`
}

type converterKey struct {
	from, to string
}

type converterEntry struct {
	pair    ConverterPair
	factory ConverterFactory
}

// ConverterRegistry maps ordered data type pairs to converter factories.
// Only directly registered pairs are honored; there is no multi-hop search.
type ConverterRegistry struct {
	mu      sync.RWMutex
	entries map[converterKey]converterEntry
}

// NewConverterRegistry creates an empty ConverterRegistry.
func NewConverterRegistry() *ConverterRegistry {
	return &ConverterRegistry{entries: make(map[converterKey]converterEntry)}
}

// Register adds a converter for from → to. Returns error on duplicate pair.
func (r *ConverterRegistry) Register(from, to DataType, factory ConverterFactory) error {
	if factory == nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "converter %s -> %s has nil factory", from.ID, to.ID)
	}
	if from.ID == "" || to.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "converter data type id is empty")
	}
	if Compatible(from, to) {
		return schema.NewErrorf(schema.ErrCodeValidation, "converter %s -> %s is an identity conversion", from.ID, to.ID)
	}

	key := converterKey{from: from.ID, to: to.ID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "converter %s -> %s already registered", from.ID, to.ID)
	}
	r.entries[key] = converterEntry{pair: ConverterPair{From: from, To: to}, factory: factory}
	return nil
}

// Lookup returns the factory registered for the ordered pair (fromID, toID).
func (r *ConverterRegistry) Lookup(fromID, toID string) (ConverterFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[converterKey{from: fromID, to: toID}]
	return e.factory, ok
}

// Pairs returns every registered pair sorted by source then target id.
func (r *ConverterRegistry) Pairs() []ConverterPair {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pairs := make([]ConverterPair, 0, len(r.entries))
	for _, e := range r.entries {
		pairs = append(pairs, e.pair)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].From.ID != pairs[j].From.ID {
			return pairs[i].From.ID < pairs[j].From.ID
		}
		return pairs[i].To.ID < pairs[j].To.ID
	})
	return pairs
}
