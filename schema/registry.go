package schema

import (
	"fmt"
	"sort"
	"sync"
)

var (
	entities   = map[string]*Entity{}
	entitiesMu sync.RWMutex
)

// Register validates e and makes it available by kind. The registered copy is
// returned; later changes to e are not observed.
func Register(e Entity) (*Entity, error) {
	fields := make([]Field, len(e.Fields))
	copy(fields, e.Fields)
	e.Fields = fields
	if err := e.validate(); err != nil {
		return nil, err
	}

	entitiesMu.Lock()
	defer entitiesMu.Unlock()
	if _, ok := entities[e.Kind]; ok {
		return nil, fmt.Errorf("entity %q already registered", e.Kind)
	}
	entities[e.Kind] = &e
	return &e, nil
}

// MustRegister is Register for package-level declarations.
func MustRegister(e Entity) *Entity {
	registered, err := Register(e)
	if err != nil {
		panic(err)
	}
	return registered
}

// New validates e without adding it to the global registry.
func New(e Entity) (*Entity, error) {
	fields := make([]Field, len(e.Fields))
	copy(fields, e.Fields)
	e.Fields = fields
	if err := e.validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

func Lookup(kind string) (*Entity, bool) {
	entitiesMu.RLock()
	defer entitiesMu.RUnlock()
	e, ok := entities[kind]
	return e, ok
}

// All returns the registered entities sorted by kind.
func All() []*Entity {
	entitiesMu.RLock()
	defer entitiesMu.RUnlock()
	out := make([]*Entity, 0, len(entities))
	for _, e := range entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}
