package entity

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/pitabwire/formbridge/model"
)

// snapshot is an immutable collection of all definitions indexed by ID.
type snapshot struct {
	entities map[string]model.EntityDefinition
	lookups  map[string]model.LookupDefinition
	checksum string
}

// Registry is a read-optimized, thread-safe store of all loaded entity
// definitions. It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given definitions.
func NewRegistry(defs []model.EntityDefinition) *Registry {
	r := &Registry{}
	r.Replace(defs)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given definitions.
func (r *Registry) Replace(defs []model.EntityDefinition) {
	s := &snapshot{
		entities: make(map[string]model.EntityDefinition, len(defs)),
		lookups:  make(map[string]model.LookupDefinition),
	}

	var checksumParts []string

	for _, def := range defs {
		s.entities[def.Entity] = def
		checksumParts = append(checksumParts, def.Checksum)

		for _, l := range def.Lookups {
			s.lookups[l.ID] = l
		}
	}

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// GetEntity returns the entity definition with the given name.
func (r *Registry) GetEntity(entity string) (model.EntityDefinition, bool) {
	d, ok := r.current().entities[entity]
	return d, ok
}

// GetLookup returns the lookup definition with the given ID.
func (r *Registry) GetLookup(lookupID string) (model.LookupDefinition, bool) {
	l, ok := r.current().lookups[lookupID]
	return l, ok
}

// AllEntities returns all entity definitions sorted by name.
func (r *Registry) AllEntities() []model.EntityDefinition {
	s := r.current()
	defs := make([]model.EntityDefinition, 0, len(s.entities))
	for _, d := range s.entities {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Entity < defs[j].Entity })
	return defs
}

// AllLookups returns all lookup definitions.
func (r *Registry) AllLookups() []model.LookupDefinition {
	s := r.current()
	defs := make([]model.LookupDefinition, 0, len(s.lookups))
	for _, l := range s.lookups {
		defs = append(defs, l)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// Checksum returns the combined checksum of all loaded definitions.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
