package screen

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/staffdeck/staffdeck/model"
)

// snapshot is an immutable collection of all screen definitions indexed by ID.
type snapshot struct {
	screens  map[string]model.ScreenDefinition
	checksum string
}

// Registry is a read-optimized, thread-safe store of loaded screen
// definitions. It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given definitions.
func NewRegistry(defs []model.ScreenDefinition) *Registry {
	r := &Registry{}
	r.Replace(defs)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given definitions.
func (r *Registry) Replace(defs []model.ScreenDefinition) {
	s := &snapshot{
		screens: make(map[string]model.ScreenDefinition, len(defs)),
	}

	var checksumParts []string
	for _, def := range defs {
		s.screens[def.ID] = def
		checksumParts = append(checksumParts, def.Checksum)
	}

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Get returns the screen definition with the given ID.
func (r *Registry) Get(screenID string) (model.ScreenDefinition, bool) {
	d, ok := r.current().screens[screenID]
	return d, ok
}

// All returns every screen definition, sorted by ID for stable listings.
func (r *Registry) All() []model.ScreenDefinition {
	s := r.current()
	defs := make([]model.ScreenDefinition, 0, len(s.screens))
	for _, d := range s.screens {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// Checksum returns the combined checksum of all loaded definitions.
func (r *Registry) Checksum() string {
	return r.current().checksum
}

// Len returns the number of registered screens.
func (r *Registry) Len() int {
	return len(r.current().screens)
}
