package permission

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/staffdeck/staffdeck/model"
)

type grantsFile struct {
	// Roles maps a role to the screens it may access and the permission
	// types granted per screen.
	Roles map[string]map[string][]string `yaml:"roles"`
}

// StaticGrantSource resolves grant tables from a static YAML file mapping
// roles to per-screen permission types. It backs development and test
// deployments where no permission backend is available.
type StaticGrantSource struct {
	path   string
	mu     sync.RWMutex
	grants grantsFile
}

// NewStaticGrantSource creates a source that loads grants from path.
func NewStaticGrantSource(path string) (*StaticGrantSource, error) {
	s := &StaticGrantSource{path: path}
	if err := s.Sync(); err != nil {
		return nil, err
	}
	return s, nil
}

// FetchGrants returns the union of grants for all roles in the request
// context on the given screen.
func (s *StaticGrantSource) FetchGrants(_ context.Context, rctx *model.RequestContext, screenID string) (model.GrantTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table := make(model.GrantTable)
	for _, role := range rctx.Roles {
		for _, perm := range s.grants.Roles[role][screenID] {
			table[perm] = true
		}
	}
	return table, nil
}

// Sync reloads the grants file from disk.
func (s *StaticGrantSource) Sync() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("permission: reading grants file %s: %w", s.path, err)
	}

	var g grantsFile
	if err := yaml.Unmarshal(data, &g); err != nil {
		return fmt.Errorf("permission: parsing grants file %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.grants = g
	s.mu.Unlock()

	return nil
}
