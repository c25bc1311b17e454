package security

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Authorizer answers capability checks for operator profiles
type Authorizer interface {
	// IsGranted reports whether operator holds capability on resource
	IsGranted(operator uuid.UUID, capability string, resource uuid.UUID) bool
	// IsGrantedAny reports whether operator holds capability on any resource
	IsGrantedAny(operator uuid.UUID, capability string) bool
	// ProfilesFor lists the resources on which operator holds capability
	ProfilesFor(operator uuid.UUID, capability string) []uuid.UUID
	// OperatorsFor lists the operators holding capability on resource
	OperatorsFor(resource uuid.UUID, capability string) []uuid.UUID
}

// grantsFile is the YAML layout:
//
//	grants:
//	  - profile: 0b5d...     # operator profile
//	    authority: 7c1e...   # warehouse it acts for, defaults to profile
//	    roles: [ROLE_PRODUCT_STOCK_PACKAGE]
type grantsFile struct {
	Grants []grantEntry `yaml:"grants"`
}

type grantEntry struct {
	Profile   string   `yaml:"profile"`
	Authority string   `yaml:"authority"`
	Roles     []string `yaml:"roles"`
}

type grantKey struct {
	operator   uuid.UUID
	capability string
}

// Grants is an in-memory grant table, safe for concurrent use and reloadable
type Grants struct {
	mu     sync.RWMutex
	table  map[grantKey]map[uuid.UUID]struct{}
	logger *zap.Logger
}

// NewGrants creates an empty grant table
func NewGrants(logger *zap.Logger) *Grants {
	return &Grants{
		table:  make(map[grantKey]map[uuid.UUID]struct{}),
		logger: logger,
	}
}

// LoadGrants reads the grants file at path
func LoadGrants(path string, logger *zap.Logger) (*Grants, error) {
	g := NewGrants(logger)
	if err := g.Reload(path); err != nil {
		return nil, err
	}
	return g, nil
}

// Reload replaces the table with the contents of path. The old table stays on error.
func (g *Grants) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read grants file: %w", err)
	}
	table, err := parseGrants(data)
	if err != nil {
		return fmt.Errorf("failed to parse grants file %s: %w", path, err)
	}

	g.mu.Lock()
	g.table = table
	g.mu.Unlock()

	g.logger.Info("Grants loaded", zap.String("path", path), zap.Int("entries", len(table)))
	return nil
}

func parseGrants(data []byte) (map[grantKey]map[uuid.UUID]struct{}, error) {
	var file grantsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	table := make(map[grantKey]map[uuid.UUID]struct{})
	for i, entry := range file.Grants {
		operator, err := uuid.Parse(strings.TrimSpace(entry.Profile))
		if err != nil {
			return nil, fmt.Errorf("grant %d: invalid profile %q", i, entry.Profile)
		}
		resource := operator
		if a := strings.TrimSpace(entry.Authority); a != "" {
			if resource, err = uuid.Parse(a); err != nil {
				return nil, fmt.Errorf("grant %d: invalid authority %q", i, entry.Authority)
			}
		}
		for _, role := range entry.Roles {
			key := grantKey{operator: operator, capability: strings.TrimSpace(role)}
			if table[key] == nil {
				table[key] = make(map[uuid.UUID]struct{})
			}
			table[key][resource] = struct{}{}
		}
	}
	return table, nil
}

// Grant adds a single grant
func (g *Grants) Grant(operator uuid.UUID, capability string, resource uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := grantKey{operator: operator, capability: capability}
	if g.table[key] == nil {
		g.table[key] = make(map[uuid.UUID]struct{})
	}
	g.table[key][resource] = struct{}{}
}

func (g *Grants) IsGranted(operator uuid.UUID, capability string, resource uuid.UUID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.table[grantKey{operator: operator, capability: capability}][resource]
	return ok
}

func (g *Grants) IsGrantedAny(operator uuid.UUID, capability string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.table[grantKey{operator: operator, capability: capability}]) > 0
}

func (g *Grants) ProfilesFor(operator uuid.UUID, capability string) []uuid.UUID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	resources := g.table[grantKey{operator: operator, capability: capability}]
	out := make([]uuid.UUID, 0, len(resources))
	for r := range resources {
		out = append(out, r)
	}
	sortUUIDs(out)
	return out
}

func (g *Grants) OperatorsFor(resource uuid.UUID, capability string) []uuid.UUID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []uuid.UUID
	for key, resources := range g.table {
		if key.capability != capability {
			continue
		}
		if _, ok := resources[resource]; ok {
			out = append(out, key.operator)
		}
	}
	sortUUIDs(out)
	return out
}

func sortUUIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
