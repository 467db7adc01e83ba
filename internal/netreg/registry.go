// Package netreg loads the static network/pool registry the allocation
// engine resolves network_uuid and network_pool references against.
// Networks are configuration, not versioned store objects (see
// internal/alloc.NetworkLookup), so they are read once from a YAML file at
// startup rather than persisted through internal/store.
package netreg

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/fleetkit/napi/internal/domain"
)

// networkFile is the on-disk shape of the registry's YAML source.
type networkFile struct {
	Networks []networkEntry `yaml:"networks"`
	Pools    []poolEntry    `yaml:"pools"`
}

type networkEntry struct {
	UUID      string   `yaml:"uuid"`
	Family    string   `yaml:"family"`
	Subnet    string   `yaml:"subnet"`
	StartIP   string   `yaml:"start_ip"`
	EndIP     string   `yaml:"end_ip"`
	Gateway   string   `yaml:"gateway"`
	VLANID    int      `yaml:"vlan_id"`
	NICTag    string   `yaml:"nic_tag"`
	Resolvers []string `yaml:"resolvers"`
	Fabric    bool     `yaml:"fabric"`
	VnetID    string   `yaml:"vnet_id"`
}

type poolEntry struct {
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}

// Registry is a read-only, in-memory lookup table of networks and pools,
// safe for concurrent use by request-scoped allocation calls.
type Registry struct {
	mu       sync.RWMutex
	networks map[string]*domain.LogicalNetwork
	pools    map[string][]*domain.LogicalNetwork
}

// Empty returns a registry with no networks, usable by tests and by
// deployments that provision only by explicit ip/mac rather than by
// network_uuid.
func Empty() *Registry {
	return &Registry{networks: map[string]*domain.LogicalNetwork{}, pools: map[string][]*domain.LogicalNetwork{}}
}

// Load reads and validates the registry at path. A missing file yields an
// empty registry rather than an error, since NETWORKS_PATH is optional.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Empty(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}
		return nil, fmt.Errorf("read networks file %s: %w", path, err)
	}

	var file networkFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse networks file %s: %w", path, err)
	}

	reg := Empty()
	for _, e := range file.Networks {
		net, err := e.toDomain()
		if err != nil {
			return nil, fmt.Errorf("network %s: %w", e.UUID, err)
		}
		if err := net.Validate(); err != nil {
			return nil, fmt.Errorf("network %s: %w", e.UUID, err)
		}
		reg.networks[net.UUID] = net
	}
	for _, p := range file.Pools {
		members := make([]*domain.LogicalNetwork, 0, len(p.Members))
		for _, uuid := range p.Members {
			net, ok := reg.networks[uuid]
			if !ok {
				return nil, fmt.Errorf("pool %s: unknown member network %s", p.Name, uuid)
			}
			members = append(members, net)
		}
		if len(members) == 0 {
			return nil, fmt.Errorf("pool %s: must list at least one member", p.Name)
		}
		reg.pools[p.Name] = members
	}
	return reg, nil
}

func (e networkEntry) toDomain() (*domain.LogicalNetwork, error) {
	start, err := domain.ParseAddress(e.StartIP)
	if err != nil {
		return nil, err
	}
	end, err := domain.ParseAddress(e.EndIP)
	if err != nil {
		return nil, err
	}
	net := &domain.LogicalNetwork{
		UUID:      e.UUID,
		Family:    domain.Family(e.Family),
		Subnet:    e.Subnet,
		VLANID:    e.VLANID,
		NICTag:    e.NICTag,
		Resolvers: e.Resolvers,
		Fabric:    e.Fabric,
		StartIP:   start,
		EndIP:     end,
	}
	if e.Gateway != "" {
		gw := e.Gateway
		net.Gateway = &gw
	}
	if e.VnetID != "" {
		vnet := e.VnetID
		net.VnetID = &vnet
	}
	return net, nil
}

// Lookup implements alloc.NetworkLookup: resolve a network_uuid to its
// definition, or nil if unknown (the allocation engine treats an unknown
// network_uuid as a validation error raised before the driver ever runs,
// not as a lookup failure).
func (r *Registry) Lookup(networkUUID string) (*domain.LogicalNetwork, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	net, ok := r.networks[networkUUID]
	if !ok {
		return nil, nil
	}
	return net, nil
}

// Network returns the network for uuid and whether it exists.
func (r *Registry) Network(uuid string) (*domain.LogicalNetwork, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	net, ok := r.networks[uuid]
	return net, ok
}

// Pool returns the ordered member networks of a named pool and whether the
// pool exists.
func (r *Registry) Pool(name string) ([]*domain.LogicalNetwork, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.pools[name]
	return members, ok
}

// Put registers net programmatically, for tests and for embedding
// deployments that construct their registry in code rather than YAML.
func (r *Registry) Put(net *domain.LogicalNetwork) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.networks[net.UUID] = net
}

// PutPool registers a named pool over already-registered member networks.
func (r *Registry) PutPool(name string, memberUUIDs ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	members := make([]*domain.LogicalNetwork, 0, len(memberUUIDs))
	for _, uuid := range memberUUIDs {
		net, ok := r.networks[uuid]
		if !ok {
			return fmt.Errorf("put pool %s: unknown member network %s", name, uuid)
		}
		members = append(members, net)
	}
	r.pools[name] = members
	return nil
}
