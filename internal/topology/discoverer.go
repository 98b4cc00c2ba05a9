package topology

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/netguru/rds-cluster-dns/pkg/errors"
)

// ErrTopologyNotFound is returned when the configured cluster has no member list
var ErrTopologyNotFound = errors.ErrTopologyNotFound

// Role classifies a cluster member.
type Role string

const (
	// RoleReader marks a read replica.
	RoleReader Role = "reader"
	// RoleWriter marks the instance accepting writes.
	RoleWriter Role = "writer"
)

// Cluster is one cluster as reported by the Directory.
type Cluster struct {
	Endpoint string
	Members  []ClusterMember
}

// ClusterMember is a raw membership entry.
type ClusterMember struct {
	ID       string
	IsWriter bool
}

// MemberEndpoint maps a member identifier to its advertised address.
type MemberEndpoint struct {
	ID      string
	Address string
}

// Directory is the cluster membership query service.
type Directory interface {
	ListClusters(ctx context.Context) ([]Cluster, error)
	ListMemberEndpoints(ctx context.Context) ([]MemberEndpoint, error)
}

// Member is one discovered cluster node. Role is fixed at discovery; Endpoint
// and IP are filled in by later passes.
type Member struct {
	ID       string
	Role     Role
	Endpoint string
	IP       string
}

// Topology holds the members of one cluster, split by role, in the order the
// Directory returned them.
type Topology struct {
	Cluster string
	Readers []*Member
	Writers []*Member
}

// Members returns readers followed by writers.
func (t *Topology) Members() []*Member {
	all := make([]*Member, 0, len(t.Readers)+len(t.Writers))
	all = append(all, t.Readers...)
	return append(all, t.Writers...)
}

// Discoverer enumerates the members of a cluster and their roles.
type Discoverer struct {
	directory Directory
	logger    *zap.Logger
}

// NewDiscoverer returns a Discoverer backed by directory.
func NewDiscoverer(logger *zap.Logger, directory Directory) *Discoverer {
	return &Discoverer{directory: directory, logger: logger}
}

// Discover lists the members of the cluster whose endpoint equals
// clusterEndpoint and attaches each member's advertised endpoint.
func (d *Discoverer) Discover(ctx context.Context, clusterEndpoint string) (*Topology, error) {
	clusters, err := d.directory.ListClusters(ctx)
	if err != nil {
		d.logger.Error("Failed to list clusters",
			zap.String("cluster", clusterEndpoint),
			zap.Error(err))
		return nil, fmt.Errorf("listing clusters: %w", err)
	}

	topo := &Topology{Cluster: clusterEndpoint}
	byID := make(map[string]*Member)
	for _, c := range clusters {
		if c.Endpoint != clusterEndpoint {
			continue
		}
		for _, cm := range c.Members {
			m := &Member{ID: cm.ID, Role: RoleReader}
			if cm.IsWriter {
				m.Role = RoleWriter
				topo.Writers = append(topo.Writers, m)
			} else {
				topo.Readers = append(topo.Readers, m)
			}
			byID[m.ID] = m

			d.logger.Info("Cluster instance discovered",
				zap.String("cluster", clusterEndpoint),
				zap.String("member", m.ID),
				zap.String("role", string(m.Role)))
		}
	}

	if len(byID) == 0 {
		d.logger.Error("Cluster not found or has no members",
			zap.String("cluster", clusterEndpoint),
			zap.Int("clusters_listed", len(clusters)))
		return nil, fmt.Errorf("cluster %q: %w", clusterEndpoint, ErrTopologyNotFound)
	}

	endpoints, err := d.directory.ListMemberEndpoints(ctx)
	if err != nil {
		d.logger.Error("Failed to list member endpoints",
			zap.String("cluster", clusterEndpoint),
			zap.Error(err))
		return nil, fmt.Errorf("listing member endpoints: %w", err)
	}

	for _, ep := range endpoints {
		m, ok := byID[ep.ID]
		if !ok || ep.Address == "" {
			continue
		}
		m.Endpoint = ep.Address
	}

	for _, m := range topo.Members() {
		if m.Endpoint == "" {
			d.logger.Warn("Cluster instance has no endpoint",
				zap.String("cluster", clusterEndpoint),
				zap.String("member", m.ID))
		}
	}

	return topo, nil
}
