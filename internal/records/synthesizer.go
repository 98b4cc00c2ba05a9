package records

import (
	"fmt"
	"strings"

	"sigs.k8s.io/external-dns/endpoint"

	"github.com/netguru/rds-cluster-dns/internal/topology"
)

// Naming is the hostname template of one task.
type Naming struct {
	ReaderPrefix string
	WriterPrefix string
	Domain       string
	TTL          int64
}

// Hostname returns "{prefix}-{index}.{domain}".
func Hostname(prefix string, index int, domain string) string {
	return fmt.Sprintf("%s-%d.%s", prefix, index, strings.TrimSuffix(domain, "."))
}

// Synthesize converts a resolved topology into A records, readers first.
//
// Members without an endpoint or IP are skipped. Numbering follows emitted
// position, so the names of one role are always 1..N without gaps.
func Synthesize(topo *topology.Topology, n Naming) []*endpoint.Endpoint {
	var eps []*endpoint.Endpoint
	eps = appendRole(eps, topo.Readers, n.ReaderPrefix, n)
	eps = appendRole(eps, topo.Writers, n.WriterPrefix, n)
	return eps
}

func appendRole(eps []*endpoint.Endpoint, members []*topology.Member, prefix string, n Naming) []*endpoint.Endpoint {
	index := 0
	for _, m := range members {
		if m.Endpoint == "" || m.IP == "" {
			continue
		}
		index++
		eps = append(eps, endpoint.NewEndpointWithTTL(
			Hostname(prefix, index, n.Domain),
			endpoint.RecordTypeA,
			endpoint.TTL(n.TTL),
			m.IP,
		))
	}
	return eps
}
