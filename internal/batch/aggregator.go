package batch

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"sigs.k8s.io/external-dns/endpoint"

	"github.com/netguru/rds-cluster-dns/internal/dnsprovider"
	"github.com/netguru/rds-cluster-dns/pkg/errors"
)

var (
	// ErrIncomplete is returned when groups are read before every task contributed
	ErrIncomplete = errors.ErrBatchIncomplete

	// ErrOverflow is returned when more tasks contribute than were expected
	ErrOverflow = errors.ErrBatchOverflow
)

// Key identifies a DNS change set: tasks with equal keys are committed together.
type Key struct {
	dnsprovider.Credentials
	NoSyncWait bool
}

// Group is the accumulated change set of one Key.
type Group struct {
	Key     Key
	Sources []string
	Records []*endpoint.Endpoint

	// owners maps name and type of every record to the task that added it
	owners map[string]string
}

// Aggregator collects records from a known number of tasks. Groups become
// readable only once the last task has contributed. It is safe for
// concurrent use.
type Aggregator struct {
	mu          sync.Mutex
	expected    int
	contributed int
	groups      map[Key]*Group
	order       []Key
	done        chan struct{}
	logger      *zap.Logger
}

// NewAggregator returns an Aggregator expecting one contribution per task.
func NewAggregator(logger *zap.Logger, expected int) *Aggregator {
	a := &Aggregator{
		logger:   logger,
		expected: expected,
		groups:   make(map[Key]*Group),
		done:     make(chan struct{}),
	}
	if expected <= 0 {
		close(a.done)
	}
	return a
}

// Contribute adds the records of one task. A task that failed contributes
// nil records so the barrier still counts it. A record whose name and type
// are already in the group is dropped: one change set may not touch the same
// record set twice.
func (a *Aggregator) Contribute(key Key, source string, records []*endpoint.Endpoint) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.contributed >= a.expected {
		return fmt.Errorf("%s: %w", source, ErrOverflow)
	}

	g, ok := a.groups[key]
	if !ok {
		g = &Group{Key: key, owners: make(map[string]string)}
		a.groups[key] = g
		a.order = append(a.order, key)
	}
	g.Sources = append(g.Sources, source)
	for _, rec := range records {
		id := rec.RecordType + " " + rec.DNSName
		if owner, dup := g.owners[id]; dup {
			a.logger.Warn("Duplicate record in change set, keeping the first",
				zap.String("zone", key.ZoneID),
				zap.String("dnsName", rec.DNSName),
				zap.String("type", rec.RecordType),
				zap.String("kept_from", owner),
				zap.String("dropped_from", source))
			continue
		}
		g.owners[id] = source
		g.Records = append(g.Records, rec)
	}

	a.contributed++
	if a.contributed == a.expected {
		close(a.done)
	}
	return nil
}

// Done is closed once every expected task has contributed.
func (a *Aggregator) Done() <-chan struct{} {
	return a.done
}

// Groups returns the finalized groups in order of first contribution.
func (a *Aggregator) Groups() ([]*Group, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.contributed < a.expected {
		return nil, fmt.Errorf("%d of %d tasks contributed: %w", a.contributed, a.expected, ErrIncomplete)
	}

	groups := make([]*Group, 0, len(a.order))
	for _, k := range a.order {
		groups = append(groups, a.groups[k])
	}
	return groups, nil
}
