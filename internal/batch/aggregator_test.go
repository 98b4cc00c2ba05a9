package batch

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"sigs.k8s.io/external-dns/endpoint"

	"github.com/netguru/rds-cluster-dns/internal/dnsprovider"
)

func key(zone string, noSyncWait bool) Key {
	return Key{
		Credentials: dnsprovider.Credentials{Provider: "route53", ZoneID: zone, AccessKey: "AK", SecretKey: "SK"},
		NoSyncWait:  noSyncWait,
	}
}

func rec(name string) *endpoint.Endpoint {
	return endpoint.NewEndpointWithTTL(name, endpoint.RecordTypeA, 300, "10.0.0.1")
}

func TestAggregator_MergesSharedCredentials(t *testing.T) {
	a := NewAggregator(zap.NewNop(), 2)

	require.NoError(t, a.Contribute(key("Z1", false), "prod.json", []*endpoint.Endpoint{rec("read-1.prod.example.com")}))
	require.NoError(t, a.Contribute(key("Z1", false), "stage.json", []*endpoint.Endpoint{rec("read-1.stage.example.com")}))

	groups, err := a.Groups()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"prod.json", "stage.json"}, groups[0].Sources)
	assert.Len(t, groups[0].Records, 2)
}

func TestAggregator_SplitsOnAnyKeyDifference(t *testing.T) {
	base := key("Z1", false)
	otherSecret := base
	otherSecret.SecretKey = "other"

	a := NewAggregator(zap.NewNop(), 4)
	require.NoError(t, a.Contribute(base, "a", []*endpoint.Endpoint{rec("a.example.com")}))
	require.NoError(t, a.Contribute(key("Z2", false), "b", []*endpoint.Endpoint{rec("b.example.com")}))
	require.NoError(t, a.Contribute(key("Z1", true), "c", []*endpoint.Endpoint{rec("c.example.com")}))
	require.NoError(t, a.Contribute(otherSecret, "d", []*endpoint.Endpoint{rec("d.example.com")}))

	groups, err := a.Groups()
	require.NoError(t, err)
	require.Len(t, groups, 4)
	for _, g := range groups {
		assert.Len(t, g.Records, 1)
	}
	assert.Equal(t, "a", groups[0].Sources[0])
}

func TestAggregator_Barrier(t *testing.T) {
	a := NewAggregator(zap.NewNop(), 2)
	require.NoError(t, a.Contribute(key("Z1", false), "a", nil))

	_, err := a.Groups()
	assert.ErrorIs(t, err, ErrIncomplete)
	select {
	case <-a.Done():
		t.Fatal("barrier released before every task contributed")
	default:
	}

	require.NoError(t, a.Contribute(key("Z1", false), "b", nil))
	<-a.Done()

	groups, err := a.Groups()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Empty(t, groups[0].Records)
}

func TestAggregator_Overflow(t *testing.T) {
	a := NewAggregator(zap.NewNop(), 1)
	require.NoError(t, a.Contribute(key("Z1", false), "a", nil))
	assert.ErrorIs(t, a.Contribute(key("Z1", false), "b", nil), ErrOverflow)
}

func TestAggregator_ZeroTasks(t *testing.T) {
	a := NewAggregator(zap.NewNop(), 0)
	<-a.Done()
	groups, err := a.Groups()
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestAggregator_ConcurrentContributions(t *testing.T) {
	const tasks = 50
	a := NewAggregator(zap.NewNop(), tasks)

	var wg sync.WaitGroup
	for i := 0; i < tasks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := key(fmt.Sprintf("Z%d", i%3), false)
			assert.NoError(t, a.Contribute(k, fmt.Sprintf("task-%d", i), []*endpoint.Endpoint{rec(fmt.Sprintf("read-%d.example.com", i))}))
		}(i)
	}
	wg.Wait()
	<-a.Done()

	groups, err := a.Groups()
	require.NoError(t, err)
	require.Len(t, groups, 3)

	total := 0
	for _, g := range groups {
		total += len(g.Records)
		for _, src := range g.Sources {
			assert.NotEmpty(t, src)
		}
	}
	assert.Equal(t, tasks, total)
}

func TestAggregator_DropsDuplicateNames(t *testing.T) {
	a := NewAggregator(zap.NewNop(), 2)

	first := endpoint.NewEndpointWithTTL("read-1.example.com", endpoint.RecordTypeA, 300, "10.0.0.1")
	second := endpoint.NewEndpointWithTTL("read-1.example.com", endpoint.RecordTypeA, 300, "10.0.0.2")
	require.NoError(t, a.Contribute(key("Z1", false), "a.json", []*endpoint.Endpoint{first, rec("write-1.example.com")}))
	require.NoError(t, a.Contribute(key("Z1", false), "b.json", []*endpoint.Endpoint{second, rec("read-2.example.com")}))

	groups, err := a.Groups()
	require.NoError(t, err)
	require.Len(t, groups, 1)

	require.Len(t, groups[0].Records, 3)
	assert.Same(t, first, groups[0].Records[0])
	for _, r := range groups[0].Records {
		assert.NotSame(t, second, r)
	}
	assert.Equal(t, []string{"a.json", "b.json"}, groups[0].Sources)
}

func TestAggregator_SameNameInOtherZoneIsKept(t *testing.T) {
	a := NewAggregator(zap.NewNop(), 2)
	require.NoError(t, a.Contribute(key("Z1", false), "a.json", []*endpoint.Endpoint{rec("read-1.example.com")}))
	require.NoError(t, a.Contribute(key("Z2", false), "b.json", []*endpoint.Endpoint{rec("read-1.example.com")}))

	groups, err := a.Groups()
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0].Records, 1)
	assert.Len(t, groups[1].Records, 1)
}
