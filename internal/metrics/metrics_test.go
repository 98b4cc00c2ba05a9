package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.TasksTotal.WithLabelValues(ResultOK).Add(2)
	m.TasksTotal.WithLabelValues(ResultFailed).Inc()
	m.MembersDroppedTotal.Add(3)
	m.RecordsTotal.Add(5)
	m.ChangesTotal.WithLabelValues("route53", ResultOK).Inc()
	m.ObserveSync("route53", 5*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksTotal.WithLabelValues(ResultFailed)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.MembersDroppedTotal))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.RecordsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChangesTotal.WithLabelValues("route53", ResultOK)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SyncDuration))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	gathered := make([]string, 0, len(families))
	for _, f := range families {
		gathered = append(gathered, f.GetName())
	}
	assert.ElementsMatch(t, []string{
		"rcd_tasks_total",
		"rcd_members_dropped_total",
		"rcd_records_total",
		"rcd_changes_total",
		"rcd_sync_duration_seconds",
	}, gathered)
}

func TestRunsDoNotShareState(t *testing.T) {
	a, b := New(), New()
	a.RecordsTotal.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RecordsTotal))
}

func TestPush(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		path = r.URL.Path
		body = string(raw)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	m.RecordsTotal.Add(4)
	require.NoError(t, m.Push(context.Background(), srv.URL))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/metrics/job/"+Job, path)
	assert.True(t, strings.Contains(body, "rcd_records_total"), "pushed body should carry the run metrics")
}

func TestPushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	assert.Error(t, New().Push(context.Background(), srv.URL))
}
