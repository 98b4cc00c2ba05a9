package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"sigs.k8s.io/external-dns/endpoint"

	"github.com/netguru/rds-cluster-dns/internal/batch"
	"github.com/netguru/rds-cluster-dns/internal/config"
	"github.com/netguru/rds-cluster-dns/internal/dnsprovider"
	"github.com/netguru/rds-cluster-dns/internal/metrics"
	"github.com/netguru/rds-cluster-dns/internal/records"
	"github.com/netguru/rds-cluster-dns/internal/resolver"
	"github.com/netguru/rds-cluster-dns/internal/topology"
)

// DirectoryFactory builds the cluster directory of one task.
type DirectoryFactory func(logger *zap.Logger, task config.Task) topology.Directory

// BackendFactory builds the DNS backend of one batch group.
type BackendFactory func(logger *zap.Logger, creds dnsprovider.Credentials) (dnsprovider.Backend, error)

// Options tune a run.
type Options struct {
	// Concurrency is how many tasks are processed at once; 1 or less runs
	// them one after another.
	Concurrency int
	DryRun      bool
	Wait        dnsprovider.WaitConfig
}

// Reconciler drives tasks through discovery, resolution and synthesis, then
// commits the aggregated record batches once every task has finished.
type Reconciler struct {
	directories DirectoryFactory
	backends    BackendFactory
	resolver    resolver.Resolver
	committer   *dnsprovider.Committer
	waiter      *dnsprovider.Waiter
	metrics     *metrics.Metrics
	opts        Options
	logger      *zap.Logger
}

// New returns a Reconciler.
func New(logger *zap.Logger, directories DirectoryFactory, res resolver.Resolver, backends BackendFactory, m *metrics.Metrics, opts Options) *Reconciler {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Reconciler{
		directories: directories,
		backends:    backends,
		resolver:    res,
		committer:   dnsprovider.NewCommitter(logger.With(zap.String("component", "committer"))),
		waiter:      dnsprovider.NewWaiter(logger.With(zap.String("component", "waiter")), opts.Wait),
		metrics:     m,
		opts:        opts,
		logger:      logger,
	}
}

// Run processes every task and commits the resulting groups. Failures of
// single tasks or groups are reported in the Summary; the returned error is
// reserved for failures of the run itself.
func (r *Reconciler) Run(ctx context.Context, tasks []config.Task) (*Summary, error) {
	agg := batch.NewAggregator(r.logger.With(zap.String("component", "aggregator")), len(tasks))
	summary := &Summary{Tasks: make([]TaskResult, len(tasks))}

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			result, recs := r.runTask(ctx, task)
			summary.Tasks[i] = result
			return agg.Contribute(groupKey(task), task.Source, recs)
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	<-agg.Done()
	groups, err := agg.Groups()
	if err != nil {
		return summary, err
	}

	summary.Groups = make([]GroupResult, len(groups))
	var cg errgroup.Group
	cg.SetLimit(r.opts.Concurrency)
	for i, group := range groups {
		i, group := i, group
		cg.Go(func() error {
			summary.Groups[i] = r.commitGroup(ctx, group)
			return nil
		})
	}
	_ = cg.Wait()

	r.logger.Info("Run finished",
		zap.Int("tasks", len(summary.Tasks)),
		zap.Int("tasks_failed", summary.TasksFailed()),
		zap.Int("members_dropped", summary.MembersDropped()),
		zap.Int("groups", len(summary.Groups)),
		zap.Int("groups_failed", summary.GroupsFailed()))
	return summary, nil
}

func (r *Reconciler) runTask(ctx context.Context, task config.Task) (TaskResult, []*endpoint.Endpoint) {
	result := TaskResult{Source: task.Source, Cluster: task.Cluster}
	logger := r.logger.With(
		zap.String("source", task.Source),
		zap.String("cluster", task.Cluster))

	fail := func(err error) (TaskResult, []*endpoint.Endpoint) {
		logger.Error("Task failed", zap.Error(err))
		result.Err = err
		r.metrics.TasksTotal.WithLabelValues(metrics.ResultFailed).Inc()
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	directory := r.directories(logger.With(zap.String("component", "directory")), task)
	topo, err := topology.NewDiscoverer(logger.With(zap.String("component", "discoverer")), directory).Discover(ctx, task.Cluster)
	if err != nil {
		return fail(err)
	}

	adapter := resolver.NewAdapter(logger.With(zap.String("component", "resolver")), r.resolver)
	result.Dropped = adapter.ResolveMembers(ctx, topo, task.LookupHost, task.LookupUser)
	r.metrics.MembersDroppedTotal.Add(float64(result.Dropped))
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	recs := records.Synthesize(topo, records.Naming{
		ReaderPrefix: task.ReaderPrefix,
		WriterPrefix: task.WriterPrefix,
		Domain:       task.Domain,
		TTL:          task.TTL,
	})
	result.Records = len(recs)
	r.metrics.RecordsTotal.Add(float64(len(recs)))
	r.metrics.TasksTotal.WithLabelValues(metrics.ResultOK).Inc()

	logger.Info("Task processed",
		zap.Int("readers", len(topo.Readers)),
		zap.Int("writers", len(topo.Writers)),
		zap.Int("dropped", result.Dropped),
		zap.Int("records", len(recs)))
	return result, recs
}

func (r *Reconciler) commitGroup(ctx context.Context, group *batch.Group) GroupResult {
	key := group.Key
	result := GroupResult{
		Provider:   key.Provider,
		ZoneID:     key.ZoneID,
		NoSyncWait: key.NoSyncWait,
		Sources:    group.Sources,
		Records:    len(group.Records),
	}
	logger := r.logger.With(
		zap.String("provider", key.Provider),
		zap.String("zone", key.ZoneID),
		zap.Strings("sources", group.Sources))

	if len(group.Records) == 0 {
		logger.Warn("No records for zone, skipping change set")
		result.Skipped = true
		r.metrics.ChangesTotal.WithLabelValues(key.Provider, metrics.ResultSkipped).Inc()
		return result
	}

	if r.opts.DryRun {
		for _, rec := range group.Records {
			logger.Info("Dry run: would upsert record",
				zap.String("dnsName", rec.DNSName),
				zap.String("type", rec.RecordType),
				zap.Strings("targets", rec.Targets),
				zap.Int64("ttl", int64(rec.RecordTTL)))
		}
		result.Skipped = true
		r.metrics.ChangesTotal.WithLabelValues(key.Provider, metrics.ResultSkipped).Inc()
		return result
	}

	fail := func(err error) GroupResult {
		logger.Error("Change set failed", zap.String("change_id", string(result.ChangeID)), zap.Error(err))
		result.Err = err
		r.metrics.ChangesTotal.WithLabelValues(key.Provider, metrics.ResultFailed).Inc()
		return result
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	backend, err := r.backends(logger.With(zap.String("component", "backend")), key.Credentials)
	if err != nil {
		return fail(fmt.Errorf("backend %s: %w", key.Provider, err))
	}

	submitted := time.Now()
	handle, err := r.committer.Commit(ctx, backend, key.ZoneID, group.Records)
	if err != nil {
		return fail(err)
	}
	result.ChangeID = handle

	if key.NoSyncWait {
		logger.Info("Not waiting for DNS change to sync", zap.String("change_id", string(handle)))
		result.Status = dnsprovider.StatusSubmitted
		r.metrics.ChangesTotal.WithLabelValues(key.Provider, metrics.ResultOK).Inc()
		return result
	}

	status, err := r.waiter.Wait(ctx, backend, handle)
	result.Status = status
	if err != nil {
		return fail(err)
	}
	r.metrics.ObserveSync(key.Provider, time.Since(submitted))
	r.metrics.ChangesTotal.WithLabelValues(key.Provider, metrics.ResultOK).Inc()

	if status == dnsprovider.StatusInSync {
		logger.Info("DNS change in sync", zap.String("change_id", string(handle)))
	} else {
		logger.Warn("DNS change ended with unexpected status",
			zap.String("change_id", string(handle)),
			zap.String("status", string(status)))
	}
	return result
}

func groupKey(task config.Task) batch.Key {
	return batch.Key{
		Credentials: dnsprovider.Credentials{
			Provider:  task.Provider,
			ZoneID:    task.ZoneID,
			AccessKey: task.DNSAccess,
			SecretKey: task.DNSSecret,
		},
		NoSyncWait: task.NoSyncWait,
	}
}
