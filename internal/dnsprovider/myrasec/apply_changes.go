package myrasec

import (
	"context"
	"fmt"
	"sync"

	myrasec "github.com/Myra-Security-GmbH/myrasec-go/v2"
	"go.uber.org/zap"
	"sigs.k8s.io/external-dns/endpoint"
)

const maxWorkers = 4

// upsertTask is one record to converge, with the records already present
// under the same name and type.
type upsertTask struct {
	change   *endpoint.Endpoint
	existing []myrasec.DNSRecord
}

// upsertWithWorkers lists the domain's records once and converges every
// desired record on a pool of worker goroutines.
func (b *Backend) upsertWithWorkers(ctx context.Context, domain *myrasec.Domain, records []*endpoint.Endpoint) error {
	b.logger.Info("Applying DNS upserts with workers",
		zap.String("domain", domain.Name),
		zap.Int("records", len(records)))

	if len(records) == 0 {
		return nil
	}

	allRecords, err := b.apiClient.ListDNSRecords(domain.ID, nil)
	if err != nil {
		b.logger.Error("Failed to list DNS records",
			zap.String("domain", domain.Name),
			zap.Error(err))
		return fmt.Errorf("failed listing records: %w", err)
	}

	tasks := make([]upsertTask, 0, len(records))
	for _, ep := range records {
		tasks = append(tasks, upsertTask{
			change:   ep,
			existing: findMatchingRecords(allRecords, ep.DNSName, ep.RecordType),
		})
	}

	return b.processTasksWithWorkers(ctx, domain.ID, tasks)
}

// processTasksWithWorkers processes upsert tasks using multiple worker goroutines.
// The first failure cancels the remaining work.
func (b *Backend) processTasksWithWorkers(ctx context.Context, domainID int, tasks []upsertTask) error {
	workerCount := maxWorkers
	if len(tasks) < workerCount {
		workerCount = len(tasks)
	}

	taskChan := make(chan upsertTask, len(tasks))
	resultChan := make(chan error, len(tasks))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			b.worker(ctx, workerID, domainID, taskChan, resultChan)
		}(i)
	}

	for _, task := range tasks {
		taskChan <- task
	}
	close(taskChan)

	var firstErr error
	for i := 0; i < len(tasks); i++ {
		var err error
		select {
		case err = <-resultChan:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
		if ctx.Err() != nil {
			break
		}
	}

	wg.Wait()
	return firstErr
}

// worker is a goroutine that processes tasks from the task channel
func (b *Backend) worker(ctx context.Context, id, domainID int, taskChan <-chan upsertTask, resultChan chan<- error) {
	for {
		select {
		case task, ok := <-taskChan:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				resultChan <- ctx.Err()
				continue
			}
			b.logger.Debug("Upserting DNS record",
				zap.Int("worker", id),
				zap.String("dnsName", task.change.DNSName),
				zap.String("type", task.change.RecordType))
			resultChan <- b.upsertRecord(domainID, task)
		case <-ctx.Done():
			return
		}
	}
}
