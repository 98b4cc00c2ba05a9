package dnsprovider

import (
	"context"

	"sigs.k8s.io/external-dns/endpoint"

	"github.com/netguru/rds-cluster-dns/pkg/errors"
)

var (
	// ErrSubmitFailed is returned when a backend rejects a change set
	ErrSubmitFailed = errors.ErrSubmitFailed

	// ErrSyncTimeout is returned when a change stays pending for too many polls
	ErrSyncTimeout = errors.ErrSyncTimeout

	// ErrSyncPollFailed is returned when status polls keep failing
	ErrSyncPollFailed = errors.ErrSyncPollFailed

	// ErrChangeNotFound is returned for a change handle the backend did not issue
	ErrChangeNotFound = errors.ErrChangeNotFound

	// ErrUnknownProvider is returned when no backend is registered under a name
	ErrUnknownProvider = errors.ErrUnknownProvider
)

// ChangeStatus is the propagation status reported by a backend.
type ChangeStatus string

const (
	// StatusSubmitted is reported for changes that were not waited on.
	StatusSubmitted ChangeStatus = "SUBMITTED"
	// StatusPending means the change is still propagating.
	StatusPending ChangeStatus = "PENDING"
	// StatusInSync means every authoritative server serves the change.
	StatusInSync ChangeStatus = "INSYNC"
)

// ChangeHandle identifies one submitted change set.
type ChangeHandle string

// Credentials select a DNS zone and the account allowed to change it.
type Credentials struct {
	Provider  string
	ZoneID    string
	AccessKey string
	SecretKey string
}

// Backend is a DNS record provider that accepts batched upserts and reports
// their propagation asynchronously.
type Backend interface {
	// SubmitUpsertBatch upserts every record in one change set.
	SubmitUpsertBatch(ctx context.Context, zoneID string, records []*endpoint.Endpoint) (ChangeHandle, error)
	// GetChangeStatus reports the propagation status of a submitted change.
	GetChangeStatus(ctx context.Context, handle ChangeHandle) (ChangeStatus, error)
}
