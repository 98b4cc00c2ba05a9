package errors

import "errors"

var (
	// ErrMissingField is returned when a task is missing a required configuration field
	ErrMissingField = errors.New("required configuration field missing")

	// ErrUnknownProvider is returned when a task names a DNS provider that is not registered
	ErrUnknownProvider = errors.New("unknown DNS provider")

	// ErrTopologyNotFound is returned when the configured cluster or its member list cannot be found
	ErrTopologyNotFound = errors.New("topology not found")

	// ErrResolverFailed is returned when the address resolver cannot be reached or fails to run
	ErrResolverFailed = errors.New("address resolver failed")

	// ErrNoAddress is returned when the address resolver output holds no IPv4 address
	ErrNoAddress = errors.New("no IPv4 address in resolver output")

	// ErrSubmitFailed is returned when the DNS backend rejects a change set
	ErrSubmitFailed = errors.New("DNS change submission failed")

	// ErrSyncTimeout is returned when a change is still pending after the maximum number of polls
	ErrSyncTimeout = errors.New("timed out waiting for DNS change to sync")

	// ErrSyncPollFailed is returned when polling a change status keeps failing
	ErrSyncPollFailed = errors.New("polling DNS change status failed")

	// ErrChangeNotFound is returned when a backend does not know a change handle
	ErrChangeNotFound = errors.New("DNS change not found")

	// ErrDomainNotFound is returned when the specified domain is not found
	ErrDomainNotFound = errors.New("domain not found")

	// ErrBatchIncomplete is returned when batch groups are read before every task contributed
	ErrBatchIncomplete = errors.New("batch aggregation incomplete")

	// ErrBatchOverflow is returned when more tasks contribute than were expected
	ErrBatchOverflow = errors.New("more batch contributions than tasks")

	// ErrLockHeld is returned when another instance already holds the process lock
	ErrLockHeld = errors.New("another instance is already running")
)
