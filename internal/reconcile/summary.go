package reconcile

import "github.com/netguru/rds-cluster-dns/internal/dnsprovider"

// TaskResult is the outcome of one task.
type TaskResult struct {
	Source  string
	Cluster string
	Records int
	Dropped int
	Err     error
}

// GroupResult is the outcome of one batch group.
type GroupResult struct {
	Provider   string
	ZoneID     string
	NoSyncWait bool
	Sources    []string
	Records    int
	// Skipped is set when nothing was submitted: an empty group or a dry run.
	Skipped  bool
	ChangeID dnsprovider.ChangeHandle
	Status   dnsprovider.ChangeStatus
	Err      error
}

// Summary reports everything a run did.
type Summary struct {
	Tasks  []TaskResult
	Groups []GroupResult
}

// TasksFailed counts the tasks that ended with an error.
func (s *Summary) TasksFailed() int {
	n := 0
	for _, t := range s.Tasks {
		if t.Err != nil {
			n++
		}
	}
	return n
}

// GroupsFailed counts the change sets that were not submitted or did not sync.
func (s *Summary) GroupsFailed() int {
	n := 0
	for _, g := range s.Groups {
		if g.Err != nil {
			n++
		}
	}
	return n
}

// MembersDropped is the number of members left out for lack of an address.
func (s *Summary) MembersDropped() int {
	n := 0
	for _, t := range s.Tasks {
		n += t.Dropped
	}
	return n
}

// Failed reports whether any task or group failed.
func (s *Summary) Failed() bool {
	return s.TasksFailed() > 0 || s.GroupsFailed() > 0
}
