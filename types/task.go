package types

import "time"

// CollectionTask is the atomic unit of collection work: one account,
// one region, one resource type. Tasks are owned by the engine for the
// duration of a run.
type CollectionTask struct {
	Account      Account `json:"account"`
	Region       string  `json:"region"`
	ResourceType string  `json:"resource_type"`
}

// String renders the task cell for logs and failure reports.
func (t CollectionTask) String() string {
	return t.Account.ID + "/" + t.Region + "/" + t.ResourceType
}

// TaskFailure records one task that did not complete.
type TaskFailure struct {
	Task     CollectionTask `json:"task"`
	Error    string         `json:"error"`
	Attempts int            `json:"attempts"`
}

// RunReport aggregates one full collection invocation. It is produced
// exactly once per run and immutable after completion.
type RunReport struct {
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	TasksTotal     int           `json:"tasks_total"`
	TasksSucceeded int           `json:"tasks_succeeded"`
	TasksFailed    int           `json:"tasks_failed"`
	RecordsWritten int           `json:"records_written"`
	Failures       []TaskFailure `json:"failures,omitempty"`
}

// Duration returns the wall-clock length of the run.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
