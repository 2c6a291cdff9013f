package domain

// RunStatus enumerates the lifecycle states of a run entity (workflow or
// interactive session).
type RunStatus string

const (
	RunStatusCreated  RunStatus = "created"
	RunStatusQueued   RunStatus = "queued"
	RunStatusPending  RunStatus = "pending"
	RunStatusRunning  RunStatus = "running"
	RunStatusFinished RunStatus = "finished"
	RunStatusFailed   RunStatus = "failed"
	RunStatusDeleted  RunStatus = "deleted"
	RunStatusStopped  RunStatus = "stopped"
)

// RunStatuses lists every run status.
var RunStatuses = []RunStatus{
	RunStatusCreated,
	RunStatusQueued,
	RunStatusPending,
	RunStatusRunning,
	RunStatusFinished,
	RunStatusFailed,
	RunStatusDeleted,
	RunStatusStopped,
}

// TerminalRunStatuses are the statuses after which no further productive
// work occurs for a run.
var TerminalRunStatuses = []RunStatus{
	RunStatusFinished,
	RunStatusFailed,
	RunStatusStopped,
	RunStatusDeleted,
}

// RunStatusTransition is one allowed edge of the run status machine.
type RunStatusTransition struct {
	From RunStatus
	To   RunStatus
}

// AllowedRunStatusTransitions is the full edge set of the run status
// machine. running -> running is a legal no-op re-notification.
var AllowedRunStatusTransitions = []RunStatusTransition{
	{RunStatusCreated, RunStatusDeleted},
	{RunStatusCreated, RunStatusQueued},

	{RunStatusQueued, RunStatusDeleted},
	{RunStatusQueued, RunStatusPending},
	{RunStatusQueued, RunStatusFailed},

	{RunStatusPending, RunStatusRunning},
	{RunStatusPending, RunStatusDeleted},

	{RunStatusRunning, RunStatusFailed},
	{RunStatusRunning, RunStatusFinished},
	{RunStatusRunning, RunStatusStopped},
	{RunStatusRunning, RunStatusRunning},

	{RunStatusStopped, RunStatusDeleted},

	{RunStatusFailed, RunStatusDeleted},
	{RunStatusFailed, RunStatusRunning},

	{RunStatusFinished, RunStatusDeleted},
	{RunStatusFinished, RunStatusRunning},
}

// CanTransitionTo reports whether (s, next) is an allowed run status edge.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	for _, t := range AllowedRunStatusTransitions {
		if t.From == s && t.To == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is a terminal run status.
func (s RunStatus) IsTerminal() bool {
	for _, t := range TerminalRunStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// KnownRunStatusNames returns the status names usable in keep-alive
// configuration.
func KnownRunStatusNames() []string {
	names := make([]string, 0, len(RunStatuses))
	for _, s := range RunStatuses {
		names = append(names, string(s))
	}
	return names
}

// ShouldCleanup reports whether a run with the given status should have
// its backing jobs cleaned up. keepAlive must already be validated
// against KnownRunStatusNames.
func ShouldCleanup(status RunStatus, keepAlive []string) bool {
	for _, name := range keepAlive {
		if string(status) == name {
			return false
		}
	}
	return true
}

// JobStatus enumerates the lifecycle states of a job. Jobs have no
// pending or deleted state.
type JobStatus string

const (
	JobStatusCreated  JobStatus = "created"
	JobStatusQueued   JobStatus = "queued"
	JobStatusRunning  JobStatus = "running"
	JobStatusFinished JobStatus = "finished"
	JobStatusFailed   JobStatus = "failed"
	JobStatusStopped  JobStatus = "stopped"
)

// JobStatuses lists every job status.
var JobStatuses = []JobStatus{
	JobStatusCreated,
	JobStatusQueued,
	JobStatusRunning,
	JobStatusFinished,
	JobStatusFailed,
	JobStatusStopped,
}
