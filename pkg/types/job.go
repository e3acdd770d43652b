package types

import "time"

// JobStatus is the lifecycle status of a scheduled job run.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
	JobSkipped   JobStatus = "SKIPPED"
	JobCancelled JobStatus = "CANCELLED"
)

// Job is a scheduled command invocation.
type Job struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Command     string `json:"command"`
	Schedule    string `json:"schedule,omitempty"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description,omitempty"`

	WorkingDirectory string            `json:"working_directory"`
	Environment      map[string]string `json:"environment,omitempty"`
	User             string            `json:"user,omitempty"`

	Status          JobStatus     `json:"status"`
	LastRunTime     time.Time     `json:"last_run_time,omitempty"`
	NextRunTime     time.Time     `json:"next_run_time,omitempty"`
	LastRunDuration time.Duration `json:"last_run_duration,omitempty"`
	LastExitCode    int           `json:"last_exit_code"`
	RunCount        int           `json:"run_count"`
	SuccessCount    int           `json:"success_count"`
	FailCount       int           `json:"fail_count"`
	CurrentPID      int           `json:"current_pid,omitempty"`
}

func (j *Job) ConfigFile() string { return j.Name + ".job" }
func (j *Job) StateFile() string  { return j.Name + ".state" }

// JobHistoryRecord is one execution record under a job's history directory.
type JobHistoryRecord struct {
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
}
