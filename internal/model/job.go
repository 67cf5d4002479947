package model

import "time"

// JobType names a pipeline stage executed as a queued task.
type JobType string

const (
	JobFindDomain    JobType = "find-domain"
	JobFindExecutive JobType = "find-executive"
	JobFindEmail     JobType = "find-email"
)

// JobTypes lists every stage in causal order.
var JobTypes = []JobType{JobFindDomain, JobFindExecutive, JobFindEmail}

// JobStatus is the delivery state of a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusDead      JobStatus = "dead"
)

// JobPayload carries the minimal fields a stage needs.
type JobPayload struct {
	Company   string `json:"company"`
	Domain    string `json:"domain,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Job is a unit of queued, retryable work tied to one lead and one stage.
// ID, Type, LeadID and Payload never change after enqueue.
type Job struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	LeadID      string     `json:"lead_id"`
	Payload     JobPayload `json:"payload"`
	Status      JobStatus  `json:"status"`
	Attempt     int        `json:"attempt"`
	MaxAttempts int        `json:"max_attempts"`
	RunAt       time.Time  `json:"run_at"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// JobCounts tallies jobs by type and status.
type JobCounts map[JobType]map[JobStatus]int
