package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Job is one compute step of a workflow.
type Job struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	WorkflowUUID   uuid.UUID      `gorm:"type:uuid;column:workflow_uuid;not null;index" json:"workflow_uuid"`
	BackendJobID   string         `gorm:"column:backend_job_id;size:256" json:"backend_job_id,omitempty"`
	Status         JobStatus      `gorm:"column:status;size:30;not null;default:created;index" json:"status"`
	ComputeBackend string         `gorm:"column:compute_backend;size:30" json:"compute_backend,omitempty"`
	DockerImage    string         `gorm:"column:docker_image;size:256" json:"docker_image,omitempty"`
	Command        datatypes.JSON `gorm:"column:command" json:"command,omitempty"`
	EnvVars        datatypes.JSON `gorm:"column:env_vars" json:"env_vars,omitempty"`
	Logs           string         `gorm:"column:logs;type:text" json:"logs,omitempty"`
	Name           string         `gorm:"column:name;type:text" json:"name,omitempty"`
	StartedAt      *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	FinishedAt     *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (Job) TableName() string { return "job" }

// JobCache memoizes job results per workspace content hash.
type JobCache struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"job_id"`
	Parameters    string         `gorm:"column:parameters;size:1024" json:"parameters,omitempty"`
	ResultPath    string         `gorm:"column:result_path;size:1024" json:"result_path,omitempty"`
	WorkspaceHash string         `gorm:"column:workspace_hash;size:1024;index" json:"workspace_hash,omitempty"`
	AccessTimes   datatypes.JSON `gorm:"column:access_times" json:"access_times,omitempty"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (JobCache) TableName() string { return "job_cache" }
