package domain

import (
	"time"

	"github.com/google/uuid"
)

// RetentionRuleStatus enumerates workspace-retention-rule lifecycle
// states.
type RetentionRuleStatus string

const (
	RetentionRuleStatusCreated  RetentionRuleStatus = "created"
	RetentionRuleStatusActive   RetentionRuleStatus = "active"
	RetentionRuleStatusInactive RetentionRuleStatus = "inactive"
	RetentionRuleStatusPending  RetentionRuleStatus = "pending"
	RetentionRuleStatusApplied  RetentionRuleStatus = "applied"
)

// RetentionRuleStatuses lists every retention rule status.
var RetentionRuleStatuses = []RetentionRuleStatus{
	RetentionRuleStatusCreated,
	RetentionRuleStatusActive,
	RetentionRuleStatusInactive,
	RetentionRuleStatusPending,
	RetentionRuleStatusApplied,
}

// RetentionRuleTransition is one allowed edge of the retention rule
// status machine.
type RetentionRuleTransition struct {
	From RetentionRuleStatus
	To   RetentionRuleStatus
}

// AllowedRetentionRuleTransitions is the full edge set of the retention
// rule status machine. applied -> applied lets a reaper re-apply
// idempotently.
var AllowedRetentionRuleTransitions = []RetentionRuleTransition{
	{RetentionRuleStatusCreated, RetentionRuleStatusActive},
	{RetentionRuleStatusCreated, RetentionRuleStatusInactive},
	{RetentionRuleStatusActive, RetentionRuleStatusInactive},
	{RetentionRuleStatusActive, RetentionRuleStatusPending},
	{RetentionRuleStatusInactive, RetentionRuleStatusActive},
	{RetentionRuleStatusPending, RetentionRuleStatusApplied},
	{RetentionRuleStatusApplied, RetentionRuleStatusApplied},
}

// CanTransitionTo reports whether (s, next) is an allowed retention rule
// status edge.
func (s RetentionRuleStatus) CanTransitionTo(next RetentionRuleStatus) bool {
	for _, t := range AllowedRetentionRuleTransitions {
		if t.From == s && t.To == next {
			return true
		}
	}
	return false
}

// WorkspaceRetentionRule describes which workspace files to delete after
// a retention period once the owning workflow terminates. Rules are
// shared by all restarts of a workflow family through the workspace.
type WorkspaceRetentionRule struct {
	ID             uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	WorkflowID     uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex:retention_rule_workflow_files_idx,priority:1" json:"workflow_id"`
	WorkspaceFiles string              `gorm:"column:workspace_files;size:255;not null;uniqueIndex:retention_rule_workflow_files_idx,priority:2" json:"workspace_files"`
	RetentionDays  int                 `gorm:"column:retention_days;not null" json:"retention_days"`
	ApplyOn        *time.Time          `gorm:"column:apply_on" json:"apply_on,omitempty"`
	Status         RetentionRuleStatus `gorm:"column:status;size:30;not null;default:created" json:"status"`
	CreatedAt      time.Time           `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"not null" json:"updated_at"`
}

func (WorkspaceRetentionRule) TableName() string { return "workspace_retention_rule" }

// WorkspaceRetentionAuditLog is the append-only provenance trail of
// retention rule changes. One row per rule status change, keyed by
// (rule, timestamp, action); it cannot be disabled.
type WorkspaceRetentionAuditLog struct {
	RuleID    uuid.UUID           `gorm:"type:uuid;primaryKey" json:"rule_id"`
	Timestamp time.Time           `gorm:"primaryKey" json:"timestamp"`
	Action    RetentionRuleStatus `gorm:"column:action;size:30;primaryKey" json:"action"`
}

func (WorkspaceRetentionAuditLog) TableName() string { return "workspace_retention_audit_log" }
