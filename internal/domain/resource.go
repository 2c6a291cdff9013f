package domain

import (
	"time"

	"github.com/google/uuid"
)

// Resource is a catalog entry for an accountable resource kind.
type Resource struct {
	ID        uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string       `gorm:"column:name;size:1024;not null;uniqueIndex" json:"name"`
	Kind      ResourceKind `gorm:"column:kind;size:30;not null" json:"kind"`
	Unit      ResourceUnit `gorm:"column:unit;size:30;not null" json:"unit"`
	Title     string       `gorm:"column:title;size:1024" json:"title"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`
}

func (Resource) TableName() string { return "resource" }

// UserResource tracks one user's usage and limit of one resource.
// A zero limit means unlimited.
type UserResource struct {
	UserID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	ResourceID uuid.UUID `gorm:"type:uuid;primaryKey" json:"resource_id"`
	QuotaLimit int64     `gorm:"column:quota_limit;not null;default:0" json:"quota_limit"`
	QuotaUsed  int64     `gorm:"column:quota_used;not null;default:0" json:"quota_used"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`

	Resource Resource `gorm:"foreignKey:ResourceID" json:"resource,omitempty"`
}

func (UserResource) TableName() string { return "user_resource" }

// QuotaRow converts the row for aggregation. The Resource association
// must be loaded.
func (r UserResource) QuotaRow() QuotaRow {
	return QuotaRow{
		Kind:     r.Resource.Kind,
		Unit:     r.Resource.Unit,
		Used:     r.QuotaUsed,
		Limit:    r.QuotaLimit,
		HasLimit: true,
	}
}

// WorkflowResource tracks one workflow's usage of one resource.
type WorkflowResource struct {
	WorkflowID uuid.UUID `gorm:"type:uuid;primaryKey" json:"workflow_id"`
	ResourceID uuid.UUID `gorm:"type:uuid;primaryKey" json:"resource_id"`
	QuotaUsed  int64     `gorm:"column:quota_used;not null;default:0" json:"quota_used"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`

	Resource Resource `gorm:"foreignKey:ResourceID" json:"resource,omitempty"`
}

func (WorkflowResource) TableName() string { return "workflow_resource" }

func (r WorkflowResource) QuotaRow() QuotaRow {
	return QuotaRow{Kind: r.Resource.Kind, Unit: r.Resource.Unit, Used: r.QuotaUsed}
}

// InteractiveSessionResource tracks one session's usage of one resource.
type InteractiveSessionResource struct {
	SessionID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"session_id"`
	ResourceID uuid.UUID `gorm:"type:uuid;primaryKey" json:"resource_id"`
	QuotaUsed  int64     `gorm:"column:quota_used;not null;default:0" json:"quota_used"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`

	Resource Resource `gorm:"foreignKey:ResourceID" json:"resource,omitempty"`
}

func (InteractiveSessionResource) TableName() string { return "interactive_session_resource" }

func (r InteractiveSessionResource) QuotaRow() QuotaRow {
	return QuotaRow{Kind: r.Resource.Kind, Unit: r.Resource.Unit, Used: r.QuotaUsed}
}

// UserQuotaRows adapts user resource rows for aggregation.
func UserQuotaRows(rows []*UserResource) []QuotaRow {
	out := make([]QuotaRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.QuotaRow())
	}
	return out
}

// WorkflowQuotaRows adapts workflow resource rows for aggregation.
func WorkflowQuotaRows(rows []*WorkflowResource) []QuotaRow {
	out := make([]QuotaRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.QuotaRow())
	}
	return out
}

// SessionQuotaRows adapts session resource rows for aggregation.
func SessionQuotaRows(rows []*InteractiveSessionResource) []QuotaRow {
	out := make([]QuotaRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.QuotaRow())
	}
	return out
}
