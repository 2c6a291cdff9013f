package domain

import (
	"time"

	"github.com/google/uuid"
)

// InteractiveSessionType enumerates interactive session flavours.
type InteractiveSessionType string

// InteractiveSessionTypeJupyter is the only supported session type.
const InteractiveSessionTypeJupyter InteractiveSessionType = "jupyter"

// InteractiveSession is a user-facing notebook-style run entity with its
// own run status and quota rows.
type InteractiveSession struct {
	ID        uuid.UUID              `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string                 `gorm:"column:name;size:255;uniqueIndex:interactive_session_name_path_idx,priority:1" json:"name"`
	Path      string                 `gorm:"column:path;type:text;size:1024;uniqueIndex:interactive_session_name_path_idx,priority:2" json:"path"`
	Status    RunStatus              `gorm:"column:status;size:30;not null;default:created" json:"status"`
	OwnerID   uuid.UUID              `gorm:"type:uuid;not null;index" json:"owner_id"`
	Type      InteractiveSessionType `gorm:"column:type;size:30;not null;default:jupyter" json:"type"`
	CreatedAt time.Time              `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time              `gorm:"not null" json:"updated_at"`
}

func (InteractiveSession) TableName() string { return "interactive_session" }
