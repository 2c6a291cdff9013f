package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// User owns workflows, interactive sessions and quota rows.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"column:email;size:255;not null;uniqueIndex" json:"email"`
	FullName  string    `gorm:"column:full_name;size:255" json:"full_name"`
	Username  string    `gorm:"column:username;size:255" json:"username"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "user_account" }

// UserTokenStatus enumerates access token statuses.
type UserTokenStatus string

const (
	UserTokenStatusRequested UserTokenStatus = "requested"
	UserTokenStatusActive    UserTokenStatus = "active"
	UserTokenStatusRevoked   UserTokenStatus = "revoked"
)

// UserTokenType enumerates access token types.
type UserTokenType string

// UserTokenTypePlatform is the platform access token type.
const UserTokenTypePlatform UserTokenType = "platform"

// UserToken is an access token row. Token holds the encrypted value;
// encryption is delegated to the process token cipher.
type UserToken struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	Token     string          `gorm:"column:token;size:1024" json:"-"`
	Status    UserTokenStatus `gorm:"column:status;size:30;not null" json:"status"`
	Type      UserTokenType   `gorm:"column:type;size:30;not null" json:"type"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

func (UserToken) TableName() string { return "user_token" }

// AuditLogAction enumerates audited user-initiated actions.
type AuditLogAction string

const (
	AuditLogActionRequestToken AuditLogAction = "request_token"
	AuditLogActionGrantToken   AuditLogAction = "grant_token"
	AuditLogActionRevokeToken  AuditLogAction = "revoke_token"
)

// AuditLog is an append-only record of user-initiated actions.
type AuditLog struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Action    AuditLogAction `gorm:"column:action;size:60;not null" json:"action"`
	Details   datatypes.JSON `gorm:"column:details" json:"details,omitempty"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_log" }
