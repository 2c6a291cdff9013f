package users

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sciflow/sciflow-db/internal/data/dberr"
	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

type AuditLogRepo interface {
	Append(dbc dbctx.Context, entry *types.AuditLog) error
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]types.AuditLog, error)
}

type auditLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditLogRepo(db *gorm.DB, baseLog *logger.Logger) AuditLogRepo {
	return &auditLogRepo{db: db, log: baseLog.With("repo", "AuditLogRepo")}
}

func (r *auditLogRepo) Append(dbc dbctx.Context, entry *types.AuditLog) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return dberr.Map("audit_log.append", t.WithContext(dbc.Ctx).Create(entry).Error)
}

func (r *auditLogRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]types.AuditLog, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var entries []types.AuditLog
	err := t.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, dberr.Map("audit_log.list", err)
	}
	return entries, nil
}
