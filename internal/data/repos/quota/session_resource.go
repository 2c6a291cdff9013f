package quota

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sciflow/sciflow-db/internal/data/dberr"
	"github.com/sciflow/sciflow-db/internal/data/gormx"
	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

type SessionResourceRepo interface {
	Get(dbc dbctx.Context, sessionID, resourceID uuid.UUID) (*types.InteractiveSessionResource, error)
	AddUsage(dbc dbctx.Context, sessionID, resourceID uuid.UUID, delta int64) (int64, error)
	SetUsage(dbc dbctx.Context, sessionID, resourceID uuid.UUID, used int64) error
	ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.InteractiveSessionResource, error)
}

type sessionResourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionResourceRepo(db *gorm.DB, baseLog *logger.Logger) SessionResourceRepo {
	return &sessionResourceRepo{db: db, log: baseLog.With("repo", "SessionResourceRepo")}
}

func (r *sessionResourceRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *sessionResourceRepo) Get(dbc dbctx.Context, sessionID, resourceID uuid.UUID) (*types.InteractiveSessionResource, error) {
	var row types.InteractiveSessionResource
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("session_id = ? AND resource_id = ?", sessionID, resourceID).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, dberr.Map("session_resources.get", err)
	}
	if row.SessionID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *sessionResourceRepo) AddUsage(dbc dbctx.Context, sessionID, resourceID uuid.UUID, delta int64) (int64, error) {
	t := r.handle(dbc).WithContext(dbc.Ctx)
	var row types.InteractiveSessionResource
	err := gormx.ForUpdate(t).
		Where("session_id = ? AND resource_id = ?", sessionID, resourceID).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return 0, dberr.Map("session_resources.add_usage", err)
	}
	if row.SessionID == uuid.Nil {
		initial := delta
		if initial < 0 {
			r.log.Warn("negative usage delta for missing quota row, starting at zero",
				"session_id", sessionID, "resource_id", resourceID, "delta", delta)
			initial = 0
		}
		now := time.Now()
		row = types.InteractiveSessionResource{
			SessionID:  sessionID,
			ResourceID: resourceID,
			QuotaUsed:  initial,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := t.Create(&row).Error; err != nil {
			return 0, dberr.Map("session_resources.add_usage", err)
		}
		return initial, nil
	}
	next := row.QuotaUsed + delta
	if next < 0 {
		r.log.Warn("usage delta would drive quota negative, clamping to zero",
			"session_id", sessionID, "resource_id", resourceID,
			"used", row.QuotaUsed, "delta", delta)
		next = 0
	}
	err = t.Model(&types.InteractiveSessionResource{}).
		Where("session_id = ? AND resource_id = ?", sessionID, resourceID).
		Updates(map[string]interface{}{"quota_used": next, "updated_at": time.Now()}).Error
	if err != nil {
		return 0, dberr.Map("session_resources.add_usage", err)
	}
	return next, nil
}

func (r *sessionResourceRepo) SetUsage(dbc dbctx.Context, sessionID, resourceID uuid.UUID, used int64) error {
	if used < 0 {
		r.log.Warn("negative usage overwrite, clamping to zero",
			"session_id", sessionID, "resource_id", resourceID, "used", used)
		used = 0
	}
	now := time.Now()
	row := types.InteractiveSessionResource{
		SessionID:  sessionID,
		ResourceID: resourceID,
		QuotaUsed:  used,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return dberr.Map("session_resources.set_usage", r.handle(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "resource_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"quota_used": used, "updated_at": now}),
		}).
		Create(&row).Error)
}

func (r *sessionResourceRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.InteractiveSessionResource, error) {
	var out []*types.InteractiveSessionResource
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Preload("Resource").
		Where("session_id = ?", sessionID).
		Find(&out).Error
	if err != nil {
		return nil, dberr.Map("session_resources.list", err)
	}
	return out, nil
}
