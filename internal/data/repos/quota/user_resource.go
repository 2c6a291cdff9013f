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

type UserResourceRepo interface {
	Get(dbc dbctx.Context, userID, resourceID uuid.UUID) (*types.UserResource, error)
	Ensure(dbc dbctx.Context, userID, resourceID uuid.UUID, limit int64) error
	AddUsage(dbc dbctx.Context, userID, resourceID uuid.UUID, delta int64) (int64, error)
	SetUsage(dbc dbctx.Context, userID, resourceID uuid.UUID, used int64) error
	SetLimit(dbc dbctx.Context, userID, resourceID uuid.UUID, limit int64) error
	ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.UserResource, error)
}

type userResourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserResourceRepo(db *gorm.DB, baseLog *logger.Logger) UserResourceRepo {
	return &userResourceRepo{db: db, log: baseLog.With("repo", "UserResourceRepo")}
}

func (r *userResourceRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *userResourceRepo) Get(dbc dbctx.Context, userID, resourceID uuid.UUID) (*types.UserResource, error) {
	var row types.UserResource
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("user_id = ? AND resource_id = ?", userID, resourceID).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, dberr.Map("user_resources.get", err)
	}
	if row.UserID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

// Ensure creates the quota row with the given limit if the user does
// not have one yet. An existing row keeps its limit and usage.
func (r *userResourceRepo) Ensure(dbc dbctx.Context, userID, resourceID uuid.UUID, limit int64) error {
	now := time.Now()
	row := types.UserResource{
		UserID:     userID,
		ResourceID: resourceID,
		QuotaLimit: limit,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return dberr.Map("user_resources.ensure", r.handle(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "resource_id"}},
			DoNothing: true,
		}).
		Create(&row).Error)
}

// AddUsage applies a signed delta to the user's usage under a row lock.
// A delta that would drive usage negative is clamped to zero; usage is
// never negative. Returns the resulting usage.
func (r *userResourceRepo) AddUsage(dbc dbctx.Context, userID, resourceID uuid.UUID, delta int64) (int64, error) {
	t := r.handle(dbc).WithContext(dbc.Ctx)
	var row types.UserResource
	err := gormx.ForUpdate(t).
		Where("user_id = ? AND resource_id = ?", userID, resourceID).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return 0, dberr.Map("user_resources.add_usage", err)
	}
	if row.UserID == uuid.Nil {
		initial := delta
		if initial < 0 {
			r.log.Warn("negative usage delta for missing quota row, starting at zero",
				"user_id", userID, "resource_id", resourceID, "delta", delta)
			initial = 0
		}
		now := time.Now()
		row = types.UserResource{
			UserID:     userID,
			ResourceID: resourceID,
			QuotaUsed:  initial,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := t.Create(&row).Error; err != nil {
			return 0, dberr.Map("user_resources.add_usage", err)
		}
		return initial, nil
	}
	next := row.QuotaUsed + delta
	if next < 0 {
		r.log.Warn("usage delta would drive quota negative, clamping to zero",
			"user_id", userID, "resource_id", resourceID,
			"used", row.QuotaUsed, "delta", delta)
		next = 0
	}
	err = t.Model(&types.UserResource{}).
		Where("user_id = ? AND resource_id = ?", userID, resourceID).
		Updates(map[string]interface{}{"quota_used": next, "updated_at": time.Now()}).Error
	if err != nil {
		return 0, dberr.Map("user_resources.add_usage", err)
	}
	return next, nil
}

// SetUsage overwrites the user's usage, creating the row when missing.
func (r *userResourceRepo) SetUsage(dbc dbctx.Context, userID, resourceID uuid.UUID, used int64) error {
	if used < 0 {
		r.log.Warn("negative usage overwrite, clamping to zero",
			"user_id", userID, "resource_id", resourceID, "used", used)
		used = 0
	}
	now := time.Now()
	row := types.UserResource{
		UserID:     userID,
		ResourceID: resourceID,
		QuotaUsed:  used,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return dberr.Map("user_resources.set_usage", r.handle(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "resource_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"quota_used": used, "updated_at": now}),
		}).
		Create(&row).Error)
}

func (r *userResourceRepo) SetLimit(dbc dbctx.Context, userID, resourceID uuid.UUID, limit int64) error {
	now := time.Now()
	row := types.UserResource{
		UserID:     userID,
		ResourceID: resourceID,
		QuotaLimit: limit,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return dberr.Map("user_resources.set_limit", r.handle(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "resource_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"quota_limit": limit, "updated_at": now}),
		}).
		Create(&row).Error)
}

func (r *userResourceRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID) ([]*types.UserResource, error) {
	var out []*types.UserResource
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Preload("Resource").
		Where("user_id = ?", userID).
		Find(&out).Error
	if err != nil {
		return nil, dberr.Map("user_resources.list", err)
	}
	return out, nil
}
