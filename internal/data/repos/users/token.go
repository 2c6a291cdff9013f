package users

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sciflow/sciflow-db/internal/data/dberr"
	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

type UserTokenRepo interface {
	Create(dbc dbctx.Context, token *types.UserToken) (*types.UserToken, error)
	GetActive(dbc dbctx.Context, userID uuid.UUID) (*types.UserToken, error)
	GetLatest(dbc dbctx.Context, userID uuid.UUID) (*types.UserToken, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type userTokenRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserTokenRepo(db *gorm.DB, baseLog *logger.Logger) UserTokenRepo {
	return &userTokenRepo{db: db, log: baseLog.With("repo", "UserTokenRepo")}
}

func (r *userTokenRepo) Create(dbc dbctx.Context, token *types.UserToken) (*types.UserToken, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if err := t.WithContext(dbc.Ctx).Create(token).Error; err != nil {
		return nil, dberr.Map("user_tokens.create", err)
	}
	return token, nil
}

func (r *userTokenRepo) GetActive(dbc dbctx.Context, userID uuid.UUID) (*types.UserToken, error) {
	return r.getWhere(dbc, "user_id = ? AND status = ? AND type = ?",
		userID, types.UserTokenStatusActive, types.UserTokenTypePlatform)
}

func (r *userTokenRepo) GetLatest(dbc dbctx.Context, userID uuid.UUID) (*types.UserToken, error) {
	return r.getWhere(dbc, "user_id = ? AND type = ?", userID, types.UserTokenTypePlatform)
}

func (r *userTokenRepo) getWhere(dbc dbctx.Context, query string, args ...interface{}) (*types.UserToken, error) {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	var token types.UserToken
	err := t.WithContext(dbc.Ctx).
		Where(query, args...).
		Order("created_at DESC").
		Limit(1).
		Find(&token).Error
	if err != nil {
		return nil, dberr.Map("user_tokens.get", err)
	}
	if token.ID == uuid.Nil {
		return nil, nil
	}
	return &token, nil
}

func (r *userTokenRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dberr.Map("user_tokens.update", t.WithContext(dbc.Ctx).
		Model(&types.UserToken{}).
		Where("id = ?", id).
		Updates(updates).Error)
}
