package quota

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sciflow/sciflow-db/internal/data/dberr"
	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

type ResourceRepo interface {
	Upsert(dbc dbctx.Context, resource *types.Resource) (*types.Resource, error)
	GetByName(dbc dbctx.Context, name string) (*types.Resource, error)
	ListAll(dbc dbctx.Context) ([]types.Resource, error)
	ListByKind(dbc dbctx.Context, kind types.ResourceKind) ([]types.Resource, error)
}

type resourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResourceRepo(db *gorm.DB, baseLog *logger.Logger) ResourceRepo {
	return &resourceRepo{db: db, log: baseLog.With("repo", "ResourceRepo")}
}

func (r *resourceRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

// Upsert creates the catalog entry if missing. An existing entry with
// the same name is left untouched, so repeated initialization is safe.
func (r *resourceRepo) Upsert(dbc dbctx.Context, resource *types.Resource) (*types.Resource, error) {
	if resource.ID == uuid.Nil {
		resource.ID = uuid.New()
	}
	now := time.Now()
	if resource.CreatedAt.IsZero() {
		resource.CreatedAt = now
	}
	resource.UpdatedAt = now
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).
		Create(resource).Error
	if err != nil {
		return nil, dberr.Map("resources.upsert", err)
	}
	return r.GetByName(dbc, resource.Name)
}

func (r *resourceRepo) GetByName(dbc dbctx.Context, name string) (*types.Resource, error) {
	var resource types.Resource
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("name = ?", name).
		Limit(1).
		Find(&resource).Error
	if err != nil {
		return nil, dberr.Map("resources.get", err)
	}
	if resource.ID == uuid.Nil {
		return nil, nil
	}
	return &resource, nil
}

func (r *resourceRepo) ListAll(dbc dbctx.Context) ([]types.Resource, error) {
	var out []types.Resource
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Order("name ASC").
		Find(&out).Error
	if err != nil {
		return nil, dberr.Map("resources.list", err)
	}
	return out, nil
}

func (r *resourceRepo) ListByKind(dbc dbctx.Context, kind types.ResourceKind) ([]types.Resource, error) {
	var out []types.Resource
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("kind = ?", kind).
		Order("name ASC").
		Find(&out).Error
	if err != nil {
		return nil, dberr.Map("resources.list_by_kind", err)
	}
	return out, nil
}
