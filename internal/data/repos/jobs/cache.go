package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sciflow/sciflow-db/internal/data/dberr"
	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

type JobCacheRepo interface {
	Put(dbc dbctx.Context, entry *types.JobCache) (*types.JobCache, error)
	Lookup(dbc dbctx.Context, workspaceHash, parameters string) (*types.JobCache, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	DeleteByWorkflow(dbc dbctx.Context, workflowID uuid.UUID) error
}

type jobCacheRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobCacheRepo(db *gorm.DB, baseLog *logger.Logger) JobCacheRepo {
	return &jobCacheRepo{db: db, log: baseLog.With("repo", "JobCacheRepo")}
}

func (r *jobCacheRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *jobCacheRepo) Put(dbc dbctx.Context, entry *types.JobCache) (*types.JobCache, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).Create(entry).Error; err != nil {
		return nil, dberr.Map("job_cache.put", err)
	}
	return entry, nil
}

// Lookup returns the most recent cache entry matching both the workspace
// content hash and the serialized job parameters, or nil on a miss.
func (r *jobCacheRepo) Lookup(dbc dbctx.Context, workspaceHash, parameters string) (*types.JobCache, error) {
	var entry types.JobCache
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("workspace_hash = ? AND parameters = ?", workspaceHash, parameters).
		Order("created_at DESC").
		Limit(1).
		Find(&entry).Error
	if err != nil {
		return nil, dberr.Map("job_cache.lookup", err)
	}
	if entry.ID == uuid.Nil {
		return nil, nil
	}
	return &entry, nil
}

func (r *jobCacheRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dberr.Map("job_cache.update", r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.JobCache{}).
		Where("id = ?", id).
		Updates(updates).Error)
}

func (r *jobCacheRepo) DeleteByWorkflow(dbc dbctx.Context, workflowID uuid.UUID) error {
	sub := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.Job{}).
		Select("id").
		Where("workflow_uuid = ?", workflowID)
	return dberr.Map("job_cache.delete", r.handle(dbc).WithContext(dbc.Ctx).
		Where("job_id IN (?)", sub).
		Delete(&types.JobCache{}).Error)
}
