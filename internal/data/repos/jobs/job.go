package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sciflow/sciflow-db/internal/data/dberr"
	"github.com/sciflow/sciflow-db/internal/data/gormx"
	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

type JobRepo interface {
	Create(dbc dbctx.Context, job *types.Job) (*types.Job, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Job, error)
	GetForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.Job, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	ListByWorkflow(dbc dbctx.Context, workflowID uuid.UUID) ([]types.Job, error)
	CountByWorkflowStatus(dbc dbctx.Context, workflowID uuid.UUID, status types.JobStatus) (int64, error)
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{db: db, log: baseLog.With("repo", "JobRepo")}
}

func (r *jobRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *jobRepo) Create(dbc dbctx.Context, job *types.Job) (*types.Job, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).Create(job).Error; err != nil {
		return nil, dberr.Map("jobs.create", err)
	}
	return job, nil
}

func (r *jobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Job, error) {
	return r.getOne(dbc, r.handle(dbc).WithContext(dbc.Ctx).Where("id = ?", id))
}

func (r *jobRepo) GetForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.Job, error) {
	t := gormx.ForUpdate(r.handle(dbc).WithContext(dbc.Ctx))
	return r.getOne(dbc, t.Where("id = ?", id))
}

func (r *jobRepo) getOne(dbc dbctx.Context, t *gorm.DB) (*types.Job, error) {
	var job types.Job
	if err := t.Limit(1).Find(&job).Error; err != nil {
		return nil, dberr.Map("jobs.get", err)
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *jobRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dberr.Map("jobs.update", r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.Job{}).
		Where("id = ?", id).
		Updates(updates).Error)
}

func (r *jobRepo) ListByWorkflow(dbc dbctx.Context, workflowID uuid.UUID) ([]types.Job, error) {
	var out []types.Job
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("workflow_uuid = ?", workflowID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, dberr.Map("jobs.list", err)
	}
	return out, nil
}

func (r *jobRepo) CountByWorkflowStatus(dbc dbctx.Context, workflowID uuid.UUID, status types.JobStatus) (int64, error) {
	var count int64
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.Job{}).
		Where("workflow_uuid = ? AND status = ?", workflowID, status).
		Count(&count).Error
	if err != nil {
		return 0, dberr.Map("jobs.count", err)
	}
	return count, nil
}
