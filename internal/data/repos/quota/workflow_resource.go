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

type WorkflowResourceRepo interface {
	Get(dbc dbctx.Context, workflowID, resourceID uuid.UUID) (*types.WorkflowResource, error)
	AddUsage(dbc dbctx.Context, workflowID, resourceID uuid.UUID, delta int64) (int64, error)
	SetUsage(dbc dbctx.Context, workflowID, resourceID uuid.UUID, used int64) error
	ListByWorkflow(dbc dbctx.Context, workflowID uuid.UUID) ([]*types.WorkflowResource, error)
	SumByOwner(dbc dbctx.Context, ownerID, resourceID uuid.UUID) (int64, error)
	DiskUsageByOwner(dbc dbctx.Context, ownerID, resourceID uuid.UUID) (int64, error)
}

type workflowResourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorkflowResourceRepo(db *gorm.DB, baseLog *logger.Logger) WorkflowResourceRepo {
	return &workflowResourceRepo{db: db, log: baseLog.With("repo", "WorkflowResourceRepo")}
}

func (r *workflowResourceRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *workflowResourceRepo) Get(dbc dbctx.Context, workflowID, resourceID uuid.UUID) (*types.WorkflowResource, error) {
	var row types.WorkflowResource
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("workflow_id = ? AND resource_id = ?", workflowID, resourceID).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return nil, dberr.Map("workflow_resources.get", err)
	}
	if row.WorkflowID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

// AddUsage applies a signed delta under a row lock, clamping at zero.
func (r *workflowResourceRepo) AddUsage(dbc dbctx.Context, workflowID, resourceID uuid.UUID, delta int64) (int64, error) {
	t := r.handle(dbc).WithContext(dbc.Ctx)
	var row types.WorkflowResource
	err := gormx.ForUpdate(t).
		Where("workflow_id = ? AND resource_id = ?", workflowID, resourceID).
		Limit(1).
		Find(&row).Error
	if err != nil {
		return 0, dberr.Map("workflow_resources.add_usage", err)
	}
	if row.WorkflowID == uuid.Nil {
		initial := delta
		if initial < 0 {
			r.log.Warn("negative usage delta for missing quota row, starting at zero",
				"workflow_id", workflowID, "resource_id", resourceID, "delta", delta)
			initial = 0
		}
		now := time.Now()
		row = types.WorkflowResource{
			WorkflowID: workflowID,
			ResourceID: resourceID,
			QuotaUsed:  initial,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := t.Create(&row).Error; err != nil {
			return 0, dberr.Map("workflow_resources.add_usage", err)
		}
		return initial, nil
	}
	next := row.QuotaUsed + delta
	if next < 0 {
		r.log.Warn("usage delta would drive quota negative, clamping to zero",
			"workflow_id", workflowID, "resource_id", resourceID,
			"used", row.QuotaUsed, "delta", delta)
		next = 0
	}
	err = t.Model(&types.WorkflowResource{}).
		Where("workflow_id = ? AND resource_id = ?", workflowID, resourceID).
		Updates(map[string]interface{}{"quota_used": next, "updated_at": time.Now()}).Error
	if err != nil {
		return 0, dberr.Map("workflow_resources.add_usage", err)
	}
	return next, nil
}

func (r *workflowResourceRepo) SetUsage(dbc dbctx.Context, workflowID, resourceID uuid.UUID, used int64) error {
	if used < 0 {
		r.log.Warn("negative usage overwrite, clamping to zero",
			"workflow_id", workflowID, "resource_id", resourceID, "used", used)
		used = 0
	}
	now := time.Now()
	row := types.WorkflowResource{
		WorkflowID: workflowID,
		ResourceID: resourceID,
		QuotaUsed:  used,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return dberr.Map("workflow_resources.set_usage", r.handle(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workflow_id"}, {Name: "resource_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"quota_used": used, "updated_at": now}),
		}).
		Create(&row).Error)
}

func (r *workflowResourceRepo) ListByWorkflow(dbc dbctx.Context, workflowID uuid.UUID) ([]*types.WorkflowResource, error) {
	var out []*types.WorkflowResource
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Preload("Resource").
		Where("workflow_id = ?", workflowID).
		Find(&out).Error
	if err != nil {
		return nil, dberr.Map("workflow_resources.list", err)
	}
	return out, nil
}

// SumByOwner totals usage of one resource across all of the owner's
// workflows. Used for CPU, where every run consumes time separately.
func (r *workflowResourceRepo) SumByOwner(dbc dbctx.Context, ownerID, resourceID uuid.UUID) (int64, error) {
	var total int64
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.WorkflowResource{}).
		Joins("JOIN workflow ON workflow.id = workflow_resource.workflow_id").
		Where("workflow.owner_id = ? AND workflow_resource.resource_id = ?", ownerID, resourceID).
		Select("COALESCE(SUM(workflow_resource.quota_used), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, dberr.Map("workflow_resources.sum_by_owner", err)
	}
	return total, nil
}

// DiskUsageByOwner totals disk usage with workspace deduplication:
// restarted runs share a workspace, so per distinct workspace path only
// the largest recorded usage counts once.
func (r *workflowResourceRepo) DiskUsageByOwner(dbc dbctx.Context, ownerID, resourceID uuid.UUID) (int64, error) {
	var total int64
	err := r.handle(dbc).WithContext(dbc.Ctx).Raw(`
		SELECT COALESCE(SUM(max_used), 0) FROM (
			SELECT MAX(workflow_resource.quota_used) AS max_used
			FROM workflow_resource
			JOIN workflow ON workflow.id = workflow_resource.workflow_id
			WHERE workflow.owner_id = ? AND workflow_resource.resource_id = ?
			GROUP BY workflow.workspace_path
		) per_workspace`, ownerID, resourceID).
		Scan(&total).Error
	if err != nil {
		return 0, dberr.Map("workflow_resources.disk_usage_by_owner", err)
	}
	return total, nil
}
