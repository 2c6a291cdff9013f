package workflows

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

// Ref is a projection of the workflow row carrying only the columns the
// batch accounting jobs need. Specification and log blobs stay on disk.
type Ref struct {
	ID            uuid.UUID       `gorm:"column:id"`
	OwnerID       uuid.UUID       `gorm:"column:owner_id"`
	Status        types.RunStatus `gorm:"column:status"`
	WorkspacePath string          `gorm:"column:workspace_path"`
	RunStartedAt  *time.Time      `gorm:"column:run_started_at"`
	RunFinishedAt *time.Time      `gorm:"column:run_finished_at"`
	RunStoppedAt  *time.Time      `gorm:"column:run_stopped_at"`
}

type WorkflowRepo interface {
	Create(dbc dbctx.Context, wf *types.Workflow) (*types.Workflow, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Workflow, error)
	GetForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.Workflow, error)
	GetLatest(dbc dbctx.Context, ownerID uuid.UUID, name string) (*types.Workflow, error)
	GetLatestNonRestart(dbc dbctx.Context, ownerID uuid.UUID, name string) (*types.Workflow, error)
	GetLatestInMajor(dbc dbctx.Context, ownerID uuid.UUID, name string, major int) (*types.Workflow, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	CountByOwnerStatuses(dbc dbctx.Context, ownerID uuid.UUID, statuses []types.RunStatus) (int64, error)
	ListFamily(dbc dbctx.Context, ownerID uuid.UUID, name string) ([]types.Workflow, error)
	ListFamilyIDs(dbc dbctx.Context, ownerID uuid.UUID, name string) ([]uuid.UUID, error)
	ListIDsInMajor(dbc dbctx.Context, ownerID uuid.UUID, name string, major int) ([]uuid.UUID, error)
	ForEachRef(dbc dbctx.Context, batchSize int, fn func(refs []Ref) error) error
}

type workflowRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWorkflowRepo(db *gorm.DB, baseLog *logger.Logger) WorkflowRepo {
	return &workflowRepo{db: db, log: baseLog.With("repo", "WorkflowRepo")}
}

func (r *workflowRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *workflowRepo) Create(dbc dbctx.Context, wf *types.Workflow) (*types.Workflow, error) {
	if wf.ID == uuid.Nil {
		wf.ID = uuid.New()
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).Create(wf).Error; err != nil {
		return nil, dberr.Map("workflows.create", err)
	}
	return wf, nil
}

func (r *workflowRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Workflow, error) {
	return r.getOne(dbc, r.handle(dbc).WithContext(dbc.Ctx).Where("id = ?", id))
}

// GetForUpdate loads the row under a FOR UPDATE lock so that concurrent
// status transitions on the same workflow serialize.
func (r *workflowRepo) GetForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.Workflow, error) {
	t := gormx.ForUpdate(r.handle(dbc).WithContext(dbc.Ctx))
	return r.getOne(dbc, t.Where("id = ?", id))
}

func (r *workflowRepo) GetLatest(dbc dbctx.Context, ownerID uuid.UUID, name string) (*types.Workflow, error) {
	return r.getOne(dbc, r.handle(dbc).WithContext(dbc.Ctx).
		Where("owner_id = ? AND name = ?", ownerID, name).
		Order("run_number_major DESC, run_number_minor DESC"))
}

// GetLatestNonRestart returns the newest top-level run of the family,
// skipping restarts. Run number allocation majors on this row.
func (r *workflowRepo) GetLatestNonRestart(dbc dbctx.Context, ownerID uuid.UUID, name string) (*types.Workflow, error) {
	return r.getOne(dbc, r.handle(dbc).WithContext(dbc.Ctx).
		Where("owner_id = ? AND name = ? AND restart = ?", ownerID, name, false).
		Order("run_number_major DESC, run_number_minor DESC"))
}

func (r *workflowRepo) GetLatestInMajor(dbc dbctx.Context, ownerID uuid.UUID, name string, major int) (*types.Workflow, error) {
	return r.getOne(dbc, r.handle(dbc).WithContext(dbc.Ctx).
		Where("owner_id = ? AND name = ? AND run_number_major = ?", ownerID, name, major).
		Order("run_number_minor DESC"))
}

func (r *workflowRepo) getOne(dbc dbctx.Context, t *gorm.DB) (*types.Workflow, error) {
	var wf types.Workflow
	if err := t.Limit(1).Find(&wf).Error; err != nil {
		return nil, dberr.Map("workflows.get", err)
	}
	if wf.ID == uuid.Nil {
		return nil, nil
	}
	return &wf, nil
}

func (r *workflowRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dberr.Map("workflows.update", r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.Workflow{}).
		Where("id = ?", id).
		Updates(updates).Error)
}

func (r *workflowRepo) CountByOwnerStatuses(dbc dbctx.Context, ownerID uuid.UUID, statuses []types.RunStatus) (int64, error) {
	var count int64
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.Workflow{}).
		Where("owner_id = ? AND status IN ?", ownerID, statuses).
		Count(&count).Error
	if err != nil {
		return 0, dberr.Map("workflows.count", err)
	}
	return count, nil
}

func (r *workflowRepo) ListFamily(dbc dbctx.Context, ownerID uuid.UUID, name string) ([]types.Workflow, error) {
	var out []types.Workflow
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("owner_id = ? AND name = ?", ownerID, name).
		Order("run_number_major ASC, run_number_minor ASC").
		Find(&out).Error
	if err != nil {
		return nil, dberr.Map("workflows.list_family", err)
	}
	return out, nil
}

func (r *workflowRepo) ListFamilyIDs(dbc dbctx.Context, ownerID uuid.UUID, name string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.Workflow{}).
		Where("owner_id = ? AND name = ?", ownerID, name).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, dberr.Map("workflows.list_family_ids", err)
	}
	return ids, nil
}

// ListIDsInMajor returns all runs sharing one major run number, the
// restart set that physically shares a workspace.
func (r *workflowRepo) ListIDsInMajor(dbc dbctx.Context, ownerID uuid.UUID, name string, major int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.Workflow{}).
		Where("owner_id = ? AND name = ? AND run_number_major = ?", ownerID, name, major).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, dberr.Map("workflows.list_ids_in_major", err)
	}
	return ids, nil
}

// ForEachRef streams workflow projections in batches of batchSize,
// calling fn for each batch. Iteration stops on the first fn error.
func (r *workflowRepo) ForEachRef(dbc dbctx.Context, batchSize int, fn func(refs []Ref) error) error {
	if batchSize <= 0 {
		batchSize = 200
	}
	var batch []Ref
	res := r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.Workflow{}).
		Select("id", "owner_id", "status", "workspace_path", "run_started_at", "run_finished_at", "run_stopped_at").
		Order("id").
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			return fn(batch)
		})
	return dberr.Map("workflows.for_each_ref", res.Error)
}
