package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sciflow/sciflow-db/internal/data/repos"
	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

type CreateJobInput struct {
	WorkflowID     uuid.UUID
	Name           string
	BackendJobID   string
	ComputeBackend string
	DockerImage    string
	Command        datatypes.JSON
	EnvVars        datatypes.JSON
}

type CacheJobResultInput struct {
	JobID         uuid.UUID
	WorkspaceHash string
	Parameters    string
	ResultPath    string
}

// JobService records workflow compute steps and memoizes their results
// per workspace content hash.
type JobService interface {
	Create(ctx context.Context, input CreateJobInput) (*types.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Job, error)
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]types.Job, error)
	CacheResult(ctx context.Context, input CacheJobResultInput) (*types.JobCache, error)
	CachedResult(ctx context.Context, workspaceHash, parameters string) (*types.JobCache, error)
	PruneCache(ctx context.Context, workflowID uuid.UUID) error
}

type jobService struct {
	db    *gorm.DB
	log   *logger.Logger
	repos repos.Repos
}

func NewJobService(db *gorm.DB, log *logger.Logger, r repos.Repos) JobService {
	return &jobService{db: db, log: log.With("service", "JobService"), repos: r}
}

func (js *jobService) Create(ctx context.Context, input CreateJobInput) (*types.Job, error) {
	if input.WorkflowID == uuid.Nil {
		return nil, types.NewError(types.CodeValidation, "jobs.create", "job workflow is required", nil)
	}
	return js.repos.Job.Create(dbctx.New(ctx), &types.Job{
		ID:             uuid.New(),
		WorkflowUUID:   input.WorkflowID,
		Name:           input.Name,
		Status:         types.JobStatusCreated,
		BackendJobID:   input.BackendJobID,
		ComputeBackend: input.ComputeBackend,
		DockerImage:    input.DockerImage,
		Command:        input.Command,
		EnvVars:        input.EnvVars,
	})
}

func (js *jobService) Get(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	job, err := js.repos.Job.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, types.NewError(types.CodeNotFound, "jobs.get",
			fmt.Sprintf("job %s not found", id), nil)
	}
	return job, nil
}

func (js *jobService) ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]types.Job, error) {
	return js.repos.Job.ListByWorkflow(dbctx.New(ctx), workflowID)
}

// CacheResult stores the result path of a finished job keyed by its
// workspace content hash and serialized parameters.
func (js *jobService) CacheResult(ctx context.Context, input CacheJobResultInput) (*types.JobCache, error) {
	if input.JobID == uuid.Nil {
		return nil, types.NewError(types.CodeValidation, "jobs.cache", "cached job id is required", nil)
	}
	if input.WorkspaceHash == "" {
		return nil, types.NewError(types.CodeValidation, "jobs.cache", "workspace hash is required", nil)
	}
	return js.repos.JobCache.Put(dbctx.New(ctx), &types.JobCache{
		ID:            uuid.New(),
		JobID:         input.JobID,
		WorkspaceHash: input.WorkspaceHash,
		Parameters:    input.Parameters,
		ResultPath:    input.ResultPath,
	})
}

// CachedResult returns the newest cache entry matching the hash and
// parameters, or nil on a miss. Hits record an access timestamp; a
// failure there only loses bookkeeping, so it is logged and ignored.
func (js *jobService) CachedResult(ctx context.Context, workspaceHash, parameters string) (*types.JobCache, error) {
	dbc := dbctx.New(ctx)
	entry, err := js.repos.JobCache.Lookup(dbc, workspaceHash, parameters)
	if err != nil || entry == nil {
		return nil, err
	}
	if err := js.recordAccess(dbc, entry); err != nil {
		js.log.Warn("Failed to record job cache access", "entry_id", entry.ID, "error", err)
	}
	return entry, nil
}

func (js *jobService) recordAccess(dbc dbctx.Context, entry *types.JobCache) error {
	var accesses []string
	if len(entry.AccessTimes) > 0 {
		if err := json.Unmarshal(entry.AccessTimes, &accesses); err != nil {
			return err
		}
	}
	accesses = append(accesses, time.Now().UTC().Format(time.RFC3339))
	raw, err := json.Marshal(accesses)
	if err != nil {
		return err
	}
	return js.repos.JobCache.UpdateFields(dbc, entry.ID, map[string]interface{}{
		"access_times": datatypes.JSON(raw),
	})
}

// PruneCache drops every cache entry belonging to the workflow's jobs,
// typically after the workspace is deleted.
func (js *jobService) PruneCache(ctx context.Context, workflowID uuid.UUID) error {
	return js.repos.JobCache.DeleteByWorkflow(dbctx.New(ctx), workflowID)
}
