package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sciflow/sciflow-db/internal/data/dberr"
	"github.com/sciflow/sciflow-db/internal/data/repos"
	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/config"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

// allocateAttempts bounds run-number retries under concurrent restarts
// of the same family.
const allocateAttempts = 3

type CreateWorkflowInput struct {
	OwnerID            uuid.UUID
	Name               string
	Type               string
	Specification      datatypes.JSON
	InputParameters    datatypes.JSON
	OperationalOptions datatypes.JSON
	Complexity         types.ComplexitySteps
	Restart            bool
	RequestedRunNumber string
	GitRef             string
	GitRepo            string
	GitProvider        string
	LauncherURL        string
}

type WorkflowService interface {
	Create(ctx context.Context, input CreateWorkflowInput) (*types.Workflow, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Workflow, error)
	ListFamily(ctx context.Context, ownerID uuid.UUID, name string) ([]types.Workflow, error)
}

type workflowService struct {
	db         *gorm.DB
	log        *logger.Logger
	cfg        *config.Config
	repos      repos.Repos
	runNumbers RunNumberService
}

func NewWorkflowService(db *gorm.DB, log *logger.Logger, cfg *config.Config, r repos.Repos, runNumbers RunNumberService) WorkflowService {
	return &workflowService{
		db:         db,
		log:        log.With("service", "WorkflowService"),
		cfg:        cfg,
		repos:      r,
		runNumbers: runNumbers,
	}
}

// Create allocates a run number and inserts the workflow in one
// transaction. Allocation reads the latest family run and is raced by
// concurrent creates; the unique constraint on (owner, name, major,
// minor) is the backstop and conflicts retry with a fresh read.
func (ws *workflowService) Create(ctx context.Context, input CreateWorkflowInput) (*types.Workflow, error) {
	if input.Name == "" {
		return nil, types.NewError(types.CodeValidation, "workflows.create", "workflow name is required", nil)
	}
	if input.OwnerID == uuid.Nil {
		return nil, types.NewError(types.CodeValidation, "workflows.create", "workflow owner is required", nil)
	}

	var created *types.Workflow
	var lastErr error
	for attempt := 0; attempt < allocateAttempts; attempt++ {
		lastErr = ws.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			dbc := dbctx.WithTx(ctx, tx)

			major, minor, err := ws.runNumbers.Allocate(dbc, input.OwnerID, input.Name, input.Restart, input.RequestedRunNumber)
			if err != nil {
				return err
			}

			wf := &types.Workflow{
				ID:                 uuid.New(),
				Name:               input.Name,
				OwnerID:            input.OwnerID,
				Status:             types.RunStatusCreated,
				Type:               input.Type,
				Specification:      input.Specification,
				InputParameters:    input.InputParameters,
				OperationalOptions: input.OperationalOptions,
				Complexity:         input.Complexity,
				RunNumberMajor:     major,
				RunNumberMinor:     minor,
				Restart:            input.Restart,
				GitRef:             input.GitRef,
				GitRepo:            input.GitRepo,
				GitProvider:        input.GitProvider,
				LauncherURL:        input.LauncherURL,
			}

			// Restarts share the workspace of the run they restart.
			if input.Restart {
				base, err := ws.repos.Workflow.GetLatestInMajor(dbc, input.OwnerID, input.Name, major)
				if err != nil {
					return err
				}
				if base == nil {
					return types.NewError(types.CodeValidation, "workflows.create",
						fmt.Sprintf("cannot restart workflow %q: it was never run", input.Name), nil)
				}
				wf.WorkspacePath = base.WorkspacePath
			} else {
				wf.WorkspacePath = types.BuildWorkflowWorkspacePath(ws.cfg.WorkspaceRoot, input.OwnerID, wf.ID)
			}

			created, err = ws.repos.Workflow.Create(dbc, wf)
			return err
		})
		if lastErr == nil {
			return created, nil
		}
		if !dberr.IsConflict(lastErr) {
			return nil, lastErr
		}
		ws.log.Warn("Run number conflict, retrying allocation",
			"owner_id", input.OwnerID, "name", input.Name, "attempt", attempt+1)
	}
	return nil, lastErr
}

func (ws *workflowService) Get(ctx context.Context, id uuid.UUID) (*types.Workflow, error) {
	wf, err := ws.repos.Workflow.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, types.NewError(types.CodeNotFound, "workflows.get",
			fmt.Sprintf("workflow %s not found", id), nil)
	}
	return wf, nil
}

func (ws *workflowService) ListFamily(ctx context.Context, ownerID uuid.UUID, name string) ([]types.Workflow, error) {
	return ws.repos.Workflow.ListFamily(dbctx.New(ctx), ownerID, name)
}
