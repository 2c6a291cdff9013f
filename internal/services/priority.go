package services

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/sciflow/sciflow-db/internal/data/repos"
	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/config"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

// overloadFloor is the minimum overload factor; a saturated user is
// deprioritized but never fully starved.
const overloadFloor = 0.1

// PriorityService derives scheduling priorities from owner concurrency
// load and workflow complexity relative to cluster capacity. Queried on
// demand by an external scheduler.
type PriorityService interface {
	WorkflowOverloadFactor(ctx context.Context, ownerID uuid.UUID) (float64, error)
	ComplexityPriority(workflow *types.Workflow, totalClusterMemory int64) int
	FinalPriority(ctx context.Context, workflowID uuid.UUID, totalClusterMemory int64) (int, error)
}

type priorityService struct {
	log   *logger.Logger
	cfg   *config.Config
	repos repos.Repos
}

func NewPriorityService(log *logger.Logger, cfg *config.Config, r repos.Repos) PriorityService {
	return &priorityService{
		log:   log.With("service", "PriorityService"),
		cfg:   cfg,
		repos: r,
	}
}

// WorkflowOverloadFactor decays linearly with the owner's count of
// pending and running workflows. The 0.9 scale keeps the boundary case
// R = M-1 from rounding down to the saturation floor.
func (ps *priorityService) WorkflowOverloadFactor(ctx context.Context, ownerID uuid.UUID) (float64, error) {
	running, err := ps.repos.Workflow.CountByOwnerStatuses(dbctx.New(ctx), ownerID,
		[]types.RunStatus{types.RunStatusPending, types.RunStatusRunning})
	if err != nil {
		return 0, err
	}
	max := int64(ps.cfg.MaxConcurrentWorkflows)
	if max <= 0 || running >= max {
		return overloadFloor, nil
	}
	factor := 1 - float64(running)*0.9/float64(max)
	return math.Round(factor*100) / 100, nil
}

// ComplexityPriority maps required memory against cluster capacity onto
// the configured priority ceiling. Unknown capacity or an unschedulable
// workflow gets the lowest priority.
func (ps *priorityService) ComplexityPriority(workflow *types.Workflow, totalClusterMemory int64) int {
	if len(workflow.Complexity) == 0 {
		return 0
	}
	required := workflow.Complexity.RequiredMemory()
	if totalClusterMemory <= 0 || required > totalClusterMemory {
		return 0
	}
	share := math.Round((1-float64(required)/float64(totalClusterMemory))*100) / 100
	return int(math.Round(share * float64(ps.cfg.QueueMaxPriority)))
}

// FinalPriority is the scheduler-facing product of both factors.
func (ps *priorityService) FinalPriority(ctx context.Context, workflowID uuid.UUID, totalClusterMemory int64) (int, error) {
	wf, err := ps.repos.Workflow.GetByID(dbctx.New(ctx), workflowID)
	if err != nil {
		return 0, err
	}
	if wf == nil {
		return 0, types.NewError(types.CodeNotFound, "priority.final",
			fmt.Sprintf("workflow %s not found", workflowID), nil)
	}
	overload, err := ps.WorkflowOverloadFactor(ctx, wf.OwnerID)
	if err != nil {
		return 0, err
	}
	complexity := ps.ComplexityPriority(wf, totalClusterMemory)
	return int(math.Round(overload * float64(complexity))), nil
}
