package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	redisclient "github.com/sciflow/sciflow-db/internal/clients/redis"
	"github.com/sciflow/sciflow-db/internal/data/repos"
	"github.com/sciflow/sciflow-db/internal/data/repos/workflows"
	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/config"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
	"github.com/sciflow/sciflow-db/internal/platform/telemetry"
)

// batchWorkers bounds concurrent per-entity recomputations in the
// periodic batch passes.
const batchWorkers = 4

// QuotaService maintains CPU and disk usage accounting at workflow,
// session and user scope.
//
// A nil delta means full recompute: disk usage is re-measured from the
// workspace, CPU usage is re-derived from the run timestamps. Both are
// idempotent, so the periodic batch passes and the event-driven path
// converge on the same values.
type QuotaService interface {
	StoreWorkflowDiskQuota(ctx context.Context, workflowID uuid.UUID, delta *int64) error
	StoreWorkflowCPUQuota(ctx context.Context, workflowID uuid.UUID) error
	StoreSessionDiskQuota(ctx context.Context, sessionID uuid.UUID, workspacePath string, delta *int64) error

	UpdateUserDiskQuota(ctx context.Context, userID uuid.UUID, delta *int64) error
	UpdateUserCPUQuota(ctx context.Context, userID uuid.UUID, delta *int64) error

	UpdateUsersDiskQuota(ctx context.Context) error
	UpdateUsersCPUQuota(ctx context.Context) error
	UpdateWorkflowsDiskQuota(ctx context.Context) error
	UpdateWorkflowsCPUQuota(ctx context.Context) error

	HasExceededQuota(ctx context.Context, userID uuid.UUID) (bool, error)
	UserQuotaReport(ctx context.Context, userID uuid.UUID) (map[types.ResourceKind]types.QuotaReading, error)
	WorkflowDiskUsage(ctx context.Context, workflowID uuid.UUID) (types.QuotaValue, error)
}

type quotaService struct {
	db        *gorm.DB
	log       *logger.Logger
	cfg       *config.Config
	repos     repos.Repos
	inspector WorkspaceInspector
	bus       redisclient.QuotaBus
}

func NewQuotaService(db *gorm.DB, log *logger.Logger, cfg *config.Config, r repos.Repos, inspector WorkspaceInspector, bus redisclient.QuotaBus) QuotaService {
	if inspector == nil {
		inspector = FilesystemInspector{}
	}
	return &quotaService{
		db:        db,
		log:       log.With("service", "QuotaService"),
		cfg:       cfg,
		repos:     r,
		inspector: inspector,
		bus:       bus,
	}
}

func (qs *quotaService) defaultResource(dbc dbctx.Context, kind types.ResourceKind) (*types.Resource, error) {
	name := qs.cfg.DefaultQuotaResources[kind]
	if name == "" {
		return nil, types.NewError(types.CodeNotFound, "quota.default_resource",
			fmt.Sprintf("no default resource configured for kind %q", kind), nil)
	}
	resource, err := qs.repos.Resource.GetByName(dbc, name)
	if err != nil {
		return nil, err
	}
	if resource == nil {
		return nil, types.NewError(types.CodeNotFound, "quota.default_resource",
			fmt.Sprintf("default resource %q for kind %q is not seeded", name, kind), nil)
	}
	return resource, nil
}

// StoreWorkflowDiskQuota updates the workflow's disk usage row. With a
// delta it adjusts the stored value under a row lock; without one it
// overwrites with a fresh workspace measurement.
func (qs *quotaService) StoreWorkflowDiskQuota(ctx context.Context, workflowID uuid.UUID, delta *int64) error {
	return qs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		resource, err := qs.defaultResource(dbc, types.ResourceKindDisk)
		if err != nil {
			return err
		}
		if delta != nil {
			_, err := qs.repos.WorkflowResource.AddUsage(dbc, workflowID, resource.ID, *delta)
			return err
		}
		wf, err := qs.repos.Workflow.GetByID(dbc, workflowID)
		if err != nil {
			return err
		}
		if wf == nil {
			return types.NewError(types.CodeNotFound, "quota.store_workflow_disk",
				fmt.Sprintf("workflow %s not found", workflowID), nil)
		}
		usage, err := qs.inspector.DiskUsage(wf.WorkspacePath)
		if err != nil {
			return err
		}
		return qs.repos.WorkflowResource.SetUsage(dbc, workflowID, resource.ID, usage)
	})
}

// StoreWorkflowCPUQuota overwrites the workflow's CPU usage with the
// elapsed run time. A run has one authoritative elapsed time, so the
// write is idempotent; missing timestamps leave the row untouched.
func (qs *quotaService) StoreWorkflowCPUQuota(ctx context.Context, workflowID uuid.UUID) error {
	return qs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		wf, err := qs.repos.Workflow.GetByID(dbc, workflowID)
		if err != nil {
			return err
		}
		if wf == nil {
			return types.NewError(types.CodeNotFound, "quota.store_workflow_cpu",
				fmt.Sprintf("workflow %s not found", workflowID), nil)
		}
		elapsed, ok := elapsedMilliseconds(wf.RunStartedAt, wf.RunFinishedAt, wf.RunStoppedAt)
		if !ok {
			qs.log.Debug("Workflow has no complete timestamp pair, skipping CPU quota",
				"workflow_id", workflowID)
			return nil
		}
		resource, err := qs.defaultResource(dbc, types.ResourceKindCPU)
		if err != nil {
			return err
		}
		return qs.repos.WorkflowResource.SetUsage(dbc, workflowID, resource.ID, elapsed)
	})
}

func (qs *quotaService) StoreSessionDiskQuota(ctx context.Context, sessionID uuid.UUID, workspacePath string, delta *int64) error {
	return qs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		resource, err := qs.defaultResource(dbc, types.ResourceKindDisk)
		if err != nil {
			return err
		}
		if delta != nil {
			_, err := qs.repos.SessionResource.AddUsage(dbc, sessionID, resource.ID, *delta)
			return err
		}
		usage, err := qs.inspector.DiskUsage(workspacePath)
		if err != nil {
			return err
		}
		return qs.repos.SessionResource.SetUsage(dbc, sessionID, resource.ID, usage)
	})
}

// UpdateUserDiskQuota recomputes the user's aggregate disk usage.
// Restarts share a workspace, so only the largest recorded usage per
// distinct workspace path counts once.
func (qs *quotaService) UpdateUserDiskQuota(ctx context.Context, userID uuid.UUID, delta *int64) error {
	err := qs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		resource, err := qs.defaultResource(dbc, types.ResourceKindDisk)
		if err != nil {
			return err
		}
		if delta != nil {
			_, err := qs.repos.UserResource.AddUsage(dbc, userID, resource.ID, *delta)
			return err
		}
		total, err := qs.repos.WorkflowResource.DiskUsageByOwner(dbc, userID, resource.ID)
		if err != nil {
			return err
		}
		return qs.repos.UserResource.SetUsage(dbc, userID, resource.ID, total)
	})
	if err != nil {
		return err
	}
	qs.publishHealth(ctx, userID, types.ResourceKindDisk)
	return nil
}

// UpdateUserCPUQuota recomputes the user's aggregate CPU usage as a
// plain sum; each restart burns its own CPU time.
func (qs *quotaService) UpdateUserCPUQuota(ctx context.Context, userID uuid.UUID, delta *int64) error {
	err := qs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		resource, err := qs.defaultResource(dbc, types.ResourceKindCPU)
		if err != nil {
			return err
		}
		if delta != nil {
			_, err := qs.repos.UserResource.AddUsage(dbc, userID, resource.ID, *delta)
			return err
		}
		total, err := qs.repos.WorkflowResource.SumByOwner(dbc, userID, resource.ID)
		if err != nil {
			return err
		}
		return qs.repos.UserResource.SetUsage(dbc, userID, resource.ID, total)
	})
	if err != nil {
		return err
	}
	qs.publishHealth(ctx, userID, types.ResourceKindCPU)
	return nil
}

// UpdateUsersDiskQuota recomputes disk aggregates for every user, one
// commit per user so an interrupted pass leaves no partial state.
func (qs *quotaService) UpdateUsersDiskQuota(ctx context.Context) error {
	if !qs.cfg.Periodic(types.ResourceKindDisk) {
		qs.log.Info("Periodic disk quota updates disabled by policy, skipping")
		return nil
	}
	return qs.forEachUser(ctx, "UpdateUsersDiskQuota", func(ctx context.Context, userID uuid.UUID) error {
		return qs.UpdateUserDiskQuota(ctx, userID, nil)
	})
}

// UpdateUsersCPUQuota recomputes CPU aggregates for every user.
func (qs *quotaService) UpdateUsersCPUQuota(ctx context.Context) error {
	if !qs.cfg.Periodic(types.ResourceKindCPU) {
		qs.log.Info("Periodic CPU quota updates disabled by policy, skipping")
		return nil
	}
	return qs.forEachUser(ctx, "UpdateUsersCPUQuota", func(ctx context.Context, userID uuid.UUID) error {
		return qs.UpdateUserCPUQuota(ctx, userID, nil)
	})
}

func (qs *quotaService) forEachUser(ctx context.Context, op string, fn func(ctx context.Context, userID uuid.UUID) error) error {
	ctx, span := telemetry.Tracer("quota").Start(ctx, op)
	defer span.End()

	ids, err := qs.repos.User.ListIDs(dbctx.New(ctx))
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchWorkers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := fn(gctx, id); err != nil {
				qs.log.Error("Batch quota update failed for user", "user_id", id, "error", err)
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// UpdateWorkflowsDiskQuota re-measures every workflow workspace and
// overwrites the per-workflow disk rows. Streams id-level projections
// so specification and log blobs never load.
func (qs *quotaService) UpdateWorkflowsDiskQuota(ctx context.Context) error {
	if !qs.cfg.Periodic(types.ResourceKindDisk) {
		qs.log.Info("Periodic disk quota updates disabled by policy, skipping")
		return nil
	}
	ctx, span := telemetry.Tracer("quota").Start(ctx, "UpdateWorkflowsDiskQuota")
	defer span.End()

	resource, err := qs.defaultResource(dbctx.New(ctx), types.ResourceKindDisk)
	if err != nil {
		return err
	}
	return qs.repos.Workflow.ForEachRef(dbctx.New(ctx), 200, func(refs []workflows.Ref) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(batchWorkers)
		for _, ref := range refs {
			ref := ref
			if ref.WorkspacePath == "" {
				continue
			}
			g.Go(func() error {
				usage, err := qs.inspector.DiskUsage(ref.WorkspacePath)
				if err != nil {
					qs.log.Error("Disk measurement failed", "workflow_id", ref.ID, "error", err)
					return err
				}
				return qs.repos.WorkflowResource.SetUsage(dbctx.New(gctx), ref.ID, resource.ID, usage)
			})
		}
		return g.Wait()
	})
}

// UpdateWorkflowsCPUQuota re-derives every terminated workflow's CPU
// usage from its run timestamps.
func (qs *quotaService) UpdateWorkflowsCPUQuota(ctx context.Context) error {
	if !qs.cfg.Periodic(types.ResourceKindCPU) {
		qs.log.Info("Periodic CPU quota updates disabled by policy, skipping")
		return nil
	}
	ctx, span := telemetry.Tracer("quota").Start(ctx, "UpdateWorkflowsCPUQuota")
	defer span.End()

	resource, err := qs.defaultResource(dbctx.New(ctx), types.ResourceKindCPU)
	if err != nil {
		return err
	}
	return qs.repos.Workflow.ForEachRef(dbctx.New(ctx), 200, func(refs []workflows.Ref) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(batchWorkers)
		for _, ref := range refs {
			ref := ref
			elapsed, ok := elapsedMilliseconds(ref.RunStartedAt, ref.RunFinishedAt, ref.RunStoppedAt)
			if !ok {
				continue
			}
			g.Go(func() error {
				return qs.repos.WorkflowResource.SetUsage(dbctx.New(gctx), ref.ID, resource.ID, elapsed)
			})
		}
		return g.Wait()
	})
}

// HasExceededQuota reports whether any limited resource of the user is
// at or beyond its limit. Zero limits mean unlimited.
func (qs *quotaService) HasExceededQuota(ctx context.Context, userID uuid.UUID) (bool, error) {
	rows, err := qs.repos.UserResource.ListByUser(dbctx.New(ctx), userID)
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if row.QuotaLimit > 0 && row.QuotaUsed >= row.QuotaLimit {
			return true, nil
		}
	}
	return false, nil
}

// UserQuotaReport aggregates the user's quota rows per resource kind,
// with human-readable values and health derivation.
func (qs *quotaService) UserQuotaReport(ctx context.Context, userID uuid.UUID) (map[types.ResourceKind]types.QuotaReading, error) {
	rows, err := qs.repos.UserResource.ListByUser(dbctx.New(ctx), userID)
	if err != nil {
		return nil, err
	}
	return types.UsageByKind(types.UserQuotaRows(rows), qs.cfg.HealthThresholds)
}

// WorkflowDiskUsage answers from the stored quota row, recomputing it
// from the workspace when absent.
func (qs *quotaService) WorkflowDiskUsage(ctx context.Context, workflowID uuid.UUID) (types.QuotaValue, error) {
	dbc := dbctx.New(ctx)
	resource, err := qs.defaultResource(dbc, types.ResourceKindDisk)
	if err != nil {
		return types.QuotaValue{}, err
	}
	row, err := qs.repos.WorkflowResource.Get(dbc, workflowID, resource.ID)
	if err != nil {
		return types.QuotaValue{}, err
	}
	if row == nil {
		if err := qs.StoreWorkflowDiskQuota(ctx, workflowID, nil); err != nil {
			return types.QuotaValue{}, err
		}
		if row, err = qs.repos.WorkflowResource.Get(dbc, workflowID, resource.ID); err != nil {
			return types.QuotaValue{}, err
		}
	}
	var raw int64
	if row != nil {
		raw = row.QuotaUsed
	}
	return types.QuotaValue{
		Raw:           raw,
		HumanReadable: types.HumanReadable(resource.Unit, raw),
	}, nil
}

// publishHealth announces the user's recomputed standing on the quota
// bus. Best effort; accounting never fails on a bus error.
func (qs *quotaService) publishHealth(ctx context.Context, userID uuid.UUID, kind types.ResourceKind) {
	if qs.bus == nil {
		return
	}
	report, err := qs.UserQuotaReport(ctx, userID)
	if err != nil {
		qs.log.Warn("Could not build quota report for event", "user_id", userID, "error", err)
		return
	}
	reading, ok := report[kind]
	if !ok {
		return
	}
	event := redisclient.QuotaEvent{
		UserID: userID.String(),
		Kind:   kind,
		Usage:  reading.Usage.Raw,
		Health: reading.Health,
	}
	if err := qs.bus.Publish(ctx, event); err != nil {
		qs.log.Warn("Quota event publish failed", "user_id", userID, "kind", kind, "error", err)
	}
}

// elapsedMilliseconds derives a run's authoritative elapsed time from
// its start and end timestamps. finished wins over stopped when both
// are set.
func elapsedMilliseconds(started, finished, stopped *time.Time) (int64, bool) {
	if started == nil {
		return 0, false
	}
	end := finished
	if end == nil {
		end = stopped
	}
	if end == nil {
		return 0, false
	}
	elapsed := end.Sub(*started).Milliseconds()
	if elapsed < 0 {
		return 0, false
	}
	return elapsed, true
}
