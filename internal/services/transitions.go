package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sciflow/sciflow-db/internal/data/repos"
	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/config"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

// TransitionService drives the status machines of workflows, jobs and
// interactive sessions.
//
// The status write is the authoritative fact. Retention activation and
// quota bookkeeping fire after commit and are best effort: failures are
// logged and recovered by the periodic batch passes, never by rolling
// back the transition.
type TransitionService interface {
	TransitionWorkflow(ctx context.Context, id uuid.UUID, next types.RunStatus, newLogs string) (*types.Workflow, error)
	TransitionJob(ctx context.Context, id uuid.UUID, next types.JobStatus) (*types.Job, error)
	TransitionSession(ctx context.Context, id uuid.UUID, next types.RunStatus) (*types.InteractiveSession, error)
}

type transitionService struct {
	db        *gorm.DB
	log       *logger.Logger
	cfg       *config.Config
	repos     repos.Repos
	quota     QuotaService
	retention RetentionService
}

func NewTransitionService(db *gorm.DB, log *logger.Logger, cfg *config.Config, r repos.Repos, quota QuotaService, retention RetentionService) TransitionService {
	return &transitionService{
		db:        db,
		log:       log.With("service", "TransitionService"),
		cfg:       cfg,
		repos:     r,
		quota:     quota,
		retention: retention,
	}
}

// TransitionWorkflow validates and applies one status edge under a row
// lock, then fires the post-commit side effects. running -> running is
// a legal no-op re-notification that still refreshes run_started_at.
func (ts *transitionService) TransitionWorkflow(ctx context.Context, id uuid.UUID, next types.RunStatus, newLogs string) (*types.Workflow, error) {
	var wf *types.Workflow
	err := ts.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		current, err := ts.repos.Workflow.GetForUpdate(dbc, id)
		if err != nil {
			return err
		}
		if current == nil {
			return types.NewError(types.CodeNotFound, "transitions.workflow",
				fmt.Sprintf("workflow %s not found", id), nil)
		}
		if !current.Status.CanTransitionTo(next) {
			return types.NewError(types.CodeValidation, "transitions.workflow",
				fmt.Sprintf("illegal status transition from %q to %q", current.Status, next), nil)
		}

		now := time.Now()
		updates := map[string]interface{}{"status": next, "updated_at": now}
		switch next {
		case types.RunStatusFinished, types.RunStatusFailed:
			updates["run_finished_at"] = now
		case types.RunStatusStopped:
			updates["run_stopped_at"] = now
		case types.RunStatusRunning:
			updates["run_started_at"] = now
		}
		if newLogs != "" {
			updates["logs"] = current.Logs + newLogs
		}
		if err := ts.repos.Workflow.UpdateFields(dbc, id, updates); err != nil {
			return err
		}
		wf, err = ts.repos.Workflow.GetByID(dbc, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	ts.fireWorkflowSideEffects(ctx, wf, next)
	return wf, nil
}

func (ts *transitionService) fireWorkflowSideEffects(ctx context.Context, wf *types.Workflow, next types.RunStatus) {
	if next == types.RunStatusFinished || next == types.RunStatusFailed {
		if err := ts.retention.Activate(ctx, wf.ID); err != nil {
			ts.log.Error("Retention rule activation failed",
				"workflow_id", wf.ID, "status", next, "error", err)
		}
	}

	switch next {
	case types.RunStatusFinished, types.RunStatusFailed, types.RunStatusStopped:
		if ts.cfg.EventDriven(types.ResourceKindCPU) {
			if err := ts.quota.StoreWorkflowCPUQuota(ctx, wf.ID); err != nil {
				ts.log.Error("Workflow CPU quota update failed", "workflow_id", wf.ID, "error", err)
			} else if err := ts.quota.UpdateUserCPUQuota(ctx, wf.OwnerID, nil); err != nil {
				ts.log.Error("User CPU quota update failed", "user_id", wf.OwnerID, "error", err)
			}
		}
		if ts.cfg.EventDriven(types.ResourceKindDisk) {
			ts.updateDiskQuotas(ctx, wf)
		}
	case types.RunStatusDeleted:
		if ts.cfg.EventDriven(types.ResourceKindDisk) {
			ts.updateDiskQuotas(ctx, wf)
		}
	}
}

func (ts *transitionService) updateDiskQuotas(ctx context.Context, wf *types.Workflow) {
	if err := ts.quota.StoreWorkflowDiskQuota(ctx, wf.ID, nil); err != nil {
		ts.log.Error("Workflow disk quota update failed", "workflow_id", wf.ID, "error", err)
		return
	}
	if err := ts.quota.UpdateUserDiskQuota(ctx, wf.OwnerID, nil); err != nil {
		ts.log.Error("User disk quota update failed", "user_id", wf.OwnerID, "error", err)
	}
}

// TransitionJob applies job timestamp side effects only when the new
// status actually differs; same-status writes are no-ops.
func (ts *transitionService) TransitionJob(ctx context.Context, id uuid.UUID, next types.JobStatus) (*types.Job, error) {
	var job *types.Job
	err := ts.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		current, err := ts.repos.Job.GetForUpdate(dbc, id)
		if err != nil {
			return err
		}
		if current == nil {
			return types.NewError(types.CodeNotFound, "transitions.job",
				fmt.Sprintf("job %s not found", id), nil)
		}
		if current.Status == next {
			job = current
			return nil
		}

		now := time.Now()
		updates := map[string]interface{}{"status": next, "updated_at": now}
		switch next {
		case types.JobStatusFinished, types.JobStatusFailed:
			updates["finished_at"] = now
		case types.JobStatusRunning:
			updates["started_at"] = now
		}
		if err := ts.repos.Job.UpdateFields(dbc, id, updates); err != nil {
			return err
		}
		job, err = ts.repos.Job.GetByID(dbc, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// TransitionSession validates a session edge against the shared run
// status machine. Terminal states trigger session disk bookkeeping.
func (ts *transitionService) TransitionSession(ctx context.Context, id uuid.UUID, next types.RunStatus) (*types.InteractiveSession, error) {
	var session *types.InteractiveSession
	err := ts.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		current, err := ts.repos.Session.GetForUpdate(dbc, id)
		if err != nil {
			return err
		}
		if current == nil {
			return types.NewError(types.CodeNotFound, "transitions.session",
				fmt.Sprintf("session %s not found", id), nil)
		}
		if !current.Status.CanTransitionTo(next) {
			return types.NewError(types.CodeValidation, "transitions.session",
				fmt.Sprintf("illegal status transition from %q to %q", current.Status, next), nil)
		}
		if err := ts.repos.Session.UpdateFields(dbc, id, map[string]interface{}{"status": next}); err != nil {
			return err
		}
		session, err = ts.repos.Session.GetByID(dbc, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	if next.IsTerminal() && ts.cfg.EventDriven(types.ResourceKindDisk) && session.Path != "" {
		if err := ts.quota.StoreSessionDiskQuota(ctx, session.ID, session.Path, nil); err != nil {
			ts.log.Error("Session disk quota update failed", "session_id", session.ID, "error", err)
		}
	}
	return session, nil
}
