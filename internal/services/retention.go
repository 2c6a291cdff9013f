package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sciflow/sciflow-db/internal/data/repos"
	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

// RetentionRuleInput is one requested rule: which files to delete and
// how many days after termination.
type RetentionRuleInput struct {
	Pattern       string
	RetentionDays int
}

// RetentionService manages the workspace retention rule lifecycle.
// Every insert and status change appends an audit row; the trail is the
// provenance record for destructive file deletion and cannot be
// disabled.
type RetentionService interface {
	SetRules(ctx context.Context, workflowID uuid.UUID, inputs []RetentionRuleInput) ([]types.WorkspaceRetentionRule, error)
	Activate(ctx context.Context, workflowID uuid.UUID) error
	Inactivate(ctx context.Context, workflowID uuid.UUID) error
	HasPendingRules(ctx context.Context, workflowID uuid.UUID) (bool, error)
	MarkPending(ctx context.Context, ruleID uuid.UUID) error
	MarkApplied(ctx context.Context, ruleID uuid.UUID) error
	ListDue(ctx context.Context, asOf time.Time) ([]types.WorkspaceRetentionRule, error)
}

type retentionService struct {
	db    *gorm.DB
	log   *logger.Logger
	repos repos.Repos
}

func NewRetentionService(db *gorm.DB, log *logger.Logger, r repos.Repos) RetentionService {
	return &retentionService{
		db:    db,
		log:   log.With("service", "RetentionService"),
		repos: r,
	}
}

// SetRules inserts one rule per entry with initial status created. A
// duplicate (workflow, pattern) pair is a conflict and aborts the whole
// batch.
func (rs *retentionService) SetRules(ctx context.Context, workflowID uuid.UUID, inputs []RetentionRuleInput) ([]types.WorkspaceRetentionRule, error) {
	created := make([]types.WorkspaceRetentionRule, 0, len(inputs))
	err := rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		for _, input := range inputs {
			if input.Pattern == "" {
				return types.NewError(types.CodeValidation, "retention.set_rules",
					"retention rule pattern is required", nil)
			}
			if input.RetentionDays < 0 {
				return types.NewError(types.CodeValidation, "retention.set_rules",
					fmt.Sprintf("invalid retention days %d for pattern %q", input.RetentionDays, input.Pattern), nil)
			}
			rule, err := rs.repos.RetentionRule.Create(dbc, &types.WorkspaceRetentionRule{
				WorkflowID:     workflowID,
				WorkspaceFiles: input.Pattern,
				RetentionDays:  input.RetentionDays,
				Status:         types.RetentionRuleStatusCreated,
			})
			if err != nil {
				if types.IsCode(err, types.CodeConflict) {
					return types.NewError(types.CodeConflict, "retention.set_rules",
						fmt.Sprintf("workflow %s already has a retention rule for pattern %q", workflowID, input.Pattern), err)
				}
				return err
			}
			if err := rs.repos.RetentionRule.AppendAudit(dbc, rule.ID, rule.Status); err != nil {
				return err
			}
			created = append(created, *rule)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Activate moves the workflow's created rules to active with an apply
// deadline of end-of-today plus the retention period. Skipped when the
// run-number family already holds active or pending rules: restarts
// share one workspace, so reactivation would double-schedule deletion.
func (rs *retentionService) Activate(ctx context.Context, workflowID uuid.UUID) error {
	return rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		familyIDs, err := rs.familyIDs(dbc, workflowID)
		if err != nil {
			return err
		}
		held, err := rs.repos.RetentionRule.ListByWorkflows(dbc, familyIDs,
			[]types.RetentionRuleStatus{types.RetentionRuleStatusActive, types.RetentionRuleStatusPending})
		if err != nil {
			return err
		}
		if len(held) > 0 {
			rs.log.Info("Workflow family already holds active or pending retention rules, skipping activation",
				"workflow_id", workflowID)
			return nil
		}
		rules, err := rs.repos.RetentionRule.ListByWorkflow(dbc, workflowID,
			[]types.RetentionRuleStatus{types.RetentionRuleStatusCreated})
		if err != nil {
			return err
		}
		for _, rule := range rules {
			applyOn := endOfDay(time.Now()).AddDate(0, 0, rule.RetentionDays)
			if err := rs.transition(dbc, &rule, types.RetentionRuleStatusActive, &applyOn); err != nil {
				return err
			}
		}
		return nil
	})
}

// Inactivate disables every created or active rule across the whole
// run-number family and clears the apply deadlines.
func (rs *retentionService) Inactivate(ctx context.Context, workflowID uuid.UUID) error {
	return rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		familyIDs, err := rs.familyIDs(dbc, workflowID)
		if err != nil {
			return err
		}
		rules, err := rs.repos.RetentionRule.ListByWorkflows(dbc, familyIDs,
			[]types.RetentionRuleStatus{types.RetentionRuleStatusCreated, types.RetentionRuleStatusActive})
		if err != nil {
			return err
		}
		for _, rule := range rules {
			if err := rs.transition(dbc, &rule, types.RetentionRuleStatusInactive, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// HasPendingRules reports whether any rule across the run-number family
// is mid-application; callers must not delete the shared workspace
// while a reaper pass is in flight.
func (rs *retentionService) HasPendingRules(ctx context.Context, workflowID uuid.UUID) (bool, error) {
	dbc := dbctx.New(ctx)
	familyIDs, err := rs.familyIDs(dbc, workflowID)
	if err != nil {
		return false, err
	}
	rules, err := rs.repos.RetentionRule.ListByWorkflows(dbc, familyIDs,
		[]types.RetentionRuleStatus{types.RetentionRuleStatusPending})
	if err != nil {
		return false, err
	}
	return len(rules) > 0, nil
}

// MarkPending claims a due rule for application.
func (rs *retentionService) MarkPending(ctx context.Context, ruleID uuid.UUID) error {
	return rs.transitionByID(ctx, ruleID, types.RetentionRuleStatusPending, true)
}

// MarkApplied records a completed application. applied -> applied is
// legal so a reaper can re-apply idempotently.
func (rs *retentionService) MarkApplied(ctx context.Context, ruleID uuid.UUID) error {
	return rs.transitionByID(ctx, ruleID, types.RetentionRuleStatusApplied, false)
}

func (rs *retentionService) ListDue(ctx context.Context, asOf time.Time) ([]types.WorkspaceRetentionRule, error) {
	return rs.repos.RetentionRule.ListDue(dbctx.New(ctx), asOf)
}

func (rs *retentionService) transitionByID(ctx context.Context, ruleID uuid.UUID, next types.RetentionRuleStatus, keepApplyOn bool) error {
	return rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		rule, err := rs.repos.RetentionRule.GetForUpdate(dbc, ruleID)
		if err != nil {
			return err
		}
		if rule == nil {
			return types.NewError(types.CodeNotFound, "retention.transition",
				fmt.Sprintf("retention rule %s not found", ruleID), nil)
		}
		var applyOn *time.Time
		if keepApplyOn {
			applyOn = rule.ApplyOn
		}
		return rs.transition(dbc, rule, next, applyOn)
	})
}

// transition is the shared validator: every status change goes through
// the edge table and appends its audit row.
func (rs *retentionService) transition(dbc dbctx.Context, rule *types.WorkspaceRetentionRule, next types.RetentionRuleStatus, applyOn *time.Time) error {
	if !rule.Status.CanTransitionTo(next) {
		return types.NewError(types.CodeValidation, "retention.transition",
			fmt.Sprintf("illegal retention rule transition from %q to %q", rule.Status, next), nil)
	}
	if err := rs.repos.RetentionRule.UpdateStatus(dbc, rule.ID, next, applyOn); err != nil {
		return err
	}
	return rs.repos.RetentionRule.AppendAudit(dbc, rule.ID, next)
}

// familyIDs resolves all runs sharing the workflow's major run number.
func (rs *retentionService) familyIDs(dbc dbctx.Context, workflowID uuid.UUID) ([]uuid.UUID, error) {
	wf, err := rs.repos.Workflow.GetByID(dbc, workflowID)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, types.NewError(types.CodeNotFound, "retention.family",
			fmt.Sprintf("workflow %s not found", workflowID), nil)
	}
	return rs.repos.Workflow.ListIDsInMajor(dbc, wf.OwnerID, wf.Name, wf.RunNumberMajor)
}

func endOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 23, 59, 59, 0, t.Location())
}
