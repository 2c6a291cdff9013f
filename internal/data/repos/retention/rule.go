package retention

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

type RuleRepo interface {
	Create(dbc dbctx.Context, rule *types.WorkspaceRetentionRule) (*types.WorkspaceRetentionRule, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.WorkspaceRetentionRule, error)
	GetForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.WorkspaceRetentionRule, error)
	ListByWorkflow(dbc dbctx.Context, workflowID uuid.UUID, statuses []types.RetentionRuleStatus) ([]types.WorkspaceRetentionRule, error)
	ListByWorkflows(dbc dbctx.Context, workflowIDs []uuid.UUID, statuses []types.RetentionRuleStatus) ([]types.WorkspaceRetentionRule, error)
	ListDue(dbc dbctx.Context, asOf time.Time) ([]types.WorkspaceRetentionRule, error)
	UpdateStatus(dbc dbctx.Context, id uuid.UUID, status types.RetentionRuleStatus, applyOn *time.Time) error
	AppendAudit(dbc dbctx.Context, ruleID uuid.UUID, action types.RetentionRuleStatus) error
	ListAudit(dbc dbctx.Context, ruleID uuid.UUID) ([]types.WorkspaceRetentionAuditLog, error)
}

type ruleRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRuleRepo(db *gorm.DB, baseLog *logger.Logger) RuleRepo {
	return &ruleRepo{db: db, log: baseLog.With("repo", "RetentionRuleRepo")}
}

func (r *ruleRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *ruleRepo) Create(dbc dbctx.Context, rule *types.WorkspaceRetentionRule) (*types.WorkspaceRetentionRule, error) {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).Create(rule).Error; err != nil {
		return nil, dberr.Map("retention_rules.create", err)
	}
	return rule, nil
}

func (r *ruleRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.WorkspaceRetentionRule, error) {
	return r.getOne(dbc, r.handle(dbc).WithContext(dbc.Ctx).Where("id = ?", id))
}

func (r *ruleRepo) GetForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.WorkspaceRetentionRule, error) {
	t := gormx.ForUpdate(r.handle(dbc).WithContext(dbc.Ctx))
	return r.getOne(dbc, t.Where("id = ?", id))
}

func (r *ruleRepo) getOne(dbc dbctx.Context, t *gorm.DB) (*types.WorkspaceRetentionRule, error) {
	var rule types.WorkspaceRetentionRule
	if err := t.Limit(1).Find(&rule).Error; err != nil {
		return nil, dberr.Map("retention_rules.get", err)
	}
	if rule.ID == uuid.Nil {
		return nil, nil
	}
	return &rule, nil
}

func (r *ruleRepo) ListByWorkflow(dbc dbctx.Context, workflowID uuid.UUID, statuses []types.RetentionRuleStatus) ([]types.WorkspaceRetentionRule, error) {
	return r.ListByWorkflows(dbc, []uuid.UUID{workflowID}, statuses)
}

func (r *ruleRepo) ListByWorkflows(dbc dbctx.Context, workflowIDs []uuid.UUID, statuses []types.RetentionRuleStatus) ([]types.WorkspaceRetentionRule, error) {
	if len(workflowIDs) == 0 {
		return nil, nil
	}
	t := r.handle(dbc).WithContext(dbc.Ctx).
		Where("workflow_id IN ?", workflowIDs)
	if len(statuses) > 0 {
		t = t.Where("status IN ?", statuses)
	}
	var out []types.WorkspaceRetentionRule
	if err := t.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, dberr.Map("retention_rules.list", err)
	}
	return out, nil
}

// ListDue returns active rules whose apply date has passed, the work
// queue of the retention reaper.
func (r *ruleRepo) ListDue(dbc dbctx.Context, asOf time.Time) ([]types.WorkspaceRetentionRule, error) {
	var out []types.WorkspaceRetentionRule
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("status = ? AND apply_on IS NOT NULL AND apply_on <= ?", types.RetentionRuleStatusActive, asOf).
		Order("apply_on ASC").
		Find(&out).Error
	if err != nil {
		return nil, dberr.Map("retention_rules.list_due", err)
	}
	return out, nil
}

// UpdateStatus writes the status and the apply deadline together. A
// nil applyOn clears the deadline; inactive and applied rules carry
// none.
func (r *ruleRepo) UpdateStatus(dbc dbctx.Context, id uuid.UUID, status types.RetentionRuleStatus, applyOn *time.Time) error {
	updates := map[string]interface{}{
		"status":     status,
		"apply_on":   applyOn,
		"updated_at": time.Now(),
	}
	return dberr.Map("retention_rules.update_status", r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.WorkspaceRetentionRule{}).
		Where("id = ?", id).
		Updates(updates).Error)
}

func (r *ruleRepo) AppendAudit(dbc dbctx.Context, ruleID uuid.UUID, action types.RetentionRuleStatus) error {
	entry := types.WorkspaceRetentionAuditLog{
		RuleID:    ruleID,
		Timestamp: time.Now(),
		Action:    action,
	}
	return dberr.Map("retention_audit.append", r.handle(dbc).WithContext(dbc.Ctx).Create(&entry).Error)
}

func (r *ruleRepo) ListAudit(dbc dbctx.Context, ruleID uuid.UUID) ([]types.WorkspaceRetentionAuditLog, error) {
	var out []types.WorkspaceRetentionAuditLog
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("rule_id = ?", ruleID).
		Order("timestamp ASC").
		Find(&out).Error
	if err != nil {
		return nil, dberr.Map("retention_audit.list", err)
	}
	return out, nil
}
