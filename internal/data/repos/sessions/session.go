package sessions

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

type SessionRepo interface {
	Create(dbc dbctx.Context, session *types.InteractiveSession) (*types.InteractiveSession, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.InteractiveSession, error)
	GetForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.InteractiveSession, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	ListByOwner(dbc dbctx.Context, ownerID uuid.UUID) ([]types.InteractiveSession, error)
	LinkWorkflow(dbc dbctx.Context, sessionID uuid.UUID, workflowID *uuid.UUID) error
	GetByWorkflow(dbc dbctx.Context, workflowID uuid.UUID) ([]types.InteractiveSession, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "SessionRepo")}
}

func (r *sessionRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *sessionRepo) Create(dbc dbctx.Context, session *types.InteractiveSession) (*types.InteractiveSession, error) {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}
	if err := r.handle(dbc).WithContext(dbc.Ctx).Create(session).Error; err != nil {
		return nil, dberr.Map("sessions.create", err)
	}
	return session, nil
}

func (r *sessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.InteractiveSession, error) {
	return r.getOne(dbc, r.handle(dbc).WithContext(dbc.Ctx).Where("id = ?", id))
}

func (r *sessionRepo) GetForUpdate(dbc dbctx.Context, id uuid.UUID) (*types.InteractiveSession, error) {
	t := gormx.ForUpdate(r.handle(dbc).WithContext(dbc.Ctx))
	return r.getOne(dbc, t.Where("id = ?", id))
}

func (r *sessionRepo) getOne(dbc dbctx.Context, t *gorm.DB) (*types.InteractiveSession, error) {
	var session types.InteractiveSession
	if err := t.Limit(1).Find(&session).Error; err != nil {
		return nil, dberr.Map("sessions.get", err)
	}
	if session.ID == uuid.Nil {
		return nil, nil
	}
	return &session, nil
}

func (r *sessionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return dberr.Map("sessions.update", r.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.InteractiveSession{}).
		Where("id = ?", id).
		Updates(updates).Error)
}

func (r *sessionRepo) ListByOwner(dbc dbctx.Context, ownerID uuid.UUID) ([]types.InteractiveSession, error) {
	var out []types.InteractiveSession
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, dberr.Map("sessions.list", err)
	}
	return out, nil
}

func (r *sessionRepo) LinkWorkflow(dbc dbctx.Context, sessionID uuid.UUID, workflowID *uuid.UUID) error {
	link := types.WorkflowSession{SessionID: sessionID, WorkflowID: workflowID}
	return dberr.Map("sessions.link", r.handle(dbc).WithContext(dbc.Ctx).Create(&link).Error)
}

func (r *sessionRepo) GetByWorkflow(dbc dbctx.Context, workflowID uuid.UUID) ([]types.InteractiveSession, error) {
	var out []types.InteractiveSession
	err := r.handle(dbc).WithContext(dbc.Ctx).
		Joins("JOIN workflow_session ON workflow_session.session_id = interactive_session.id").
		Where("workflow_session.workflow_id = ?", workflowID).
		Find(&out).Error
	if err != nil {
		return nil, dberr.Map("sessions.get_by_workflow", err)
	}
	return out, nil
}
