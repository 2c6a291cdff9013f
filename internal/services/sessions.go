package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sciflow/sciflow-db/internal/data/repos"
	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/config"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

type OpenSessionInput struct {
	OwnerID    uuid.UUID
	Name       string
	Path       string
	Type       types.InteractiveSessionType
	WorkflowID *uuid.UUID
}

// SessionService opens and closes interactive sessions. A session may
// belong to at most one workflow, recorded through the link table; it
// can also exist on its own.
type SessionService interface {
	Open(ctx context.Context, input OpenSessionInput) (*types.InteractiveSession, error)
	Close(ctx context.Context, id uuid.UUID) (*types.InteractiveSession, error)
	Get(ctx context.Context, id uuid.UUID) (*types.InteractiveSession, error)
}

type sessionService struct {
	db          *gorm.DB
	log         *logger.Logger
	cfg         *config.Config
	repos       repos.Repos
	transitions TransitionService
}

func NewSessionService(db *gorm.DB, log *logger.Logger, cfg *config.Config, r repos.Repos, transitions TransitionService) SessionService {
	return &sessionService{
		db:          db,
		log:         log.With("service", "SessionService"),
		cfg:         cfg,
		repos:       r,
		transitions: transitions,
	}
}

// Open creates the session in created status and links it to the
// owning workflow when one is given.
func (ss *sessionService) Open(ctx context.Context, input OpenSessionInput) (*types.InteractiveSession, error) {
	if input.OwnerID == uuid.Nil {
		return nil, types.NewError(types.CodeValidation, "sessions.open", "session owner is required", nil)
	}
	if input.Name == "" {
		return nil, types.NewError(types.CodeValidation, "sessions.open", "session name is required", nil)
	}
	sessionType := input.Type
	if sessionType == "" {
		sessionType = types.InteractiveSessionTypeJupyter
	}

	var session *types.InteractiveSession
	err := ss.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		var err error
		session, err = ss.repos.Session.Create(dbc, &types.InteractiveSession{
			ID:      uuid.New(),
			Name:    input.Name,
			Path:    input.Path,
			Status:  types.RunStatusCreated,
			OwnerID: input.OwnerID,
			Type:    sessionType,
		})
		if err != nil {
			return err
		}
		if err := ss.repos.Session.LinkWorkflow(dbc, session.ID, input.WorkflowID); err != nil {
			return err
		}
		return ss.seedDiskResource(dbc, session.ID)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// seedDiskResource opens the session's disk quota row at zero so
// usage reads never miss. A catalog without a default disk resource is
// a deployment without session accounting, not an error.
func (ss *sessionService) seedDiskResource(dbc dbctx.Context, sessionID uuid.UUID) error {
	name, ok := ss.cfg.DefaultQuotaResources[types.ResourceKindDisk]
	if !ok {
		return nil
	}
	resource, err := ss.repos.Resource.GetByName(dbc, name)
	if err != nil {
		return err
	}
	if resource == nil {
		ss.log.Debug("Default disk resource not seeded, skipping session quota row", "resource", name)
		return nil
	}
	return ss.repos.SessionResource.SetUsage(dbc, sessionID, resource.ID, 0)
}

// Close stops the session through the status machine, which also runs
// the session disk bookkeeping.
func (ss *sessionService) Close(ctx context.Context, id uuid.UUID) (*types.InteractiveSession, error) {
	return ss.transitions.TransitionSession(ctx, id, types.RunStatusStopped)
}

func (ss *sessionService) Get(ctx context.Context, id uuid.UUID) (*types.InteractiveSession, error) {
	session, err := ss.repos.Session.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, types.NewError(types.CodeNotFound, "sessions.get",
			fmt.Sprintf("session %s not found", id), nil)
	}
	return session, nil
}
