package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sciflow/sciflow-db/internal/data/repos"
	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/config"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

type UserService interface {
	Create(ctx context.Context, email, fullName, username string) (*types.User, error)
	Get(ctx context.Context, id uuid.UUID) (*types.User, error)
	GetByEmail(ctx context.Context, email string) (*types.User, error)
}

type userService struct {
	db    *gorm.DB
	log   *logger.Logger
	cfg   *config.Config
	repos repos.Repos
}

func NewUserService(db *gorm.DB, log *logger.Logger, cfg *config.Config, r repos.Repos) UserService {
	return &userService{
		db:    db,
		log:   log.With("service", "UserService"),
		cfg:   cfg,
		repos: r,
	}
}

// Create registers a user and seeds a quota row for every catalog
// resource with the configured default limit and zero usage.
func (us *userService) Create(ctx context.Context, email, fullName, username string) (*types.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, types.NewError(types.CodeValidation, "users.create", "email is required", nil)
	}

	var user *types.User
	err := us.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		exists, err := us.repos.User.EmailExists(dbc, email)
		if err != nil {
			return err
		}
		if exists {
			return types.NewError(types.CodeConflict, "users.create",
				fmt.Sprintf("user with email %q already exists", email), nil)
		}
		created, err := us.repos.User.Create(dbc, []*types.User{{
			ID:       uuid.New(),
			Email:    email,
			FullName: fullName,
			Username: username,
		}})
		if err != nil {
			return err
		}
		user = created[0]
		resources, err := us.repos.Resource.ListAll(dbc)
		if err != nil {
			return err
		}
		for _, resource := range resources {
			limit := us.cfg.DefaultQuotaLimits[resource.Kind]
			if err := us.repos.UserResource.Ensure(dbc, user.ID, resource.ID, limit); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (us *userService) Get(ctx context.Context, id uuid.UUID) (*types.User, error) {
	user, err := us.repos.User.GetByID(dbctx.New(ctx), id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, types.NewError(types.CodeNotFound, "users.get",
			fmt.Sprintf("user %s not found", id), nil)
	}
	return user, nil
}

func (us *userService) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	user, err := us.repos.User.GetByEmail(dbctx.New(ctx), strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, types.NewError(types.CodeNotFound, "users.get",
			fmt.Sprintf("user with email %q not found", email), nil)
	}
	return user, nil
}
