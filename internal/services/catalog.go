package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/sciflow/sciflow-db/internal/data/repos"
	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/config"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

// CatalogService seeds and resolves the resource catalog. Every
// deployment carries one default resource per kind, named in
// configuration.
type CatalogService interface {
	InitializeDefaultResources(ctx context.Context) ([]types.Resource, error)
	GetDefaultResource(ctx context.Context, kind types.ResourceKind) (*types.Resource, error)
	ListResources(ctx context.Context) ([]types.Resource, error)
}

type catalogService struct {
	db           *gorm.DB
	log          *logger.Logger
	cfg          *config.Config
	resourceRepo repos.Repos
}

func NewCatalogService(db *gorm.DB, log *logger.Logger, cfg *config.Config, r repos.Repos) CatalogService {
	return &catalogService{
		db:           db,
		log:          log.With("service", "CatalogService"),
		cfg:          cfg,
		resourceRepo: r,
	}
}

// InitializeDefaultResources creates any configured default resource
// missing from the catalog and returns only the rows it created. Safe
// to call on every startup.
func (cs *catalogService) InitializeDefaultResources(ctx context.Context) ([]types.Resource, error) {
	created := []types.Resource{}
	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		for _, kind := range types.ResourceKinds {
			name, ok := cs.cfg.DefaultQuotaResources[kind]
			if !ok || name == "" {
				continue
			}
			existing, err := cs.resourceRepo.Resource.GetByName(dbc, name)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			resource, err := cs.resourceRepo.Resource.Upsert(dbc, &types.Resource{
				Name:  name,
				Kind:  kind,
				Unit:  types.CanonicalUnit(kind),
				Title: fmt.Sprintf("Default %s resource", kind),
			})
			if err != nil {
				return err
			}
			cs.log.Info("Seeded default resource", "name", name, "kind", kind)
			created = append(created, *resource)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetDefaultResource resolves the configured default resource of a
// kind. A miss is a deployment configuration error, not retried.
func (cs *catalogService) GetDefaultResource(ctx context.Context, kind types.ResourceKind) (*types.Resource, error) {
	name, ok := cs.cfg.DefaultQuotaResources[kind]
	if !ok || name == "" {
		return nil, types.NewError(types.CodeNotFound, "catalog.get_default",
			fmt.Sprintf("no default resource configured for kind %q", kind), nil)
	}
	resource, err := cs.resourceRepo.Resource.GetByName(dbctx.New(ctx), name)
	if err != nil {
		return nil, err
	}
	if resource == nil {
		return nil, types.NewError(types.CodeNotFound, "catalog.get_default",
			fmt.Sprintf("default resource %q for kind %q is not seeded", name, kind), nil)
	}
	return resource, nil
}

func (cs *catalogService) ListResources(ctx context.Context) ([]types.Resource, error) {
	return cs.resourceRepo.Resource.ListAll(dbctx.New(ctx))
}
