package services

import (
	"gorm.io/gorm"

	redisclient "github.com/sciflow/sciflow-db/internal/clients/redis"
	"github.com/sciflow/sciflow-db/internal/data/repos"
	"github.com/sciflow/sciflow-db/internal/platform/config"
	"github.com/sciflow/sciflow-db/internal/platform/crypt"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

// Services bundles the full service layer over one database handle.
type Services struct {
	Users       UserService
	Tokens      TokenService
	Catalog     CatalogService
	RunNumbers  RunNumberService
	Workflows   WorkflowService
	Jobs        JobService
	Sessions    SessionService
	Transitions TransitionService
	Quota       QuotaService
	Retention   RetentionService
	Priority    PriorityService
}

// Wire builds every service. inspector and bus may be nil: the
// filesystem inspector is the default and the quota bus is optional.
func Wire(db *gorm.DB, log *logger.Logger, cfg *config.Config, r repos.Repos, cipher crypt.Cipher, inspector WorkspaceInspector, bus redisclient.QuotaBus) Services {
	log.Info("Wiring services...")
	runNumbers := NewRunNumberService(log, r.Workflow)
	quota := NewQuotaService(db, log, cfg, r, inspector, bus)
	retention := NewRetentionService(db, log, r)
	transitions := NewTransitionService(db, log, cfg, r, quota, retention)
	return Services{
		Users:       NewUserService(db, log, cfg, r),
		Tokens:      NewTokenService(db, log, r, cipher),
		Catalog:     NewCatalogService(db, log, cfg, r),
		RunNumbers:  runNumbers,
		Workflows:   NewWorkflowService(db, log, cfg, r, runNumbers),
		Jobs:        NewJobService(db, log, r),
		Sessions:    NewSessionService(db, log, cfg, r, transitions),
		Transitions: transitions,
		Quota:       quota,
		Retention:   retention,
		Priority:    NewPriorityService(log, cfg, r),
	}
}
