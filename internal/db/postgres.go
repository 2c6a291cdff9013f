package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/config"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

// PostgresService owns the GORM handle. All tables live in the
// configured schema so the layer can share a database with a host
// application.
type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(cfg *config.Config, logg *logger.Logger) (*PostgresService, error) {
	serviceLog := logg.With("service", "PostgresService")

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	// The DSN pins search_path on every pooled connection; a session
	// level SET here would only reach the one connection that ran it.
	if err := db.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q;`, cfg.DBSchema)).Error; err != nil {
		return nil, fmt.Errorf("failed to create schema %s: %w", cfg.DBSchema, err)
	}

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) DB() *gorm.DB { return s.db }

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating tables...")
	return AutoMigrateAll(s.db)
}

// AutoMigrateAll migrates the full model set in dependency order.
func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.User{},
		&types.UserToken{},
		&types.AuditLog{},

		&types.Resource{},
		&types.UserResource{},

		&types.Workflow{},
		&types.WorkflowResource{},
		&types.InteractiveSession{},
		&types.InteractiveSessionResource{},
		&types.WorkflowSession{},

		&types.Job{},
		&types.JobCache{},

		&types.WorkspaceRetentionRule{},
		&types.WorkspaceRetentionAuditLog{},
	)
}
