package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	redisclient "github.com/sciflow/sciflow-db/internal/clients/redis"
	"github.com/sciflow/sciflow-db/internal/data/repos"
	"github.com/sciflow/sciflow-db/internal/db"
	"github.com/sciflow/sciflow-db/internal/platform/config"
	"github.com/sciflow/sciflow-db/internal/platform/crypt"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
	"github.com/sciflow/sciflow-db/internal/platform/telemetry"
	"github.com/sciflow/sciflow-db/internal/services"
)

// quota-sync is the batch entry point around the persistence layer:
// it seeds the resource catalog and runs the periodic quota
// recomputation passes.
func main() {
	var (
		initResources = flag.Bool("init-resources", false, "seed the default resource catalog")
		usersDisk     = flag.Bool("users-disk", false, "recompute disk quota aggregates for all users")
		usersCPU      = flag.Bool("users-cpu", false, "recompute CPU quota aggregates for all users")
		workflowsDisk = flag.Bool("workflows-disk", false, "re-measure disk usage for all workflow workspaces")
		workflowsCPU  = flag.Bool("workflows-cpu", false, "re-derive CPU usage for all terminated workflows")
	)
	flag.Parse()

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "production"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(log)
	if err != nil {
		log.Fatal("Config load failed", "error", err)
	}

	ctx := context.Background()
	shutdownTracing, err := telemetry.Init(ctx, log, "quota-sync")
	if err != nil {
		log.Warn("Tracing init failed", "error", err)
	} else {
		defer shutdownTracing(ctx)
	}

	postgresService, err := db.NewPostgresService(cfg, log)
	if err != nil {
		log.Fatal("Postgres init failed", "error", err)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Fatal("Postgres auto migration failed", "error", err)
	}
	thePG := postgresService.DB()

	cipher, err := crypt.New(cfg.TokenSecret)
	if err != nil {
		log.Warn("Token cipher unavailable, token operations disabled", "error", err)
	}

	bus, err := redisclient.NewQuotaBus(cfg, log)
	if err != nil {
		log.Warn("Quota bus unavailable, events disabled", "error", err)
	}
	if bus != nil {
		defer bus.Close()
	}

	r := repos.New(thePG, log)
	svcs := services.Wire(thePG, log, cfg, r, cipher, services.FilesystemInspector{}, bus)

	ran := false
	run := func(name string, fn func(context.Context) error) {
		ran = true
		log.Info("Running batch pass", "pass", name)
		if err := fn(ctx); err != nil {
			log.Fatal("Batch pass failed", "pass", name, "error", err)
		}
		log.Info("Batch pass complete", "pass", name)
	}

	if *initResources {
		run("init-resources", func(ctx context.Context) error {
			created, err := svcs.Catalog.InitializeDefaultResources(ctx)
			if err != nil {
				return err
			}
			log.Info("Resource catalog seeded", "created", len(created))
			return nil
		})
	}
	if *usersDisk {
		run("users-disk", svcs.Quota.UpdateUsersDiskQuota)
	}
	if *usersCPU {
		run("users-cpu", svcs.Quota.UpdateUsersCPUQuota)
	}
	if *workflowsDisk {
		run("workflows-disk", svcs.Quota.UpdateWorkflowsDiskQuota)
	}
	if *workflowsCPU {
		run("workflows-cpu", svcs.Quota.UpdateWorkflowsCPUQuota)
	}

	if !ran {
		flag.Usage()
		os.Exit(2)
	}
}
