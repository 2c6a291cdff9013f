package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sciflow/sciflow-db/internal/data/repos"
	"github.com/sciflow/sciflow-db/internal/data/repos/testutil"
	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/config"
	"github.com/sciflow/sciflow-db/internal/platform/crypt"
)

// fakeInspector serves canned workspace sizes keyed by path. Paths not
// present behave like missing workspaces.
type fakeInspector struct {
	sizes map[string]int64
}

func (f *fakeInspector) DiskUsage(path string) (int64, error) {
	return f.sizes[path], nil
}

type harness struct {
	db        *gorm.DB
	cfg       *config.Config
	repos     repos.Repos
	svcs      Services
	inspector *fakeInspector
	user      *types.User
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := testutil.Logger(t)
	handle := testutil.DB(t)

	cfg := &config.Config{
		DefaultQuotaResources: map[types.ResourceKind]string{
			types.ResourceKindCPU:  "processing-cpu",
			types.ResourceKindDisk: "shared-disk",
		},
		DefaultQuotaLimits: map[types.ResourceKind]int64{
			types.ResourceKindCPU:  0,
			types.ResourceKindDisk: 0,
		},
		QuotaUpdatePolicy: map[types.ResourceKind]config.UpdatePolicy{
			types.ResourceKindCPU:  {OnTermination: true, Periodic: true},
			types.ResourceKindDisk: {OnTermination: true, Periodic: true},
		},
		HealthThresholds:       types.DefaultHealthThresholds,
		MaxConcurrentWorkflows: 30,
		QueueMaxPriority:       100,
		WorkspaceRoot:          t.TempDir(),
	}

	r := repos.New(handle, log)
	inspector := &fakeInspector{sizes: map[string]int64{}}
	cipher, err := crypt.New("test-secret")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	svcs := Wire(handle, log, cfg, r, cipher, inspector, nil)

	ctx := context.Background()
	if _, err := svcs.Catalog.InitializeDefaultResources(ctx); err != nil {
		t.Fatalf("seed resources: %v", err)
	}
	user, err := svcs.Users.Create(ctx, "owner@example.org", "Test Owner", "owner")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	return &harness{
		db:        handle,
		cfg:       cfg,
		repos:     r,
		svcs:      svcs,
		inspector: inspector,
		user:      user,
	}
}

func (h *harness) createWorkflow(t *testing.T, name string, restart bool) *types.Workflow {
	t.Helper()
	wf, err := h.svcs.Workflows.Create(context.Background(), CreateWorkflowInput{
		OwnerID: h.user.ID,
		Name:    name,
		Restart: restart,
	})
	if err != nil {
		t.Fatalf("create workflow %q: %v", name, err)
	}
	return wf
}

func (h *harness) transition(t *testing.T, wf *types.Workflow, statuses ...types.RunStatus) *types.Workflow {
	t.Helper()
	var err error
	for _, status := range statuses {
		wf, err = h.svcs.Transitions.TransitionWorkflow(context.Background(), wf.ID, status, "")
		if err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}
	return wf
}

func (h *harness) resourceID(t *testing.T, kind types.ResourceKind) uuid.UUID {
	t.Helper()
	resource, err := h.svcs.Catalog.GetDefaultResource(context.Background(), kind)
	if err != nil {
		t.Fatalf("default resource %s: %v", kind, err)
	}
	return resource.ID
}
