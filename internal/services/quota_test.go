package services

import (
	"context"
	"testing"

	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/config"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
)

func TestDiskAggregateDeduplicatesSharedWorkspaces(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	diskID := h.resourceID(t, types.ResourceKindDisk)
	dbc := dbctx.New(ctx)

	// Two restarts sharing one workspace, one independent run.
	base := h.createWorkflow(t, "shared", false)
	restart := h.createWorkflow(t, "shared", true)
	other := h.createWorkflow(t, "solo", false)

	if base.WorkspacePath != restart.WorkspacePath {
		t.Fatal("restart does not share the workspace")
	}

	if err := h.repos.WorkflowResource.SetUsage(dbc, base.ID, diskID, 1000); err != nil {
		t.Fatalf("set usage: %v", err)
	}
	if err := h.repos.WorkflowResource.SetUsage(dbc, restart.ID, diskID, 1500); err != nil {
		t.Fatalf("set usage: %v", err)
	}
	if err := h.repos.WorkflowResource.SetUsage(dbc, other.ID, diskID, 200); err != nil {
		t.Fatalf("set usage: %v", err)
	}

	if err := h.svcs.Quota.UpdateUserDiskQuota(ctx, h.user.ID, nil); err != nil {
		t.Fatalf("update user disk quota: %v", err)
	}

	row, err := h.repos.UserResource.Get(dbc, h.user.ID, diskID)
	if err != nil || row == nil {
		t.Fatalf("user disk row: %v", err)
	}
	// max(1000, 1500) for the shared workspace + 200 for the solo run.
	if row.QuotaUsed != 1700 {
		t.Fatalf("user disk usage = %d, want 1700", row.QuotaUsed)
	}
}

func TestCPUAggregateSumsAllRuns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cpuID := h.resourceID(t, types.ResourceKindCPU)
	dbc := dbctx.New(ctx)

	base := h.createWorkflow(t, "shared", false)
	restart := h.createWorkflow(t, "shared", true)

	if err := h.repos.WorkflowResource.SetUsage(dbc, base.ID, cpuID, 60000); err != nil {
		t.Fatalf("set usage: %v", err)
	}
	if err := h.repos.WorkflowResource.SetUsage(dbc, restart.ID, cpuID, 30000); err != nil {
		t.Fatalf("set usage: %v", err)
	}

	if err := h.svcs.Quota.UpdateUserCPUQuota(ctx, h.user.ID, nil); err != nil {
		t.Fatalf("update user cpu quota: %v", err)
	}

	row, err := h.repos.UserResource.Get(dbc, h.user.ID, cpuID)
	if err != nil || row == nil {
		t.Fatalf("user cpu row: %v", err)
	}
	if row.QuotaUsed != 90000 {
		t.Fatalf("user cpu usage = %d, want 90000", row.QuotaUsed)
	}
}

func TestNegativeDeltaClampsToZero(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	diskID := h.resourceID(t, types.ResourceKindDisk)
	dbc := dbctx.New(ctx)

	wf := h.createWorkflow(t, "clamp", false)
	if err := h.repos.WorkflowResource.SetUsage(dbc, wf.ID, diskID, 100); err != nil {
		t.Fatalf("set usage: %v", err)
	}

	delta := int64(-500)
	if err := h.svcs.Quota.StoreWorkflowDiskQuota(ctx, wf.ID, &delta); err != nil {
		t.Fatalf("negative delta must not error: %v", err)
	}

	row, err := h.repos.WorkflowResource.Get(dbc, wf.ID, diskID)
	if err != nil || row == nil {
		t.Fatalf("disk row: %v", err)
	}
	if row.QuotaUsed != 0 {
		t.Fatalf("usage = %d, want clamped 0", row.QuotaUsed)
	}
}

func TestCPUOverwriteIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cpuID := h.resourceID(t, types.ResourceKindCPU)

	wf := h.createWorkflow(t, "cpu", false)
	h.transition(t, wf, types.RunStatusQueued, types.RunStatusPending, types.RunStatusRunning, types.RunStatusFinished)

	dbc := dbctx.New(ctx)
	first, err := h.repos.WorkflowResource.Get(dbc, wf.ID, cpuID)
	if err != nil || first == nil {
		t.Fatalf("cpu row: %v", err)
	}

	if err := h.svcs.Quota.StoreWorkflowCPUQuota(ctx, wf.ID); err != nil {
		t.Fatalf("recompute: %v", err)
	}
	second, err := h.repos.WorkflowResource.Get(dbc, wf.ID, cpuID)
	if err != nil || second == nil {
		t.Fatalf("cpu row: %v", err)
	}
	if first.QuotaUsed != second.QuotaUsed {
		t.Fatalf("recompute changed cpu usage: %d -> %d", first.QuotaUsed, second.QuotaUsed)
	}
}

func TestBatchPassesRecomputeEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	diskID := h.resourceID(t, types.ResourceKindDisk)
	dbc := dbctx.New(ctx)

	first := h.createWorkflow(t, "batch-a", false)
	second := h.createWorkflow(t, "batch-b", false)
	h.inspector.sizes[first.WorkspacePath] = 4096
	h.inspector.sizes[second.WorkspacePath] = 1024

	if err := h.svcs.Quota.UpdateWorkflowsDiskQuota(ctx); err != nil {
		t.Fatalf("workflows disk pass: %v", err)
	}
	if err := h.svcs.Quota.UpdateUsersDiskQuota(ctx); err != nil {
		t.Fatalf("users disk pass: %v", err)
	}

	row, err := h.repos.UserResource.Get(dbc, h.user.ID, diskID)
	if err != nil || row == nil {
		t.Fatalf("user disk row: %v", err)
	}
	if row.QuotaUsed != 5120 {
		t.Fatalf("user disk usage = %d, want 5120", row.QuotaUsed)
	}
}

func TestBatchPassSkippedByPolicy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	diskID := h.resourceID(t, types.ResourceKindDisk)
	dbc := dbctx.New(ctx)

	wf := h.createWorkflow(t, "gated", false)
	h.inspector.sizes[wf.WorkspacePath] = 4096
	h.cfg.QuotaUpdatePolicy[types.ResourceKindDisk] = config.UpdatePolicy{OnTermination: true, Periodic: false}

	if err := h.svcs.Quota.UpdateWorkflowsDiskQuota(ctx); err != nil {
		t.Fatalf("gated pass: %v", err)
	}
	row, err := h.repos.WorkflowResource.Get(dbc, wf.ID, diskID)
	if err != nil {
		t.Fatalf("disk row: %v", err)
	}
	if row != nil {
		t.Fatal("disabled periodic pass still wrote quota rows")
	}
}

func TestHasExceededQuota(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	diskID := h.resourceID(t, types.ResourceKindDisk)
	dbc := dbctx.New(ctx)

	exceeded, err := h.svcs.Quota.HasExceededQuota(ctx, h.user.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if exceeded {
		t.Fatal("unlimited user reported exceeded")
	}

	if err := h.repos.UserResource.SetLimit(dbc, h.user.ID, diskID, 1000); err != nil {
		t.Fatalf("set limit: %v", err)
	}
	if err := h.repos.UserResource.SetUsage(dbc, h.user.ID, diskID, 1000); err != nil {
		t.Fatalf("set usage: %v", err)
	}

	exceeded, err = h.svcs.Quota.HasExceededQuota(ctx, h.user.ID)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !exceeded {
		t.Fatal("usage at limit not reported exceeded")
	}
}

func TestWorkflowDiskUsageReadThrough(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wf := h.createWorkflow(t, "readthrough", false)
	h.inspector.sizes[wf.WorkspacePath] = 1024 * 35

	value, err := h.svcs.Quota.WorkflowDiskUsage(ctx, wf.ID)
	if err != nil {
		t.Fatalf("read-through: %v", err)
	}
	if value.Raw != 1024*35 {
		t.Fatalf("raw = %d, want %d", value.Raw, 1024*35)
	}
	if value.HumanReadable != "35 KiB" {
		t.Fatalf("human readable = %q, want \"35 KiB\"", value.HumanReadable)
	}
}
