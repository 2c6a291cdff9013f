package services

import (
	"context"
	"strings"
	"testing"
	"time"

	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
)

func TestWorkflowLifecycleSetsTimestamps(t *testing.T) {
	h := newHarness(t)
	wf := h.createWorkflow(t, "analysis", false)

	wf = h.transition(t, wf, types.RunStatusQueued, types.RunStatusPending, types.RunStatusRunning)
	if wf.RunStartedAt == nil {
		t.Fatal("run_started_at not set on running")
	}
	if wf.RunFinishedAt != nil {
		t.Fatal("run_finished_at set before termination")
	}

	wf = h.transition(t, wf, types.RunStatusFinished)
	if wf.RunFinishedAt == nil {
		t.Fatal("run_finished_at not set on finished")
	}
	if wf.Status != types.RunStatusFinished {
		t.Fatalf("status = %s, want finished", wf.Status)
	}
}

func TestStoppedSetsStopTimestamp(t *testing.T) {
	h := newHarness(t)
	wf := h.createWorkflow(t, "analysis", false)
	wf = h.transition(t, wf, types.RunStatusQueued, types.RunStatusPending, types.RunStatusRunning, types.RunStatusStopped)
	if wf.RunStoppedAt == nil {
		t.Fatal("run_stopped_at not set on stopped")
	}
	if wf.RunFinishedAt != nil {
		t.Fatal("run_finished_at set on stop")
	}
}

func TestIllegalTransitionRejected(t *testing.T) {
	h := newHarness(t)
	wf := h.createWorkflow(t, "analysis", false)

	_, err := h.svcs.Transitions.TransitionWorkflow(context.Background(), wf.ID, types.RunStatusFinished, "")
	if !types.IsCode(err, types.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "created") || !strings.Contains(err.Error(), "finished") {
		t.Fatalf("error does not name both statuses: %v", err)
	}

	// The rejected write must not have been committed.
	current, err := h.svcs.Workflows.Get(context.Background(), wf.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if current.Status != types.RunStatusCreated {
		t.Fatalf("status changed to %s despite rejection", current.Status)
	}
}

func TestRunningToRunningRefreshesStart(t *testing.T) {
	h := newHarness(t)
	wf := h.createWorkflow(t, "analysis", false)
	wf = h.transition(t, wf, types.RunStatusQueued, types.RunStatusPending, types.RunStatusRunning)
	first := *wf.RunStartedAt

	time.Sleep(10 * time.Millisecond)
	wf = h.transition(t, wf, types.RunStatusRunning)
	if !wf.RunStartedAt.After(first) {
		t.Fatal("running -> running did not refresh run_started_at")
	}
}

func TestTransitionAppendsLogs(t *testing.T) {
	h := newHarness(t)
	wf := h.createWorkflow(t, "analysis", false)
	wf, err := h.svcs.Transitions.TransitionWorkflow(context.Background(), wf.ID, types.RunStatusQueued, "submitted\n")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	wf, err = h.svcs.Transitions.TransitionWorkflow(context.Background(), wf.ID, types.RunStatusPending, "scheduled\n")
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if wf.Logs != "submitted\nscheduled\n" {
		t.Fatalf("logs = %q, want appended sequence", wf.Logs)
	}
}

func TestTerminalTransitionTriggersQuotaBookkeeping(t *testing.T) {
	h := newHarness(t)
	wf := h.createWorkflow(t, "analysis", false)
	h.inspector.sizes[wf.WorkspacePath] = 2048

	h.transition(t, wf, types.RunStatusQueued, types.RunStatusPending, types.RunStatusRunning, types.RunStatusFinished)

	diskID := h.resourceID(t, types.ResourceKindDisk)
	cpuID := h.resourceID(t, types.ResourceKindCPU)
	dbc := dbctx.New(context.Background())

	diskRow, err := h.repos.WorkflowResource.Get(dbc, wf.ID, diskID)
	if err != nil || diskRow == nil {
		t.Fatalf("disk row missing after termination: %v", err)
	}
	if diskRow.QuotaUsed != 2048 {
		t.Fatalf("disk usage = %d, want 2048", diskRow.QuotaUsed)
	}

	cpuRow, err := h.repos.WorkflowResource.Get(dbc, wf.ID, cpuID)
	if err != nil || cpuRow == nil {
		t.Fatalf("cpu row missing after termination: %v", err)
	}
	if cpuRow.QuotaUsed < 0 {
		t.Fatalf("cpu usage negative: %d", cpuRow.QuotaUsed)
	}

	userRow, err := h.repos.UserResource.Get(dbc, h.user.ID, diskID)
	if err != nil || userRow == nil {
		t.Fatalf("user disk row missing: %v", err)
	}
	if userRow.QuotaUsed != 2048 {
		t.Fatalf("user disk usage = %d, want 2048", userRow.QuotaUsed)
	}
}

func TestDeletedTriggersDiskOnly(t *testing.T) {
	h := newHarness(t)
	wf := h.createWorkflow(t, "analysis", false)
	h.inspector.sizes[wf.WorkspacePath] = 512

	h.transition(t, wf, types.RunStatusQueued, types.RunStatusPending, types.RunStatusRunning,
		types.RunStatusFinished)

	// Workspace reaped before deletion.
	h.inspector.sizes[wf.WorkspacePath] = 0
	h.transition(t, wf, types.RunStatusDeleted)

	diskID := h.resourceID(t, types.ResourceKindDisk)
	row, err := h.repos.WorkflowResource.Get(dbctx.New(context.Background()), wf.ID, diskID)
	if err != nil || row == nil {
		t.Fatalf("disk row missing: %v", err)
	}
	if row.QuotaUsed != 0 {
		t.Fatalf("disk usage after delete = %d, want 0", row.QuotaUsed)
	}
}

func TestJobTransitionDiffersOnly(t *testing.T) {
	h := newHarness(t)
	wf := h.createWorkflow(t, "analysis", false)
	job, err := h.repos.Job.Create(dbctx.New(context.Background()), &types.Job{
		WorkflowUUID: wf.ID,
		Status:       types.JobStatusCreated,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	job, err = h.svcs.Transitions.TransitionJob(context.Background(), job.ID, types.JobStatusRunning)
	if err != nil {
		t.Fatalf("job to running: %v", err)
	}
	if job.StartedAt == nil {
		t.Fatal("started_at not set")
	}
	first := *job.StartedAt

	// Same-status write is a no-op for jobs.
	time.Sleep(10 * time.Millisecond)
	job, err = h.svcs.Transitions.TransitionJob(context.Background(), job.ID, types.JobStatusRunning)
	if err != nil {
		t.Fatalf("job same-status: %v", err)
	}
	if !job.StartedAt.Equal(first) {
		t.Fatal("same-status job write refreshed started_at")
	}

	job, err = h.svcs.Transitions.TransitionJob(context.Background(), job.ID, types.JobStatusFinished)
	if err != nil {
		t.Fatalf("job to finished: %v", err)
	}
	if job.FinishedAt == nil {
		t.Fatal("finished_at not set")
	}
}

func TestSessionTransitionValidated(t *testing.T) {
	h := newHarness(t)
	session, err := h.svcs.Sessions.Open(context.Background(), OpenSessionInput{
		OwnerID: h.user.ID,
		Name:    "notebook",
		Path:    "/sessions/notebook",
	})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}

	_, err = h.svcs.Transitions.TransitionSession(context.Background(), session.ID, types.RunStatusFinished)
	if !types.IsCode(err, types.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	for _, status := range []types.RunStatus{types.RunStatusQueued, types.RunStatusPending, types.RunStatusRunning} {
		if session, err = h.svcs.Transitions.TransitionSession(context.Background(), session.ID, status); err != nil {
			t.Fatalf("session to %s: %v", status, err)
		}
	}
	session, err = h.svcs.Sessions.Close(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("close session: %v", err)
	}
	if session.Status != types.RunStatusStopped {
		t.Fatalf("session status = %s, want stopped", session.Status)
	}
}
