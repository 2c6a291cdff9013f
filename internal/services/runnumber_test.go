package services

import (
	"context"
	"strings"
	"testing"

	types "github.com/sciflow/sciflow-db/internal/domain"
)

func TestFirstRunIsOneZero(t *testing.T) {
	h := newHarness(t)
	wf := h.createWorkflow(t, "reconstruction", false)
	if wf.RunNumberMajor != 1 || wf.RunNumberMinor != 0 {
		t.Fatalf("first run = (%d, %d), want (1, 0)", wf.RunNumberMajor, wf.RunNumberMinor)
	}
	if wf.RunNumber() != "1" {
		t.Fatalf("run number string = %q, want \"1\"", wf.RunNumber())
	}
}

func TestMajorsIncreaseAcrossRuns(t *testing.T) {
	h := newHarness(t)
	for want := 1; want <= 4; want++ {
		wf := h.createWorkflow(t, "reconstruction", false)
		if wf.RunNumberMajor != want || wf.RunNumberMinor != 0 {
			t.Fatalf("run %d = (%d, %d), want (%d, 0)", want, wf.RunNumberMajor, wf.RunNumberMinor, want)
		}
	}
}

func TestRestartsIncrementMinor(t *testing.T) {
	h := newHarness(t)
	base := h.createWorkflow(t, "fit", false)

	for i := 1; i <= 3; i++ {
		restart, err := h.svcs.Workflows.Create(context.Background(), CreateWorkflowInput{
			OwnerID: h.user.ID,
			Name:    "fit",
			Restart: true,
		})
		if err != nil {
			t.Fatalf("restart %d: %v", i, err)
		}
		if restart.RunNumberMajor != base.RunNumberMajor {
			t.Fatalf("restart changed major: %d", restart.RunNumberMajor)
		}
		if restart.RunNumberMinor != i {
			t.Fatalf("restart %d got minor %d", i, restart.RunNumberMinor)
		}
		if restart.WorkspacePath != base.WorkspacePath {
			t.Fatalf("restart got its own workspace %q, want shared %q", restart.WorkspacePath, base.WorkspacePath)
		}
	}
}

func TestRestartOfNeverRunWorkflowFails(t *testing.T) {
	h := newHarness(t)
	_, err := h.svcs.Workflows.Create(context.Background(), CreateWorkflowInput{
		OwnerID: h.user.ID,
		Name:    "ghost",
		Restart: true,
	})
	if !types.IsCode(err, types.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "never run") {
		t.Fatalf("error does not explain the cause: %v", err)
	}
}

func TestRequestedRunNumberTargetsMajor(t *testing.T) {
	h := newHarness(t)
	h.createWorkflow(t, "sim", false) // (1, 0)
	h.createWorkflow(t, "sim", false) // (2, 0)

	restart, err := h.svcs.Workflows.Create(context.Background(), CreateWorkflowInput{
		OwnerID:            h.user.ID,
		Name:               "sim",
		Restart:            true,
		RequestedRunNumber: "1",
	})
	if err != nil {
		t.Fatalf("restart of major 1: %v", err)
	}
	if restart.RunNumberMajor != 1 || restart.RunNumberMinor != 1 {
		t.Fatalf("restart = (%d, %d), want (1, 1)", restart.RunNumberMajor, restart.RunNumberMinor)
	}
	if restart.RunNumber() != "1.1" {
		t.Fatalf("run number string = %q, want \"1.1\"", restart.RunNumber())
	}

	again, err := h.svcs.Workflows.Create(context.Background(), CreateWorkflowInput{
		OwnerID:            h.user.ID,
		Name:               "sim",
		Restart:            true,
		RequestedRunNumber: "1.1",
	})
	if err != nil {
		t.Fatalf("restart of 1.1: %v", err)
	}
	if again.RunNumberMajor != 1 || again.RunNumberMinor != 2 {
		t.Fatalf("restart = (%d, %d), want (1, 2)", again.RunNumberMajor, again.RunNumberMinor)
	}
}

func TestInvalidRequestedRunNumber(t *testing.T) {
	h := newHarness(t)
	h.createWorkflow(t, "sim", false)
	for _, raw := range []string{"abc", "0", "-1", "1.x"} {
		_, err := h.svcs.Workflows.Create(context.Background(), CreateWorkflowInput{
			OwnerID:            h.user.ID,
			Name:               "sim",
			Restart:            true,
			RequestedRunNumber: raw,
		})
		if !types.IsCode(err, types.CodeValidation) {
			t.Fatalf("requested %q: expected validation error, got %v", raw, err)
		}
	}
}
