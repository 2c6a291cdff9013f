package services

import (
	"context"
	"math"
	"testing"

	types "github.com/sciflow/sciflow-db/internal/domain"
)

func TestOverloadFactorDecaysWithLoad(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	factor, err := h.svcs.Priority.WorkflowOverloadFactor(ctx, h.user.ID)
	if err != nil {
		t.Fatalf("overload: %v", err)
	}
	if factor != 1.0 {
		t.Fatalf("idle user factor = %v, want 1.0", factor)
	}

	wf := h.createWorkflow(t, "busy", false)
	h.transition(t, wf, types.RunStatusQueued, types.RunStatusPending, types.RunStatusRunning)

	factor, err = h.svcs.Priority.WorkflowOverloadFactor(ctx, h.user.ID)
	if err != nil {
		t.Fatalf("overload: %v", err)
	}
	want := math.Round((1-1*0.9/30)*100) / 100
	if factor != want {
		t.Fatalf("factor with one running = %v, want %v", factor, want)
	}
}

func TestOverloadFactorFloorsAtSaturation(t *testing.T) {
	h := newHarness(t)
	h.cfg.MaxConcurrentWorkflows = 2
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		wf := h.createWorkflow(t, name, false)
		h.transition(t, wf, types.RunStatusQueued, types.RunStatusPending, types.RunStatusRunning)
	}

	factor, err := h.svcs.Priority.WorkflowOverloadFactor(ctx, h.user.ID)
	if err != nil {
		t.Fatalf("overload: %v", err)
	}
	if factor != 0.1 {
		t.Fatalf("saturated factor = %v, want 0.1 floor", factor)
	}
}

func TestOverloadBoundaryDoesNotRoundToFloor(t *testing.T) {
	h := newHarness(t)
	h.cfg.MaxConcurrentWorkflows = 10
	ctx := context.Background()

	// R = M-1 = 9 running workflows.
	for i := 0; i < 9; i++ {
		wf := h.createWorkflow(t, "load-"+string(rune('a'+i)), false)
		h.transition(t, wf, types.RunStatusQueued, types.RunStatusPending, types.RunStatusRunning)
	}

	factor, err := h.svcs.Priority.WorkflowOverloadFactor(ctx, h.user.ID)
	if err != nil {
		t.Fatalf("overload: %v", err)
	}
	// 1 - 9*0.9/10 = 0.19, strictly above the 0.1 floor.
	if factor != 0.19 {
		t.Fatalf("boundary factor = %v, want 0.19", factor)
	}
}

func TestComplexityPriority(t *testing.T) {
	h := newHarness(t)
	ps := h.svcs.Priority

	empty := &types.Workflow{}
	if got := ps.ComplexityPriority(empty, 1000); got != 0 {
		t.Fatalf("no complexity priority = %d, want 0", got)
	}

	wf := &types.Workflow{Complexity: types.ComplexitySteps{{Jobs: 2, Memory: 100}}}
	if got := ps.ComplexityPriority(wf, 0); got != 0 {
		t.Fatalf("unknown capacity priority = %d, want 0", got)
	}
	if got := ps.ComplexityPriority(wf, 100); got != 0 {
		t.Fatalf("unschedulable priority = %d, want 0", got)
	}

	// required 200 of 1000: round(0.8 * 100) = 80.
	if got := ps.ComplexityPriority(wf, 1000); got != 80 {
		t.Fatalf("priority = %d, want 80", got)
	}
}

func TestFinalPriorityCombinesFactors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wf, err := h.svcs.Workflows.Create(ctx, CreateWorkflowInput{
		OwnerID:    h.user.ID,
		Name:       "final",
		Complexity: types.ComplexitySteps{{Jobs: 2, Memory: 100}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Idle owner: overload 1.0, complexity 80.
	got, err := h.svcs.Priority.FinalPriority(ctx, wf.ID, 1000)
	if err != nil {
		t.Fatalf("final: %v", err)
	}
	if got != 80 {
		t.Fatalf("final priority = %d, want 80", got)
	}
}
