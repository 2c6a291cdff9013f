package services

import (
	"context"
	"testing"

	types "github.com/sciflow/sciflow-db/internal/domain"
)

func TestInitializeDefaultResourcesIsIdempotent(t *testing.T) {
	h := newHarness(t) // harness already seeds once

	created, err := h.svcs.Catalog.InitializeDefaultResources(context.Background())
	if err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("reseed created %d rows, want 0", len(created))
	}

	all, err := h.svcs.Catalog.ListResources(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("catalog size = %d, want 2", len(all))
	}
}

func TestDefaultResourceCarriesCanonicalUnit(t *testing.T) {
	h := newHarness(t)

	cpu, err := h.svcs.Catalog.GetDefaultResource(context.Background(), types.ResourceKindCPU)
	if err != nil {
		t.Fatalf("cpu: %v", err)
	}
	if cpu.Unit != types.ResourceUnitMilliseconds {
		t.Fatalf("cpu unit = %s, want milliseconds", cpu.Unit)
	}

	disk, err := h.svcs.Catalog.GetDefaultResource(context.Background(), types.ResourceKindDisk)
	if err != nil {
		t.Fatalf("disk: %v", err)
	}
	if disk.Unit != types.ResourceUnitBytes {
		t.Fatalf("disk unit = %s, want bytes", disk.Unit)
	}
}

func TestGetDefaultResourceMissingSeedFails(t *testing.T) {
	h := newHarness(t)
	h.cfg.DefaultQuotaResources[types.ResourceKindDisk] = "never-seeded"

	_, err := h.svcs.Catalog.GetDefaultResource(context.Background(), types.ResourceKindDisk)
	if !types.IsCode(err, types.CodeNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}
