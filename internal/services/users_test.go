package services

import (
	"context"
	"testing"

	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
)

func TestCreateUserSeedsQuotaRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.cfg.DefaultQuotaLimits[types.ResourceKindDisk] = 5000

	user, err := h.svcs.Users.Create(ctx, "physicist@example.org", "A Physicist", "physicist")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rows, err := h.repos.UserResource.ListByUser(dbctx.New(ctx), user.ID)
	if err != nil {
		t.Fatalf("list rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("quota rows = %d, want one per catalog resource", len(rows))
	}
	for _, row := range rows {
		if row.QuotaUsed != 0 {
			t.Fatalf("new user has usage %d", row.QuotaUsed)
		}
		if row.Resource.Kind == types.ResourceKindDisk && row.QuotaLimit != 5000 {
			t.Fatalf("disk limit = %d, want configured 5000", row.QuotaLimit)
		}
	}
}

func TestDuplicateEmailRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svcs.Users.Create(ctx, h.user.Email, "Other", "other")
	if !types.IsCode(err, types.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUserQuotaReport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	diskID := h.resourceID(t, types.ResourceKindDisk)
	dbc := dbctx.New(ctx)

	if err := h.repos.UserResource.SetLimit(dbc, h.user.ID, diskID, 1000); err != nil {
		t.Fatalf("set limit: %v", err)
	}
	if err := h.repos.UserResource.SetUsage(dbc, h.user.ID, diskID, 800); err != nil {
		t.Fatalf("set usage: %v", err)
	}

	report, err := h.svcs.Quota.UserQuotaReport(ctx, h.user.ID)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	disk, ok := report[types.ResourceKindDisk]
	if !ok {
		t.Fatal("no disk reading")
	}
	if disk.Usage.Raw != 800 {
		t.Fatalf("usage = %d, want 800", disk.Usage.Raw)
	}
	if disk.Limit == nil || disk.Limit.Raw != 1000 {
		t.Fatalf("limit reading = %+v, want 1000", disk.Limit)
	}
	if disk.Health != types.QuotaHealthWarning {
		t.Fatalf("health = %s, want warning at 80%%", disk.Health)
	}
}
