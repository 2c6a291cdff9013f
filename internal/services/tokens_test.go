package services

import (
	"context"
	"testing"

	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
)

func TestTokenLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	token, err := h.svcs.Tokens.RequestToken(ctx, h.user.ID)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token.Status != types.UserTokenStatusRequested {
		t.Fatalf("status = %s, want requested", token.Status)
	}

	// Double request is a conflict.
	if _, err := h.svcs.Tokens.RequestToken(ctx, h.user.ID); !types.IsCode(err, types.CodeConflict) {
		t.Fatalf("expected conflict on double request, got %v", err)
	}

	plaintext, err := h.svcs.Tokens.GrantToken(ctx, h.user.ID)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if plaintext == "" {
		t.Fatal("grant returned empty token")
	}

	// Stored value is ciphertext, round-trips through the service.
	stored, err := h.repos.UserToken.GetActive(dbctx.New(ctx), h.user.ID)
	if err != nil || stored == nil {
		t.Fatalf("active token: %v", err)
	}
	if stored.Token == plaintext {
		t.Fatal("token stored in plaintext")
	}
	decrypted, err := h.svcs.Tokens.ActiveToken(ctx, h.user.ID)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if decrypted != plaintext {
		t.Fatalf("decrypted %q != granted %q", decrypted, plaintext)
	}

	if err := h.svcs.Tokens.RevokeToken(ctx, h.user.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := h.svcs.Tokens.ActiveToken(ctx, h.user.ID); !types.IsCode(err, types.CodeNotFound) {
		t.Fatalf("expected not-found after revoke, got %v", err)
	}

	// Request, grant and revoke each left an audit row.
	trail, err := h.repos.AuditLog.ListByUser(dbctx.New(ctx), h.user.ID)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(trail) != 3 {
		t.Fatalf("audit rows = %d, want 3", len(trail))
	}
	wantActions := []types.AuditLogAction{
		types.AuditLogActionRequestToken,
		types.AuditLogActionGrantToken,
		types.AuditLogActionRevokeToken,
	}
	for i, want := range wantActions {
		if trail[i].Action != want {
			t.Fatalf("audit[%d] = %s, want %s", i, trail[i].Action, want)
		}
	}
}

func TestGrantWithoutRequestCreatesActiveToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	plaintext, err := h.svcs.Tokens.GrantToken(ctx, h.user.ID)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if plaintext == "" {
		t.Fatal("empty token")
	}

	// Second grant conflicts with the active token.
	if _, err := h.svcs.Tokens.GrantToken(ctx, h.user.ID); !types.IsCode(err, types.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRevokedUserCanRequestAgain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.svcs.Tokens.GrantToken(ctx, h.user.ID); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := h.svcs.Tokens.RevokeToken(ctx, h.user.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := h.svcs.Tokens.RequestToken(ctx, h.user.ID); err != nil {
		t.Fatalf("request after revoke: %v", err)
	}
}
