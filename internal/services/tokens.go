package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sciflow/sciflow-db/internal/data/repos"
	types "github.com/sciflow/sciflow-db/internal/domain"
	"github.com/sciflow/sciflow-db/internal/platform/crypt"
	"github.com/sciflow/sciflow-db/internal/platform/dbctx"
	"github.com/sciflow/sciflow-db/internal/platform/logger"
)

// TokenService drives the platform access token lifecycle. Token values
// are encrypted at rest; every request, grant and revocation appends an
// audit row.
type TokenService interface {
	RequestToken(ctx context.Context, userID uuid.UUID) (*types.UserToken, error)
	GrantToken(ctx context.Context, userID uuid.UUID) (string, error)
	RevokeToken(ctx context.Context, userID uuid.UUID) error
	ActiveToken(ctx context.Context, userID uuid.UUID) (string, error)
}

type tokenService struct {
	db     *gorm.DB
	log    *logger.Logger
	repos  repos.Repos
	cipher crypt.Cipher
}

func NewTokenService(db *gorm.DB, log *logger.Logger, r repos.Repos, cipher crypt.Cipher) TokenService {
	return &tokenService{
		db:     db,
		log:    log.With("service", "TokenService"),
		repos:  r,
		cipher: cipher,
	}
}

// RequestToken records a pending token request. A user with an active
// or already-requested token cannot request again.
func (ts *tokenService) RequestToken(ctx context.Context, userID uuid.UUID) (*types.UserToken, error) {
	var token *types.UserToken
	err := ts.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		latest, err := ts.repos.UserToken.GetLatest(dbc, userID)
		if err != nil {
			return err
		}
		if latest != nil && latest.Status != types.UserTokenStatusRevoked {
			return types.NewError(types.CodeConflict, "tokens.request",
				fmt.Sprintf("user %s already has a token in status %q", userID, latest.Status), nil)
		}
		token, err = ts.repos.UserToken.Create(dbc, &types.UserToken{
			ID:     uuid.New(),
			UserID: userID,
			Status: types.UserTokenStatusRequested,
			Type:   types.UserTokenTypePlatform,
		})
		if err != nil {
			return err
		}
		return ts.audit(dbc, userID, types.AuditLogActionRequestToken, map[string]interface{}{
			"token_id": token.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// GrantToken mints a token value and activates the user's requested
// token, or creates an active one outright. Returns the plaintext; only
// the ciphertext is stored.
func (ts *tokenService) GrantToken(ctx context.Context, userID uuid.UUID) (string, error) {
	plaintext := uuid.NewString()
	ciphertext, err := ts.cipher.Encrypt(plaintext)
	if err != nil {
		return "", err
	}
	err = ts.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		latest, err := ts.repos.UserToken.GetLatest(dbc, userID)
		if err != nil {
			return err
		}
		var tokenID uuid.UUID
		switch {
		case latest != nil && latest.Status == types.UserTokenStatusActive:
			return types.NewError(types.CodeConflict, "tokens.grant",
				fmt.Sprintf("user %s already has an active token", userID), nil)
		case latest != nil && latest.Status == types.UserTokenStatusRequested:
			tokenID = latest.ID
			err = ts.repos.UserToken.UpdateFields(dbc, latest.ID, map[string]interface{}{
				"token":  ciphertext,
				"status": types.UserTokenStatusActive,
			})
			if err != nil {
				return err
			}
		default:
			created, err := ts.repos.UserToken.Create(dbc, &types.UserToken{
				ID:     uuid.New(),
				UserID: userID,
				Token:  ciphertext,
				Status: types.UserTokenStatusActive,
				Type:   types.UserTokenTypePlatform,
			})
			if err != nil {
				return err
			}
			tokenID = created.ID
		}
		return ts.audit(dbc, userID, types.AuditLogActionGrantToken, map[string]interface{}{
			"token_id": tokenID,
		})
	})
	if err != nil {
		return "", err
	}
	return plaintext, nil
}

// RevokeToken revokes the user's active token.
func (ts *tokenService) RevokeToken(ctx context.Context, userID uuid.UUID) error {
	return ts.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.WithTx(ctx, tx)
		active, err := ts.repos.UserToken.GetActive(dbc, userID)
		if err != nil {
			return err
		}
		if active == nil {
			return types.NewError(types.CodeNotFound, "tokens.revoke",
				fmt.Sprintf("user %s has no active token", userID), nil)
		}
		err = ts.repos.UserToken.UpdateFields(dbc, active.ID, map[string]interface{}{
			"status": types.UserTokenStatusRevoked,
		})
		if err != nil {
			return err
		}
		return ts.audit(dbc, userID, types.AuditLogActionRevokeToken, map[string]interface{}{
			"token_id": active.ID,
		})
	})
}

// ActiveToken decrypts and returns the user's active token value.
func (ts *tokenService) ActiveToken(ctx context.Context, userID uuid.UUID) (string, error) {
	active, err := ts.repos.UserToken.GetActive(dbctx.New(ctx), userID)
	if err != nil {
		return "", err
	}
	if active == nil {
		return "", types.NewError(types.CodeNotFound, "tokens.active",
			fmt.Sprintf("user %s has no active token", userID), nil)
	}
	return ts.cipher.Decrypt(active.Token)
}

func (ts *tokenService) audit(dbc dbctx.Context, userID uuid.UUID, action types.AuditLogAction, details map[string]interface{}) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return err
	}
	return ts.repos.AuditLog.Append(dbc, &types.AuditLog{
		UserID:    userID,
		Action:    action,
		Details:   datatypes.JSON(raw),
		CreatedAt: time.Now(),
	})
}
