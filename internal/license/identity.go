package license

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/keyforge-io/keyforge/internal/models"
	"github.com/keyforge-io/keyforge/internal/security"
	"github.com/keyforge-io/keyforge/internal/store"
)

// RegisterSeller creates a seller account with a hashed password and a
// generated owner identifier.
func (e *Engine) RegisterSeller(ctx context.Context, username, password string) (*models.Seller, error) {
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return nil, errHash
	}
	seller := &models.Seller{
		Username: username,
		Password: hash,
		OwnerID:  uuid.NewString(),
	}
	if errCreate := e.store.CreateSeller(ctx, seller); errCreate != nil {
		if errors.Is(errCreate, store.ErrDuplicate) {
			return nil, ErrSellerExists
		}
		return nil, errCreate
	}
	return seller, nil
}

// LoginSeller verifies a seller's password and returns the account.
// ErrSellerNotFound and ErrInvalidPassword are distinct: the panel is an
// authenticated management surface, not the enumeration-sensitive client
// endpoint.
func (e *Engine) LoginSeller(ctx context.Context, username, password string) (*models.Seller, error) {
	seller, errFind := e.store.SellerByUsername(ctx, username)
	if errFind != nil {
		if errors.Is(errFind, store.ErrNotFound) {
			return nil, ErrSellerNotFound
		}
		return nil, errFind
	}
	if !security.VerifyPassword(seller.Password, password) {
		return nil, ErrInvalidPassword
	}
	return seller, nil
}

// SellerByOwnerID returns a seller account by owner identifier.
func (e *Engine) SellerByOwnerID(ctx context.Context, ownerID string) (*models.Seller, error) {
	seller, errFind := e.store.SellerByOwnerID(ctx, ownerID)
	if errFind != nil {
		if errors.Is(errFind, store.ErrNotFound) {
			return nil, ErrSellerNotFound
		}
		return nil, errFind
	}
	return seller, nil
}

// SetSellerTOTP stores or clears a seller's TOTP secret.
func (e *Engine) SetSellerTOTP(ctx context.Context, ownerID, secret string) error {
	if errUpdate := e.store.UpdateSellerTOTP(ctx, ownerID, secret); errUpdate != nil {
		if errors.Is(errUpdate, store.ErrNotFound) {
			return ErrSellerNotFound
		}
		return errUpdate
	}
	return nil
}

// DeleteSeller removes a seller with all applications and credentials; the
// store makes the cascade atomic from the caller's point of view.
func (e *Engine) DeleteSeller(ctx context.Context, ownerID string) error {
	if errDelete := e.store.DeleteSeller(ctx, ownerID); errDelete != nil {
		if errors.Is(errDelete, store.ErrNotFound) {
			return ErrSellerNotFound
		}
		return errDelete
	}
	return nil
}

// CreateApplication issues a new application with a generated (app_id,
// app_secret) pair bound to the owner.
func (e *Engine) CreateApplication(ctx context.Context, ownerID, name string) (*models.Application, error) {
	secret, errSecret := security.GenerateRandomString(16)
	if errSecret != nil {
		return nil, errSecret
	}
	app := &models.Application{
		AppID:     uuid.NewString(),
		AppSecret: secret,
		Name:      name,
		OwnerID:   ownerID,
	}
	if errCreate := e.store.CreateApplication(ctx, app); errCreate != nil {
		return nil, errCreate
	}
	return app, nil
}

// ListApplications returns a seller's applications.
func (e *Engine) ListApplications(ctx context.Context, ownerID string) ([]models.Application, error) {
	return e.store.ApplicationsByOwner(ctx, ownerID)
}

// ApplicationByAppID returns an application by public identifier.
func (e *Engine) ApplicationByAppID(ctx context.Context, appID string) (*models.Application, error) {
	app, errFind := e.store.ApplicationByAppID(ctx, appID)
	if errFind != nil {
		if errors.Is(errFind, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errFind
	}
	return app, nil
}

// UpdateWebhook replaces an application's webhook settings.
func (e *Engine) UpdateWebhook(ctx context.Context, appID string, settings models.WebhookSettings) error {
	if errUpdate := e.store.UpdateApplicationWebhook(ctx, appID, settings); errUpdate != nil {
		if errors.Is(errUpdate, store.ErrNotFound) {
			return ErrNotFound
		}
		return errUpdate
	}
	return nil
}

// DeleteApplication removes an application and its credentials.
func (e *Engine) DeleteApplication(ctx context.Context, appID string) error {
	if errDelete := e.store.DeleteApplication(ctx, appID); errDelete != nil {
		if errors.Is(errDelete, store.ErrNotFound) {
			return ErrNotFound
		}
		return errDelete
	}
	return nil
}
