// Package store abstracts durable storage for sellers, applications, and
// end-user credentials. Relational (GORM) and document (MongoDB) backends
// satisfy the same interface; an in-memory backend serves tests and local
// runs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/keyforge-io/keyforge/internal/models"
)

// ErrNotFound indicates a lookup miss.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicate indicates a uniqueness constraint violation.
var ErrDuplicate = errors.New("store: duplicate key")

// Store is the credential store consumed by the license engine. Uniqueness
// and the first-use HWID bind are enforced by the backend atomically, never
// by a prior read.
type Store interface {
	// Sellers.
	CreateSeller(ctx context.Context, seller *models.Seller) error
	SellerByUsername(ctx context.Context, username string) (*models.Seller, error)
	SellerByOwnerID(ctx context.Context, ownerID string) (*models.Seller, error)
	UpdateSellerTOTP(ctx context.Context, ownerID, secret string) error
	// DeleteSeller removes the seller, its applications, and their end users.
	DeleteSeller(ctx context.Context, ownerID string) error

	// Applications.
	CreateApplication(ctx context.Context, app *models.Application) error
	ApplicationByAppID(ctx context.Context, appID string) (*models.Application, error)
	// ApplicationByCredentials resolves the (owner_id, app_secret) pair used
	// by client logins.
	ApplicationByCredentials(ctx context.Context, ownerID, appSecret string) (*models.Application, error)
	ApplicationsByOwner(ctx context.Context, ownerID string) ([]models.Application, error)
	UpdateApplicationWebhook(ctx context.Context, appID string, settings models.WebhookSettings) error
	// DeleteApplication removes the application and its end users.
	DeleteApplication(ctx context.Context, appID string) error

	// End-user credentials.
	CreateEndUser(ctx context.Context, user *models.EndUser) error
	EndUserByID(ctx context.Context, id string) (*models.EndUser, error)
	EndUserByName(ctx context.Context, appID, username string) (*models.EndUser, error)
	// EndUsersByApp lists credentials, optionally filtered by a username
	// substring (case-insensitive).
	EndUsersByApp(ctx context.Context, appID, usernameFilter string) ([]models.EndUser, error)
	// BindHWID sets the HWID if and only if it is still unbound. It reports
	// true when this call performed the bind; false means another binder won
	// or the credential no longer exists.
	BindHWID(ctx context.Context, id, hwid string) (bool, error)
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error
	DeleteEndUser(ctx context.Context, id string) error

	// Ping reports backend reachability for health checks.
	Ping(ctx context.Context) error
}
