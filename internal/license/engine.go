// Package license implements the credential lifecycle engine: creation with
// expiry computation, the login validation state machine with first-use HWID
// binding, expiry extension, and seller/application identity.
package license

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/keyforge-io/keyforge/internal/models"
	"github.com/keyforge-io/keyforge/internal/store"
)

// LifetimeExpiry is the sentinel instant marking a non-expiring credential.
var LifetimeExpiry = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// IsLifetime reports whether an expiry is the lifetime sentinel.
func IsLifetime(expiresAt time.Time) bool {
	return expiresAt.Year() == 9999
}

// Notifier receives successful login events. Implementations must never
// block the caller or surface failures.
type Notifier interface {
	LoginSucceeded(app *models.Application, user *models.EndUser, hwid, ip string)
}

// Engine is the license lifecycle engine. All durable state lives behind the
// store; the engine itself is pure request/response logic.
type Engine struct {
	store    store.Store
	notifier Notifier
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock; tests use it to simulate elapsed
// time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithNotifier attaches a login event sink.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// NewEngine constructs an Engine over the given store.
func NewEngine(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store: s,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateUser issues a new credential under an application. An explicit
// expiry wins over the day count; days == 0 means lifetime; otherwise the
// credential expires days from now. The (app, username) uniqueness check is
// delegated to the store so concurrent creations cannot both land.
func (e *Engine) CreateUser(ctx context.Context, appID, username, password string, days int, explicit *time.Time) (*models.EndUser, error) {
	var expiresAt time.Time
	switch {
	case explicit != nil:
		expiresAt = explicit.UTC()
	case days == 0:
		expiresAt = LifetimeExpiry
	default:
		expiresAt = e.now().AddDate(0, 0, days)
	}

	user := &models.EndUser{
		ID:        uuid.NewString(),
		AppID:     appID,
		Username:  username,
		Password:  password,
		ExpiresAt: expiresAt,
	}
	if errCreate := e.store.CreateEndUser(ctx, user); errCreate != nil {
		if errors.Is(errCreate, store.ErrDuplicate) {
			return nil, ErrDuplicateUsername
		}
		return nil, errCreate
	}
	return user, nil
}

// LoginResult carries the success payload of a client login.
type LoginResult struct {
	ExpiresAt time.Time
}

// Login runs the validation state machine in strict order: application,
// credential, password, expiry, HWID. The first failure wins. A nil stored
// HWID is bound to the supplied one through a store-level conditional
// update; losing that race yields ErrHWIDMismatch unless the winner bound
// the same HWID.
func (e *Engine) Login(ctx context.Context, ownerID, appSecret, username, password, hwid, ip string) (LoginResult, error) {
	app, errApp := e.store.ApplicationByCredentials(ctx, ownerID, appSecret)
	if errApp != nil {
		if errors.Is(errApp, store.ErrNotFound) {
			return LoginResult{}, ErrInvalidApplication
		}
		return LoginResult{}, errApp
	}

	user, errUser := e.store.EndUserByName(ctx, app.AppID, username)
	if errUser != nil {
		if errors.Is(errUser, store.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, errUser
	}

	if subtle.ConstantTimeCompare([]byte(user.Password), []byte(password)) != 1 {
		return LoginResult{}, ErrInvalidCredentials
	}

	if !IsLifetime(user.ExpiresAt) && user.ExpiresAt.Before(e.now()) {
		return LoginResult{}, ErrSubscriptionExpired
	}

	switch {
	case user.HWID == nil:
		bound, errBind := e.store.BindHWID(ctx, user.ID, hwid)
		if errBind != nil {
			return LoginResult{}, errBind
		}
		if !bound {
			// Lost the first-use race (or the credential vanished); re-read
			// and fall back to the plain comparison.
			current, errRead := e.store.EndUserByID(ctx, user.ID)
			if errRead != nil {
				if errors.Is(errRead, store.ErrNotFound) {
					return LoginResult{}, ErrInvalidCredentials
				}
				return LoginResult{}, errRead
			}
			if current.HWID == nil || *current.HWID != hwid {
				return LoginResult{}, ErrHWIDMismatch
			}
		}
	case *user.HWID != hwid:
		return LoginResult{}, ErrHWIDMismatch
	}

	if e.notifier != nil {
		e.notifier.LoginSucceeded(app, user, hwid, ip)
	}
	return LoginResult{ExpiresAt: user.ExpiresAt}, nil
}

// Extend advances a credential's expiry by the given number of days.
// Lifetime credentials are immune and return their sentinel unchanged.
// Extension stacks on remaining time when the credential is still valid and
// restarts from now when it has already expired.
func (e *Engine) Extend(ctx context.Context, id string, days int) (time.Time, error) {
	user, errUser := e.store.EndUserByID(ctx, id)
	if errUser != nil {
		if errors.Is(errUser, store.ErrNotFound) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, errUser
	}

	if IsLifetime(user.ExpiresAt) {
		return user.ExpiresAt, nil
	}

	base := e.now()
	if user.ExpiresAt.After(base) {
		base = user.ExpiresAt
	}
	newExpiry := base.AddDate(0, 0, days)

	if errUpdate := e.store.UpdateExpiry(ctx, id, newExpiry); errUpdate != nil {
		if errors.Is(errUpdate, store.ErrNotFound) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, errUpdate
	}
	return newExpiry, nil
}

// ListUsers returns the credentials under an application, optionally
// filtered by a username substring.
func (e *Engine) ListUsers(ctx context.Context, appID, usernameFilter string) ([]models.EndUser, error) {
	return e.store.EndUsersByApp(ctx, appID, usernameFilter)
}

// DeleteUser removes a credential.
func (e *Engine) DeleteUser(ctx context.Context, id string) error {
	if errDelete := e.store.DeleteEndUser(ctx, id); errDelete != nil {
		if errors.Is(errDelete, store.ErrNotFound) {
			return ErrNotFound
		}
		return errDelete
	}
	return nil
}

// UserByID returns a credential by identifier.
func (e *Engine) UserByID(ctx context.Context, id string) (*models.EndUser, error) {
	user, errUser := e.store.EndUserByID(ctx, id)
	if errUser != nil {
		if errors.Is(errUser, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errUser
	}
	return user, nil
}
