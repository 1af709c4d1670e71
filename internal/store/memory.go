package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/keyforge-io/keyforge/internal/models"

	"gorm.io/datatypes"
)

// MemoryStore is a mutex-guarded in-memory backend used by tests and the
// "memory" DSN. Every operation holds the lock for its full read-modify-write,
// which gives it the same atomicity guarantees the durable backends provide.
type MemoryStore struct {
	mu       sync.Mutex
	sellers  map[string]*models.Seller      // keyed by owner_id
	apps     map[string]*models.Application // keyed by app_id
	endUsers map[string]*models.EndUser     // keyed by credential id
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sellers:  make(map[string]*models.Seller),
		apps:     make(map[string]*models.Application),
		endUsers: make(map[string]*models.EndUser),
	}
}

// CreateSeller inserts a seller, rejecting duplicate usernames and owner ids.
func (s *MemoryStore) CreateSeller(_ context.Context, seller *models.Seller) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sellers[seller.OwnerID]; exists {
		return ErrDuplicate
	}
	for _, existing := range s.sellers {
		if existing.Username == seller.Username {
			return ErrDuplicate
		}
	}
	copied := *seller
	now := time.Now().UTC()
	copied.CreatedAt = now
	copied.UpdatedAt = now
	s.sellers[copied.OwnerID] = &copied
	return nil
}

// SellerByUsername looks up a seller by username.
func (s *MemoryStore) SellerByUsername(_ context.Context, username string) (*models.Seller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seller := range s.sellers {
		if seller.Username == username {
			copied := *seller
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// SellerByOwnerID looks up a seller by owner identifier.
func (s *MemoryStore) SellerByOwnerID(_ context.Context, ownerID string) (*models.Seller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seller, ok := s.sellers[ownerID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *seller
	return &copied, nil
}

// UpdateSellerTOTP stores or clears a seller's TOTP secret.
func (s *MemoryStore) UpdateSellerTOTP(_ context.Context, ownerID, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seller, ok := s.sellers[ownerID]
	if !ok {
		return ErrNotFound
	}
	seller.TOTPSecret = secret
	seller.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteSeller removes the seller with all owned applications and end users.
func (s *MemoryStore) DeleteSeller(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sellers[ownerID]; !ok {
		return ErrNotFound
	}
	for appID, app := range s.apps {
		if app.OwnerID != ownerID {
			continue
		}
		for id, user := range s.endUsers {
			if user.AppID == appID {
				delete(s.endUsers, id)
			}
		}
		delete(s.apps, appID)
	}
	delete(s.sellers, ownerID)
	return nil
}

// CreateApplication inserts an application.
func (s *MemoryStore) CreateApplication(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apps[app.AppID]; exists {
		return ErrDuplicate
	}
	for _, existing := range s.apps {
		if existing.AppSecret == app.AppSecret {
			return ErrDuplicate
		}
	}
	copied := *app
	now := time.Now().UTC()
	copied.CreatedAt = now
	copied.UpdatedAt = now
	s.apps[copied.AppID] = &copied
	return nil
}

// ApplicationByAppID looks up an application by public identifier.
func (s *MemoryStore) ApplicationByAppID(_ context.Context, appID string) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[appID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *app
	return &copied, nil
}

// ApplicationByCredentials resolves the (owner_id, app_secret) pair.
func (s *MemoryStore) ApplicationByCredentials(_ context.Context, ownerID, appSecret string) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, app := range s.apps {
		if app.OwnerID == ownerID && app.AppSecret == appSecret {
			copied := *app
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// ApplicationsByOwner lists a seller's applications ordered by creation time.
func (s *MemoryStore) ApplicationsByOwner(_ context.Context, ownerID string) ([]models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var apps []models.Application
	for _, app := range s.apps {
		if app.OwnerID == ownerID {
			apps = append(apps, *app)
		}
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].CreatedAt.Before(apps[j].CreatedAt) })
	return apps, nil
}

// UpdateApplicationWebhook replaces an application's webhook settings.
func (s *MemoryStore) UpdateApplicationWebhook(_ context.Context, appID string, settings models.WebhookSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[appID]
	if !ok {
		return ErrNotFound
	}
	app.Webhook = datatypes.NewJSONType(settings)
	app.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteApplication removes an application and its end users.
func (s *MemoryStore) DeleteApplication(_ context.Context, appID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[appID]; !ok {
		return ErrNotFound
	}
	for id, user := range s.endUsers {
		if user.AppID == appID {
			delete(s.endUsers, id)
		}
	}
	delete(s.apps, appID)
	return nil
}

// CreateEndUser inserts a credential, enforcing (app_id, username)
// uniqueness under the store lock.
func (s *MemoryStore) CreateEndUser(_ context.Context, user *models.EndUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.endUsers {
		if existing.AppID == user.AppID && existing.Username == user.Username {
			return ErrDuplicate
		}
	}
	copied := *user
	now := time.Now().UTC()
	copied.CreatedAt = now
	copied.UpdatedAt = now
	s.endUsers[copied.ID] = &copied
	return nil
}

// EndUserByID looks up a credential by identifier.
func (s *MemoryStore) EndUserByID(_ context.Context, id string) (*models.EndUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.endUsers[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

// EndUserByName looks up a credential by application and username.
func (s *MemoryStore) EndUserByName(_ context.Context, appID, username string) (*models.EndUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.endUsers {
		if user.AppID == appID && user.Username == username {
			copied := *user
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// EndUsersByApp lists credentials under an application.
func (s *MemoryStore) EndUsersByApp(_ context.Context, appID, usernameFilter string) ([]models.EndUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	needle := strings.ToLower(usernameFilter)
	var users []models.EndUser
	for _, user := range s.endUsers {
		if user.AppID != appID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(user.Username), needle) {
			continue
		}
		users = append(users, *user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

// BindHWID binds the HWID while holding the store lock, so only one caller
// can observe the nil-to-value transition.
func (s *MemoryStore) BindHWID(_ context.Context, id, hwid string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.endUsers[id]
	if !ok {
		return false, nil
	}
	if user.HWID != nil {
		return false, nil
	}
	bound := hwid
	user.HWID = &bound
	user.UpdatedAt = time.Now().UTC()
	return true, nil
}

// UpdateExpiry persists a new expiry instant.
func (s *MemoryStore) UpdateExpiry(_ context.Context, id string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.endUsers[id]
	if !ok {
		return ErrNotFound
	}
	user.ExpiresAt = expiresAt
	user.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteEndUser removes a credential.
func (s *MemoryStore) DeleteEndUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endUsers[id]; !ok {
		return ErrNotFound
	}
	delete(s.endUsers, id)
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }
