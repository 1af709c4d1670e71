package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/keyforge-io/keyforge/internal/db"
	"github.com/keyforge-io/keyforge/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GormStore persists entities to PostgreSQL or SQLite via GORM. The
// connection must be opened with TranslateError so unique violations surface
// as gorm.ErrDuplicatedKey regardless of dialect.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a GormStore.
func NewGormStore(conn *gorm.DB) *GormStore {
	return &GormStore{db: conn}
}

// translate maps GORM errors onto store sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

// CreateSeller inserts a seller record.
func (s *GormStore) CreateSeller(ctx context.Context, seller *models.Seller) error {
	return translate(s.db.WithContext(ctx).Create(seller).Error)
}

// SellerByUsername looks up a seller by unique username.
func (s *GormStore) SellerByUsername(ctx context.Context, username string) (*models.Seller, error) {
	var seller models.Seller
	if errFind := s.db.WithContext(ctx).Where("username = ?", username).First(&seller).Error; errFind != nil {
		return nil, translate(errFind)
	}
	return &seller, nil
}

// SellerByOwnerID looks up a seller by generated owner identifier.
func (s *GormStore) SellerByOwnerID(ctx context.Context, ownerID string) (*models.Seller, error) {
	var seller models.Seller
	if errFind := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&seller).Error; errFind != nil {
		return nil, translate(errFind)
	}
	return &seller, nil
}

// UpdateSellerTOTP stores or clears a seller's TOTP secret.
func (s *GormStore) UpdateSellerTOTP(ctx context.Context, ownerID, secret string) error {
	res := s.db.WithContext(ctx).Model(&models.Seller{}).
		Where("owner_id = ?", ownerID).
		Updates(map[string]any{"totp_secret": secret, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSeller removes a seller with its applications and their end users in
// one transaction.
func (s *GormStore) DeleteSeller(ctx context.Context, ownerID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var apps []models.Application
		if errFind := tx.Where("owner_id = ?", ownerID).Find(&apps).Error; errFind != nil {
			return errFind
		}
		for _, app := range apps {
			if errDelUsers := tx.Where("app_id = ?", app.AppID).Delete(&models.EndUser{}).Error; errDelUsers != nil {
				return errDelUsers
			}
		}
		if errDelApps := tx.Where("owner_id = ?", ownerID).Delete(&models.Application{}).Error; errDelApps != nil {
			return errDelApps
		}
		res := tx.Where("owner_id = ?", ownerID).Delete(&models.Seller{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CreateApplication inserts an application record.
func (s *GormStore) CreateApplication(ctx context.Context, app *models.Application) error {
	return translate(s.db.WithContext(ctx).Create(app).Error)
}

// ApplicationByAppID looks up an application by public identifier.
func (s *GormStore) ApplicationByAppID(ctx context.Context, appID string) (*models.Application, error) {
	var app models.Application
	if errFind := s.db.WithContext(ctx).Where("app_id = ?", appID).First(&app).Error; errFind != nil {
		return nil, translate(errFind)
	}
	return &app, nil
}

// ApplicationByCredentials resolves the (owner_id, app_secret) pair.
func (s *GormStore) ApplicationByCredentials(ctx context.Context, ownerID, appSecret string) (*models.Application, error) {
	var app models.Application
	errFind := s.db.WithContext(ctx).
		Where("owner_id = ? AND app_secret = ?", ownerID, appSecret).
		First(&app).Error
	if errFind != nil {
		return nil, translate(errFind)
	}
	return &app, nil
}

// ApplicationsByOwner lists a seller's applications.
func (s *GormStore) ApplicationsByOwner(ctx context.Context, ownerID string) ([]models.Application, error) {
	var apps []models.Application
	errFind := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at ASC").
		Find(&apps).Error
	if errFind != nil {
		return nil, translate(errFind)
	}
	return apps, nil
}

// UpdateApplicationWebhook replaces an application's webhook settings.
func (s *GormStore) UpdateApplicationWebhook(ctx context.Context, appID string, settings models.WebhookSettings) error {
	res := s.db.WithContext(ctx).Model(&models.Application{}).
		Where("app_id = ?", appID).
		Updates(map[string]any{
			"webhook":    datatypes.NewJSONType(settings),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteApplication removes an application and its end users in one
// transaction.
func (s *GormStore) DeleteApplication(ctx context.Context, appID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errDelUsers := tx.Where("app_id = ?", appID).Delete(&models.EndUser{}).Error; errDelUsers != nil {
			return errDelUsers
		}
		res := tx.Where("app_id = ?", appID).Delete(&models.Application{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CreateEndUser inserts a credential; the (app_id, username) unique index is
// the source of truth for duplicates.
func (s *GormStore) CreateEndUser(ctx context.Context, user *models.EndUser) error {
	return translate(s.db.WithContext(ctx).Create(user).Error)
}

// EndUserByID looks up a credential by identifier.
func (s *GormStore) EndUserByID(ctx context.Context, id string) (*models.EndUser, error) {
	var user models.EndUser
	if errFind := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; errFind != nil {
		return nil, translate(errFind)
	}
	return &user, nil
}

// EndUserByName looks up a credential by application and username.
func (s *GormStore) EndUserByName(ctx context.Context, appID, username string) (*models.EndUser, error) {
	var user models.EndUser
	errFind := s.db.WithContext(ctx).
		Where("app_id = ? AND username = ?", appID, username).
		First(&user).Error
	if errFind != nil {
		return nil, translate(errFind)
	}
	return &user, nil
}

// EndUsersByApp lists credentials under an application, optionally filtered
// by a case-insensitive username substring.
func (s *GormStore) EndUsersByApp(ctx context.Context, appID, usernameFilter string) ([]models.EndUser, error) {
	q := s.db.WithContext(ctx).Where("app_id = ?", appID)
	if usernameFilter != "" {
		pattern := db.NormalizeLikePattern(s.db, "%"+usernameFilter+"%")
		q = q.Where(db.CaseInsensitiveLikeExpr(s.db, "username"), pattern)
	}
	var users []models.EndUser
	if errFind := q.Order("created_at ASC").Find(&users).Error; errFind != nil {
		return nil, translate(errFind)
	}
	return users, nil
}

// BindHWID performs the first-use bind as a conditional update keyed on the
// HWID still being NULL, so concurrent binders resolve to exactly one winner.
func (s *GormStore) BindHWID(ctx context.Context, id, hwid string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.EndUser{}).
		Where("id = ? AND hwid IS NULL", id).
		Updates(map[string]any{"hwid": hwid, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// UpdateExpiry persists a new expiry instant.
func (s *GormStore) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.EndUser{}).
		Where("id = ?", id).
		Updates(map[string]any{"expires_at": expiresAt, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEndUser removes a credential.
func (s *GormStore) DeleteEndUser(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.EndUser{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks the underlying SQL connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("gorm store: get sql db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
