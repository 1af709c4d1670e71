package models

import "time"

// Seller represents a tenant account that owns applications.
type Seller struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Password string `gorm:"type:text;not null"`             // Argon2id password hash.
	OwnerID  string `gorm:"type:varchar(36);not null;uniqueIndex"` // Generated owner identifier.

	TOTPSecret string `gorm:"type:text"` // TOTP secret when MFA is enabled.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
