package models

import "time"

// EndUser represents a licensed credential issued under an application.
// The HWID is bound once on first successful login and never cleared;
// rebinding requires deleting and recreating the credential.
type EndUser struct {
	ID string `gorm:"type:varchar(36);primaryKey"` // Generated credential identifier.

	AppID    string `gorm:"type:varchar(36);not null;uniqueIndex:idx_end_users_app_username,priority:1"` // Owning application identifier.
	Username string `gorm:"type:text;not null;uniqueIndex:idx_end_users_app_username,priority:2"`        // Login name, unique per application.
	Password string `gorm:"type:text;not null"` // Credential password.

	ExpiresAt time.Time `gorm:"not null"`  // Expiry instant; year 9999 marks a lifetime credential.
	HWID      *string   `gorm:"column:hwid;type:text"` // Bound hardware identifier, nil until first login.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
