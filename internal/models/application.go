package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookSettings configures the optional login notification webhook for an
// application. Absent or disabled settings suppress notifications entirely.
type WebhookSettings struct {
	URL        string `json:"url"`         // Webhook endpoint URL.
	Enabled    bool   `json:"enabled"`     // Whether notifications fire at all.
	ShowHWID   bool   `json:"show_hwid"`   // Include the client HWID.
	ShowIP     bool   `json:"show_ip"`     // Include the client IP.
	ShowApp    bool   `json:"show_app"`    // Include the application name.
	ShowExpiry bool   `json:"show_expiry"` // Include the credential expiry.
}

// Application represents a seller's product issuing end-user credentials.
type Application struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	AppID     string `gorm:"type:varchar(36);not null;uniqueIndex"` // Public application identifier.
	AppSecret string `gorm:"type:varchar(64);not null;uniqueIndex"` // Generated client secret.
	Name      string `gorm:"type:text;not null"`                    // Display name.
	OwnerID   string `gorm:"type:varchar(36);not null;index"`       // Owning seller's owner identifier.

	Webhook datatypes.JSONType[WebhookSettings] `gorm:"type:jsonb"` // Optional webhook settings.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
