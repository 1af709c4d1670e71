package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/keyforge-io/keyforge/internal/license"
	"github.com/keyforge-io/keyforge/internal/models"
)

// AppHandler manages seller application endpoints.
type AppHandler struct {
	engine *license.Engine
}

// NewAppHandler constructs an AppHandler.
func NewAppHandler(engine *license.Engine) *AppHandler {
	return &AppHandler{engine: engine}
}

// createAppRequest defines the request body for application creation.
type createAppRequest struct {
	Name string `json:"name"`
}

// Create issues a new application for the authenticated seller.
func (h *AppHandler) Create(c *gin.Context) {
	var body createAppRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name"})
		return
	}

	ownerID := c.GetString("ownerID")
	app, errCreate := h.engine.CreateApplication(c.Request.Context(), ownerID, name)
	if errCreate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create application failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"app_id":     app.AppID,
		"app_secret": app.AppSecret,
		"name":       app.Name,
	})
}

// List returns the seller's applications.
func (h *AppHandler) List(c *gin.Context) {
	ownerID := c.GetString("ownerID")
	apps, errList := h.engine.ListApplications(c.Request.Context(), ownerID)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list applications failed"})
		return
	}
	out := make([]gin.H, 0, len(apps))
	for _, app := range apps {
		out = append(out, gin.H{
			"app_id":     app.AppID,
			"app_secret": app.AppSecret,
			"name":       app.Name,
			"webhook":    app.Webhook.Data(),
			"created_at": app.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"apps": out})
}

// ownedApp resolves an application and verifies the authenticated seller
// owns it. It writes the error response itself and returns nil on failure.
func (h *AppHandler) ownedApp(c *gin.Context) *models.Application {
	appID := strings.TrimSpace(c.Param("appid"))
	app, errFind := h.engine.ApplicationByAppID(c.Request.Context(), appID)
	if errFind != nil {
		if errors.Is(errFind, license.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return nil
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil
	}
	if app.OwnerID != c.GetString("ownerID") {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your application"})
		return nil
	}
	return app
}

// webhookRequest defines the request body for webhook settings updates.
type webhookRequest struct {
	URL        string `json:"url"`
	Enabled    bool   `json:"enabled"`
	ShowHWID   bool   `json:"show_hwid"`
	ShowIP     bool   `json:"show_ip"`
	ShowApp    bool   `json:"show_app"`
	ShowExpiry bool   `json:"show_expiry"`
}

// UpdateWebhook replaces an application's webhook settings.
func (h *AppHandler) UpdateWebhook(c *gin.Context) {
	app := h.ownedApp(c)
	if app == nil {
		return
	}
	var body webhookRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	url := strings.TrimSpace(body.URL)
	if body.Enabled && url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing url"})
		return
	}

	settings := models.WebhookSettings{
		URL:        url,
		Enabled:    body.Enabled,
		ShowHWID:   body.ShowHWID,
		ShowIP:     body.ShowIP,
		ShowApp:    body.ShowApp,
		ShowExpiry: body.ShowExpiry,
	}
	if errUpdate := h.engine.UpdateWebhook(c.Request.Context(), app.AppID, settings); errUpdate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update webhook failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Delete removes an application and its credentials.
func (h *AppHandler) Delete(c *gin.Context) {
	app := h.ownedApp(c)
	if app == nil {
		return
	}
	if errDelete := h.engine.DeleteApplication(c.Request.Context(), app.AppID); errDelete != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
