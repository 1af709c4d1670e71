package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keyforge-io/keyforge/internal/license"
	"github.com/keyforge-io/keyforge/internal/models"
)

// expiryLayout is the fixed wall-clock format for explicit expiry input,
// interpreted as UTC.
const expiryLayout = "2006-01-02 15:04:05"

// UserHandler manages end-user credential endpoints.
type UserHandler struct {
	engine *license.Engine
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(engine *license.Engine) *UserHandler {
	return &UserHandler{engine: engine}
}

// createEndUserRequest defines the request body for credential creation.
type createEndUserRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Days      int    `json:"days"`
	ExpiresAt string `json:"expires_at"`
}

// ownedUserApp verifies the authenticated seller owns the application in the
// path. It writes the error response itself and returns nil on failure.
func (h *UserHandler) ownedUserApp(c *gin.Context) *models.Application {
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

// ownedUser resolves a credential and verifies ownership through its
// application. It writes the error response itself and returns nil on
// failure.
func (h *UserHandler) ownedUser(c *gin.Context) *models.EndUser {
	id := strings.TrimSpace(c.Param("id"))
	user, errUser := h.engine.UserByID(c.Request.Context(), id)
	if errUser != nil {
		if errors.Is(errUser, license.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return nil
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil
	}
	app, errApp := h.engine.ApplicationByAppID(c.Request.Context(), user.AppID)
	if errApp != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil
	}
	if app.OwnerID != c.GetString("ownerID") {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your application"})
		return nil
	}
	return user
}

// Create issues a new end-user credential under an application.
func (h *UserHandler) Create(c *gin.Context) {
	app := h.ownedUserApp(c)
	if app == nil {
		return
	}
	var body createEndUserRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username"})
		return
	}
	if body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing password"})
		return
	}
	if body.Days < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must not be negative"})
		return
	}

	var explicit *time.Time
	if raw := strings.TrimSpace(body.ExpiresAt); raw != "" {
		parsed, errParse := time.ParseInLocation(expiryLayout, raw, time.UTC)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid expires_at"})
			return
		}
		explicit = &parsed
	}

	user, errCreate := h.engine.CreateUser(c.Request.Context(), app.AppID, username, body.Password, body.Days, explicit)
	if errCreate != nil {
		if errors.Is(errCreate, license.ErrDuplicateUsername) {
			c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":         user.ID,
		"username":   user.Username,
		"expires_at": user.ExpiresAt,
	})
}

// List returns the credentials under an application, optionally filtered by
// a username substring.
func (h *UserHandler) List(c *gin.Context) {
	app := h.ownedUserApp(c)
	if app == nil {
		return
	}
	users, errList := h.engine.ListUsers(c.Request.Context(), app.AppID, strings.TrimSpace(c.Query("username")))
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}
	out := make([]gin.H, 0, len(users))
	for _, user := range users {
		out = append(out, gin.H{
			"id":         user.ID,
			"username":   user.Username,
			"expires_at": user.ExpiresAt,
			"hwid":       user.HWID,
			"created_at": user.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// extendRequest defines the request body for expiry extension.
type extendRequest struct {
	Days int `json:"days"`
}

// Extend advances a credential's expiry.
func (h *UserHandler) Extend(c *gin.Context) {
	user := h.ownedUser(c)
	if user == nil {
		return
	}
	var body extendRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Days <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be positive"})
		return
	}

	newExpiry, errExtend := h.engine.Extend(c.Request.Context(), user.ID, body.Days)
	if errExtend != nil {
		if errors.Is(errExtend, license.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "extend failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"new_expiry": newExpiry})
}

// Delete removes a credential.
func (h *UserHandler) Delete(c *gin.Context) {
	user := h.ownedUser(c)
	if user == nil {
		return
	}
	if errDelete := h.engine.DeleteUser(c.Request.Context(), user.ID); errDelete != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
