// Package client exposes the public login endpoint consumed by end-user
// software. Failures share one response shape so callers cannot tell which
// validation stage rejected them.
package client

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keyforge-io/keyforge/internal/license"
)

// RegisterClientRoutes registers the public client API routes.
func RegisterClientRoutes(r *gin.Engine, engine *license.Engine) {
	if r == nil || engine == nil {
		return
	}
	handler := NewLoginHandler(engine)
	r.POST("/api/1.0/user_login", handler.Login)
}

// LoginHandler serves end-user credential validation.
type LoginHandler struct {
	engine *license.Engine
}

// NewLoginHandler constructs a LoginHandler.
func NewLoginHandler(engine *license.Engine) *LoginHandler {
	return &LoginHandler{engine: engine}
}

// loginRequest defines the client login request body.
type loginRequest struct {
	OwnerID   string `json:"ownerid"`
	AppSecret string `json:"app_secret"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	HWID      string `json:"hwid"`
}

// loginFailure builds the uniform failure body.
func loginFailure(message string) gin.H {
	return gin.H{"success": false, "message": message}
}

// failureMessage maps engine errors onto the generic per-class messages.
// Anything unexpected collapses into the credentials message rather than
// leaking store internals.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, license.ErrInvalidApplication):
		return "Invalid application details."
	case errors.Is(err, license.ErrSubscriptionExpired):
		return "Subscription has expired."
	case errors.Is(err, license.ErrHWIDMismatch):
		return "HWID mismatch."
	default:
		return "Invalid credentials."
	}
}

// Login validates an end-user credential against the supplied HWID.
func (h *LoginHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, loginFailure("Invalid request."))
		return
	}

	ownerID := strings.TrimSpace(body.OwnerID)
	appSecret := strings.TrimSpace(body.AppSecret)
	username := strings.TrimSpace(body.Username)
	hwid := strings.TrimSpace(body.HWID)
	if ownerID == "" || appSecret == "" || username == "" || body.Password == "" || hwid == "" {
		c.JSON(http.StatusBadRequest, loginFailure("Invalid request."))
		return
	}

	result, errLogin := h.engine.Login(c.Request.Context(), ownerID, appSecret, username, body.Password, hwid, c.ClientIP())
	if errLogin != nil {
		c.JSON(http.StatusOK, loginFailure(failureMessage(errLogin)))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Login successful.",
		"info": gin.H{
			"expires": result.ExpiresAt.UTC().Format(time.RFC3339),
		},
	})
}
