package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/keyforge-io/keyforge/internal/config"
	"github.com/keyforge-io/keyforge/internal/license"
	"github.com/keyforge-io/keyforge/internal/security"
)

// totpIssuer names the service in provisioning URLs.
const totpIssuer = "KeyForge"

// AuthHandler manages seller registration, login, and TOTP endpoints.
type AuthHandler struct {
	engine *license.Engine
	jwtCfg config.JWTConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(engine *license.Engine, jwtCfg config.JWTConfig) *AuthHandler {
	return &AuthHandler{engine: engine, jwtCfg: jwtCfg}
}

// sellerAuthRequest defines the request body for registration and login.
type sellerAuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code"`
}

// Register creates a new seller account.
func (h *AuthHandler) Register(c *gin.Context) {
	var body sellerAuthRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username"})
		return
	}
	if len(strings.TrimSpace(body.Password)) < 6 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 6 characters"})
		return
	}

	seller, errRegister := h.engine.RegisterSeller(c.Request.Context(), username, body.Password)
	if errRegister != nil {
		if errors.Is(errRegister, license.ErrSellerExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "seller username already taken"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "register failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"owner_id": seller.OwnerID, "username": seller.Username})
}

// Login verifies seller credentials (and TOTP when enabled) and issues a
// session token.
func (h *AuthHandler) Login(c *gin.Context) {
	var body sellerAuthRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing credentials"})
		return
	}

	seller, errLogin := h.engine.LoginSeller(c.Request.Context(), username, body.Password)
	if errLogin != nil {
		switch {
		case errors.Is(errLogin, license.ErrSellerNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "seller not found"})
		case errors.Is(errLogin, license.ErrInvalidPassword):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		}
		return
	}

	if seller.TOTPSecret != "" {
		code := strings.TrimSpace(body.TOTPCode)
		if code == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "totp code required", "totp_required": true})
			return
		}
		if !security.ValidateTOTP(seller.TOTPSecret, code) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid totp code"})
			return
		}
	}

	token, errToken := security.IssueSellerToken(h.jwtCfg.Secret, seller.OwnerID, h.jwtCfg.Expiry)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"owner_id":   seller.OwnerID,
		"token":      token,
		"expires_in": int64(h.jwtCfg.Expiry.Seconds()),
	})
}

// PrepareTOTP generates a TOTP secret for the seller to confirm. Nothing is
// persisted until ConfirmTOTP validates a code against the returned secret.
func (h *AuthHandler) PrepareTOTP(c *gin.Context) {
	username := c.GetString("sellerUsername")
	secret, url, errGenerate := security.GenerateTOTPSecret(totpIssuer, username)
	if errGenerate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate totp secret failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"secret": secret, "url": url})
}

// totpConfirmRequest defines the request body for TOTP confirmation.
type totpConfirmRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

// ConfirmTOTP validates the code against the prepared secret and enables
// TOTP for the seller.
func (h *AuthHandler) ConfirmTOTP(c *gin.Context) {
	var body totpConfirmRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	secret := strings.TrimSpace(body.Secret)
	code := strings.TrimSpace(body.Code)
	if secret == "" || code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing secret or code"})
		return
	}
	if !security.ValidateTOTP(secret, code) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid totp code"})
		return
	}

	ownerID := c.GetString("ownerID")
	if errSet := h.engine.SetSellerTOTP(c.Request.Context(), ownerID, secret); errSet != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enable totp failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DisableTOTP turns off TOTP for the seller.
func (h *AuthHandler) DisableTOTP(c *gin.Context) {
	ownerID := c.GetString("ownerID")
	if errSet := h.engine.SetSellerTOTP(c.Request.Context(), ownerID, ""); errSet != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "disable totp failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeleteAccount removes the seller with all applications and credentials.
func (h *AuthHandler) DeleteAccount(c *gin.Context) {
	ownerID := c.GetString("ownerID")
	if errDelete := h.engine.DeleteSeller(c.Request.Context(), ownerID); errDelete != nil {
		if errors.Is(errDelete, license.ErrSellerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
