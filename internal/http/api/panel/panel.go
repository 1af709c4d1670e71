// Package panel wires the seller management surface: registration, login,
// TOTP management, applications, and end-user credentials.
package panel

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/keyforge-io/keyforge/internal/config"
	handlers "github.com/keyforge-io/keyforge/internal/http/api/panel/handlers"
	"github.com/keyforge-io/keyforge/internal/license"
	"github.com/keyforge-io/keyforge/internal/security"
	"github.com/keyforge-io/keyforge/internal/store"
)

// RegisterPanelRoutes registers panel routes, middleware, and handlers.
func RegisterPanelRoutes(r *gin.Engine, engine *license.Engine, st store.Store, jwtCfg config.JWTConfig) {
	if r == nil || engine == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(st)
	r.GET("/healthz", healthHandler.Healthz)

	panelGroup := r.Group("/v0/panel")

	authHandler := handlers.NewAuthHandler(engine, jwtCfg)
	panelGroup.POST("/register", authHandler.Register)
	panelGroup.POST("/login", authHandler.Login)

	authed := panelGroup.Group("")
	authed.Use(sellerAuthMiddleware(engine, jwtCfg))

	authed.POST("/totp/prepare", authHandler.PrepareTOTP)
	authed.POST("/totp/confirm", authHandler.ConfirmTOTP)
	authed.POST("/totp/disable", authHandler.DisableTOTP)
	authed.DELETE("/account", authHandler.DeleteAccount)

	appHandler := handlers.NewAppHandler(engine)
	authed.POST("/apps", appHandler.Create)
	authed.GET("/apps", appHandler.List)
	authed.PUT("/apps/:appid/webhook", appHandler.UpdateWebhook)
	authed.DELETE("/apps/:appid", appHandler.Delete)

	userHandler := handlers.NewUserHandler(engine)
	authed.POST("/apps/:appid/users", userHandler.Create)
	authed.GET("/apps/:appid/users", userHandler.List)
	authed.POST("/users/:id/extend", userHandler.Extend)
	authed.DELETE("/users/:id", userHandler.Delete)
}

// sellerAuthMiddleware validates seller JWTs and loads seller context.
func sellerAuthMiddleware(engine *license.Engine, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseSellerToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		seller, errFind := engine.SellerByOwnerID(c.Request.Context(), claims.OwnerID)
		if errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "seller not found"})
			return
		}

		c.Set("ownerID", seller.OwnerID)
		c.Set("sellerUsername", seller.Username)
		c.Next()
	}
}
