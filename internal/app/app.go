// Package app boots the license server: configuration, store selection,
// engine wiring, and the HTTP surface.
package app

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/keyforge-io/keyforge/internal/config"
	"github.com/keyforge-io/keyforge/internal/db"
	"github.com/keyforge-io/keyforge/internal/http/api/client"
	"github.com/keyforge-io/keyforge/internal/http/api/panel"
	"github.com/keyforge-io/keyforge/internal/license"
	"github.com/keyforge-io/keyforge/internal/notify"
	"github.com/keyforge-io/keyforge/internal/store"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RunServer boots the API server with the store selected by the DSN.
func RunServer(ctx context.Context, configPath string, port int) error {
	configPath = config.ResolveConfigPath(configPath)

	dsn, errDSN := config.LoadDatabaseDSN(configPath)
	if errDSN != nil {
		return errDSN
	}
	jwtCfg, _ := config.LoadJWTConfig(configPath)
	if strings.TrimSpace(jwtCfg.Secret) == "" {
		return fmt.Errorf("app: missing jwt secret (set `jwt.secret` in config file or JWT_SECRET)")
	}
	notifyCfg := config.LoadNotifyConfig(configPath)

	st, closeStore, errStore := OpenStore(ctx, dsn)
	if errStore != nil {
		return errStore
	}
	defer closeStore()

	dispatcher := notify.NewDispatcher(notifyCfg.Timeout)
	dispatcher.Start(ctx)

	engine := license.NewEngine(st, license.WithNotifier(dispatcher))

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	panel.RegisterPanelRoutes(router, engine, st, jwtCfg)
	client.RegisterClientRoutes(router, engine)

	addr := fmt.Sprintf(":%d", port)
	if override := strings.TrimSpace(os.Getenv(config.EnvListenAddr)); override != "" {
		addr = override
	}
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting server on %s with config=%s", addr, configPath)
	if errListen := srv.ListenAndServe(); errListen != nil && errListen != http.ErrServerClosed {
		return errListen
	}
	return nil
}

// OpenStore selects and opens a store backend by DSN: "memory" for the
// in-memory store, mongodb:// for MongoDB, anything else for the relational
// backends. The returned func releases backend resources.
func OpenStore(ctx context.Context, dsn string) (store.Store, func(), error) {
	dsn = strings.TrimSpace(dsn)
	lower := strings.ToLower(dsn)

	switch {
	case lower == "memory":
		return store.NewMemoryStore(), func() {}, nil

	case strings.HasPrefix(lower, "mongodb://") || strings.HasPrefix(lower, "mongodb+srv://"):
		clientCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		mongoClient, errConnect := mongo.Connect(clientCtx, options.Client().ApplyURI(dsn))
		if errConnect != nil {
			return nil, nil, fmt.Errorf("app: connect mongodb: %w", errConnect)
		}
		closeClient := func() {
			disconnectCtx, cancelDisconnect := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelDisconnect()
			if errDisconnect := mongoClient.Disconnect(disconnectCtx); errDisconnect != nil {
				log.Errorf("mongodb disconnect error: %v", errDisconnect)
			}
		}
		st, errStore := store.NewMongoStore(clientCtx, mongoClient.Database(mongoDatabaseName(dsn)))
		if errStore != nil {
			closeClient()
			return nil, nil, fmt.Errorf("app: init mongodb store: %w", errStore)
		}
		return st, closeClient, nil

	default:
		conn, errOpen := db.Open(dsn)
		if errOpen != nil {
			return nil, nil, errOpen
		}
		if errMigrate := db.Migrate(conn); errMigrate != nil {
			return nil, nil, errMigrate
		}
		closeConn := func() {
			sqlDB, errDB := conn.DB()
			if errDB != nil {
				return
			}
			if errClose := sqlDB.Close(); errClose != nil {
				log.Errorf("sql db close error: %v", errClose)
			}
		}
		return store.NewGormStore(conn), closeConn, nil
	}
}

// defaultMongoDatabase is used when the DSN names no database.
const defaultMongoDatabase = "keyforge"

// mongoDatabaseName extracts the database name from a MongoDB DSN.
func mongoDatabaseName(dsn string) string {
	parsed, errParse := url.Parse(dsn)
	if errParse != nil {
		return defaultMongoDatabase
	}
	name := strings.Trim(parsed.Path, "/")
	if name == "" {
		return defaultMongoDatabase
	}
	return name
}

// corsMiddleware enables permissive CORS for browser panels.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
