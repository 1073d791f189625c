package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/cloudez/cloudez/internal/config"
	"github.com/cloudez/cloudez/internal/db"
	"github.com/cloudez/cloudez/internal/http/api/admin"
	adminhandlers "github.com/cloudez/cloudez/internal/http/api/admin/handlers"
	"github.com/cloudez/cloudez/internal/http/api/front"
	"github.com/cloudez/cloudez/internal/ratelimit"
	"github.com/cloudez/cloudez/internal/realtime"
	internalsettings "github.com/cloudez/cloudez/internal/settings"
	"github.com/cloudez/cloudez/internal/storage"
)

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn)
}

// RunServer boots the API server with database-backed components.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	initialized, errInit := HasAdminInitialized(conn)
	if errInit != nil {
		return errInit
	}
	var initState atomic.Bool
	initState.Store(initialized)

	if errSnapshot := adminhandlers.RefreshSettingsSnapshot(ctx, conn); errSnapshot != nil {
		return errSnapshot
	}

	jwtConfig, _ := config.LoadJWTConfig(configPath)
	storageConfig, errStorage := config.LoadStorageConfig(configPath)
	if errStorage != nil {
		return errStorage
	}
	redisConfig, _ := config.LoadRedisConfig(configPath)
	rateLimitConfig, _ := config.LoadRateLimitConfig(configPath)

	registry := ratelimit.NewRegistry(ratelimit.LoadRulesFromDB(conn), nil)
	counters := ratelimit.NewManagerFromConfig(redisConfig, ratelimit.NewGormStore(conn), nil)
	limiter := ratelimit.NewService(registry, counters)

	sweeper := ratelimit.NewSweeper(limiter, rateLimitConfig.CleanupInterval, rateLimitConfig.Retention)
	sweeper.Start(ctx)

	signer, errSigner := storage.NewSigner(storageConfig.SigningSecret, storageConfig.URLTTL, nil)
	if errSigner != nil {
		return errSigner
	}
	objectStore, errStore := storage.NewLocalStore(storageConfig.Dir)
	if errStore != nil {
		return errStore
	}
	hub := realtime.NewHub()

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	admin.RegisterAdminRoutes(engine, conn, jwtConfig, limiter, rateLimitConfig)
	front.RegisterFrontRoutes(engine, conn, jwtConfig, limiter, signer, objectStore, hub)

	engine.GET("/v0/init/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, InitStatusResponse{Initialized: initState.Load()})
	})
	engine.GET("/v0/init/prefill", func(c *gin.Context) {
		prefill, errPrefill := config.PrefillFromDSN(dsn)
		if errPrefill != nil {
			c.JSON(http.StatusOK, gin.H{"locked": true})
			return
		}
		c.JSON(http.StatusOK, struct {
			Locked bool `json:"locked"`
			config.DatabasePrefill
		}{Locked: true, DatabasePrefill: prefill})
	})
	engine.POST("/v0/init/setup", func(c *gin.Context) {
		if ok, errCheck := HasAdminInitialized(conn); errCheck != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "check admin status failed"})
			return
		} else if ok {
			initState.Store(true)
			c.JSON(http.StatusBadRequest, gin.H{"error": "System already initialized"})
			return
		}

		var req InitRequest
		if errBind := c.ShouldBindJSON(&req); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errBind.Error()})
			return
		}

		req.SiteName = strings.TrimSpace(req.SiteName)
		if req.SiteName == "" {
			req.SiteName = internalsettings.DefaultSiteName
		}

		req.AdminUsername = strings.TrimSpace(req.AdminUsername)
		if req.AdminUsername == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Admin username is required"})
			return
		}
		if strings.TrimSpace(req.AdminPassword) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Admin password is required"})
			return
		}
		if len(req.AdminPassword) < 6 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be at least 6 characters"})
			return
		}

		if errAdmin := CreateAdminUserWithConn(conn, req.AdminUsername, req.AdminPassword, req.SiteName); errAdmin != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("Failed to create admin: %v", errAdmin)})
			return
		}
		if errSnapshot := adminhandlers.RefreshSettingsSnapshot(c.Request.Context(), conn); errSnapshot != nil {
			log.WithError(errSnapshot).Error("refresh settings snapshot failed")
		}
		initState.Store(true)
		c.JSON(http.StatusOK, gin.H{"message": "Initialization successful"})
	})

	port := config.LoadServerPort(configPath, defaultPort)
	if port <= 0 {
		port = 8319
	}
	addr := fmt.Sprintf(":%d", port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting server on %s with config=%s", addr, cfg.ConfigPath)
	if errListen := srv.ListenAndServe(); errListen != nil && errListen != http.ErrServerClosed {
		return errListen
	}
	return nil
}
