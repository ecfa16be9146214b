package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"

	portal "github.com/countyworks/portal"
	"github.com/countyworks/portal/internal/config"
	"github.com/countyworks/portal/internal/db"
	"github.com/countyworks/portal/internal/routes"
	"github.com/countyworks/portal/zapLogger"
)

func main() {
	logFile := zapLogger.Init()

	cfg, err := config.LoadConfig()
	if err != nil {
		zapLogger.Log.Fatalf("Failed to load config: %v", err)
	}

	pgDB, err := db.NewPostgresDB(cfg)
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize PostgreSQL: %v", err)
	}
	zapLogger.Log.Info("Successfully connected to PostgreSQL database")
	defer pgDB.Close()

	redisDB, err := db.NewRedisClient(cfg)
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize Redis: %v", err)
	}
	zapLogger.Log.Info("Successfully connected to Redis")
	defer redisDB.Close()

	svc, err := portal.NewService(portal.Config{
		DB:                 pgDB.GormDB,
		RedisClient:        redisDB,
		CacheTTL:           cfg.CacheTTL,
		CachePrefix:        "portal:",
		AutoMigrate:        true,
		EnableAuditLogging: cfg.EnableAudit,
		BulkWorkers:        cfg.BulkWorkers,
	})
	if err != nil {
		zapLogger.Log.Fatalf("Failed to initialize portal service: %v", err)
	}

	app := fiber.New()

	app.Use(zapLogger.FiberLoggingMiddleware(logFile))

	// Identity is supplied by the external authentication collaborator; a
	// real deployment replaces this with its token-verifying middleware.
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("identity", portal.Identity{
			UserID: 1,
			Role:   portal.AdminRole,
		})
		return c.Next()
	})

	routes.Setup(app, svc)

	addr := fmt.Sprintf(":%d", cfg.AppPort)
	zapLogger.Log.Infof("Server started on port %d", cfg.AppPort)
	log.Fatal(app.Listen(addr))
}
