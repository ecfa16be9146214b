package portal

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Config holds the configuration for the control-plane service.
type Config struct {
	DB                 *gorm.DB
	RedisClient        *redis.Client
	CacheTTL           time.Duration
	CachePrefix        string
	AutoMigrate        bool
	EnableAuditLogging bool
	BulkWorkers        int
}

// Service is the access and moderation control plane: permission catalog,
// dashboard resolution, scoped data access, and the two content lifecycles.
type Service struct {
	db           *gorm.DB
	redis        *redis.Client
	cacheTTL     time.Duration
	cachePrefix  string
	auditEnabled bool
	bulkWorkers  int
}

// Identity is the authenticated user descriptor supplied by the external
// authentication collaborator on every operation.
type Identity struct {
	UserID     uint
	Role       string
	Privileges []string
}

// NewService initializes the control-plane service. The Redis client is
// optional; without it caching is disabled, not failed.
func NewService(cfg Config) (*Service, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}

	if cfg.CachePrefix == "" {
		cfg.CachePrefix = "portal:"
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 30 * time.Minute
	}
	if cfg.BulkWorkers <= 0 {
		cfg.BulkWorkers = 10
	}

	if cfg.AutoMigrate {
		err := cfg.DB.AutoMigrate(
			&Privilege{}, &Role{}, &RolePrivilege{},
			&RoleDashboardConfig{},
			&DepartmentAssignment{}, &WardAssignment{}, &ProjectAssignment{}, &DataFilter{},
			&Feedback{}, &ModerationEvent{},
			&ContentItem{}, &ProjectPhoto{},
			&AuditLog{},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to auto-migrate: %w", err)
		}
	}

	return &Service{
		db:           cfg.DB,
		redis:        cfg.RedisClient,
		cacheTTL:     cfg.CacheTTL,
		cachePrefix:  cfg.CachePrefix,
		auditEnabled: cfg.EnableAuditLogging,
		bulkWorkers:  cfg.BulkWorkers,
	}, nil
}
