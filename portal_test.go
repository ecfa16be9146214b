package portal

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestService spins up the control plane against an in-memory SQLite
// database and a miniredis instance.
func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	svc, err := NewService(Config{
		DB:                 db,
		RedisClient:        client,
		CacheTTL:           time.Minute,
		AutoMigrate:        true,
		EnableAuditLogging: true,
	})
	require.NoError(t, err)
	return svc
}

// adminIdentity bypasses privilege checks in tests that are not about
// authorization.
func adminIdentity() Identity {
	return Identity{UserID: 1, Role: AdminRole}
}

func (s *Service) auditCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, s.db.Model(&AuditLog{}).Count(&n).Error)
	return n
}
