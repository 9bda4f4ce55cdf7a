package testutils

import (
	"os"
	"testing"

	"zhulink-cascade/internal/db"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB 设置了 TEST_DATABASE_DSN 时连接 PostgreSQL，否则使用内存 SQLite
// 返回一个事务，测试结束后自动回滚
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dialector := sqlite.Open(":memory:")
	if dsn := os.Getenv("TEST_DATABASE_DSN"); dsn != "" {
		dialector = postgres.Open(dsn)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	// 每个 :memory: 连接都是独立的库，只保留一个连接
	sqlDB.SetMaxOpenConns(1)

	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	tx := gdb.Begin()
	t.Cleanup(func() {
		tx.Rollback()
		sqlDB.Close()
	})
	return tx
}
