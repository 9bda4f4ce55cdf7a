package db

import (
	"fmt"
	"log/slog"
	"time"

	"zhulink-cascade/internal/config"
	"zhulink-cascade/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init 连接数据库并迁移四张内容表
func Init(conf config.DatabaseConfig) error {
	var err error
	DB, err = Open(conf)
	if err != nil {
		return err
	}
	slog.Info("Database connection established")

	if err := Migrate(DB); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	slog.Info("Database migration completed")
	return nil
}

// Open 建立连接并配置连接池
func Open(conf config.DatabaseConfig) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(DSN(conf)), &gorm.Config{
		Logger: gormLogger(conf.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if conf.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(conf.MaxIdleConns)
	}
	if conf.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(conf.MaxOpenConns)
	}
	if conf.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(conf.MaxLifetime) * time.Second)
	}
	return gdb, nil
}

// Migrate Auto Migrate
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.Forum{},
		&models.Post{},
		&models.Comment{},
		&models.Vote{},
	)
}

// DSN DATABASE_DSN 优先，否则由各字段拼接
func DSN(conf config.DatabaseConfig) string {
	if conf.DSN != "" {
		return conf.DSN
	}
	sslmode := "disable"
	if conf.SSLMode {
		sslmode = "require"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		conf.Host, conf.Username, conf.Password, conf.Database, conf.Port, sslmode)
}

func gormLogger(level string) logger.Interface {
	switch level {
	case "silent":
		return logger.Default.LogMode(logger.Silent)
	case "error":
		return logger.Default.LogMode(logger.Error)
	case "info":
		return logger.Default.LogMode(logger.Info)
	default:
		return logger.Default.LogMode(logger.Warn)
	}
}
