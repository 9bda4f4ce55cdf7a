// Package config 配置管理：config.yaml + 环境变量覆盖
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	Conf *AppConfig
	once sync.Once
)

// AppConfig 应用配置结构
type AppConfig struct {
	Server   ServerConfig   `koanf:"server"`
	Session  SessionConfig  `koanf:"session"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Cascade  CascadeConfig  `koanf:"cascade"`
	Reaper   ReaperConfig   `koanf:"reaper"`
	Cache    CacheConfig    `koanf:"cache"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Port int    `koanf:"port"`
	Mode string `koanf:"mode"` // debug, release, test
}

type SessionConfig struct {
	Name   string `koanf:"name"`
	Secret string `koanf:"secret"`
}

type DatabaseConfig struct {
	DSN          string `koanf:"dsn"` // 非空时优先使用
	Host         string `koanf:"host"`
	Port         int    `koanf:"port"`
	Username     string `koanf:"username"`
	Password     string `koanf:"password"`
	Database     string `koanf:"database"`
	SSLMode      bool   `koanf:"sslmode"`
	LogLevel     string `koanf:"log_level"` // silent, error, warn, info
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	MaxLifetime  int    `koanf:"max_lifetime"` // 秒
}

type RedisConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type CascadeConfig struct {
	Workers   int            `koanf:"workers" validate:"gt=0"`
	QueueSize int            `koanf:"queue_size" validate:"gte=0"`
	BatchSize int            `koanf:"batch_size" validate:"gt=0"`
	MaxDepth  int            `koanf:"max_depth" validate:"gt=0"`
	Counters  CountersConfig `koanf:"counters"`
}

// CountersConfig 计数器调整策略
// 默认值与原有行为一致：删除帖子不减少版块的 post_count
type CountersConfig struct {
	DecrementForumPostCount bool `koanf:"decrement_forum_post_count"`
	SkipCommentCounters     bool `koanf:"skip_comment_counters"`
}

type ReaperConfig struct {
	Enabled       bool          `koanf:"enabled"`
	RunAt         string        `koanf:"run_at" validate:"clock"` // HH:MM，本地时间
	RetentionDays int           `koanf:"retention_days" validate:"gte=0"`
	LockTTL       time.Duration `koanf:"lock_ttl"`
}

type CacheConfig struct {
	Size int           `koanf:"size" validate:"gte=0"`
	TTL  time.Duration `koanf:"ttl"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

// Default 返回全部默认值，没有配置文件时服务也能启动
func Default() *AppConfig {
	return &AppConfig{
		Server:  ServerConfig{Port: 8080, Mode: "release"},
		Session: SessionConfig{Name: "zhulink_session", Secret: "secret_key_change_me"},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			Username:     "postgres",
			Password:     "postgres",
			Database:     "zhulink",
			LogLevel:     "warn",
			MaxOpenConns: 100,
			MaxIdleConns: 10,
			MaxLifetime:  3600,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Cascade: CascadeConfig{
			Workers:   4,
			QueueSize: 1000,
			BatchSize: 100,
			MaxDepth:  100,
		},
		Reaper: ReaperConfig{
			Enabled:       true,
			RunAt:         "03:00",
			RetentionDays: 30,
			LockTTL:       2 * time.Hour,
		},
		Cache: CacheConfig{Size: 500, TTL: 10 * time.Minute},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// Load 加载配置文件，configPath 为空或文件不存在时只使用默认值和环境变量
func Load(configPath string) error {
	var err error
	once.Do(func() {
		Conf, err = Parse(configPath)
	})
	return err
}

// MustLoad 加载配置，失败则 panic
func MustLoad(configPath string) {
	if err := Load(configPath); err != nil {
		panic(fmt.Sprintf("配置加载失败: %v", err))
	}
}

// Parse 每次调用都重新读取，不影响全局 Conf
func Parse(configPath string) (*AppConfig, error) {
	// 首先加载 .env 文件到环境变量
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, finding env vars from system")
	}

	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			slog.Warn("加载配置文件失败，使用默认配置", "path", configPath, "error", err)
		}
	}

	// 环境变量覆盖配置文件：CASCADE_WORKERS -> cascade.workers
	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		slog.Warn("加载环境变量失败", "error", err)
	}

	conf := Default()
	if err := k.Unmarshal("", conf); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

var sections = map[string]bool{
	"server": true, "session": true, "database": true, "redis": true,
	"cascade": true, "reaper": true, "cache": true, "log": true,
}

// envKey 只保留第一段下划线作为层级分隔，CASCADE_BATCH_SIZE -> cascade.batch_size
// 返回空字符串的变量会被 koanf 忽略
func envKey(s string) string {
	s = strings.ToLower(s)
	section, rest, found := strings.Cut(s, "_")
	if !found || !sections[section] || rest == "" {
		return ""
	}
	// counters 是 cascade 下的二级结构
	if section == "cascade" && strings.HasPrefix(rest, "counters_") {
		return "cascade.counters." + strings.TrimPrefix(rest, "counters_")
	}
	return section + "." + rest
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// 错误信息使用配置文件里的键名
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
		return name
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, _, err := ReaperConfig{RunAt: fl.Field().String()}.Clock()
		return err == nil
	})
	return v
}

// Validate 检查会导致运行期异常的配置
func (c *AppConfig) Validate() error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace 形如 AppConfig.cascade.workers
		_, key, _ := strings.Cut(fe.Namespace(), ".")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s, got %v", key, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must be a valid %s, got %q", key, fe.Tag(), fe.Value()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Clock 解析 run_at 为时、分
func (r ReaperConfig) Clock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", r.RunAt)
	if err != nil {
		return 0, 0, fmt.Errorf("reaper.run_at must be HH:MM, got %q: %w", r.RunAt, err)
	}
	return t.Hour(), t.Minute(), nil
}
