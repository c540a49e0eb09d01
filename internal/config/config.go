package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// AppConfig 应用配置
type AppConfig struct {
	Server   ServerConfig   `toml:"server" envPrefix:"SERVER_"`
	Database DatabaseConfig `toml:"database" envPrefix:"DB_"`
	Storage  StorageConfig  `toml:"storage" envPrefix:"STORAGE_"`
	ETL      ETLConfig      `toml:"etl" envPrefix:"ETL_"`
	Worker   WorkerConfig   `toml:"worker" envPrefix:"WORKER_"`
	Log      LogConfig      `toml:"log" envPrefix:"LOG_"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Host    string `toml:"host" env:"HOST"`
	Port    int    `toml:"port" env:"PORT"`
	DevMode bool   `toml:"dev_mode" env:"DEV_MODE"`
}

// DatabaseConfig SQLite 配置
type DatabaseConfig struct {
	Path string `toml:"path" env:"PATH"`
}

// StorageConfig 上传文件目录
type StorageConfig struct {
	UploadDir string `toml:"upload_dir" env:"UPLOAD_DIR"`
}

// ETLConfig 解析与加载参数
type ETLConfig struct {
	// ShiftHours 一个人工班次的小时数，用于人工时换算
	ShiftHours   float64 `toml:"shift_hours" env:"SHIFT_HOURS"`
	UnitMaxLen   int     `toml:"unit_max_len" env:"UNIT_MAX_LEN"`
	FallbackUnit string  `toml:"fallback_unit" env:"FALLBACK_UNIT"`
}

// WorkerConfig 后台导入任务配置
type WorkerConfig struct {
	Concurrency int `toml:"concurrency" env:"CONCURRENCY"`
	QueueSize   int `toml:"queue_size" env:"QUEUE_SIZE"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `toml:"level" env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"`
}

// LoadConfigInfo 配置加载元信息
type LoadConfigInfo struct {
	Path          string
	FileFound     bool
	PortSpecified bool
}

const envPrefix = "EXCEL2WEB_"

// DefaultConfig 默认配置
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Database: DatabaseConfig{
			Path: filepath.Join("data", "excel2web.db"),
		},
		Storage: StorageConfig{
			UploadDir: filepath.Join("data", "uploads"),
		},
		ETL: ETLConfig{
			ShiftHours:   8,
			UnitMaxLen:   32,
			FallbackUnit: "ед",
		},
		Worker: WorkerConfig{
			Concurrency: 2,
			QueueSize:   64,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func isPortSpecifiedInToml(data []byte) bool {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return false
	}

	serverMap, ok := raw["server"].(map[string]any)
	if !ok {
		return false
	}

	_, ok = serverMap["port"]
	return ok
}

// LoadConfigWithInfo 加载配置：默认值 -> config.toml -> .env -> EXCEL2WEB_* 环境变量
// path 为空时读取当前目录下的 config.toml
func LoadConfigWithInfo(path string) (*AppConfig, LoadConfigInfo, error) {
	if path == "" {
		path = "config.toml"
	}
	info := LoadConfigInfo{Path: path}
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		info.FileFound = true
		info.PortSpecified = isPortSpecifiedInToml(data)
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, info, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		// 配置文件不存在，使用默认配置
	default:
		return nil, info, fmt.Errorf("read %s: %w", path, err)
	}

	// .env 仅补充未设置的环境变量
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, info, fmt.Errorf("load .env: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, info, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, info, err
	}
	return cfg, info, nil
}

// Validate 检查配置取值
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.ETL.ShiftHours <= 0 {
		return fmt.Errorf("etl.shift_hours must be positive, got %v", c.ETL.ShiftHours)
	}
	if c.ETL.UnitMaxLen <= 0 {
		return fmt.Errorf("etl.unit_max_len must be positive, got %d", c.ETL.UnitMaxLen)
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 1
	}
	if c.Worker.QueueSize <= 0 {
		c.Worker.QueueSize = 1
	}
	return nil
}

// Addr 监听地址
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// EnsureDirs 确保数据库目录与上传目录存在
func EnsureDirs(cfg *AppConfig) error {
	dirs := []string{filepath.Dir(cfg.Database.Path), cfg.Storage.UploadDir}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// SaveConfig 保存配置到指定路径
func SaveConfig(cfg *AppConfig, path string) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
