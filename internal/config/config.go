// Package config 统一配置管理
//
// 配置加载策略：
//  1. 从 .env 加载敏感信息（BOT_TOKEN、数据库密码、对象存储密钥）和 APP_ENV
//  2. 根据 APP_ENV 加载对应的 configs/{env}.yaml 配置文件
//  3. 环境变量可覆盖 YAML 配置
//
// 使用方式：
//   - 开发环境: APP_ENV=dev (默认)
//   - 测试环境: APP_ENV=test
//   - 生产环境: APP_ENV=prod
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"chatops-bot/internal/objstore"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Bot      BotConfig       `yaml:"bot"`
	Server   ServerConfig    `yaml:"server"`
	Database DatabaseConfig  `yaml:"database"`
	Redis    RedisConfig     `yaml:"redis"`
	Minio    objstore.Config `yaml:"minio"`
	Exec     ExecConfig      `yaml:"exec"`
	Stats    StatsConfig     `yaml:"stats"`
}

// BotConfig 机器人行为配置
type BotConfig struct {
	Name        string `yaml:"name"`         // @bot 后缀校验用的机器人名
	APIBaseURL  string `yaml:"api_base_url"` // 平台 API 地址
	PollTimeout string `yaml:"poll_timeout"` // 长轮询等待时长，例如 "60s"
}

// ServerConfig 运维服务配置
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver  string `yaml:"driver"` // postgres / sqlite
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	User    string `yaml:"user"`
	Name    string `yaml:"name"`
	SSLMode string `yaml:"sslmode"`
	DSN     string `yaml:"dsn"` // sqlite 专用
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	DB   int    `yaml:"db"`
}

// ExecConfig 隔离命令执行配置
type ExecConfig struct {
	Image       string  `yaml:"image"`
	WorkDir     string  `yaml:"workdir"`
	CPUs        float64 `yaml:"cpus"`
	StopTimeout int     `yaml:"stop_timeout"`
	TimeoutSec  int     `yaml:"timeout_sec"`
	KillAfter   int     `yaml:"kill_after"`
}

// StatsConfig 统计落库配置
type StatsConfig struct {
	FlushInterval string `yaml:"flush_interval"` // 例如 "30s"
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env           Environment
	BotToken      string
	Bot           BotConfig
	PollTimeout   time.Duration
	ServerAddr    string
	DBDriver      string
	DatabaseURL   string
	SQLiteDSN     string
	RedisAddr     string
	RedisPass     string
	RedisDB       int
	Minio         objstore.Config
	Exec          ExecConfig
	FlushInterval time.Duration
}

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
	"../../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
	"../../../.env",
}

// Load 加载配置
// 1. 加载 .env（敏感信息 + APP_ENV）
// 2. 根据 APP_ENV 加载 configs/{env}.yaml
// 3. 构建最终配置
func Load() *Config {
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	env := parseEnv(getEnv("APP_ENV", "dev"))
	yamlCfg := loadYAMLConfig(env)

	dbPassword := getEnv("DB_PASSWORD", "chatops_dev_password")
	yamlCfg.Minio.AccessKey = getEnv("MINIO_ACCESS_KEY", yamlCfg.Minio.AccessKey)
	yamlCfg.Minio.SecretKey = getEnv("MINIO_SECRET_KEY", yamlCfg.Minio.SecretKey)

	cfg := &Config{
		Env:           env,
		BotToken:      os.Getenv("BOT_TOKEN"),
		Bot:           yamlCfg.Bot,
		PollTimeout:   parseDuration(yamlCfg.Bot.PollTimeout, 60*time.Second),
		ServerAddr:    yamlCfg.Server.Addr,
		DBDriver:      yamlCfg.Database.Driver,
		DatabaseURL:   buildDatabaseURL(yamlCfg.Database, dbPassword),
		SQLiteDSN:     yamlCfg.Database.DSN,
		RedisAddr:     fmt.Sprintf("%s:%d", yamlCfg.Redis.Host, yamlCfg.Redis.Port),
		RedisPass:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:       yamlCfg.Redis.DB,
		Minio:         yamlCfg.Minio,
		Exec:          yamlCfg.Exec,
		FlushInterval: parseDuration(yamlCfg.Stats.FlushInterval, 30*time.Second),
	}

	return cfg
}

// parseDuration 解析时长字符串，空串或格式错误时回退默认值
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	cfg := &YAMLConfig{
		Bot: BotConfig{
			APIBaseURL:  "https://api.telegram.org",
			PollTimeout: "60s",
		},
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Driver: "postgres", Host: "localhost", Port: 5432, User: "chatops", Name: "chatops_bot", SSLMode: "disable"},
		Redis:    RedisConfig{Host: "localhost", Port: 6379, DB: 0},
		Exec: ExecConfig{
			Image:       "ubuntu",
			WorkDir:     "/root",
			CPUs:        0.2,
			StopTimeout: 1,
			TimeoutSec:  300,
			KillAfter:   5,
		},
		Stats: StatsConfig{FlushInterval: "30s"},
	}

	for _, base := range configPaths {
		path := filepath.Join(base, "common.yaml")
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range configPaths {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	return cfg
}

// buildDatabaseURL 构建 PostgreSQL 连接字符串
func buildDatabaseURL(db DatabaseConfig, password string) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.User, password, db.Host, db.Port, db.Name, db.SSLMode)
}

func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// String 返回配置摘要（隐藏敏感信息）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Bot: %s, DB: %s, Redis: %s}",
		c.Env, c.Bot.Name, maskPassword(c.DatabaseURL), c.RedisAddr)
}

// maskPassword 隐藏密码
func maskPassword(url string) string {
	re := regexp.MustCompile(`(://[^:]+:)([^@]+)(@)`)
	return re.ReplaceAllString(url, "${1}***${3}")
}
