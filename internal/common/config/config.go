package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Sheets   SheetsConfig   `json:"sheets"`
	Sync     SyncConfig     `json:"sync"`
	Auth     AuthConfig     `json:"auth"`
	Consul   ConsulConfig   `json:"consul"`
	Jaeger   JaegerConfig   `json:"jaeger"`
	Log      LogConfig      `json:"log"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name     string `json:"name"`      // 服务名称
	Host     string `json:"host"`      // 服务地址
	Port     int    `json:"port"`      // 服务端口
	GRPCPort int    `json:"grpc_port"` // gRPC端口（健康检查）
	HTTPPort int    `json:"http_port"` // HTTP端口
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `json:"driver"`   // 数据库驱动
	Host     string `json:"host"`     // 数据库地址
	Port     int    `json:"port"`     // 数据库端口
	User     string `json:"user"`     // 用户名
	Password string `json:"password"` // 密码
	Database string `json:"database"` // 数据库名
	MaxIdle  int    `json:"max_idle"` // 最大空闲连接
	MaxOpen  int    `json:"max_open"` // 最大打开连接
}

// SheetsConfig 表格镜像端点配置（serverless 函数，见 sheetsync.Client）
type SheetsConfig struct {
	Endpoint       string `json:"endpoint"`        // 函数 URL
	Token          string `json:"token"`           // Bearer token
	TimeoutSeconds int    `json:"timeout_seconds"` // 单次请求超时
	FuelTab        string `json:"fuel_tab"`        // 加油记录 tab 名
	ReadingTab     string `json:"reading_tab"`     // 表读数 tab 名
}

// SyncConfig 对账任务配置
type SyncConfig struct {
	IntervalSeconds  int    `json:"interval_seconds"`   // 两次对账之间的间隔
	ChunkSize        int    `json:"chunk_size"`         // 批量写入分块大小
	ChunkDelayMillis int    `json:"chunk_delay_millis"` // 分块之间的固定延迟
	WriteRatePerSec  int    `json:"write_rate_per_sec"` // 表格写入限速（令牌桶）
	BreakerFailures  int    `json:"breaker_failures"`   // 熔断阈值
	BreakerResetSec  int    `json:"breaker_reset_sec"`  // 熔断恢复窗口
	SnapshotDir      string `json:"snapshot_dir"`       // 快照目录
	SnapshotKeep     int    `json:"snapshot_keep"`      // 快照保留份数
}

// AuthConfig 鉴权配置
type AuthConfig struct {
	Enabled       bool                `json:"enabled"`
	JWTSecret     string              `json:"jwt_secret"`
	Issuer        string              `json:"issuer"`
	Audience      string              `json:"audience"`
	TokenTTLHours int                 `json:"token_ttl_hours"`
	PublicMethods []string            `json:"public_methods"` // 免鉴权的 method/path
	RBAC          map[string][]string `json:"rbac"`           // method/path -> 允许的角色
	AdminUsername string              `json:"admin_username"` // 首次启动种的管理员账号
	AdminPassword string              `json:"admin_password"` // 留空则不种
}

// ConsulConfig Consul配置
type ConsulConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// JaegerConfig Jaeger配置
type JaegerConfig struct {
	Endpoint string  `json:"endpoint"`
	Sampler  float64 `json:"sampler"` // 采样率 0.0-1.0
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, file
	Path   string `json:"path"`   // 日志文件路径
}

// Interval 对账间隔
func (c SyncConfig) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

// ChunkDelay 分块间隔
func (c SyncConfig) ChunkDelay() time.Duration {
	if c.ChunkDelayMillis <= 0 {
		return 0
	}
	return time.Duration(c.ChunkDelayMillis) * time.Millisecond
}

// Timeout 表格端点请求超时
func (c SheetsConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TokenTTL access token 有效期
func (c AuthConfig) TokenTTL() time.Duration {
	if c.TokenTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.TokenTTLHours) * time.Hour
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// LoadConfig 加载配置
func LoadConfig(configPath string) (*Config, error) {
	var err error
	configOnce.Do(func() {
		globalConfig = &Config{}
		// 如果配置文件不存在，使用默认配置
		if _, err = os.Stat(configPath); os.IsNotExist(err) {
			logrus.Warnf("Config file not found: %s, using default config", configPath)
			globalConfig = defaultConfig()
			err = nil
			return
		}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file: %w", readErr)
			return
		}

		if unmarshalErr := json.Unmarshal(data, globalConfig); unmarshalErr != nil {
			err = fmt.Errorf("failed to parse config file: %w", unmarshalErr)
			return
		}
	})

	if err != nil {
		return nil, err
	}

	return globalConfig, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if globalConfig == nil {
		return defaultConfig()
	}
	return globalConfig
}

// defaultConfig 默认配置（开发环境）
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:     "fleet-api",
			Host:     "0.0.0.0",
			Port:     8080,
			GRPCPort: 50051,
			HTTPPort: 8080,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "root",
			Database: "abastech",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		Sheets: SheetsConfig{
			Endpoint:       "http://localhost:9000/sheets",
			Token:          "",
			TimeoutSeconds: 30,
			FuelTab:        "Abastecimentos",
			ReadingTab:     "Horimetros",
		},
		Sync: SyncConfig{
			IntervalSeconds:  300,
			ChunkSize:        20,
			ChunkDelayMillis: 1500,
			WriteRatePerSec:  5,
			BreakerFailures:  5,
			BreakerResetSec:  60,
			SnapshotDir:      "snapshots",
			SnapshotKeep:     10,
		},
		Auth: AuthConfig{
			Enabled:       true,
			JWTSecret:     "dev-secret-change-me",
			Issuer:        "abastech",
			Audience:      "fleet-api",
			TokenTTLHours: 24,
			PublicMethods: []string{"/api/auth/login", "/healthz"},
			RBAC:          map[string][]string{},
			AdminUsername: "admin",
			AdminPassword: "admin123",
		},
		Consul: ConsulConfig{
			Host: "localhost",
			Port: 8500,
		},
		Jaeger: JaegerConfig{
			Endpoint: "http://localhost:14268/api/traces",
			Sampler:  1.0,
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
			Output: "stdout",
			Path:   "logs/app.log",
		},
	}
}
