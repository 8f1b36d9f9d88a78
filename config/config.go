package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Sentry   SentryConfig   `mapstructure:"sentry"`
	Timeline TimelineConfig `mapstructure:"timeline"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
	// Domain 本实例的联邦域名，如 social.example.com
	Domain string `mapstructure:"domain"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // postgres, sqlite
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SentryConfig 异常上报配置
type SentryConfig struct {
	DSN string `mapstructure:"dsn"`
}

// TimelineConfig 时间线配置
type TimelineConfig struct {
	// MaxItems 单条时间线保留上限，超出按分值淘汰最旧
	MaxItems int `mapstructure:"max_items"`
}

// ResolverConfig 远端身份解析配置
type ResolverConfig struct {
	// Staleness 超过该时长的远端账号需要重新解析
	Staleness   time.Duration `mapstructure:"staleness"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	// Insecure 使用 http 访问远端（仅本地联调）
	Insecure bool `mapstructure:"insecure"`
}

// DeliveryConfig 出站投递配置
type DeliveryConfig struct {
	Workers          int           `mapstructure:"workers"`
	QueueSize        int           `mapstructure:"queue_size"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	HTTPTimeout      time.Duration `mapstructure:"http_timeout"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCoolOff   time.Duration `mapstructure:"breaker_cool_off"`
	// OutboundRPS 出站请求全局限速
	OutboundRPS float64 `mapstructure:"outbound_rps"`
}

// Load 加载配置：默认值 < config.yaml < 环境变量（前缀 FEDIGRAPH_）
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("FEDIGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件可选，读不到时仅依赖默认值与环境变量
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.domain", "localhost")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "fedigraph.db")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("timeline.max_items", 800)

	v.SetDefault("resolver.staleness", 24*time.Hour)
	v.SetDefault("resolver.lock_ttl", 5*time.Second)
	v.SetDefault("resolver.http_timeout", 10*time.Second)
	v.SetDefault("resolver.insecure", false)

	v.SetDefault("delivery.workers", 8)
	v.SetDefault("delivery.queue_size", 10000)
	v.SetDefault("delivery.max_attempts", 8)
	v.SetDefault("delivery.http_timeout", 30*time.Second)
	v.SetDefault("delivery.breaker_threshold", 5)
	v.SetDefault("delivery.breaker_cool_off", 60*time.Second)
	v.SetDefault("delivery.outbound_rps", 50)
}
