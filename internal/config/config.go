package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Log        LogConfig `mapstructure:"log"`
	Database   DatabaseConfig
	JWT        JWTConfig
	Tracing    TracingConfig `mapstructure:"tracing"`
	Redis      RedisConfig
	CORS       CORSConfig       `mapstructure:"cors"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	TestResult TestResultConfig `mapstructure:"test_result"`
	Grading    GradingConfig    `mapstructure:"grading"`
	Visit      VisitConfig      `mapstructure:"visit"`
	Statistics StatisticsConfig `mapstructure:"statistics"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
}

type ServerConfig struct {
	Port string
	Mode string
}

type LogConfig struct {
	File string `mapstructure:"file"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	DBName       string
	Charset      string
	ParseTime    bool
	MaxOpenConns int `mapstructure:"max_open_conns"`
	MaxIdleConns int `mapstructure:"max_idle_conns"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ServiceName       string `mapstructure:"service_name"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled  bool `mapstructure:"enabled"`
	Host     string
	Port     int
	Password string
	DB       int
}

type BreakerConfig struct {
	Name                string        `mapstructure:"name"`
	MaxRequests         uint32        `mapstructure:"max_requests"`         // 半开状态允许的试探请求数
	Interval            time.Duration `mapstructure:"interval"`             // 闭合状态计数清零周期
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`         // 打开多久后进入半开
	MinRequests         uint32        `mapstructure:"min_requests"`         // 计算失败率的最少请求数
	FailureRatio        float64       `mapstructure:"failure_ratio"`        // 失败率阈值
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"` // 连续失败阈值
}

type RetryConfig struct {
	MaxAttempts     uint64        `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

type TestResultConfig struct {
	DefaultPassingScore float64       `mapstructure:"default_passing_score"`
	TimeoutMinutes      int           `mapstructure:"timeout_minutes"`
	CleanupCron         string        `mapstructure:"cleanup_cron"`
	CleanupEnabled      bool          `mapstructure:"cleanup_enabled"`
	Breaker             BreakerConfig `mapstructure:"breaker"`
	Retry               RetryConfig   `mapstructure:"retry"`
}

type GradingConfig struct {
	RecordUnanswered bool `mapstructure:"record_unanswered"`
}

type VisitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	QueueSize      int  `mapstructure:"queue_size"`
	Workers        int  `mapstructure:"workers"`
	WriteTimeoutMs int  `mapstructure:"write_timeout_ms"`
}

type StatisticsConfig struct {
	MaxConcurrent int64 `mapstructure:"max_concurrent"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("log.file", "logs/app.log")

	v.SetDefault("database.port", 3306)
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.port", 6379)

	v.SetDefault("tracing.service_name", "quiz-assessment")
	v.SetDefault("rate_limit.max_requests", 100000)
	v.SetDefault("rate_limit.window_minutes", 1)

	v.SetDefault("test_result.default_passing_score", 70)
	v.SetDefault("test_result.timeout_minutes", 30)
	v.SetDefault("test_result.cleanup_cron", "0 */15 * * * *")
	v.SetDefault("test_result.cleanup_enabled", true)
	v.SetDefault("test_result.breaker.name", "testResultService")
	v.SetDefault("test_result.breaker.max_requests", 3)
	v.SetDefault("test_result.breaker.interval", "60s")
	v.SetDefault("test_result.breaker.open_timeout", "30s")
	v.SetDefault("test_result.breaker.min_requests", 5)
	v.SetDefault("test_result.breaker.failure_ratio", 0.5)
	v.SetDefault("test_result.breaker.consecutive_failures", 5)
	v.SetDefault("test_result.retry.max_attempts", 3)
	v.SetDefault("test_result.retry.initial_interval", "500ms")
	v.SetDefault("test_result.retry.max_interval", "5s")
	v.SetDefault("test_result.retry.multiplier", 2.0)

	v.SetDefault("grading.record_unanswered", false)

	v.SetDefault("visit.enabled", true)
	v.SetDefault("visit.queue_size", 1024)
	v.SetDefault("visit.workers", 2)
	v.SetDefault("visit.write_timeout_ms", 2000)

	v.SetDefault("statistics.max_concurrent", 4)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("QUIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Database
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	// 生产环境校验 JWT Secret 强度
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	if c.TestResult.TimeoutMinutes <= 0 {
		return fmt.Errorf("test_result.timeout_minutes must be positive, got %d", c.TestResult.TimeoutMinutes)
	}
	if c.TestResult.DefaultPassingScore < 0 || c.TestResult.DefaultPassingScore > 100 {
		return fmt.Errorf("test_result.default_passing_score must be within [0,100], got %v", c.TestResult.DefaultPassingScore)
	}
	if c.Visit.Workers <= 0 {
		c.Visit.Workers = 1
	}
	if c.Statistics.MaxConcurrent <= 0 {
		c.Statistics.MaxConcurrent = 1
	}
	return nil
}
