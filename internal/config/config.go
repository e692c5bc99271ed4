package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`       // 服务器配置
	Database    DatabaseConfig    `mapstructure:"database"`     // PostgreSQL配置
	Log         LogConfig         `mapstructure:"log"`          // 日志配置
	Settlement  SettlementConfig  `mapstructure:"settlement"`   // 结算配置
	AutoResolve AutoResolveConfig `mapstructure:"auto_resolve"` // 自动结算调度配置
	Oracle      OracleConfig      `mapstructure:"oracle"`       // 价格预言机
	NFT         NFTConfig         `mapstructure:"nft"`          // NFT 加成
	Redis       RedisConfig       `mapstructure:"redis"`        // Redis（价格缓存、徽章事件）
	Archive     ArchiveConfig     `mapstructure:"archive"`      // 结算报告归档（S3）
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int           `mapstructure:"port"`            // 服务端口
	Mode           string        `mapstructure:"mode"`            // Gin运行模式：debug/release/test
	RequestTimeout time.Duration `mapstructure:"request_timeout"` // 单请求超时
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN（URL 形式）
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
	LogLevel        string        `mapstructure:"log_level"`         // GORM 日志级别：silent/error/warn/info
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug/info/warn/error
	Format string `mapstructure:"format"` // text/json
}

// SettlementConfig 结算配置
type SettlementConfig struct {
	PayoutBatchSize int           `mapstructure:"payout_batch_size"` // 每个事务处理的赢家数
	ReferralRate    float64       `mapstructure:"referral_rate"`     // 推荐佣金比例（按盈利计）
	BonusBatchSize  int           `mapstructure:"bonus_batch_size"`  // NFT 加成并发处理人数
	BonusTimeout    time.Duration `mapstructure:"bonus_timeout"`     // 后台触发加成的整体超时
	PayoutTimeout   time.Duration `mapstructure:"payout_timeout"`    // 抢占成功后派彩的独立超时，不随调用方取消
}

// AutoResolveConfig 自动结算调度配置
type AutoResolveConfig struct {
	Enabled      bool          `mapstructure:"enabled"`       // 是否启动定时扫描
	Cron         string        `mapstructure:"cron"`          // Cron 表达式（带秒）
	LockName     string        `mapstructure:"lock_name"`     // 全局锁行名称
	LockTTL      time.Duration `mapstructure:"lock_ttl"`      // 锁有效期
	Grace        time.Duration `mapstructure:"grace"`         // 收盘后等待时间，保证预言机历史数据已落定
	BatchSize    int           `mapstructure:"batch_size"`    // 每批并发处理的市场数
	BatchPause   time.Duration `mapstructure:"batch_pause"`   // 批次间暂停，避免触发预言机限流
	BonusReserve time.Duration `mapstructure:"bonus_reserve"` // 锁剩余时间不足该值时跳过 NFT 加成
	ScanLimit    int           `mapstructure:"scan_limit"`    // 单次扫描的最大市场数
}

// OracleConfig 价格预言机配置
type OracleConfig struct {
	BaseURL        string        `mapstructure:"base_url"`        // API基础地址
	APIKey         string        `mapstructure:"api_key"`         // API Key（可空）
	Timeout        time.Duration `mapstructure:"timeout"`         // 单次请求超时
	MaxRetries     int           `mapstructure:"max_retries"`     // 429/5xx 最大重试次数
	InitialBackoff time.Duration `mapstructure:"initial_backoff"` // 首次退避时间
	Tolerance      time.Duration `mapstructure:"tolerance"`       // 取价时间窗口（收盘时间前后）
	Proxy          string        `mapstructure:"proxy"`           // 代理地址
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`       // Redis 缓存时间
}

// NFTCollection 单个 NFT 合约及其倍数
type NFTCollection struct {
	Address    string  `mapstructure:"address"`    // ERC-721 合约地址
	Multiplier float64 `mapstructure:"multiplier"` // 持有时的奖励倍数
}

// NFTConfig NFT 加成配置
type NFTConfig struct {
	RPCURL          string          `mapstructure:"rpc_url"`          // 主 RPC
	FallbackRPCURL  string          `mapstructure:"fallback_rpc_url"` // 备用 RPC
	Timeout         time.Duration   `mapstructure:"timeout"`          // 主 RPC 查询超时
	FallbackTimeout time.Duration   `mapstructure:"fallback_timeout"` // 备用 RPC 查询超时
	Collections     []NFTCollection `mapstructure:"collections"`      // 参与加成的合约
	MaxMultiplier   float64         `mapstructure:"max_multiplier"`   // 倍数上限
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// ArchiveConfig 结算报告归档配置
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"` // S3 兼容存储地址，可空
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	return LoadConfigFrom("./config")
}

// LoadConfigFrom 从指定目录加载 config.yaml
func LoadConfigFrom(dir string) (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	v.SetTypeByDefaultValue(true)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.request_timeout", 30*time.Second)

	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("settlement.payout_batch_size", 3)
	v.SetDefault("settlement.referral_rate", 0.10)
	v.SetDefault("settlement.bonus_batch_size", 3)
	v.SetDefault("settlement.bonus_timeout", 2*time.Minute)
	v.SetDefault("settlement.payout_timeout", 5*time.Minute)

	v.SetDefault("auto_resolve.enabled", true)
	v.SetDefault("auto_resolve.cron", "0 */5 * * * *")
	v.SetDefault("auto_resolve.lock_name", "auto_resolve")
	v.SetDefault("auto_resolve.lock_ttl", 5*time.Minute)
	v.SetDefault("auto_resolve.grace", 10*time.Minute)
	v.SetDefault("auto_resolve.batch_size", 2)
	v.SetDefault("auto_resolve.batch_pause", time.Second)
	v.SetDefault("auto_resolve.bonus_reserve", time.Minute)
	v.SetDefault("auto_resolve.scan_limit", 50)

	v.SetDefault("oracle.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("oracle.timeout", 10*time.Second)
	v.SetDefault("oracle.max_retries", 3)
	v.SetDefault("oracle.initial_backoff", 500*time.Millisecond)
	v.SetDefault("oracle.tolerance", 30*time.Minute)
	v.SetDefault("oracle.cache_ttl", 24*time.Hour)

	v.SetDefault("nft.timeout", 4*time.Second)
	v.SetDefault("nft.fallback_timeout", 2*time.Second)
	v.SetDefault("nft.max_multiplier", 3.0)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.prefix", "settlements")
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("NFT_RPC_URL"); v != "" {
		cfg.NFT.RPCURL = v
	}
	if v := os.Getenv("ORACLE_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("ORACLE_PROXY"); v != "" {
		cfg.Oracle.Proxy = v
	}
	if v := os.Getenv("ARCHIVE_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("ARCHIVE_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}
}
