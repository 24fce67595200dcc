package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// PleskConfig 定义远程 Plesk 控制面板 API 的连接参数
type PleskConfig struct {
	Host               string        // 控制面板地址，如 "https://plesk.example.com:8443"
	APIKey             string        // X-API-Key 认证密钥
	Timeout            time.Duration // 单次远程调用超时，默认 30 秒
	InsecureSkipVerify bool          // 是否跳过 TLS 证书校验（仅限自签名测试环境）
	RatePerSecond      float64       // 远程命令节流速率，0 表示不限速
}

// ProvisionConfig 定义批量开通邮箱的业务配置
type ProvisionConfig struct {
	AllowedDomains       []string // 允许开通的域名列表，为空表示不限制
	PasswordLength       int      // 自动生成密码的长度，默认 12
	MaxBatchSize         int      // 单批次最多处理的用户名数量，默认 200
	DefaultQuota         string   // 默认邮箱配额策略，留空表示不传
	DefaultOutgoingLimit int      // 默认外发邮件限制，0 表示不传
}

// ShareConfig 定义一次性密码分享链接的配置
type ShareConfig struct {
	BaseURL       string        // 取回链接前缀，令牌直接拼接在末尾
	EncryptionKey string        // 服务端加密密钥（经 HKDF 派生为 AES-256 密钥）
	TTL           time.Duration // 分享记录最长保留时间，默认 7 天
	Store         string        // 存储后端: "sql"、"postgres"、"redis" 或 "memory"
	Database      ShareDatabaseConfig
}

// ShareDatabaseConfig 定义独立的密码分享数据库
type ShareDatabaseConfig struct {
	Type string // "mysql" 或 "postgres"
	DSN  string
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到控制台
}

// DatabaseConfig 定义主数据库连接配置（操作员账户与审计日志）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 服务配置
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"，留空表示不启用
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// JWTConfig 定义 JWT 认证相关配置
type JWTConfig struct {
	Secret       string        // JWT 签名密钥，必须至少 32 字符
	Issuer       string        // JWT 签发者标识，默认 "mailprov"
	AccessExpiry time.Duration // 访问令牌有效期，默认 1 小时
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server    ServerConfig
	Plesk     PleskConfig
	Provision ProvisionConfig
	Share     ShareConfig
	CORS      CORSConfig
	Log       LogConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
}

const defaultJWTSecret = "change-me-in-production"

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: MAILPROV_，例如 MAILPROV_PLESK_HOST, MAILPROV_SHARE_ENCRYPTION_KEY
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("mailprov")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	plesk, err := loadPlesk(v)
	if err != nil {
		return nil, err
	}

	provision, err := loadProvision(v)
	if err != nil {
		return nil, err
	}

	share, err := loadShare(v)
	if err != nil {
		return nil, err
	}

	jwtCfg, err := loadJWT(v)
	if err != nil {
		return nil, err
	}

	corsOrigins := parseList(v.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	connMaxLifetime, err := time.ParseDuration(v.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		Plesk:     plesk,
		Provision: provision,
		Share:     share,
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
		},
		Database: DatabaseConfig{
			Type:            strings.ToLower(v.GetString("database.type")),
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: jwtCfg,
	}

	if cfg.Share.Store == "redis" && cfg.Redis.Address == "" {
		return nil, fmt.Errorf("share.store=redis requires redis.address")
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("plesk.host", "")
	v.SetDefault("plesk.api_key", "")
	v.SetDefault("plesk.timeout", "30s")
	v.SetDefault("plesk.insecure_skip_verify", false)
	v.SetDefault("plesk.rate_per_second", 0)
	v.SetDefault("provision.allowed_domains", "")
	v.SetDefault("provision.password_length", 12)
	v.SetDefault("provision.max_batch_size", 200)
	v.SetDefault("provision.default_quota", "")
	v.SetDefault("provision.default_outgoing_limit", 0)
	v.SetDefault("share.base_url", "https://passwords.example.com/share/retrieve?hash=")
	v.SetDefault("share.encryption_key", "")
	v.SetDefault("share.ttl", "168h")
	v.SetDefault("share.store", "memory")
	v.SetDefault("share.database.type", "mysql")
	v.SetDefault("share.database.dsn", "")
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("database.type", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", defaultJWTSecret)
	v.SetDefault("jwt.issuer", "mailprov")
	v.SetDefault("jwt.access_expiry", "1h")
}

func loadPlesk(v *viper.Viper) (PleskConfig, error) {
	host := strings.TrimRight(strings.TrimSpace(v.GetString("plesk.host")), "/")
	if host == "" {
		return PleskConfig{}, fmt.Errorf("plesk.host must not be empty")
	}
	apiKey := v.GetString("plesk.api_key")
	if apiKey == "" {
		return PleskConfig{}, fmt.Errorf("plesk.api_key must not be empty")
	}

	timeout, err := time.ParseDuration(v.GetString("plesk.timeout"))
	if err != nil {
		return PleskConfig{}, fmt.Errorf("invalid plesk.timeout: %w", err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	rps := v.GetFloat64("plesk.rate_per_second")
	if rps < 0 {
		rps = 0
	}

	return PleskConfig{
		Host:               host,
		APIKey:             apiKey,
		Timeout:            timeout,
		InsecureSkipVerify: v.GetBool("plesk.insecure_skip_verify"),
		RatePerSecond:      rps,
	}, nil
}

func loadProvision(v *viper.Viper) (ProvisionConfig, error) {
	length := v.GetInt("provision.password_length")
	if length < 8 {
		return ProvisionConfig{}, fmt.Errorf("provision.password_length must be at least 8, got %d", length)
	}

	maxBatch := v.GetInt("provision.max_batch_size")
	if maxBatch <= 0 {
		maxBatch = 200
	}

	limit := v.GetInt("provision.default_outgoing_limit")
	if limit < 0 {
		limit = 0
	}

	return ProvisionConfig{
		AllowedDomains:       parseDomains(v.GetString("provision.allowed_domains")),
		PasswordLength:       length,
		MaxBatchSize:         maxBatch,
		DefaultQuota:         strings.TrimSpace(v.GetString("provision.default_quota")),
		DefaultOutgoingLimit: limit,
	}, nil
}

func loadShare(v *viper.Viper) (ShareConfig, error) {
	key := v.GetString("share.encryption_key")
	// 至少 16 字符，避免弱密钥
	if len(key) < 16 {
		return ShareConfig{}, fmt.Errorf("SECURITY ERROR: share.encryption_key must be at least 16 characters long")
	}

	ttl, err := time.ParseDuration(v.GetString("share.ttl"))
	if err != nil {
		return ShareConfig{}, fmt.Errorf("invalid share.ttl: %w", err)
	}

	store := strings.ToLower(strings.TrimSpace(v.GetString("share.store")))
	switch store {
	case "sql", "postgres", "redis", "memory":
	default:
		return ShareConfig{}, fmt.Errorf("unsupported share.store: %q (supported: sql, postgres, redis, memory)", store)
	}

	dbType := strings.ToLower(v.GetString("share.database.type"))
	dsn := v.GetString("share.database.dsn")
	if (store == "sql" || store == "postgres") && dsn == "" {
		return ShareConfig{}, fmt.Errorf("share.store=%s requires share.database.dsn", store)
	}
	if store == "sql" && dbType != "mysql" && dbType != "postgres" {
		return ShareConfig{}, fmt.Errorf("unsupported share.database.type: %q (supported: mysql, postgres)", dbType)
	}

	return ShareConfig{
		BaseURL:       v.GetString("share.base_url"),
		EncryptionKey: key,
		TTL:           ttl,
		Store:         store,
		Database: ShareDatabaseConfig{
			Type: dbType,
			DSN:  dsn,
		},
	}, nil
}

func loadJWT(v *viper.Viper) (JWTConfig, error) {
	secret := v.GetString("jwt.secret")

	// 安全检查：禁止使用默认的 JWT secret
	if secret == defaultJWTSecret {
		return JWTConfig{}, fmt.Errorf("SECURITY ERROR: JWT secret cannot be the default value. Please set MAILPROV_JWT_SECRET environment variable")
	}
	if len(secret) < 32 {
		return JWTConfig{}, fmt.Errorf("SECURITY ERROR: JWT secret must be at least 32 characters long")
	}

	accessExpiry, err := time.ParseDuration(v.GetString("jwt.access_expiry"))
	if err != nil {
		accessExpiry = time.Hour
	}

	return JWTConfig{
		Secret:       secret,
		Issuer:       v.GetString("jwt.issuer"),
		AccessExpiry: accessExpiry,
	}, nil
}

// parseDomains 将逗号分隔的域名字符串解析为小写域名数组
func parseDomains(value string) []string {
	out := parseList(value)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：当前目录的 .env，其次父目录的 .env。
// 文件不存在时静默忽略，已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
