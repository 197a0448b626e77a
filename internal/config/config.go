package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scylla    ScyllaConfig    `mapstructure:"scylla"`
	Elastic   ElasticConfig   `mapstructure:"elastic"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Esewa     EsewaConfig     `mapstructure:"esewa"`
	Stripe    StripeConfig    `mapstructure:"stripe"`
	Log       LogConfig       `mapstructure:"log"`
	Orders    OrdersConfig    `mapstructure:"orders"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxUploadMB    int64         `mapstructure:"max_upload_mb"`
}

type MongoConfig struct {
	URI      string        `mapstructure:"uri"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// ScyllaConfig : Hosts vide désactive l'audit ScyllaDB.
type ScyllaConfig struct {
	Hosts    []string      `mapstructure:"hosts"`
	Keyspace string        `mapstructure:"keyspace"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Timeout  time.Duration `mapstructure:"timeout"`
	NumConns int           `mapstructure:"num_conns"`
}

func (c ScyllaConfig) Enabled() bool {
	return len(c.Hosts) > 0 && c.Hosts[0] != ""
}

type ElasticConfig struct {
	URL      string `mapstructure:"url"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Index    string `mapstructure:"index"`
}

func (c ElasticConfig) Enabled() bool { return c.URL != "" }

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	PublicURL string `mapstructure:"public_url"`
}

func (c MinIOConfig) Enabled() bool { return c.Endpoint != "" }

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

func (c SMTPConfig) Enabled() bool { return c.Host != "" }

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
}

type EsewaConfig struct {
	MerchantCode string `mapstructure:"merchant_code"`
	SecretKey    string `mapstructure:"secret_key"`
	PaymentURL   string `mapstructure:"payment_url"`
	SuccessURL   string `mapstructure:"success_url"`
	FailureURL   string `mapstructure:"failure_url"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	Currency      string `mapstructure:"currency"`
}

func (c StripeConfig) Enabled() bool { return c.SecretKey != "" }

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type OrdersConfig struct {
	StrictTransitions bool          `mapstructure:"strict_transitions"`
	LowStockThreshold int           `mapstructure:"low_stock_threshold"`
	PaymentSessionTTL time.Duration `mapstructure:"payment_session_ttl"`
	PageSize          int           `mapstructure:"page_size"`
}

type AuthConfig struct {
	RequireEmailVerification bool          `mapstructure:"require_email_verification"`
	AllowAdminSignup         bool          `mapstructure:"allow_admin_signup"`
	OTPTTL                   time.Duration `mapstructure:"otp_ttl"`
	VerifiedTTL              time.Duration `mapstructure:"verified_ttl"`
}

type RateLimitConfig struct {
	LoginMaxAttempts int           `mapstructure:"login_max_attempts"`
	LoginCooldown    time.Duration `mapstructure:"login_cooldown"`
	OTPMaxRequests   int           `mapstructure:"otp_max_requests"`
	OTPWindow        time.Duration `mapstructure:"otp_window"`
	APIMaxRequests   int           `mapstructure:"api_max_requests"`
}

type JobsConfig struct {
	ExpirySweep  string `mapstructure:"expiry_sweep"`
	SessionSweep string `mapstructure:"session_sweep"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.max_upload_mb", 5)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017/?replicaSet=rs0")
	v.SetDefault("mongo.database", "bazaar")
	v.SetDefault("mongo.timeout", 5*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("scylla.hosts", []string{})
	v.SetDefault("scylla.keyspace", "bazaar")
	v.SetDefault("scylla.username", "")
	v.SetDefault("scylla.password", "")
	v.SetDefault("scylla.timeout", 5*time.Second)
	v.SetDefault("scylla.num_conns", 4)

	v.SetDefault("elastic.url", "")
	v.SetDefault("elastic.user", "")
	v.SetDefault("elastic.password", "")
	v.SetDefault("elastic.index", "products")

	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "products")
	v.SetDefault("minio.public_url", "")

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "no-reply@bazaar.local")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_ttl", 24*time.Hour)
	v.SetDefault("jwt.refresh_ttl", 7*24*time.Hour)

	v.SetDefault("esewa.merchant_code", "EPAYTEST")
	v.SetDefault("esewa.secret_key", "8gBm/:&EnhH.1/q")
	v.SetDefault("esewa.payment_url", "https://rc-epay.esewa.com.np/api/epay/main/v2/form")
	v.SetDefault("esewa.success_url", "http://localhost:5173/payment-success")
	v.SetDefault("esewa.failure_url", "http://localhost:5173/payment-failure")

	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.webhook_secret", "")
	v.SetDefault("stripe.currency", "npr")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("orders.strict_transitions", false)
	v.SetDefault("orders.low_stock_threshold", 10)
	v.SetDefault("orders.payment_session_ttl", time.Hour)
	v.SetDefault("orders.page_size", 10)

	v.SetDefault("auth.require_email_verification", true)
	v.SetDefault("auth.allow_admin_signup", false)
	v.SetDefault("auth.otp_ttl", 5*time.Minute)
	v.SetDefault("auth.verified_ttl", 30*time.Minute)

	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.login_cooldown", 15*time.Minute)
	v.SetDefault("rate_limit.otp_max_requests", 3)
	v.SetDefault("rate_limit.otp_window", 10*time.Minute)
	v.SetDefault("rate_limit.api_max_requests", 100)

	v.SetDefault("jobs.expiry_sweep", "@every 15m")
	v.SetDefault("jobs.session_sweep", "@every 10m")
}

// Load lit le fichier .env s'il existe puis construit la configuration depuis l'environnement.
// MONGO_URI renseigne mongo.uri, ORDERS_STRICT_TRANSITIONS renseigne orders.strict_transitions, etc.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  Aucun fichier .env trouvé, on continue avec les variables d'environnement du système")
	} else {
		log.Println("✅ Fichier .env chargé avec succès")
	}
	return FromEnv()
}

// FromEnv construit la configuration sans lire de fichier .env.
func FromEnv() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("lecture configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port invalide: %d", c.Server.Port))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET manquant"))
	}
	if c.Mongo.URI == "" || c.Mongo.Database == "" {
		errs = append(errs, errors.New("configuration MongoDB incomplète"))
	}
	if c.Esewa.MerchantCode == "" || c.Esewa.SecretKey == "" {
		errs = append(errs, errors.New("configuration eSewa incomplète"))
	}
	if c.Orders.LowStockThreshold <= 0 {
		errs = append(errs, fmt.Errorf("orders.low_stock_threshold invalide: %d", c.Orders.LowStockThreshold))
	}
	if c.Orders.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("orders.page_size invalide: %d", c.Orders.PageSize))
	}
	return errors.Join(errs...)
}

// Addr renvoie l'adresse d'écoute HTTP.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
