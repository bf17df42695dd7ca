package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"

	EnvironmentProduction = "production"
)

type Config struct {
	Environment string
	LogLevel    string

	HTTPAddr string
	GRPCAddr string

	StorageDriver string
	MySQLDSN      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PaystackSecretKey string
	PaystackBaseURL   string
	GatewayTimeout    time.Duration
	GatewayRPS        float64

	JWTPrivateKey      string
	SessionTTL         time.Duration
	OrderEncryptionKey string
	PublicBaseURL      string
	Currency           string

	KafkaBrokers string
	KafkaTopic   string

	WorkerCount   int
	SweepInterval time.Duration
	SweepGrace    time.Duration
	SweepBatch    int
	LockTTL       time.Duration
}

// Production reports whether checkout callbacks must be https.
func (c Config) Production() bool {
	return strings.EqualFold(c.Environment, EnvironmentProduction)
}

var required = []string{"PAYSTACK_SECRET_KEY", "JWT_PRIVATE_KEY", "ORDER_ENCRYPTION_KEY"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":50051")
	v.SetDefault("STORAGE_DRIVER", DriverMySQL)
	v.SetDefault("MYSQL_DSN", "root:root@tcp(localhost:3306)/storefront?parseTime=true")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("PAYSTACK_BASE_URL", "https://api.paystack.co")
	v.SetDefault("GATEWAY_TIMEOUT", "15s")
	v.SetDefault("GATEWAY_RPS", 50)
	v.SetDefault("SESSION_TTL", "336h")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("CURRENCY", "NGN")
	v.SetDefault("KAFKA_TOPIC", "storefront.orders")
	v.SetDefault("WORKER_COUNT", 10)
	v.SetDefault("SWEEP_INTERVAL", "1m")
	v.SetDefault("SWEEP_GRACE", "2m")
	v.SetDefault("SWEEP_BATCH", 100)
	v.SetDefault("LOCK_TTL", "30s")
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	var missing []string
	for _, key := range required {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	cfg := Config{
		Environment:        v.GetString("ENVIRONMENT"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		HTTPAddr:           v.GetString("HTTP_ADDR"),
		GRPCAddr:           v.GetString("GRPC_ADDR"),
		StorageDriver:      strings.ToLower(v.GetString("STORAGE_DRIVER")),
		MySQLDSN:           v.GetString("MYSQL_DSN"),
		RedisAddr:          v.GetString("REDIS_ADDR"),
		RedisPassword:      v.GetString("REDIS_PASSWORD"),
		RedisDB:            v.GetInt("REDIS_DB"),
		PaystackSecretKey:  v.GetString("PAYSTACK_SECRET_KEY"),
		PaystackBaseURL:    v.GetString("PAYSTACK_BASE_URL"),
		GatewayTimeout:     v.GetDuration("GATEWAY_TIMEOUT"),
		GatewayRPS:         v.GetFloat64("GATEWAY_RPS"),
		JWTPrivateKey:      v.GetString("JWT_PRIVATE_KEY"),
		SessionTTL:         v.GetDuration("SESSION_TTL"),
		OrderEncryptionKey: v.GetString("ORDER_ENCRYPTION_KEY"),
		PublicBaseURL:      v.GetString("PUBLIC_BASE_URL"),
		Currency:           v.GetString("CURRENCY"),
		KafkaBrokers:       v.GetString("KAFKA_BROKERS"),
		KafkaTopic:         v.GetString("KAFKA_TOPIC"),
		WorkerCount:        v.GetInt("WORKER_COUNT"),
		SweepInterval:      v.GetDuration("SWEEP_INTERVAL"),
		SweepGrace:         v.GetDuration("SWEEP_GRACE"),
		SweepBatch:         v.GetInt("SWEEP_BATCH"),
		LockTTL:            v.GetDuration("LOCK_TTL"),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []error
	if c.StorageDriver != DriverMySQL && c.StorageDriver != DriverMemory {
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", DriverMySQL, DriverMemory, c.StorageDriver))
	}
	if c.WorkerCount < 1 {
		errs = append(errs, errors.New("WORKER_COUNT must be at least 1"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}
	if c.GatewayTimeout <= 0 {
		errs = append(errs, errors.New("GATEWAY_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}
