package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds every runtime setting of the service.
type Config struct {
	Port        string `validate:"required"`
	LogLevel    string `validate:"oneof=debug info warn error"`
	StoreDriver string `validate:"oneof=postgres memory"`
	DatabaseURL string `validate:"required_if=StoreDriver postgres"`
	DBMaxConns  int32  `validate:"gte=0"`
	JWTSecret   string `validate:"required,min=16"`

	Currency          string `validate:"required,len=3,lowercase"`
	MinimumAmount     int64  `validate:"gt=0"`
	FeeRatePurchase   decimal.Decimal
	FeeRateInvestment decimal.Decimal

	Stripe  StripeConfig
	Kafka   KafkaConfig
	Redis   RedisConfig
	Confirm ConfirmConfig
	Sweep   SweepConfig

	EventBuffer int `validate:"gt=0"`
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	APIURL        string `validate:"omitempty,url"`
}

type KafkaConfig struct {
	Brokers []string
	Topic   string `validate:"required_with=Brokers"`
}

type RedisConfig struct {
	Addr    string
	Channel string `validate:"required_with=Addr"`
}

// ConfirmConfig bounds confirmation polling.
type ConfirmConfig struct {
	MaxRetries      uint64        `validate:"gt=0"`
	InitialInterval time.Duration `validate:"gt=0"`
	MaxInterval     time.Duration `validate:"gtefield=InitialInterval"`
}

// SweepConfig drives the stale pending sweeper. A zero interval disables it.
type SweepConfig struct {
	Interval    time.Duration `validate:"gte=0"`
	OlderThan   time.Duration `validate:"gte=0"`
	BatchSize   int           `validate:"gt=0"`
	Concurrency int           `validate:"gt=0"`
}

var validate = validator.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", "postgres")
	v.SetDefault("DB_MAX_CONNS", 0)
	v.SetDefault("CURRENCY", "usd")
	v.SetDefault("MINIMUM_AMOUNT", 100000)
	v.SetDefault("FEE_RATE_PURCHASE", "0.05")
	v.SetDefault("FEE_RATE_INVESTMENT", "0.05")
	v.SetDefault("KAFKA_TOPIC", "settlement-events")
	v.SetDefault("REDIS_CHANNEL", "settlement-events")
	v.SetDefault("CONFIRM_MAX_RETRIES", 5)
	v.SetDefault("CONFIRM_INITIAL_INTERVAL", "500ms")
	v.SetDefault("CONFIRM_MAX_INTERVAL", "8s")
	v.SetDefault("SWEEP_INTERVAL", "0s")
	v.SetDefault("SWEEP_OLDER_THAN", "15m")
	v.SetDefault("SWEEP_BATCH_SIZE", 50)
	v.SetDefault("SWEEP_CONCURRENCY", 4)
	v.SetDefault("EVENT_BUFFER", 256)
}

// Load reads path (when it exists) and the environment, then validates the result.
// Environment variables take precedence over the file.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !isMissingFile(err) {
				return Config{}, fmt.Errorf("config: read %s: %w", path, err)
			}
		}
	}

	purchase, err := decimal.NewFromString(v.GetString("FEE_RATE_PURCHASE"))
	if err != nil {
		return Config{}, fmt.Errorf("config: FEE_RATE_PURCHASE: %w", err)
	}
	investment, err := decimal.NewFromString(v.GetString("FEE_RATE_INVESTMENT"))
	if err != nil {
		return Config{}, fmt.Errorf("config: FEE_RATE_INVESTMENT: %w", err)
	}

	cfg := Config{
		Port:              v.GetString("PORT"),
		LogLevel:          strings.ToLower(v.GetString("LOG_LEVEL")),
		StoreDriver:       strings.ToLower(v.GetString("STORE_DRIVER")),
		DatabaseURL:       v.GetString("DATABASE_URL"),
		DBMaxConns:        v.GetInt32("DB_MAX_CONNS"),
		JWTSecret:         v.GetString("JWT_SECRET"),
		Currency:          strings.ToLower(v.GetString("CURRENCY")),
		MinimumAmount:     v.GetInt64("MINIMUM_AMOUNT"),
		FeeRatePurchase:   purchase,
		FeeRateInvestment: investment,
		Stripe: StripeConfig{
			SecretKey:     v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
			APIURL:        v.GetString("STRIPE_API_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		Redis: RedisConfig{
			Addr:    v.GetString("REDIS_ADDR"),
			Channel: v.GetString("REDIS_CHANNEL"),
		},
		Confirm: ConfirmConfig{
			MaxRetries:      v.GetUint64("CONFIRM_MAX_RETRIES"),
			InitialInterval: v.GetDuration("CONFIRM_INITIAL_INTERVAL"),
			MaxInterval:     v.GetDuration("CONFIRM_MAX_INTERVAL"),
		},
		Sweep: SweepConfig{
			Interval:    v.GetDuration("SWEEP_INTERVAL"),
			OlderThan:   v.GetDuration("SWEEP_OLDER_THAN"),
			BatchSize:   v.GetInt("SWEEP_BATCH_SIZE"),
			Concurrency: v.GetInt("SWEEP_CONCURRENCY"),
		},
		EventBuffer: v.GetInt("EVENT_BUFFER"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct tags and the fee rates.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	for name, rate := range map[string]decimal.Decimal{
		"FEE_RATE_PURCHASE":   c.FeeRatePurchase,
		"FEE_RATE_INVESTMENT": c.FeeRateInvestment,
	} {
		if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("config: %s must be in [0, 1), got %s", name, rate)
		}
	}
	return nil
}

// UseSandboxGateway reports whether no processor key is configured.
func (c Config) UseSandboxGateway() bool {
	return c.Stripe.SecretKey == ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
