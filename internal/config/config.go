package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	defaultAppName         = "fxledger"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultAccessSecret    = "dev-access-secret-change-me"
	defaultRefreshSecret   = "dev-refresh-secret-change-me"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `validate:"required"`
	AppEnv         string        `validate:"required"`
	Port           string        `validate:"required"`
	LogLevel       string        `validate:"oneof=debug info warn error"`
	DatabaseURL    string        `validate:"omitempty,url"`
	RedisURL       string        `validate:"omitempty,url"`
	RunMigrations  bool
	ShutdownPeriod time.Duration `validate:"gt=0"`
	IdempotencyTTL time.Duration `validate:"gt=0"`

	JWTSecret         string        `validate:"min=16"`
	RefreshSecret     string        `validate:"min=16"`
	AccessTokenTTL    time.Duration `validate:"gt=0"`
	RefreshTokenTTL   time.Duration `validate:"gtfield=AccessTokenTTL"`
	LoginMaxPerMinute int           `validate:"gte=1"`
	AdminEmail        string        `validate:"omitempty,email"`
	AdminPassword     string        `validate:"required_with=AdminEmail"`

	RatesProvider          string        `validate:"oneof=static coinmarketcap"`
	RatesAPIURL            string        `validate:"omitempty,url"`
	RatesAPIKey            string        `validate:"required_if=RatesProvider coinmarketcap"`
	RatesTTL               time.Duration `validate:"gt=0"`
	RatesRefreshInterval   time.Duration `validate:"gte=0"`
	RatesRequestsPerSecond float64       `validate:"gte=0"`

	ReportInterval time.Duration `validate:"gte=0"`
	ReportTTL      time.Duration `validate:"gt=0"`

	Notifier     string   `validate:"oneof=log kafka nats"`
	KafkaBrokers []string `validate:"required_if=Notifier kafka"`
	KafkaTopic   string   `validate:"required_if=Notifier kafka"`
	NatsURL      string   `validate:"required_if=Notifier nats"`
	NatsSubject  string   `validate:"required_if=Notifier nats"`
}

// Load reads configuration values from the environment (and an optional
// .env file) and populates a Config instance.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("APP_NAME", defaultAppName)
	v.SetDefault("APP_ENV", defaultAppEnv)
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("RUN_MIGRATIONS", true)
	v.SetDefault("JWT_SECRET", defaultAccessSecret)
	v.SetDefault("JWT_REFRESH_SECRET", defaultRefreshSecret)
	v.SetDefault("JWT_EXPIRATION_MINUTES", 30)
	v.SetDefault("JWT_REFRESH_TTL", 7*24*time.Hour)
	v.SetDefault("LOGIN_MAX_PER_MINUTE", 5)
	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("RATES_PROVIDER", "static")
	v.SetDefault("RATES_API_URL", "")
	v.SetDefault("RATES_API_KEY", "")
	v.SetDefault("RATES_TTL", time.Hour)
	v.SetDefault("RATES_REFRESH_INTERVAL", time.Hour)
	v.SetDefault("RATES_REQUESTS_PER_SECOND", 1)
	v.SetDefault("REPORT_INTERVAL", 24*time.Hour)
	v.SetDefault("REPORT_TTL", time.Hour)
	v.SetDefault("NOTIFIER", "log")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "ledger.transactions")
	v.SetDefault("NATS_URL", "")
	v.SetDefault("NATS_SUBJECT", "ledger.transactions")

	cfg := Config{
		AppName:                v.GetString("APP_NAME"),
		AppEnv:                 strings.ToLower(v.GetString("APP_ENV")),
		Port:                   v.GetString("PORT"),
		LogLevel:               strings.ToLower(v.GetString("LOG_LEVEL")),
		DatabaseURL:            v.GetString("DATABASE_URL"),
		RedisURL:               v.GetString("REDIS_URL"),
		RunMigrations:          v.GetBool("RUN_MIGRATIONS"),
		JWTSecret:              v.GetString("JWT_SECRET"),
		RefreshSecret:          v.GetString("JWT_REFRESH_SECRET"),
		AccessTokenTTL:         time.Duration(v.GetInt("JWT_EXPIRATION_MINUTES")) * time.Minute,
		RefreshTokenTTL:        v.GetDuration("JWT_REFRESH_TTL"),
		LoginMaxPerMinute:      v.GetInt("LOGIN_MAX_PER_MINUTE"),
		AdminEmail:             v.GetString("ADMIN_EMAIL"),
		AdminPassword:          v.GetString("ADMIN_PASSWORD"),
		RatesProvider:          strings.ToLower(v.GetString("RATES_PROVIDER")),
		RatesAPIURL:            v.GetString("RATES_API_URL"),
		RatesAPIKey:            v.GetString("RATES_API_KEY"),
		RatesTTL:               v.GetDuration("RATES_TTL"),
		RatesRefreshInterval:   v.GetDuration("RATES_REFRESH_INTERVAL"),
		RatesRequestsPerSecond: v.GetFloat64("RATES_REQUESTS_PER_SECOND"),
		ReportInterval:         v.GetDuration("REPORT_INTERVAL"),
		ReportTTL:              v.GetDuration("REPORT_TTL"),
		Notifier:               strings.ToLower(v.GetString("NOTIFIER")),
		KafkaBrokers:           splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:             v.GetString("KAFKA_TOPIC"),
		NatsURL:                v.GetString("NATS_URL"),
		NatsSubject:            v.GetString("NATS_SUBJECT"),
	}

	var err error
	if cfg.ShutdownPeriod, err = secondsOrDuration(v, shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = secondsOrDuration(v, idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and the stricter rules that apply
// outside development.
func (c Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return err
	}
	if c.IsDev() {
		return nil
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL must be set")
	}
	if c.JWTSecret == defaultAccessSecret || c.RefreshSecret == defaultRefreshSecret {
		return fmt.Errorf("JWT_SECRET and JWT_REFRESH_SECRET must be set outside development")
	}
	return nil
}

// IsDev reports whether in-memory backends and development secrets are allowed.
func (c Config) IsDev() bool {
	switch c.AppEnv {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func secondsOrDuration(v *viper.Viper, secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if raw := v.GetString(secondsKey); raw != "" {
		var seconds int
		if _, err := fmt.Sscan(raw, &seconds); err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if raw := v.GetString(durationKey); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
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
