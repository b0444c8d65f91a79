package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/ambulance-tracking/internal/eta"
	"github.com/example/ambulance-tracking/internal/models"
	"github.com/example/ambulance-tracking/internal/presentation"
	"github.com/example/ambulance-tracking/internal/sim"
)

// ServerConfig captures all tunable parameters for the tracking API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	MovementPeriod    time.Duration
	ETAPeriod         time.Duration
	PulsePhase        time.Duration
	InitialETAMinutes int
	HookDrainTimeout  time.Duration

	StripeAPIKey       string
	CalloutFeeCents    int64
	CalloutFeeCurrency string

	APIRateLimit float64
	APIRateBurst int

	EmergencyLine string
	Unit          models.UnitInfo

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:           ":8080",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       10 * time.Second,
		IdleTimeout:        120 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		RedisGeoKey:        "ambulances_geo",
		KafkaTopic:         "dispatch-events",
		MovementPeriod:     sim.MovementPeriod,
		ETAPeriod:          eta.CountdownPeriod,
		PulsePhase:         presentation.PulsePhase,
		InitialETAMinutes:  eta.InitialMinutes,
		HookDrainTimeout:   2 * time.Second,
		CalloutFeeCents:    5000,
		CalloutFeeCurrency: "usd",
		APIRateLimit:       5,
		APIRateBurst:       10,
		EmergencyLine:      "10111",
		Unit: models.UnitInfo{
			ParamedicTeam: "Dr. Alice & Team",
			Hospital:      "King Faisal Hospital",
			Vehicle:       "MEG 1234",
		},
		LogLevel: "info",
	}
}

// LoadDotEnv loads .env style files into the environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var errs []error
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			errs = append(errs, fmt.Errorf("load %s: %w", f, err))
		}
	}
	return errors.Join(errs...)
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")

	setDurationFromEnv(&cfg.MovementPeriod, "SIM_MOVEMENT_PERIOD", &errs)
	setDurationFromEnv(&cfg.ETAPeriod, "SIM_ETA_PERIOD", &errs)
	setDurationFromEnv(&cfg.PulsePhase, "SIM_PULSE_PHASE", &errs)
	setIntFromEnv(&cfg.InitialETAMinutes, "SIM_INITIAL_ETA_MINUTES", &errs)
	setDurationFromEnv(&cfg.HookDrainTimeout, "HOOK_DRAIN_TIMEOUT", &errs)

	cfg.StripeAPIKey = os.Getenv("STRIPE_API_KEY")
	setInt64FromEnv(&cfg.CalloutFeeCents, "CALLOUT_FEE_CENTS", &errs)
	setStringFromEnv(&cfg.CalloutFeeCurrency, "CALLOUT_FEE_CURRENCY")

	setFloatFromEnv(&cfg.APIRateLimit, "API_RATE_LIMIT", &errs)
	setIntFromEnv(&cfg.APIRateBurst, "API_RATE_BURST", &errs)

	setStringFromEnv(&cfg.EmergencyLine, "EMERGENCY_LINE")
	setStringFromEnv(&cfg.Unit.ParamedicTeam, "UNIT_PARAMEDIC_TEAM")
	setStringFromEnv(&cfg.Unit.Hospital, "UNIT_HOSPITAL")
	setStringFromEnv(&cfg.Unit.Vehicle, "UNIT_VEHICLE")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.MovementPeriod <= 0 || cfg.ETAPeriod <= 0 || cfg.PulsePhase <= 0 {
		errs = append(errs, fmt.Errorf("simulation periods must be > 0"))
	}
	if cfg.InitialETAMinutes <= 0 {
		errs = append(errs, fmt.Errorf("SIM_INITIAL_ETA_MINUTES must be > 0"))
	}
	if cfg.HookDrainTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HOOK_DRAIN_TIMEOUT must be > 0"))
	}
	if cfg.CalloutFeeCents < 0 {
		errs = append(errs, fmt.Errorf("CALLOUT_FEE_CENTS must be >= 0"))
	}
	if cfg.APIRateLimit <= 0 || cfg.APIRateBurst <= 0 {
		errs = append(errs, fmt.Errorf("API_RATE_LIMIT and API_RATE_BURST must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

// ConsumerConfig configures the dispatch event consumer.
type ConsumerConfig struct {
	MetricsAddr   string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroup    string
	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string
	RetryAttempts int
	RetryDelay    time.Duration
	LogLevel      string
}

func LoadConsumerConfig() (ConsumerConfig, error) {
	cfg := ConsumerConfig{
		MetricsAddr:   ":2112",
		KafkaBrokers:  []string{"localhost:9092"},
		KafkaTopic:    "dispatch-events",
		KafkaGroup:    "ambulance-tracking-consumer",
		RedisAddr:     "localhost:6379",
		RedisGeoKey:   "ambulances_geo",
		RetryAttempts: 3,
		RetryDelay:    200 * time.Millisecond,
		LogLevel:      "info",
	}
	var errs []error

	setStringFromEnv(&cfg.MetricsAddr, "METRICS_ADDR")
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		brokers = os.Getenv("KAFKA_BROKER")
	}
	if list := splitAndTrim(brokers); len(list) > 0 {
		cfg.KafkaBrokers = list
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")
	setStringFromEnv(&cfg.KafkaGroup, "KAFKA_GROUP")
	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")
	setIntFromEnv(&cfg.RetryAttempts, "REDIS_RETRY_ATTEMPTS", &errs)
	setDurationFromEnv(&cfg.RetryDelay, "REDIS_RETRY_DELAY", &errs)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	if cfg.RetryAttempts <= 0 {
		errs = append(errs, fmt.Errorf("REDIS_RETRY_ATTEMPTS must be > 0"))
	}
	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setInt64FromEnv(target *int64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
