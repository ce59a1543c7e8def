// Package config читает настройки сервисов Nodeflow из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/shaiso/Nodeflow/internal/repo"
)

// Хранилища.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config: настройки всех бинарников. Каждый читает только нужное.
type Config struct {
	// DBURL: DSN PostgreSQL (DB_URL).
	DBURL string `validate:"required_if=Store postgres"`

	// Store: postgres или memory (STORE).
	Store string `validate:"oneof=postgres memory"`

	APIPort    int `validate:"min=1,max=65535"`
	WorkerPort int `validate:"min=1,max=65535"`

	// RabbitMQURL: пусто отключает брокер (RABBITMQ_URL).
	RabbitMQURL string `validate:"omitempty,url"`

	PollInterval     time.Duration `validate:"gt=0"`
	ExecutionTimeout time.Duration `validate:"gt=0"`
	StaleAfter       time.Duration `validate:"gtfield=ExecutionTimeout"`
	ShutdownGrace    time.Duration `validate:"gt=0"`

	SchedulerEnabled  bool
	SchedulerInterval time.Duration `validate:"gt=0"`

	LogLevel  string `validate:"oneof=DEBUG INFO WARN ERROR"`
	LogFormat string `validate:"oneof=json text"`

	// OTLPEndpoint: только для логирования; экспортер читает переменную сам.
	OTLPEndpoint string
}

// Default возвращает настройки для локальной разработки.
func Default() Config {
	return Config{
		DBURL:             repo.DefaultDSN,
		Store:             StorePostgres,
		APIPort:           8080,
		WorkerPort:        8082,
		PollInterval:      2 * time.Second,
		ExecutionTimeout:  5 * time.Minute,
		StaleAfter:        15 * time.Minute,
		ShutdownGrace:     30 * time.Second,
		SchedulerEnabled:  true,
		SchedulerInterval: time.Second,
		LogLevel:          "INFO",
		LogFormat:         "json",
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load читает окружение поверх Default и проверяет результат.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	r := reader{lookup: lookup}

	r.str("DB_URL", &cfg.DBURL)
	r.str("STORE", &cfg.Store)
	r.int("API_PORT", &cfg.APIPort)
	r.int("WORKER_PORT", &cfg.WorkerPort)
	r.str("RABBITMQ_URL", &cfg.RabbitMQURL)
	r.duration("POLL_INTERVAL", &cfg.PollInterval)
	r.duration("EXECUTION_TIMEOUT", &cfg.ExecutionTimeout)
	r.duration("STALE_AFTER", &cfg.StaleAfter)
	r.duration("SHUTDOWN_GRACE", &cfg.ShutdownGrace)
	r.bool("SCHEDULER_ENABLED", &cfg.SchedulerEnabled)
	r.duration("SCHEDULER_INTERVAL", &cfg.SchedulerInterval)
	r.str("LOG_LEVEL", &cfg.LogLevel)
	r.str("LOG_FORMAT", &cfg.LogFormat)
	r.str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.OTLPEndpoint)

	cfg.Store = strings.ToLower(cfg.Store)
	cfg.LogLevel = strings.ToUpper(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if err := errors.Join(r.errs...); err != nil {
		return Config{}, err
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// reader копит ошибки разбора, чтобы показать их все сразу.
type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) str(key string, dst *string) {
	if v, ok := r.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (r *reader) int(key string, dst *int) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (r *reader) bool(key string, dst *bool) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}

func (r *reader) duration(key string, dst *time.Duration) {
	v, ok := r.lookup(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}
