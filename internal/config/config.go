package config

import (
	"errors"
	"fmt"
	"time"
)

// Config: конфигурация всех сервисов Tollgate.
type Config struct {
	API     API
	DB      DB
	MQ      MQ
	Redis   Redis
	Records Records
	Gateway Gateway
	Guard   Guard
	Retry   Retry
	Sweeper Sweeper
	PlanDir string
}

// API: HTTP-сервис.
type API struct {
	Port            string
	ShutdownTimeout time.Duration
}

// DB: Postgres с журналом сессий и журналом отката.
// Пустой URL отключает оба журнала.
type DB struct {
	URL string
}

// MQ: RabbitMQ для событий прогресса. Пустой URL отключает брокер.
type MQ struct {
	URL string
}

// Redis: блокировка resume. Пустой Addr отключает блокировку.
type Redis struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// Records: общее хранилище записей выдачи (MySQL).
type Records struct {
	DSN string
}

// Gateway: удалённый шлюз контрагента.
type Gateway struct {
	BaseURL      string
	AppID        string
	Secret       string
	Timeout      time.Duration
	SuccessField string
	SuccessValue string

	// SandboxOnly: все сессии идут через sandbox, BaseURL не нужен.
	SandboxOnly bool
}

// Guard: проверка дублей.
type Guard struct {
	Enabled   bool
	MutateAll bool
}

// Retry: повторы критичных шагов.
type Retry struct {
	Enabled   bool
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Sweeper: восстановление брошенных записей отката.
//
// Grace должен превышать самый длинный сегмент саги, см. CheckSweepGrace.
type Sweeper struct {
	Port      string
	Schedule  string
	Grace     time.Duration
	BatchSize int
}

// Load читает конфигурацию из окружения.
// Возвращает все ошибки разбора сразу.
func Load() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := &Config{
		API: API{
			Port: optionalString("API_PORT", "8080"),
		},
		DB:    DB{URL: optionalString("DB_URL", "")},
		MQ:    MQ{URL: optionalString("RABBITMQ_URL", "")},
		Redis: Redis{
			Addr:     optionalString("REDIS_ADDR", ""),
			Password: optionalString("REDIS_PASSWORD", ""),
		},
		Records: Records{DSN: optionalString("RECORDS_DSN", "")},
		Gateway: Gateway{
			BaseURL:      optionalString("GATEWAY_BASE_URL", ""),
			AppID:        optionalString("GATEWAY_APP_ID", ""),
			Secret:       optionalString("GATEWAY_SECRET", ""),
			SuccessField: optionalString("GATEWAY_SUCCESS_FIELD", "code"),
			SuccessValue: optionalString("GATEWAY_SUCCESS_VALUE", "0"),
		},
		Sweeper: Sweeper{
			Port:     optionalString("SWEEPER_PORT", "8082"),
			Schedule: optionalString("SWEEP_SCHEDULE", "@every 1m"),
		},
		PlanDir: optionalString("PLAN_DIR", ""),
	}

	var err error

	cfg.API.ShutdownTimeout, err = optionalDuration("API_SHUTDOWN_TIMEOUT", 10*time.Second)
	collect(err)

	cfg.Redis.DB, err = optionalInt("REDIS_DB", 0)
	collect(err)
	cfg.Redis.LockTTL, err = optionalDuration("RESUME_LOCK_TTL", 5*time.Minute)
	collect(err)

	cfg.Gateway.Timeout, err = optionalDuration("GATEWAY_TIMEOUT", 15*time.Second)
	collect(err)
	cfg.Gateway.SandboxOnly, err = optionalBool("GATEWAY_SANDBOX", false)
	collect(err)

	cfg.Guard.Enabled, err = optionalBool("GUARD_ENABLED", true)
	collect(err)
	cfg.Guard.MutateAll, err = optionalBool("GUARD_MUTATE_ALL", false)
	collect(err)

	cfg.Retry.Enabled, err = optionalBool("STEP_RETRY_ENABLED", false)
	collect(err)
	cfg.Retry.BaseDelay, err = optionalDuration("STEP_RETRY_BASE_DELAY", time.Second)
	collect(err)
	cfg.Retry.MaxDelay, err = optionalDuration("STEP_RETRY_MAX_DELAY", 30*time.Second)
	collect(err)

	cfg.Sweeper.Grace, err = optionalDuration("SWEEP_GRACE", 10*time.Minute)
	collect(err)
	cfg.Sweeper.BatchSize, err = optionalInt("SWEEP_BATCH_SIZE", 100)
	collect(err)

	if cfg.Retry.Enabled && cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		collect(fmt.Errorf("STEP_RETRY_MAX_DELAY must be >= STEP_RETRY_BASE_DELAY"))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// CheckAPI проверяет, что заданы настройки, без которых API не стартует.
func (c *Config) CheckAPI() error {
	var errs []error
	if !c.Gateway.SandboxOnly && c.Gateway.BaseURL == "" {
		errs = append(errs, errors.New("GATEWAY_BASE_URL is required unless GATEWAY_SANDBOX=true"))
	}
	if c.Guard.Enabled && c.Records.DSN == "" {
		errs = append(errs, errors.New("RECORDS_DSN is required when GUARD_ENABLED=true"))
	}
	return errors.Join(errs...)
}

// CheckSweeper проверяет настройки sweeper'а.
func (c *Config) CheckSweeper() error {
	var errs []error
	if c.DB.URL == "" {
		errs = append(errs, errors.New("DB_URL is required"))
	}
	if c.Records.DSN == "" {
		errs = append(errs, errors.New("RECORDS_DSN is required"))
	}
	return errors.Join(errs...)
}

// SegmentBudget возвращает верхнюю оценку длительности сегмента из calls
// вызовов шлюза и retries повторов. Каждая попытка ждёт до GATEWAY_TIMEOUT,
// перед повтором пауза до STEP_RETRY_MAX_DELAY. Без STEP_RETRY_ENABLED
// повторы не учитываются.
func (c *Config) SegmentBudget(calls, retries int) time.Duration {
	if !c.Retry.Enabled {
		retries = 0
	}
	return time.Duration(calls+retries)*c.Gateway.Timeout + time.Duration(retries)*c.Retry.MaxDelay
}

// CheckSweepGrace проверяет, что SWEEP_GRACE больше SegmentBudget
// самого длинного сегмента. Иначе sweeper восстановит записи сегмента,
// который ещё выполняется.
func (c *Config) CheckSweepGrace(calls, retries int) error {
	budget := c.SegmentBudget(calls, retries)
	if c.Sweeper.Grace <= budget {
		return fmt.Errorf("SWEEP_GRACE %s must exceed the longest segment budget %s", c.Sweeper.Grace, budget)
	}
	return nil
}
