package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/efreitasn/marketlab/internal/domain"
)

// Endowment modes.
const (
	EndowmentFixed    = "fixed"
	EndowmentWeighted = "weighted"
)

// Config holds all runtime configuration for the market service.
type Config struct {
	Port            int
	LogLevel        string
	WebhookTimeout  time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	DatabaseURL       string
	DBMaxConns        int
	StoreMaxRetries   int
	StoreRetryBackoff time.Duration

	Experiment Experiment
}

// Experiment holds the market parameters. It can be read from the YAML file
// named by CONFIG_FILE; environment variables take precedence.
type Experiment struct {
	MaxUnits           int    `yaml:"max_units"`
	MaxPrice           int64  `yaml:"max_price"`
	InitialUnitValue   int64  `yaml:"initial_unit_value"`
	UnitValueMin       int64  `yaml:"unit_value_min"`
	UnitValueMax       int64  `yaml:"unit_value_max"`
	EndowmentMode      string `yaml:"endowment_mode"`
	StartingMoney      int64  `yaml:"starting_money"`
	StartingHoldings   int64  `yaml:"starting_holdings"`
	EndowmentBaseMoney int64  `yaml:"endowment_base_money"`
	EndowmentUnitCost  int64  `yaml:"endowment_unit_cost"`
	EnforceBudget      bool   `yaml:"enforce_budget"`
}

// DefaultExperiment returns the built-in market parameters.
func DefaultExperiment() Experiment {
	return Experiment{
		MaxUnits:           5,
		MaxPrice:           200,
		InitialUnitValue:   100,
		UnitValueMin:       80,
		UnitValueMax:       200,
		EndowmentMode:      EndowmentWeighted,
		StartingMoney:      500,
		StartingHoldings:   2,
		EndowmentBaseMoney: 485,
		EndowmentUnitCost:  111,
		EnforceBudget:      true,
	}
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	webhookTimeout, err := getDuration("WEBHOOK_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	dbMaxConns, err := getInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}
	if dbMaxConns < 1 {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %d, must be >= 1", dbMaxConns)
	}

	storeMaxRetries, err := getInt("STORE_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid STORE_MAX_RETRIES: %w", err)
	}
	if storeMaxRetries < 0 {
		return nil, fmt.Errorf("invalid STORE_MAX_RETRIES: %d, must be >= 0", storeMaxRetries)
	}

	storeRetryBackoff, err := getDuration("STORE_RETRY_BACKOFF", 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("invalid STORE_RETRY_BACKOFF: %w", err)
	}

	exp := DefaultExperiment()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		exp, err = LoadExperimentFile(path, exp)
		if err != nil {
			return nil, err
		}
	}
	if err := exp.applyEnv(); err != nil {
		return nil, err
	}
	if err := exp.Validate(); err != nil {
		return nil, err
	}

	return &Config{
		Port:              port,
		LogLevel:          logLevel,
		WebhookTimeout:    webhookTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ShutdownTimeout:   shutdownTimeout,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DBMaxConns:        dbMaxConns,
		StoreMaxRetries:   storeMaxRetries,
		StoreRetryBackoff: storeRetryBackoff,
		Experiment:        exp,
	}, nil
}

// applyEnv overrides experiment fields with any environment variables set.
func (e *Experiment) applyEnv() error {
	var err error
	if e.MaxUnits, err = getInt("MAX_UNITS", e.MaxUnits); err != nil {
		return fmt.Errorf("invalid MAX_UNITS: %w", err)
	}

	int64Fields := []struct {
		key string
		dst *int64
	}{
		{"MAX_PRICE", &e.MaxPrice},
		{"INITIAL_UNIT_VALUE", &e.InitialUnitValue},
		{"UNIT_VALUE_MIN", &e.UnitValueMin},
		{"UNIT_VALUE_MAX", &e.UnitValueMax},
		{"STARTING_MONEY", &e.StartingMoney},
		{"STARTING_HOLDINGS", &e.StartingHoldings},
		{"ENDOWMENT_BASE_MONEY", &e.EndowmentBaseMoney},
		{"ENDOWMENT_UNIT_COST", &e.EndowmentUnitCost},
	}
	for _, f := range int64Fields {
		if *f.dst, err = getInt64(f.key, *f.dst); err != nil {
			return fmt.Errorf("invalid %s: %w", f.key, err)
		}
	}

	e.EndowmentMode = getStr("ENDOWMENT_MODE", e.EndowmentMode)

	if e.EnforceBudget, err = getBool("ENFORCE_BUDGET", e.EnforceBudget); err != nil {
		return fmt.Errorf("invalid ENFORCE_BUDGET: %w", err)
	}
	return nil
}

// Validate checks the experiment parameters for consistency.
func (e Experiment) Validate() error {
	if e.MaxUnits < 1 || e.MaxUnits > domain.SlotCapacity {
		return fmt.Errorf("invalid MAX_UNITS: %d, must be between 1 and %d", e.MaxUnits, domain.SlotCapacity)
	}
	if e.MaxPrice < 1 {
		return fmt.Errorf("invalid MAX_PRICE: %d, must be >= 1", e.MaxPrice)
	}
	if e.InitialUnitValue < 0 {
		return fmt.Errorf("invalid INITIAL_UNIT_VALUE: %d, must be >= 0", e.InitialUnitValue)
	}
	if e.UnitValueMin < 0 || e.UnitValueMax < e.UnitValueMin {
		return fmt.Errorf("invalid unit value range [%d, %d]", e.UnitValueMin, e.UnitValueMax)
	}
	switch e.EndowmentMode {
	case EndowmentFixed:
		if e.StartingMoney < 0 || e.StartingHoldings < 0 {
			return fmt.Errorf("invalid fixed endowment: money %d holdings %d, must be >= 0",
				e.StartingMoney, e.StartingHoldings)
		}
	case EndowmentWeighted:
		if e.EndowmentUnitCost < 0 || e.EndowmentBaseMoney < 4*e.EndowmentUnitCost {
			return fmt.Errorf("invalid weighted endowment: base money %d must cover 4 units at cost %d",
				e.EndowmentBaseMoney, e.EndowmentUnitCost)
		}
	default:
		return fmt.Errorf("invalid ENDOWMENT_MODE: %q, must be one of: fixed, weighted", e.EndowmentMode)
	}
	return nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getInt64(key string, defaultVal int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func getBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseBool(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
