package config

import (
	"fmt"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required"`
	Port        int    `env:"PORT" envDefault:"8080"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	// Fee schedule. Read once at startup; the engine never consults the
	// environment again, so tests can inject arbitrary rates.
	CommissionRateStr string `env:"COMMISSION_RATE" envDefault:"0.05"`
	VATRateStr        string `env:"VAT_RATE" envDefault:"0.15"`

	StartingBalanceStr string `env:"STARTING_BALANCE" envDefault:"1000.00"`

	EngineMaxRetries int `env:"ENGINE_MAX_RETRIES" envDefault:"3"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`

	CommissionRate  decimal.Decimal `env:"-"`
	VATRate         decimal.Decimal `env:"-"`
	StartingBalance decimal.Decimal `env:"-"`
}

func Load() (*Config, error) {
	// Missing .env is fine outside local development.
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	if cfg.CommissionRate, err = decimal.NewFromString(cfg.CommissionRateStr); err != nil {
		return nil, fmt.Errorf("config.Load: COMMISSION_RATE: %w", err)
	}
	if cfg.VATRate, err = decimal.NewFromString(cfg.VATRateStr); err != nil {
		return nil, fmt.Errorf("config.Load: VAT_RATE: %w", err)
	}
	if cfg.StartingBalance, err = decimal.NewFromString(cfg.StartingBalanceStr); err != nil {
		return nil, fmt.Errorf("config.Load: STARTING_BALANCE: %w", err)
	}
	if cfg.CommissionRate.IsNegative() || cfg.VATRate.IsNegative() || cfg.StartingBalance.IsNegative() {
		return nil, fmt.Errorf("config.Load: rates and starting balance must not be negative")
	}

	return &cfg, nil
}
