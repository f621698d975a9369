package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0:8080"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"debug"`
	// Storage selects the listing store: "postgres" or "memory".
	Storage string `env:"STORAGE" envDefault:"postgres"`
	PostgresConfig
	RedisConfig
	AuctionConfig
}

func NewConfig() (*Config, error) {
	config := &Config{}

	err := env.Parse(config)
	if err != nil {
		err = fmt.Errorf("config.NewConfig: %w", err)
	}
	return config, err
}

type PostgresConfig struct {
	Conn            string `env:"POSTGRES_CONN" envDefault:"postgres://test:test@db:5432/test?sslmode=disable"`
	AutoMigrateUp   string `env:"AUTO_MIGRATE_UP" envDefault:"true"`
	AutoMigrateDown string `env:"AUTO_MIGRATE_DOWN" envDefault:"false"`
	MaxOpenConns    int    `env:"POSTGRES_MAX_OPEN_CONNS" envDefault:"20"`
}

func NewPostgresConfig() (*PostgresConfig, error) {
	config := &PostgresConfig{}

	err := env.Parse(config)
	if err != nil {
		err = fmt.Errorf("config.NewPostgresConfig: %w", err)
	}
	return config, err
}

// RedisConfig configures the change-notification bus. An empty address
// keeps notifications in process.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:""`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type AuctionConfig struct {
	BidMaxRetries   int           `env:"BID_MAX_RETRIES" envDefault:"3"`
	BidRetryBackoff time.Duration `env:"BID_RETRY_BACKOFF" envDefault:"20ms"`
	CooldownStep    time.Duration `env:"COOLDOWN_STEP" envDefault:"72h"`
	LeaderboardSize int           `env:"LEADERBOARD_SIZE" envDefault:"5"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"5s"`
}

func NewAuctionConfig() (*AuctionConfig, error) {
	config := &AuctionConfig{}

	err := env.Parse(config)
	if err != nil {
		err = fmt.Errorf("config.NewAuctionConfig: %w", err)
	}
	return config, err
}
