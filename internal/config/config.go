// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/kelseyhightower/envconfig"
)

const (
	BalanceBackendMemory = "memory"
	BalanceBackendRedis  = "redis"
)

type Config struct {
	AppEnv    string `envconfig:"APP_ENV" default:"development"`
	Port      int    `envconfig:"PORT" default:"8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// memory or redis
	BalanceBackend string        `envconfig:"BALANCE_BACKEND" default:"memory"`
	WalletTimeout  time.Duration `envconfig:"WALLET_TIMEOUT" default:"2s"`

	HistoryEnabled bool   `envconfig:"HISTORY_ENABLED" default:"false"`
	AutoMigrate    bool   `envconfig:"AUTO_MIGRATE" default:"false"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"./migrations"`

	WatchdogSchedule string `envconfig:"WATCHDOG_SCHEDULE" default:"@every 5s"`
	StatsSchedule    string `envconfig:"STATS_SCHEDULE" default:"@every 1m"`

	DB      Database `envconfig:"DB"`
	Redis   Redis    `envconfig:"REDIS"`
	Crash   Crash    `envconfig:"CRASH"`
	Jackpot Jackpot  `envconfig:"JACKPOT"`
	Rain    Rain     `envconfig:"RAIN"`
	Chat    Chat     `envconfig:"CHAT"`
}

type Database struct {
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     string `envconfig:"PORT" default:"5432"`
	Name     string `envconfig:"DATABASE" default:"skinbet"`
	Username string `envconfig:"USERNAME" default:"postgres"`
	Password string `envconfig:"PASSWORD" default:"postgres"`
	Schema   string `envconfig:"SCHEMA" default:"public"`
	MaxConns int32  `envconfig:"MAX_CONNS" default:"10"`
}

type Redis struct {
	Addr     string `envconfig:"URL" default:"localhost:6379"`
	Password string `envconfig:"PASSWORD" default:""`
	DB       int    `envconfig:"DB" default:"0"`
}

type Crash struct {
	BettingWindow  time.Duration `envconfig:"BETTING_WINDOW" default:"5s"`
	TickInterval   time.Duration `envconfig:"TICK_INTERVAL" default:"100ms"`
	Cooldown       time.Duration `envconfig:"COOLDOWN" default:"10s"`
	MultiplierStep float64       `envconfig:"MULTIPLIER_STEP" default:"0.01"`
	HouseEdge      float64       `envconfig:"HOUSE_EDGE" default:"0.01"`
	// The 1e-8 draw floor already caps points near 19.23 at a 1% edge, so
	// this only binds when set below that.
	MaxCrashPoint  float64       `envconfig:"MAX_CRASH_POINT" default:"1000"`
	// zero disables the upper bet limit
	MaxBet         float64       `envconfig:"MAX_BET" default:"0"`
	HistorySize    int           `envconfig:"HISTORY_SIZE" default:"20"`
}

type Jackpot struct {
	RoundDuration  time.Duration `envconfig:"ROUND_DURATION" default:"60s"`
	TicketsPerUnit int64         `envconfig:"TICKETS_PER_UNIT" default:"10"`
	HouseEdge      float64       `envconfig:"HOUSE_EDGE" default:"0.05"`
	// zero disables the upper bet limit
	MaxBet         float64       `envconfig:"MAX_BET" default:"0"`
	RestartDelay   time.Duration `envconfig:"RESTART_DELAY" default:"3s"`
	NextRoundDelay time.Duration `envconfig:"NEXT_ROUND_DELAY" default:"5s"`
}

type Rain struct {
	Duration  time.Duration `envconfig:"DURATION" default:"30s"`
	MinAmount float64       `envconfig:"MIN_AMOUNT" default:"1"`
}

type Chat struct {
	MaxLength   int `envconfig:"MAX_LENGTH" default:"500"`
	HistorySize int `envconfig:"HISTORY_SIZE" default:"50"`
}

// Load reads the environment (and .env, if present) into a validated Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be in 1..65535, got %d", c.Port)
	}
	if c.BalanceBackend != BalanceBackendMemory && c.BalanceBackend != BalanceBackendRedis {
		return fmt.Errorf("BALANCE_BACKEND must be %q or %q, got %q", BalanceBackendMemory, BalanceBackendRedis, c.BalanceBackend)
	}
	if c.Crash.TickInterval <= 0 || c.Crash.BettingWindow <= 0 {
		return fmt.Errorf("CRASH_TICK_INTERVAL and CRASH_BETTING_WINDOW must be > 0")
	}
	if c.Crash.MultiplierStep <= 0 {
		return fmt.Errorf("CRASH_MULTIPLIER_STEP must be > 0")
	}
	if c.Crash.HouseEdge < 0 || c.Crash.HouseEdge >= 1 || c.Jackpot.HouseEdge < 0 || c.Jackpot.HouseEdge >= 1 {
		return fmt.Errorf("house edges must be in [0, 1)")
	}
	if c.Crash.MaxCrashPoint < 1.01 {
		return fmt.Errorf("CRASH_MAX_CRASH_POINT must be >= 1.01")
	}
	if c.Crash.MaxBet < 0 || c.Jackpot.MaxBet < 0 {
		return fmt.Errorf("CRASH_MAX_BET and JACKPOT_MAX_BET must be >= 0")
	}
	if c.Jackpot.TicketsPerUnit <= 0 {
		return fmt.Errorf("JACKPOT_TICKETS_PER_UNIT must be > 0")
	}
	if c.Jackpot.RoundDuration < time.Second {
		return fmt.Errorf("JACKPOT_ROUND_DURATION must be at least 1s")
	}
	if c.Rain.Duration <= 0 {
		return fmt.Errorf("RAIN_DURATION must be > 0")
	}
	if c.Chat.MaxLength <= 0 {
		return fmt.Errorf("CHAT_MAX_LENGTH must be > 0")
	}
	if c.DB.MaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be > 0")
	}
	return nil
}

// DatabaseURL returns the pgx connection string for the history database.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		c.DB.Username, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.Schema)
}
