package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Cron     CronConfig     `mapstructure:"cron"`
	Trading  TradingConfig  `mapstructure:"trading"`
	Decision DecisionConfig `mapstructure:"decision"`
	Economy  EconomyConfig  `mapstructure:"economy"`
	Roster   RosterConfig   `mapstructure:"roster"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
	// AdminAPIKey guards the manual session start/pause/resume endpoints.
	AdminAPIKey string `mapstructure:"admin_api_key"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	// Driver selects the ledger store: "postgres" or "memory" (dev only).
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// SessionStart is a 6-field cron spec for the daily session kickoff.
	SessionStart string `mapstructure:"session_start"`
}

// TradingConfig carries the static policy inputs of a session. None of these
// are renegotiated mid-session.
type TradingConfig struct {
	SessionDuration      time.Duration `mapstructure:"session_duration"`
	RoundInterval        time.Duration `mapstructure:"round_interval"`
	MinTradesPerSession  int           `mapstructure:"min_trades_per_session"`
	BonusRate            float64       `mapstructure:"bonus_rate"`
	MaxProposalsPerRound int           `mapstructure:"max_proposals_per_round"`
	MaxCounterDepth      int           `mapstructure:"max_counter_depth"`
	AgentTurnDelay       time.Duration `mapstructure:"agent_turn_delay"`
}

type DecisionConfig struct {
	// Timeout bounds one agent turn end to end, upstream calls included.
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxIterations int           `mapstructure:"max_iterations"`
	// CallSpacing is the minimum gap between upstream model calls.
	CallSpacing time.Duration `mapstructure:"call_spacing"`
	MaxTokens   int           `mapstructure:"max_tokens"`
}

// EconomyConfig seeds the goods catalog and every agent's opening position.
type EconomyConfig struct {
	InitialCash      float64            `mapstructure:"initial_cash"`
	Goods            []GoodConfig       `mapstructure:"goods"`
	InitialInventory map[string]float64 `mapstructure:"initial_inventory"`
}

type GoodConfig struct {
	ID             string  `mapstructure:"id"`
	Name           string  `mapstructure:"name"`
	Unit           string  `mapstructure:"unit"`
	ReferencePrice float64 `mapstructure:"reference_price"`
}

// RosterConfig seeds the competing agents and their model bindings.
type RosterConfig struct {
	Models []ModelConfig `mapstructure:"models"`
	Agents []AgentConfig `mapstructure:"agents"`
}

type ModelConfig struct {
	ID           string `mapstructure:"id"`
	Name         string `mapstructure:"name"`
	Provider     string `mapstructure:"provider"`
	APIKeyEnvVar string `mapstructure:"api_key_env_var"`
}

type AgentConfig struct {
	ID      string `mapstructure:"id"`
	Name    string `mapstructure:"name"`
	ModelID string `mapstructure:"model_id"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.admin_api_key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.session_start", "0 20 18 * * *")
	v.SetDefault("trading.session_duration", "30m")
	v.SetDefault("trading.round_interval", "30s")
	v.SetDefault("trading.min_trades_per_session", 5)
	v.SetDefault("trading.bonus_rate", 0.05)
	v.SetDefault("trading.max_proposals_per_round", 3)
	v.SetDefault("trading.max_counter_depth", 2)
	v.SetDefault("trading.agent_turn_delay", "1s")
	v.SetDefault("decision.timeout", "2m")
	v.SetDefault("decision.max_iterations", 10)
	v.SetDefault("decision.call_spacing", "12s")
	v.SetDefault("decision.max_tokens", 1024)
	v.SetDefault("economy.initial_cash", 10000)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
