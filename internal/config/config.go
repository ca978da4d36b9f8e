// Package config loads fleet settings from ~/.botfleet/config.toml, FLEET_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = ".botfleet"
	envPrefix  = "FLEET"
)

const (
	CooldownBackendTOML   = "toml"
	CooldownBackendRedis  = "redis"
	CooldownBackendMemory = "memory"
)

const (
	SecretsBackendChain = "chain"
	SecretsBackendFile  = "file"
	SecretsBackendPass  = "pass"
)

type Config struct {
	Accounts  AccountsConfig  `mapstructure:"accounts"`
	History   HistoryConfig   `mapstructure:"history"`
	Cooldowns CooldownsConfig `mapstructure:"cooldowns"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Platform  PlatformConfig  `mapstructure:"platform"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Selection SelectionConfig `mapstructure:"selection"`
	Control   ControlConfig   `mapstructure:"control"`
	Log       LogConfig       `mapstructure:"log"`
}

type AccountsConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type HistoryConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type CooldownsConfig struct {
	Backend               string        `mapstructure:"backend" validate:"oneof=toml redis memory"`
	Path                  string        `mapstructure:"path"`
	UserCooldown          time.Duration `mapstructure:"user_cooldown" validate:"gte=0"`
	GlobalAccountCooldown time.Duration `mapstructure:"global_account_cooldown" validate:"gte=0"`
	ExemptUsers           []string      `mapstructure:"exempt_users"`
}

type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db" validate:"gte=0"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type SecretsConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=chain file pass"`
	Path    string `mapstructure:"path" validate:"required"`
	PassDir string `mapstructure:"pass_dir"`
}

type PlatformConfig struct {
	BaseURL   string        `mapstructure:"base_url" validate:"required,url"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
	UserAgent string        `mapstructure:"user_agent"`
}

type SchedulerConfig struct {
	RequestDelay     time.Duration `mapstructure:"request_delay" validate:"gte=0"`
	RateLimitPenalty time.Duration `mapstructure:"rate_limit_penalty" validate:"gte=0"`
}

type RetryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=0"`
	Delay       time.Duration `mapstructure:"delay" validate:"gte=0"`
}

type SelectionConfig struct {
	MaxAmount             int  `mapstructure:"max_amount" validate:"gt=0"`
	MaxCommentsPerAccount int  `mapstructure:"max_comments_per_account" validate:"gte=1"`
	Randomize             bool `mapstructure:"randomize"`
	AllowLimited          bool `mapstructure:"allow_limited"`
}

// ControlConfig drives `fleet serve`. AdminUsers may abort requests of
// other users.
type ControlConfig struct {
	Address    string   `mapstructure:"address" validate:"required,hostname_port"`
	AdminUsers []string `mapstructure:"admin_users"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// SetDefaults registers every key with its default value on cfg. Paths are
// rooted in homeDir.
func SetDefaults(cfg *viper.Viper, homeDir string) {
	base := filepath.Join(homeDir, configDir)

	cfg.SetDefault("accounts.path", filepath.Join(base, "accounts.toml"))
	cfg.SetDefault("history.path", filepath.Join(base, "history.db"))
	cfg.SetDefault("cooldowns.backend", CooldownBackendTOML)
	cfg.SetDefault("cooldowns.path", filepath.Join(base, "cooldowns.toml"))
	cfg.SetDefault("cooldowns.user_cooldown", 5*time.Minute)
	cfg.SetDefault("cooldowns.global_account_cooldown", time.Minute)
	cfg.SetDefault("cooldowns.exempt_users", []string{})
	cfg.SetDefault("redis.address", "localhost:6379")
	cfg.SetDefault("redis.password", "")
	cfg.SetDefault("redis.db", 0)
	cfg.SetDefault("redis.key_prefix", "botfleet:cooldown:")
	cfg.SetDefault("secrets.backend", SecretsBackendChain)
	cfg.SetDefault("secrets.path", filepath.Join(base, "secrets"))
	cfg.SetDefault("secrets.pass_dir", "")
	cfg.SetDefault("platform.base_url", "http://127.0.0.1:8080")
	cfg.SetDefault("platform.timeout", 15*time.Second)
	cfg.SetDefault("platform.user_agent", "botfleet")
	cfg.SetDefault("scheduler.request_delay", 5*time.Second)
	cfg.SetDefault("scheduler.rate_limit_penalty", 10*time.Minute)
	cfg.SetDefault("retry.enabled", true)
	cfg.SetDefault("retry.max_attempts", 2)
	cfg.SetDefault("retry.delay", 30*time.Second)
	cfg.SetDefault("selection.max_amount", 100)
	cfg.SetDefault("selection.max_comments_per_account", 1)
	cfg.SetDefault("selection.randomize", false)
	cfg.SetDefault("selection.allow_limited", false)
	cfg.SetDefault("control.address", "127.0.0.1:8090")
	cfg.SetDefault("control.admin_users", []string{})
	cfg.SetDefault("log.level", "warn")
	cfg.SetDefault("log.format", "console")
}

// Load reads the optional config file, applies env overrides and returns a
// validated Config. cfg keeps every resolved key so adapters can read their
// own settings from it.
func Load(cfg *viper.Viper) (Config, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve home directory: %w", err)
	}

	SetDefaults(cfg, homeDir)

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(filepath.Join(homeDir, configDir))
	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cfg.AutomaticEnv()

	if err := cfg.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var out Config
	if err := cfg.Unmarshal(&out); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := out.Validate(); err != nil {
		return Config{}, err
	}

	return out, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if c.Cooldowns.Backend == CooldownBackendRedis && c.Redis.Address == "" {
		return errors.New("validate config: redis.address is required when cooldowns.backend is redis")
	}
	if c.Cooldowns.Backend == CooldownBackendTOML && c.Cooldowns.Path == "" {
		return errors.New("validate config: cooldowns.path is required when cooldowns.backend is toml")
	}

	return nil
}
