package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	AppEnv                string  `mapstructure:"app_env"`
	Port                  string  `mapstructure:"port"`
	AllowedOrigin         string  `mapstructure:"allowed_origin"`
	DatabaseURL           string  `mapstructure:"database_url"`
	MigrateOnStart        bool    `mapstructure:"migrate_on_start"`
	RedisAddr             string  `mapstructure:"redis_addr"`
	RedisPassword         string  `mapstructure:"redis_password"`
	RedisDB               int     `mapstructure:"redis_db"`
	DefaultBranchID       int64   `mapstructure:"default_branch_id"`
	ReportCacheTTLSeconds int     `mapstructure:"report_cache_ttl_seconds"`
	LowStockThreshold     float64 `mapstructure:"low_stock_threshold"`
	AuthSecret            string  `mapstructure:"auth_secret"`
	AccessTokenTTLMinutes int     `mapstructure:"access_token_ttl_minutes"`
	ManagerPIN            string  `mapstructure:"manager_pin"`
	MetricsEnabled        bool    `mapstructure:"metrics_enabled"`
}

// Load reads configuration from the environment. When CONFIG_FILE is set the
// file is read first and environment variables still take precedence.
func Load() (Config, error) {
	v := viper.New()
	v.SetDefault("app_env", "production")
	v.SetDefault("port", "8080")
	v.SetDefault("allowed_origin", "http://127.0.0.1:3000")
	v.SetDefault("database_url", "")
	v.SetDefault("migrate_on_start", true)
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("default_branch_id", 1)
	v.SetDefault("report_cache_ttl_seconds", 60)
	v.SetDefault("low_stock_threshold", 10)
	v.SetDefault("auth_secret", "")
	v.SetDefault("access_token_ttl_minutes", 480)
	v.SetDefault("manager_pin", "")
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("config_file", "")
	v.AutomaticEnv()

	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.ManagerPIN = strings.TrimSpace(cfg.ManagerPIN)
	if cfg.DefaultBranchID < 1 {
		cfg.DefaultBranchID = 1
	}
	if cfg.ReportCacheTTLSeconds < 1 {
		cfg.ReportCacheTTLSeconds = 60
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.LowStockThreshold <= 0 {
		cfg.LowStockThreshold = 10
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}
