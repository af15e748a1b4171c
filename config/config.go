package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the authorization server. Tags use
// mapstructure for viper unmarshalling; every key can be overridden from the
// environment.
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	Issuer      string `mapstructure:"ISSUER"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogPretty   bool   `mapstructure:"LOG_PRETTY"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	AccessTokenTTLMin     int `mapstructure:"ACCESS_TOKEN_TTL_MIN"`
	RefreshTokenTTLHour   int `mapstructure:"REFRESH_TOKEN_TTL_HOUR"`
	TicketTTLMin          int `mapstructure:"TICKET_TTL_MIN"`
	PermissionTTLMin      int `mapstructure:"PERMISSION_TTL_MIN"`
	TicketSweepMin        int `mapstructure:"TICKET_SWEEP_MIN"`
	SectorFetchTimeoutSec int `mapstructure:"SECTOR_FETCH_TIMEOUT_SEC"`
	DeviceCodeTTLMin      int `mapstructure:"DEVICE_CODE_TTL_MIN"`
	DevicePollIntervalSec int `mapstructure:"DEVICE_POLL_INTERVAL_SEC"`
}

// AccessTokenTTL returns the configured access token lifetime.
func (c *ServerConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMin) * time.Minute
}

// RefreshTokenTTL returns the configured refresh token lifetime.
func (c *ServerConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLHour) * time.Hour
}

// TicketTTL returns the permission ticket lifetime.
func (c *ServerConfig) TicketTTL() time.Duration {
	return time.Duration(c.TicketTTLMin) * time.Minute
}

// PermissionTTL returns the lifetime of permissions embedded in RPTs.
func (c *ServerConfig) PermissionTTL() time.Duration {
	return time.Duration(c.PermissionTTLMin) * time.Minute
}

// TicketSweepInterval returns how often expired tickets are purged.
func (c *ServerConfig) TicketSweepInterval() time.Duration {
	return time.Duration(c.TicketSweepMin) * time.Minute
}

// SectorFetchTimeout bounds the sector_identifier_uri fetch.
func (c *ServerConfig) SectorFetchTimeout() time.Duration {
	return time.Duration(c.SectorFetchTimeoutSec) * time.Second
}

// DeviceCodeTTL returns the device/user code lifetime.
func (c *ServerConfig) DeviceCodeTTL() time.Duration {
	return time.Duration(c.DeviceCodeTTLMin) * time.Minute
}

// LoadConfig reads configuration from file, environment variables and
// defaults, in that order of precedence (env wins).
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/authz/")
	v.AddConfigPath("$HOME/.authz")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("ISSUER", "https://authz.pilab.hu")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/authz_dev")
	v.SetDefault("MONGO_DB_NAME", "authz_dev")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "authz-server")
	v.SetDefault("ACCESS_TOKEN_TTL_MIN", 60)
	v.SetDefault("REFRESH_TOKEN_TTL_HOUR", 720)
	v.SetDefault("TICKET_TTL_MIN", 5)
	v.SetDefault("PERMISSION_TTL_MIN", 60)
	v.SetDefault("TICKET_SWEEP_MIN", 1)
	v.SetDefault("SECTOR_FETCH_TIMEOUT_SEC", 10)
	v.SetDefault("DEVICE_CODE_TTL_MIN", 10)
	v.SetDefault("DEVICE_POLL_INTERVAL_SEC", 5)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Missing file is fine, defaults and env apply.
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
