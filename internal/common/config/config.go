// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	VoiceGateway  VoiceGatewayConfig  `mapstructure:"voice_gateway"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Telephony     TelephonyConfig     `mapstructure:"telephony"`
	Realtime      RealtimeConfig      `mapstructure:"realtime"`
	Relay         RelayConfig         `mapstructure:"relay"`
	Notifications NotificationConfig  `mapstructure:"notifications"`
	Admin         AdminConfig         `mapstructure:"admin"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig holds settings for the main HTTP API process.
type ServerConfig struct {
	Address string `mapstructure:"address"`
	BaseURL string `mapstructure:"base_url"` // public URL used in SMS session links
}

// VoiceGatewayConfig holds settings for the telephony-facing process.
type VoiceGatewayConfig struct {
	Address     string `mapstructure:"address"`
	UpstreamURL string `mapstructure:"upstream_url"` // main API to proxy non-stream traffic to
	StreamURL   string `mapstructure:"stream_url"`   // public wss:// URL handed to the telephony provider
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// TelephonyConfig holds the telephony provider credentials and number.
type TelephonyConfig struct {
	AccountSID  string `mapstructure:"account_sid"`
	AuthToken   string `mapstructure:"auth_token"`
	PhoneNumber string `mapstructure:"phone_number"` // E.164 callback number
}

// RealtimeConfig holds settings for the conversational voice agent.
type RealtimeConfig struct {
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	Voice        string `mapstructure:"voice"`
	Instructions string `mapstructure:"instructions"`
}

// RelayConfig holds settings for the per-session pub/sub relay.
type RelayConfig struct {
	TokenSecret     string `mapstructure:"token_secret"`
	TokenTTLSeconds int    `mapstructure:"token_ttl_seconds"`
}

// NotificationConfig holds settings for SMS and email delivery.
type NotificationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
	SMS struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"sms"`
	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`
}

// AdminConfig holds the shared-secret gate for the admin pages. This is a
// superficial check, not an authentication system.
type AdminConfig struct {
	PagePassword string `mapstructure:"page_password"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
