// Package config loads the server configuration from flags, environment
// variables (prefix PRESCIENT_) and an optional config file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. PRESCIENT_TOKEN_SECRET.
const EnvPrefix = "PRESCIENT"

// Storage and mail drivers.
const (
	DriverSQLite   = "sqlite"
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"

	MailDriverLog  = "log"
	MailDriverSMTP = "smtp"
)

// ErrNoSecret means neither token.secret nor token.secret_file is set.
var ErrNoSecret = errors.New("token secret is not configured: set token.secret or token.secret_file")

// Config содержит всю конфигурацию сервера
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Token     TokenConfig     `mapstructure:"token"`
	Reset     ResetConfig     `mapstructure:"reset"`
	Mail      MailConfig      `mapstructure:"mail"`
	Bootstrap BootstrapConfig `mapstructure:"bootstrap"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Address           string        `mapstructure:"address"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	// DSN - путь к файлу для sqlite/bolt или строка подключения postgres
	DSN string `mapstructure:"dsn"`
}

type TokenConfig struct {
	Secret     string        `mapstructure:"secret"`
	SecretFile string        `mapstructure:"secret_file"`
	Issuer     string        `mapstructure:"issuer"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	ResetTTL   time.Duration `mapstructure:"reset_ttl"`
}

type ResetConfig struct {
	LinkBase      string        `mapstructure:"link_base"`
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
	SingleUse     bool          `mapstructure:"single_use"`
}

type MailConfig struct {
	Driver    string     `mapstructure:"driver"`
	SMTP      SMTPConfig `mapstructure:"smtp"`
	QueueSize int        `mapstructure:"queue_size"`
	Async     bool       `mapstructure:"async"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	Port     int    `mapstructure:"port"`
	// Insecure разрешает отправку без STARTTLS
	Insecure bool   `mapstructure:"insecure"`
}

type BootstrapConfig struct {
	Username string `mapstructure:"username"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	Enabled  bool   `mapstructure:"enabled"`
}

type ScoringConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type RateLimitConfig struct {
	// TrustedProxies - CIDR или IP прокси, чьим X-Forwarded-For можно верить
	TrustedProxies []string      `mapstructure:"trusted_proxies"`
	AuthRequests   int           `mapstructure:"auth_requests"`
	AuthWindow     time.Duration `mapstructure:"auth_window"`
}

// defaults задает значения по умолчанию.
// Каждый ключ должен быть здесь, иначе viper не увидит его переменную окружения.
var defaults = map[string]any{
	"server.address":             ":8000",
	"server.read_header_timeout": 10 * time.Second,
	"server.write_timeout":       30 * time.Second,
	"server.shutdown_timeout":    15 * time.Second,

	"log.level":  "info",
	"log.format": "text",

	"storage.driver": DriverSQLite,
	"storage.dsn":    "prescient.db",

	"token.secret":      "",
	"token.secret_file": "",
	"token.issuer":      "prescient",
	"token.session_ttl": 24 * time.Hour,
	"token.reset_ttl":   time.Hour,

	"reset.single_use":     false,
	"reset.link_base":      "http://localhost:8000/reset-password",
	"reset.purge_interval": time.Hour,

	"mail.driver":        MailDriverLog,
	"mail.async":         true,
	"mail.queue_size":    64,
	"mail.smtp.host":     "",
	"mail.smtp.port":     587,
	"mail.smtp.username": "",
	"mail.smtp.password": "",
	"mail.smtp.from":     "",
	"mail.smtp.insecure": false,

	"bootstrap.enabled":  true,
	"bootstrap.username": "eiz",
	"bootstrap.email":    "eiz@prescient.com",
	"bootstrap.password": "iris",

	"scoring.endpoint": "http://localhost:8500/predict",
	"scoring.timeout":  5 * time.Second,

	"ratelimit.auth_requests":   10,
	"ratelimit.auth_window":     time.Minute,
	"ratelimit.trusted_proxies": []string{},
}

// flagKeys связывает имена флагов командной строки с ключами конфигурации
var flagKeys = map[string]string{
	"address":        "server.address",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"storage-driver": "storage.driver",
	"storage-dsn":    "storage.dsn",
	"secret-file":    "token.secret_file",
}

// New creates a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// RegisterFlags adds the flags that override configuration keys.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("address", "", "HTTP listen address (server.address)")
	flags.String("log-level", "", "log level: debug, info, warn, error (log.level)")
	flags.String("log-format", "", "log format: text or json (log.format)")
	flags.String("storage-driver", "", "storage backend: sqlite, bolt, postgres (storage.driver)")
	flags.String("storage-dsn", "", "database file path or postgres DSN (storage.dsn)")
	flags.String("secret-file", "", "file with the token signing secret (token.secret_file)")
}

// BindFlags binds the registered flags present in flags to v.
// Only flags set on the command line take precedence over other sources.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads configFile (if set), applies environment overrides and validates the result.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	err := validation.Errors{
		"server": validation.ValidateStruct(&c.Server,
			validation.Field(&c.Server.Address, validation.Required),
			validation.Field(&c.Server.ReadHeaderTimeout, validation.Required),
			validation.Field(&c.Server.WriteTimeout, validation.Required),
		),
		"log": validation.ValidateStruct(&c.Log,
			validation.Field(&c.Log.Level, validation.In("debug", "info", "warn", "error")),
			validation.Field(&c.Log.Format, validation.In("text", "json")),
		),
		"storage": validation.ValidateStruct(&c.Storage,
			validation.Field(&c.Storage.Driver, validation.Required, validation.In(DriverSQLite, DriverBolt, DriverPostgres)),
			validation.Field(&c.Storage.DSN, validation.Required),
		),
		"token": validation.ValidateStruct(&c.Token,
			validation.Field(&c.Token.Issuer, validation.Required),
			validation.Field(&c.Token.SessionTTL, validation.Required),
			validation.Field(&c.Token.ResetTTL, validation.Required),
		),
		"reset": validation.ValidateStruct(&c.Reset,
			validation.Field(&c.Reset.LinkBase, validation.Required, is.RequestURL),
			validation.Field(&c.Reset.PurgeInterval, rulesIf(c.Reset.SingleUse, validation.Required)...),
		),
		"mail": validation.ValidateStruct(&c.Mail,
			validation.Field(&c.Mail.Driver, validation.Required, validation.In(MailDriverLog, MailDriverSMTP)),
			validation.Field(&c.Mail.QueueSize, rulesIf(c.Mail.Async, validation.Required, validation.Min(1))...),
		),
		"bootstrap": validation.ValidateStruct(&c.Bootstrap,
			validation.Field(&c.Bootstrap.Username, rulesIf(c.Bootstrap.Enabled, validation.Required)...),
			validation.Field(&c.Bootstrap.Email, rulesIf(c.Bootstrap.Enabled, validation.Required, is.Email)...),
			validation.Field(&c.Bootstrap.Password, rulesIf(c.Bootstrap.Enabled, validation.Required)...),
		),
		"scoring": validation.ValidateStruct(&c.Scoring,
			validation.Field(&c.Scoring.Endpoint, validation.Required, is.RequestURL),
		),
		"ratelimit": validation.ValidateStruct(&c.RateLimit,
			validation.Field(&c.RateLimit.AuthRequests, validation.Min(0)),
			validation.Field(&c.RateLimit.AuthWindow, rulesIf(c.RateLimit.AuthRequests > 0, validation.Required)...),
		),
	}.Filter()
	if err != nil {
		return err
	}

	if c.Mail.Driver == MailDriverSMTP {
		return validation.Errors{
			"mail.smtp": validation.ValidateStruct(&c.Mail.SMTP,
				validation.Field(&c.Mail.SMTP.Host, validation.Required),
				validation.Field(&c.Mail.SMTP.Port, validation.Required, validation.Max(65535)),
				validation.Field(&c.Mail.SMTP.From, validation.Required, is.Email),
			),
		}.Filter()
	}

	return nil
}

// rulesIf применяет правила только при выполнении условия
func rulesIf(cond bool, rules ...validation.Rule) []validation.Rule {
	if !cond {
		return nil
	}
	return rules
}

// LoadSecret returns the signing secret from token.secret or, if empty, from token.secret_file.
// Surrounding whitespace of the file content is ignored.
func (c TokenConfig) LoadSecret() ([]byte, error) {
	if c.Secret != "" {
		return []byte(c.Secret), nil
	}
	if c.SecretFile == "" {
		return nil, ErrNoSecret
	}

	data, err := os.ReadFile(c.SecretFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret file: %w", err)
	}

	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return nil, fmt.Errorf("secret file %s is empty", c.SecretFile)
	}
	return []byte(secret), nil
}
