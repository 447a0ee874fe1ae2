package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"salonbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Email      EmailConfig      `yaml:"email"`
	Google     GoogleConfig     `yaml:"google"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Exports    ExportConfig     `yaml:"exports"`
	Admins     []AdminSeed      `yaml:"admins"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Channel  string `yaml:"channel"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	Session   SessionConfig      `yaml:"session"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool `yaml:"enabled"`
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

// APIAuthConfig guards machine clients of the gRPC availability API.
type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

// SessionConfig configures JWT sessions for people (clients, professionals, admins).
type SessionConfig struct {
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
	Issuer string        `yaml:"issuer"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BookingConfig struct {
	WorkingHours models.WorkingHours `yaml:"working_hours"`
	Timezone     string              `yaml:"timezone"`
	// PendingTTL declines pending reservations older than this. Zero disables the job.
	PendingTTL          time.Duration `yaml:"pending_ttl"`
	ExpiryCheckInterval time.Duration `yaml:"expiry_check_interval"`
	MaxAdvanceDays      int           `yaml:"max_advance_days"`
	RateLimitCount      int           `yaml:"rate_limit_count"`
	RateLimitWindow     time.Duration `yaml:"rate_limit_window"`
	GuestPhoneRequired  bool          `yaml:"guest_phone_required"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
	// Сообщений от одного чата за окно, дальше бот отвечает предупреждением
	RateLimitMessages int           `yaml:"rate_limit_messages"`
	RateLimitWindow   time.Duration `yaml:"rate_limit_window"`
}

type EmailConfig struct {
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
}

type GoogleConfig struct {
	CredentialsFile       string `yaml:"credentials_file"`
	ReservationsSheetID   string `yaml:"reservations_spreadsheet_id"`
	ReservationsSheetName string `yaml:"reservations_sheet_name"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// AdminSeed is created on startup if no user with that email exists.
type AdminSeed struct {
	Email    string `yaml:"email"`
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
}

func Load(configPath string) (*Config, error) {
	// .env необязателен: в контейнере переменные приходят из окружения
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.API.Session.Secret == "" {
		return errors.New("api.session.secret is required")
	}

	if _, _, err := c.Booking.WorkingHours.Bounds(); err != nil {
		return fmt.Errorf("booking.working_hours: %w", err)
	}

	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		return fmt.Errorf("booking.timezone: %w", err)
	}

	return ValidateAPIKeys(c.API.Auth.APIKeys)
}

func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if k.Key == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client '%s'", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

// Location returns the default booking timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NotificationChannels lists the outbox channels this configuration can deliver.
func (c *Config) NotificationChannels() []string {
	var channels []string
	if c.Telegram.BotToken != "" {
		channels = append(channels, models.ChannelTelegram)
	}
	channels = append(channels, models.ChannelEmail)
	if c.Google.CredentialsFile != "" && c.Google.ReservationsSheetID != "" {
		channels = append(channels, models.ChannelSheets)
	}
	return channels
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "salonbook"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Session.TTL == 0 {
		c.API.Session.TTL = 24 * time.Hour
	}
	if c.API.Session.Issuer == "" {
		c.API.Session.Issuer = c.App.Name
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "salonbook:changes"
	}

	// Booking defaults
	if c.Booking.WorkingHours.Open == "" {
		c.Booking.WorkingHours.Open = models.DefaultOpenTime
	}
	if c.Booking.WorkingHours.Close == "" {
		c.Booking.WorkingHours.Close = models.DefaultCloseTime
	}
	if c.Booking.Timezone == "" {
		c.Booking.Timezone = "UTC"
	}
	if c.Booking.ExpiryCheckInterval == 0 {
		c.Booking.ExpiryCheckInterval = time.Minute
	}
	if c.Booking.MaxAdvanceDays == 0 {
		c.Booking.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if c.Booking.RateLimitCount == 0 {
		c.Booking.RateLimitCount = models.RateLimitReservations
	}
	if c.Booking.RateLimitWindow == 0 {
		c.Booking.RateLimitWindow = models.RateLimitWindow
	}

	if c.Telegram.RateLimitMessages == 0 {
		c.Telegram.RateLimitMessages = 20
	}
	if c.Telegram.RateLimitWindow == 0 {
		c.Telegram.RateLimitWindow = time.Minute
	}

	if c.Email.FromName == "" {
		c.Email.FromName = c.App.Name
	}
	if c.Google.ReservationsSheetName == "" {
		c.Google.ReservationsSheetName = "Reservations"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
