package config

import (
	"errors"
	"fmt"
	"os"

	"zapisnik/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig         `yaml:"app"`
	Telegram   TelegramConfig    `yaml:"telegram"`
	Database   DatabaseConfig    `yaml:"database"`
	Redis      RedisConfig       `yaml:"redis"`
	Backup     BackupConfig      `yaml:"backup"`
	Monitoring MonitoringConfig  `yaml:"monitoring"`
	Logging    LoggingConfig     `yaml:"logging"`
	API        APIConfig         `yaml:"api"`
	Google     GoogleConfig      `yaml:"google"`
	Bot        BotConfig         `yaml:"bot"`
	Exports    ExportConfig      `yaml:"exports"`
	Admins     []int64           `yaml:"admins"`
	AllowList  []int64           `yaml:"allow_list"`
	Calendars  []models.Calendar `yaml:"calendars"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
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

type GoogleConfig struct {
	CredentialsFile string  `yaml:"credentials_file"`
	TokenFile       string  `yaml:"token_file"`
	ClientID        string  `yaml:"client_id"`
	ClientSecret    string  `yaml:"client_secret"`
	RequestsPerSec  float64 `yaml:"requests_per_sec"`
}

type BotConfig struct {
	LeadTimeMinutes     int `yaml:"lead_time_minutes"`
	SyncIntervalMinutes int `yaml:"sync_interval_minutes"`
	SyncDaysAhead       int `yaml:"sync_days_ahead"`
	RateLimitMessages   int `yaml:"rate_limit_messages"`
	RateLimitWindow     int `yaml:"rate_limit_window"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key  string `yaml:"key"`
	Name string `yaml:"name"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func Load(configPath string) (*Config, error) {
	// .env подхватывается, если есть; его отсутствие не ошибка
	_ = godotenv.Load(".env")

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
	if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		return errors.New("telegram bot token is required")
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	return ValidateCalendars(c.Calendars)
}

// ValidateCalendars проверяет список календарей на дубликаты и пустые id.
func ValidateCalendars(calendars []models.Calendar) error {
	seen := make(map[string]bool)
	for _, cal := range calendars {
		if cal.ID == "" {
			return fmt.Errorf("calendar '%s' has empty id", cal.Name)
		}
		if seen[cal.ID] {
			return fmt.Errorf("duplicate calendar id found: %s", cal.ID)
		}
		seen[cal.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Google.TokenFile == "" {
		c.Google.TokenFile = "token.json"
	}
	if c.Google.RequestsPerSec == 0 {
		c.Google.RequestsPerSec = 5
	}

	// Bot defaults
	if c.Bot.LeadTimeMinutes == 0 {
		c.Bot.LeadTimeMinutes = models.DefaultLeadTimeMinutes
	}
	if c.Bot.SyncIntervalMinutes == 0 {
		c.Bot.SyncIntervalMinutes = models.DefaultSyncIntervalMinutes
	}
	if c.Bot.SyncDaysAhead == 0 {
		c.Bot.SyncDaysAhead = models.DefaultSyncDaysAhead
	}
	if c.Bot.RateLimitMessages == 0 {
		c.Bot.RateLimitMessages = models.RateLimitMessages
	}
	if c.Bot.RateLimitWindow == 0 {
		c.Bot.RateLimitWindow = models.RateLimitWindow
	}
}
