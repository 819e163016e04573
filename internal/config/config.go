package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type SyncConfig struct {
	ProgressLogInterval  int           `mapstructure:"progress_log_interval"`
	StaleRunTimeout      time.Duration `mapstructure:"stale_run_timeout"`
	HistoryRetentionDays int           `mapstructure:"history_retention_days"`
}

type SourcesConfig struct {
	Raindrop RaindropConfig `mapstructure:"raindrop"`
	YouTube  YouTubeConfig  `mapstructure:"youtube"`
	Reddit   RedditConfig   `mapstructure:"reddit"`
}

type RaindropConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	PageSize       int           `mapstructure:"page_size"`
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
}

type YouTubeConfig struct {
	Browser     string `mapstructure:"browser"`
	PlaylistURL string `mapstructure:"playlist_url"`
	YtdlpPath   string `mapstructure:"ytdlp_path"`
}

type RedditConfig struct {
	AuthURL        string        `mapstructure:"auth_url"`
	APIBaseURL     string        `mapstructure:"api_base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	MaxItems       int           `mapstructure:"max_items"`
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	GDPRWorkers    int           `mapstructure:"gdpr_workers"`
}

type StorageConfig struct {
	ThumbnailArchive ThumbnailArchiveConfig `mapstructure:"thumbnail_archive"`
}

type ThumbnailArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/unisaved.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("sync.progress_log_interval", 100)
	v.SetDefault("sync.stale_run_timeout", 6*time.Hour)
	v.SetDefault("sync.history_retention_days", 30)
	v.SetDefault("sources.raindrop.base_url", "https://api.raindrop.io/rest/v1")
	v.SetDefault("sources.raindrop.page_size", 50)
	v.SetDefault("sources.raindrop.rate_limit_delay", time.Second)
	v.SetDefault("sources.raindrop.max_attempts", 3)
	v.SetDefault("sources.raindrop.retry_base_delay", 5*time.Second)
	v.SetDefault("sources.youtube.browser", "chrome")
	v.SetDefault("sources.youtube.playlist_url", "https://www.youtube.com/playlist?list=WL")
	v.SetDefault("sources.youtube.ytdlp_path", "yt-dlp")
	v.SetDefault("sources.reddit.auth_url", "https://www.reddit.com/api/v1/access_token")
	v.SetDefault("sources.reddit.api_base_url", "https://oauth.reddit.com")
	v.SetDefault("sources.reddit.user_agent", "unisaved/1.0")
	v.SetDefault("sources.reddit.max_items", 1000)
	v.SetDefault("sources.reddit.rate_limit_delay", time.Second)
	v.SetDefault("sources.reddit.max_attempts", 3)
	v.SetDefault("sources.reddit.retry_base_delay", 2*time.Second)
	v.SetDefault("sources.reddit.gdpr_workers", 4)
	v.SetDefault("storage.thumbnail_archive.enabled", false)
	v.SetDefault("storage.thumbnail_archive.endpoint", "localhost:9000")
	v.SetDefault("storage.thumbnail_archive.use_ssl", false)
	v.SetDefault("storage.thumbnail_archive.bucket", "unisaved-media")
	v.SetDefault("storage.thumbnail_archive.region", "us-east-1")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("sources.youtube.browser", "YOUTUBE_BROWSER")
	v.BindEnv("storage.thumbnail_archive.endpoint", "MEDIA_STORE_ENDPOINT")
	v.BindEnv("storage.thumbnail_archive.access_key", "MEDIA_STORE_ACCESS_KEY")
	v.BindEnv("storage.thumbnail_archive.secret_key", "MEDIA_STORE_SECRET_KEY")
	v.BindEnv("storage.thumbnail_archive.use_ssl", "MEDIA_STORE_USE_SSL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
