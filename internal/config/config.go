package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Fetcher   FetcherConfig
	RateLimit RateLimitConfig
	Browser   BrowserConfig
	Sheet     SheetConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	MaxBodyBytes    int64
}

type FetcherConfig struct {
	Mode               string
	BaseURL            string
	Referer            string
	Timeout            time.Duration
	MaxRetries         int
	RetryDelay         time.Duration
	UserAgents         []string
	BlockedDir         string
	DescriptionTimeout time.Duration
}

type RateLimitConfig struct {
	Strategy   string
	MinDelay   time.Duration
	MaxDelay   time.Duration
	BucketSize int
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	TimezoneID     string
	Locale         string
	ProxyServer    string
}

type SheetConfig struct {
	TemplatePath string
	OutputPath   string
	SheetName    string
	StartRow     int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	Stream        string
	ConsumerGroup string
}

type LoggingConfig struct {
	Level  string
	Format string
}

const (
	FetchModeHTTP    = "http"
	FetchModeBrowser = "browser"
)

// Load reads the given env files (".env" when none are named) into the process
// environment, then builds the configuration from it. Missing env files are ignored.
func Load(envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles...); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 90*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"*"}),
			MaxBodyBytes:    int64(getIntOrDefault("SERVER_MAX_BODY_BYTES", 10<<20)),
		},
		Fetcher: FetcherConfig{
			Mode:               getEnvOrDefault("FETCHER_MODE", FetchModeHTTP),
			BaseURL:            getEnvOrDefault("FETCHER_BASE_URL", "https://detail.1688.com/offer/"),
			Referer:            getEnvOrDefault("FETCHER_REFERER", "https://www.1688.com/"),
			Timeout:            getDurationOrDefault("FETCHER_TIMEOUT", 20*time.Second),
			MaxRetries:         getIntOrDefault("FETCHER_MAX_RETRIES", 3),
			RetryDelay:         getDurationOrDefault("FETCHER_RETRY_DELAY", 2*time.Second),
			UserAgents:         getStringSliceOrDefault("FETCHER_USER_AGENTS", defaultUserAgents()),
			BlockedDir:         getEnvOrDefault("FETCHER_BLOCKED_DIR", ""),
			DescriptionTimeout: getDurationOrDefault("FETCHER_DESCRIPTION_TIMEOUT", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			Strategy:   getEnvOrDefault("RATE_LIMIT_STRATEGY", "adaptive"),
			MinDelay:   getDurationOrDefault("RATE_LIMIT_MIN_DELAY", 2*time.Second),
			MaxDelay:   getDurationOrDefault("RATE_LIMIT_MAX_DELAY", 5*time.Second),
			BucketSize: getIntOrDefault("RATE_LIMIT_BUCKET_SIZE", 5),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Asia/Shanghai"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
			ProxyServer:    getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Sheet: SheetConfig{
			TemplatePath: getEnvOrDefault("SHEET_TEMPLATE", ""),
			OutputPath:   getEnvOrDefault("SHEET_OUTPUT", "offers.xlsx"),
			SheetName:    getEnvOrDefault("SHEET_NAME", ""),
			StartRow:     getIntOrDefault("SHEET_START_ROW", 7),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "offer_scraper"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: int32(getIntOrDefault("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:          getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password:      getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:            getIntOrDefault("REDIS_DB", 0),
			Stream:        getEnvOrDefault("REDIS_STREAM", "stream:offer_records"),
			ConsumerGroup: getEnvOrDefault("REDIS_CONSUMER_GROUP", "sheet-writers"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Fetcher.Mode != FetchModeHTTP && c.Fetcher.Mode != FetchModeBrowser {
		return fmt.Errorf("FETCHER_MODE must be %q or %q, got %q", FetchModeHTTP, FetchModeBrowser, c.Fetcher.Mode)
	}

	if c.Fetcher.MaxRetries < 1 {
		return fmt.Errorf("FETCHER_MAX_RETRIES must be at least 1")
	}

	if len(c.Fetcher.UserAgents) == 0 {
		return fmt.Errorf("FETCHER_USER_AGENTS must not be empty")
	}

	if c.Fetcher.DescriptionTimeout <= 0 {
		return fmt.Errorf("FETCHER_DESCRIPTION_TIMEOUT must be positive")
	}

	if c.RateLimit.MinDelay < 0 {
		return fmt.Errorf("RATE_LIMIT_MIN_DELAY cannot be negative")
	}

	if c.RateLimit.MinDelay > c.RateLimit.MaxDelay {
		return fmt.Errorf("RATE_LIMIT_MIN_DELAY cannot be greater than RATE_LIMIT_MAX_DELAY")
	}

	if c.Sheet.StartRow < 1 {
		return fmt.Errorf("SHEET_START_ROW must be at least 1")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Logging.Format)
	}

	return nil
}

// DSN returns the pgx connection string for the database section.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode, d.MaxConns)
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

func loadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, "|") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	}
}
