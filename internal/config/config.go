package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the client settings.
type Config struct {
	APIURL      string
	WSURL       string
	HTTPTimeout time.Duration

	LogLevel string
	LogSink  string

	ConfigDir string
	Profile   string
}

// Load reads the client configuration from the environment, after applying
// an optional .env file in the working directory.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{
		APIURL:      strings.TrimRight(getEnv("ZCHAT_API_URL", "http://localhost:8000/api"), "/"),
		WSURL:       getEnv("ZCHAT_WS_URL", ""),
		HTTPTimeout: getEnvAsDuration("ZCHAT_HTTP_TIMEOUT", 15*time.Second),
		LogLevel:    getEnv("ZCHAT_LOG_LEVEL", "info"),
		LogSink:     getEnv("ZCHAT_LOG_SINK", "stderr"),
		ConfigDir:   getEnv("ZCHAT_CONFIG_DIR", ""),
		Profile:     getEnv("ZCHAT_PROFILE", "default"),
	}

	api, err := url.Parse(cfg.APIURL)
	if err != nil || api.Scheme == "" || api.Host == "" {
		return nil, fmt.Errorf("ZCHAT_API_URL %q is not an absolute URL", cfg.APIURL)
	}
	if cfg.WSURL == "" {
		cfg.WSURL = deriveWSURL(api)
	}

	if cfg.ConfigDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.ConfigDir = filepath.Join(home, ".config", "zchat")
	}

	return cfg, nil
}

// ProfileDir is the directory holding the active profile's session file.
func (c *Config) ProfileDir() string {
	return filepath.Join(c.ConfigDir, c.Profile)
}

// deriveWSURL maps http://host/api to ws://host/ws.
func deriveWSURL(api *url.URL) string {
	u := url.URL{Scheme: "ws", Host: api.Host, Path: "/ws"}
	if api.Scheme == "https" {
		u.Scheme = "wss"
	}
	return u.String()
}

// DevServer holds the settings of the local development backend.
type DevServer struct {
	Host        string
	Port        int
	DatabaseURL string

	JWTSecret          string
	AccessTokenMinutes int
	EncryptKey         string
	LegacyKeys         []string

	CORSOrigins []string
	Seed        bool
	LogLevel    string

	MaxMessagesPerChannel int
	// PasswordCost is the bcrypt cost; 0 selects bcrypt's default.
	PasswordCost int
}

// LoadDevServer reads the development backend configuration.
func LoadDevServer() (*DevServer, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &DevServer{
		Host:               getEnv("DEV_HTTP_HOST", "127.0.0.1"),
		Port:               getEnvAsInt("DEV_HTTP_PORT", 8000),
		DatabaseURL:        getEnv("DEV_DATABASE_URL", "file:zchat-dev.db?_pragma=busy_timeout(5000)"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		AccessTokenMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60*24),
		EncryptKey:         os.Getenv("ENCRYPTION_KEY"),
		LegacyKeys:         getEnvAsList("LEGACY_ENCRYPTION_KEYS", nil),
		CORSOrigins:        getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		Seed:               getEnvAsBool("DEV_SEED", true),
		LogLevel:           getEnv("DEV_LOG_LEVEL", "info"),

		MaxMessagesPerChannel: getEnvAsInt("DEV_MAX_MESSAGES_PER_CHANNEL", 1000),
		PasswordCost:          getEnvAsInt("DEV_PASSWORD_COST", 0),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.EncryptKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required")
	}

	return cfg, nil
}

func (c *DevServer) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *DevServer) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenMinutes) * time.Minute
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getEnvAsList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
