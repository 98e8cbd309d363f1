package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const insecureJWTSecret = "supersecretkey"

type Config struct {
	Addr         string          `yaml:"addr"`
	APITimeout   time.Duration   `yaml:"timeout"`
	Env          string          `yaml:"env"`
	Log          LogConfig       `yaml:"log"`
	Auth         AuthConfig      `yaml:"auth"`
	CORS         CORSConfig      `yaml:"cors"`
	Store        StoreConfig     `yaml:"store"`
	Redis        RedisConfig     `yaml:"redis"`
	TaxonomyPath string          `yaml:"taxonomy_path"`
	Ollama       OllamaConfig    `yaml:"ollama"`
	Assistant    AssistantConfig `yaml:"assistant"`
	Backup       BackupConfig    `yaml:"backup"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	JWTSecret string `yaml:"jwt_secret"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type StoreConfig struct {
	Driver            string        `yaml:"driver"`
	SQLitePath        string        `yaml:"sqlite_path"`
	MongoURI          string        `yaml:"mongo_uri"`
	MongoDatabase     string        `yaml:"mongo_database"`
	MongoTransactions bool          `yaml:"mongo_transactions"`
	Timeout           time.Duration `yaml:"timeout"`
}

// RedisConfig selects the chat session store. An empty Addr keeps sessions
// in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type OllamaConfig struct {
	BaseURL                 string        `yaml:"base_url"`
	DefaultModelNames       []string      `yaml:"models"`
	Timeout                 time.Duration `yaml:"timeout"`
	Retries                 int           `yaml:"retries"`
	Backoff                 time.Duration `yaml:"backoff"`
	CircuitFailureThreshold int           `yaml:"circuit_failure_threshold"`
	CircuitReset            time.Duration `yaml:"circuit_reset"`
}

type AssistantConfig struct {
	Model         string        `yaml:"model"`
	Timeout       time.Duration `yaml:"timeout"`
	HistoryWindow int           `yaml:"history_window"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
}

// BackupConfig controls snapshots. A positive Interval makes the server
// take them periodically.
type BackupConfig struct {
	Dir      string        `yaml:"dir"`
	Interval time.Duration `yaml:"interval"`
	S3       S3Config      `yaml:"s3"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// Enabled reports whether backups should be uploaded.
func (s S3Config) Enabled() bool {
	return s.Bucket != ""
}

// LoadConfig builds the configuration from MEDEQUIP_* environment variables
// (a .env file in the working directory is read first) and overlays the YAML
// file at path when one is given.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:       getEnv("MEDEQUIP_ADDR", ":8080"),
		APITimeout: getDuration("MEDEQUIP_TIMEOUT", 15*time.Second),
		Env:        getEnv("MEDEQUIP_ENV", "development"),
		Log: LogConfig{
			Level:  getEnv("MEDEQUIP_LOG_LEVEL", "info"),
			Format: getEnv("MEDEQUIP_LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			Enabled:   getBool("MEDEQUIP_AUTH_ENABLED", false),
			JWTSecret: getEnv("MEDEQUIP_JWT_SECRET", insecureJWTSecret),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(getEnv("MEDEQUIP_CORS_ALLOWED_ORIGINS", "*")),
		},
		Store: StoreConfig{
			Driver:            getEnv("MEDEQUIP_STORE_DRIVER", "sqlite"),
			SQLitePath:        getEnv("MEDEQUIP_SQLITE_PATH", "medequip.db"),
			MongoURI:          getEnv("MEDEQUIP_MONGO_URI", "mongodb://localhost:27017"),
			MongoDatabase:     getEnv("MEDEQUIP_MONGO_DATABASE", "medequip"),
			MongoTransactions: getBool("MEDEQUIP_MONGO_TRANSACTIONS", false),
			Timeout:           getDuration("MEDEQUIP_STORE_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("MEDEQUIP_REDIS_ADDR", ""),
			Password: getEnv("MEDEQUIP_REDIS_PASSWORD", ""),
			DB:       getInt("MEDEQUIP_REDIS_DB", 0),
		},
		TaxonomyPath: getEnv("MEDEQUIP_TAXONOMY_PATH", ""),
		Ollama: OllamaConfig{
			BaseURL: getEnv("MEDEQUIP_OLLAMA_URL", ""),
		},
		Assistant: AssistantConfig{
			Model: getEnv("MEDEQUIP_ASSISTANT_MODEL", ""),
		},
		Backup: BackupConfig{
			Dir:      getEnv("MEDEQUIP_BACKUP_DIR", "backups"),
			Interval: getDuration("MEDEQUIP_BACKUP_INTERVAL", 0),
			S3: S3Config{
				Endpoint:  getEnv("MEDEQUIP_S3_ENDPOINT", ""),
				Region:    getEnv("MEDEQUIP_S3_REGION", "us-east-1"),
				Bucket:    getEnv("MEDEQUIP_S3_BUCKET", ""),
				AccessKey: getEnv("MEDEQUIP_S3_ACCESS_KEY", ""),
				SecretKey: getEnv("MEDEQUIP_S3_SECRET_KEY", ""),
			},
		},
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate fills unset defaults and rejects unusable settings.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.APITimeout <= 0 {
		c.APITimeout = 15 * time.Second
	}
	if c.Env == "" {
		c.Env = "development"
	}

	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is required when auth is enabled")
		}
		if c.Auth.JWTSecret == insecureJWTSecret && c.Env != "development" {
			return fmt.Errorf("auth.jwt_secret uses the insecure default in %q", c.Env)
		}
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite driver")
		}
	case "mongo":
		if c.Store.MongoURI == "" || c.Store.MongoDatabase == "" {
			return errors.New("store.mongo_uri and store.mongo_database are required for the mongo driver")
		}
	default:
		return fmt.Errorf("store.driver must be sqlite or mongo, got %q", c.Store.Driver)
	}
	if c.Store.Timeout <= 0 {
		c.Store.Timeout = 5 * time.Second
	}

	if c.Ollama.BaseURL == "" {
		c.Ollama.BaseURL = "http://localhost:11434"
	}
	if len(c.Ollama.DefaultModelNames) == 0 {
		c.Ollama.DefaultModelNames = []string{"llama3.2"}
	}
	if c.Ollama.Timeout <= 0 {
		c.Ollama.Timeout = 60 * time.Second
	}
	if c.Ollama.Retries == 0 {
		c.Ollama.Retries = 2
	}
	if c.Ollama.Backoff <= 0 {
		c.Ollama.Backoff = 500 * time.Millisecond
	}
	if c.Ollama.CircuitFailureThreshold <= 0 {
		c.Ollama.CircuitFailureThreshold = 5
	}
	if c.Ollama.CircuitReset <= 0 {
		c.Ollama.CircuitReset = 30 * time.Second
	}

	if c.Assistant.Model == "" {
		c.Assistant.Model = c.Ollama.DefaultModelNames[0]
	}
	if c.Assistant.Timeout <= 0 {
		c.Assistant.Timeout = 90 * time.Second
	}
	if c.Assistant.HistoryWindow <= 0 {
		c.Assistant.HistoryWindow = 10
	}
	if c.Assistant.SessionTTL <= 0 {
		c.Assistant.SessionTTL = 24 * time.Hour
	}

	if c.Backup.S3.Enabled() && (c.Backup.S3.AccessKey == "" || c.Backup.S3.SecretKey == "") {
		return errors.New("backup.s3 requires access_key and secret_key when a bucket is set")
	}

	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}

func getInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func getBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
