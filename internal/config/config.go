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
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	} `yaml:"server"`

	LogLevel string `yaml:"logLevel"`

	// Backend is the grading service behind the proxy and the agent engine.
	Backend struct {
		Origin     string        `yaml:"origin"`
		AuthScheme string        `yaml:"authScheme"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"backend"`

	Engine struct {
		Provider string `yaml:"provider"` // agent | openai
		Agent    struct {
			BaseURL string `yaml:"baseURL"`
			Token   string `yaml:"token"`
			Debug   bool   `yaml:"debug"`
		} `yaml:"agent"`
		OpenAI struct {
			APIKey string `yaml:"apiKey"`
			Model  string `yaml:"model"`
		} `yaml:"openai"`
	} `yaml:"engine"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres | "" (disabled)
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
		PublicURL  string `yaml:"publicURL"`
	} `yaml:"minio"`

	RateLimit struct {
		RequestsPerSecond float64 `yaml:"requestsPerSecond"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rateLimit"`

	Tracker struct {
		Size int           `yaml:"size"`
		TTL  time.Duration `yaml:"ttl"`
	} `yaml:"tracker"`

	Auth struct {
		Required bool `yaml:"required"`
	} `yaml:"auth"`

	CORSOrigins []string `yaml:"corsOrigins"`
}

// Load baca .env (kalau ada) lalu file config.yaml. File yang tidak ada
// bukan error; default dan env tetap dipakai.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// secrets and a few deploy knobs may come from the environment
func (c *Config) applyEnv() {
	setString(&c.Engine.Agent.Token, "AGENT_API_TOKEN")
	setString(&c.Engine.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.Engine.Provider, "ENGINE_PROVIDER")
	setString(&c.Backend.Origin, "BACKEND_ORIGIN")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.LogLevel, "LOG_LEVEL")
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Backend.Origin == "" {
		c.Backend.Origin = "http://127.0.0.1:8000"
	}
	c.Backend.Origin = strings.TrimRight(c.Backend.Origin, "/")
	if c.Backend.AuthScheme == "" {
		c.Backend.AuthScheme = "Token"
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = 60 * time.Second
	}
	if c.Engine.Provider == "" {
		c.Engine.Provider = "agent"
	}
	if c.Engine.Agent.BaseURL == "" {
		c.Engine.Agent.BaseURL = c.Backend.Origin + "/api/v2"
	}
	if c.Engine.OpenAI.Model == "" {
		c.Engine.OpenAI.Model = "gpt-4o-mini"
	}
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case "mysql":
			c.Database.Port = 3306
		case "postgres":
			c.Database.Port = 5432
		}
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Minio.Region == "" {
		c.Minio.Region = "us-east-1"
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 5
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 10
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"http://localhost:3000"}
	}
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Engine.Provider {
	case "agent", "openai":
	default:
		return fmt.Errorf("config: unknown engine.provider %q", c.Engine.Provider)
	}
	if c.Engine.Provider == "openai" && c.Engine.OpenAI.APIKey == "" {
		return errors.New("config: engine.openai.apiKey (or OPENAI_API_KEY) is required for the openai provider")
	}
	switch c.Database.Driver {
	case "", "mysql", "postgres":
	default:
		return fmt.Errorf("config: unknown database.driver %q", c.Database.Driver)
	}
	return nil
}

// MinioEnabled when an endpoint is configured
func (c *Config) MinioEnabled() bool {
	return c.Minio.Endpoint != "" && c.Minio.BucketName != ""
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
