package db

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

const envPrefix = "KURA_"

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type BootstrapAdmin struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type AuthConfig struct {
	JWTSecret string         `yaml:"jwt_secret"`
	TokenTTL  time.Duration  `yaml:"token_ttl"`
	Bootstrap BootstrapAdmin `yaml:"bootstrap_admin"`
}

type StorageConfig struct {
	Dir string `yaml:"dir"`
}

type ImportConfig struct {
	MaxUploadMB int `yaml:"max_upload_mb"`
	// image_url 取得のタイムアウト
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type Config struct {
	Version     string         `yaml:"version"`
	Mode        string         `yaml:"mode"`
	Server      ServerConfig   `yaml:"server"`
	DB          DatabaseConfig `yaml:"database"`
	Certificate Certs          `yaml:"certificate"`
	Auth        AuthConfig     `yaml:"auth"`
	Storage     StorageConfig  `yaml:"storage"`
	Import      ImportConfig   `yaml:"import"`
	Tracing     TracingConfig  `yaml:"tracing"`
}

// LoadConfig は YAML を読み、.env と KURA_* 環境変数で上書きする。
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}

	// .env は無くてもよい
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}
	str("MODE", &c.Mode)
	str("SERVER_ADDR", &c.Server.Addr)
	str("DB_HOST", &c.DB.Host)
	str("DB_USER", &c.DB.Username)
	str("DB_PASSWORD", &c.DB.Password)
	str("DB_NAME", &c.DB.DBName)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("ADMIN_USERNAME", &c.Auth.Bootstrap.Username)
	str("ADMIN_PASSWORD", &c.Auth.Bootstrap.Password)
	str("STORAGE_DIR", &c.Storage.Dir)

	if v, ok := os.LookupEnv(envPrefix + "DB_PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sDB_PORT: %w", envPrefix, err)
		}
		c.DB.Port = n
	}
	if v, ok := os.LookupEnv(envPrefix + "TRACING_ENABLED"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sTRACING_ENABLED: %w", envPrefix, err)
		}
		c.Tracing.Enabled = b
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8443"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 3306
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "data/blobs"
	}
	if c.Import.MaxUploadMB <= 0 {
		c.Import.MaxUploadMB = 20
	}
	if c.Import.FetchTimeout <= 0 {
		c.Import.FetchTimeout = 15 * time.Second
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "kura-backend"
	}
}

func (c *Config) Validate() error {
	if c.Mode != "dev" && c.Mode != "release" {
		return fmt.Errorf("mode は dev か release: %q", c.Mode)
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret が未設定")
	}
	return nil
}
