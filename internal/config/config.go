package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config is read from environment variables, optionally layered over a
// config.yaml in the working directory or /etc/dukaan.
type Config struct {
	Port          string `env:"PORT" default:"8080" usage:"HTTP listen port"`
	AllowedOrigin string `env:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000" usage:"CORS origin allowed to call the API"`

	DatabaseURL string `env:"DATABASE_URL" usage:"PostgreSQL connection URL; takes precedence over BOLT_PATH"`
	BoltPath    string `env:"BOLT_PATH" usage:"Single-file store used when DATABASE_URL is empty"`

	RedisAddr     string        `env:"REDIS_ADDR" usage:"Redis address for shared cart sessions"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" default:"0"`
	CartTTL       time.Duration `env:"CART_TTL" default:"12h" usage:"Idle lifetime of an open cart"`

	AuthSecret     string        `env:"AUTH_SECRET" usage:"HMAC secret for access tokens, at least 32 characters"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" default:"8h"`
	ManagerPIN     string        `env:"MANAGER_PIN" usage:"Numeric PIN required to process returns"`

	SeedAdminPassword   string `env:"SEED_ADMIN_PASSWORD" usage:"Initial admin password when the user table is empty"`
	SeedCashierPassword string `env:"SEED_CASHIER_PASSWORD" usage:"Initial cashier password when the user table is empty"`

	ShopName        string        `env:"SHOP_NAME" default:"Dukaan" usage:"Name printed on receipts"`
	LogDev          bool          `env:"LOG_DEV" default:"false" usage:"Human readable development logging"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"15s"`
}

func Load() (Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags:        true,
		AllowUnknownEnvs: true,
		Files:            []string{"config.yaml", "/etc/dukaan/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return Config{}, errors.Wrap(err, "load config")
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.ManagerPIN = strings.TrimSpace(cfg.ManagerPIN)
	if cfg.CartTTL <= 0 {
		cfg.CartTTL = 12 * time.Hour
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 8 * time.Hour
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}
