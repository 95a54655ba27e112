// Package config reads atlas settings from the environment and an optional
// .env file.
package config

import (
	"fmt"
	"os"
	"strings"

	"atlas/pkg/utils/coerce"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

type Config struct {
	Env string

	DBDriver  string
	DBDSN     string
	DBMaxOpen int
	DBMaxIdle int

	// SchemaPath points at the YAML mapper schema.
	SchemaPath string

	Port          string
	JWTSecret     string
	BlockedIPs    []string
	RateRequests  int
	RateWindowSec int
}

// Load reads .env files (missing files are fine) and then the environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv), nil
}

// FromEnv builds a Config from a lookup function such as os.Getenv.
func FromEnv(getenv func(string) string) *Config {
	cfg := &Config{
		Env:           orDefault(getenv("APP_ENV"), "development"),
		DBDriver:      orDefault(getenv("DB_DRIVER"), "sqlite"),
		DBMaxOpen:     coerce.ToIntDef(getenv("DB_MAX_OPEN"), 10),
		DBMaxIdle:     coerce.ToIntDef(getenv("DB_MAX_IDLE"), 5),
		SchemaPath:    orDefault(getenv("ATLAS_SCHEMA"), "atlas.yaml"),
		Port:          orDefault(getenv("APP_PORT"), "3000"),
		JWTSecret:     getenv("JWT_SECRET"),
		RateRequests:  cast.ToInt(getenv("RATE_LIMIT_REQUESTS")),
		RateWindowSec: coerce.ToIntDef(getenv("RATE_LIMIT_WINDOW"), 60),
	}

	for _, ip := range strings.Split(getenv("BLOCKED_IPS"), ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			cfg.BlockedIPs = append(cfg.BlockedIPs, ip)
		}
	}

	cfg.DBDSN = getenv("DB_DSN")
	if cfg.DBDSN == "" {
		cfg.DBDSN = buildDSN(cfg.DBDriver, getenv)
	}
	if cfg.DBDriver == "sqlite" || cfg.DBDriver == "sqlite3" {
		// Every connection to :memory: opens a fresh database.
		if cfg.DBDSN == ":memory:" {
			cfg.DBMaxOpen, cfg.DBMaxIdle = 1, 1
		}
	}
	return cfg
}

// buildDSN assembles a DSN from DB_HOST, DB_USER, DB_PASS and DB_NAME.
func buildDSN(driver string, getenv func(string) string) string {
	host, user, pass, name := getenv("DB_HOST"), getenv("DB_USER"), getenv("DB_PASS"), getenv("DB_NAME")
	switch driver {
	case "sqlite", "sqlite3":
		return orDefault(name, ":memory:")
	case "postgres":
		return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", user, pass, orDefault(host, "localhost:5432"), name)
	case "sqlserver":
		return fmt.Sprintf("sqlserver://%s:%s@%s?database=%s", user, pass, orDefault(host, "localhost:1433"), name)
	default:
		return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true",
			user, pass, orDefault(host, "localhost:3306"), name)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
