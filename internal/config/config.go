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

const envPrefix = "KINSHIP_"

// S3Config holds S3-compatible storage configuration for archives.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// Enabled reports whether enough is set to build a client.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type Config struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string
	// BaseURL is used for absolute links in notifications and invitations.
	BaseURL       string
	SecureCookies bool

	MinParentAge            int
	DeathGraceYears         int
	DuplicateMatchBirthDate bool

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	S3                   S3Config
	ArchivePassphrase    string
	ArchiveInterval      time.Duration
	ArchiveRetentionDays int

	JanitorInterval time.Duration
}

// Load reads an optional .env file (or the given files) and then the
// KINSHIP_* environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function such as os.Getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := env{getenv: getenv}

	cfg := &Config{
		Port:          e.str("PORT", "8080"),
		DBPath:        e.str("DB_PATH", "kinship.db"),
		LogLevel:      e.str("LOG_LEVEL", "info"),
		LogFormat:     e.str("LOG_FORMAT", "text"),
		BaseURL:       strings.TrimRight(e.str("BASE_URL", "http://localhost:8080"), "/"),
		SecureCookies: e.bool("SECURE_COOKIES", false),

		MinParentAge:            e.int("MIN_PARENT_AGE", 10),
		DeathGraceYears:         e.int("DEATH_GRACE_YEARS", 1),
		DuplicateMatchBirthDate: e.bool("DUPLICATE_MATCH_BIRTH_DATE", true),

		VAPIDPublicKey:  e.str("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: e.str("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:    e.str("VAPID_SUBJECT", "mailto:admin@localhost"),

		S3: S3Config{
			Endpoint:  e.str("S3_ENDPOINT", ""),
			Bucket:    e.str("S3_BUCKET", ""),
			Region:    e.str("S3_REGION", "us-east-1"),
			AccessKey: e.str("S3_ACCESS_KEY", ""),
			SecretKey: e.str("S3_SECRET_KEY", ""),
			Prefix:    e.str("S3_PREFIX", "kinship/"),
		},
		ArchivePassphrase:    e.str("ARCHIVE_PASSPHRASE", ""),
		ArchiveInterval:      e.duration("ARCHIVE_INTERVAL", 24*time.Hour),
		ArchiveRetentionDays: e.int("ARCHIVE_RETENTION_DAYS", 30),

		JanitorInterval: e.duration("JANITOR_INTERVAL", time.Hour),
	}

	if e.err != nil {
		return nil, e.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MinParentAge < 0 {
		return fmt.Errorf("%sMIN_PARENT_AGE must not be negative", envPrefix)
	}
	if c.ArchiveRetentionDays < 1 {
		return fmt.Errorf("%sARCHIVE_RETENTION_DAYS must be at least 1", envPrefix)
	}
	if c.S3.Enabled() && len(c.ArchivePassphrase) < 12 {
		return fmt.Errorf("%sARCHIVE_PASSPHRASE must be at least 12 characters when S3 is configured", envPrefix)
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return fmt.Errorf("%sVAPID_PUBLIC_KEY and %sVAPID_PRIVATE_KEY must be set together", envPrefix, envPrefix)
	}
	return nil
}

// PushEnabled reports whether VAPID keys are configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// env reads prefixed variables and keeps the first parse error.
type env struct {
	getenv func(string) string
	err    error
}

func (e *env) raw(key string) string {
	return strings.TrimSpace(e.getenv(envPrefix + key))
}

func (e *env) str(key, def string) string {
	if v := e.raw(key); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := e.raw(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	v := e.raw(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.raw(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return def
	}
	return d
}

func (e *env) fail(key, value string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("parse %s%s=%q: %w", envPrefix, key, value, err)
	}
}
