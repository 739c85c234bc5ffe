package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "clubgate/pkg/platform/strings"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	devSecretKey   = "dev-secret-key-change-in-production"
	devQRSecretKey = "dev-qr-secret-change-in-production"
)

// Server is the immutable process configuration, built once at startup and
// passed by value to constructors.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string
	SeedDev     bool

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Access   AccessConfig
	Audit    AuditConfig
	CORS     CORSConfig

	// AdminToken guards the /metrics endpoint when set.
	AdminToken string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional; an empty URL keeps login lockout in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig is optional; no brokers disables the audit mirror.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

type AuthConfig struct {
	SecretKey          string
	Algorithm          string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	BcryptCost         int
	LoginMaxAttempts   int
	LoginLockoutWindow time.Duration
}

type AccessConfig struct {
	OrgPrefix   string
	QRSecretKey string
	// WarningDebtCeiling is the largest debt at which an active member is
	// still admitted with a warning.
	WarningDebtCeiling float64
}

type AuditConfig struct {
	RetentionDays     int
	ArchiveDir        string
	RetentionInterval time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// IsDevelopment reports whether dev defaults are allowed.
func (s Server) IsDevelopment() bool {
	return s.Environment == EnvDevelopment
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	p := &parser{}
	cfg := Server{
		Addr:        p.str("ADDR", ":8080"),
		Environment: p.str("ENV", EnvDevelopment),
		LogLevel:    p.str("LOG_LEVEL", "info"),
		SeedDev:     p.boolean("SEED_DEV", false),
		AdminToken:  os.Getenv("ADMIN_API_TOKEN"),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    p.integer("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    p.integer("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: p.minutes("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:    p.list("KAFKA_BROKERS", nil),
			AuditTopic: p.str("KAFKA_AUDIT_TOPIC", "clubgate.audit.events"),
		},
		Auth: AuthConfig{
			SecretKey:          os.Getenv("SECRET_KEY"),
			Algorithm:          p.str("JWT_ALGORITHM", "HS256"),
			AccessTokenTTL:     p.minutes("ACCESS_TOKEN_EXPIRE_MINUTES", 30),
			RefreshTokenTTL:    time.Duration(p.integer("REFRESH_TOKEN_EXPIRE_DAYS", 7)) * 24 * time.Hour,
			BcryptCost:         p.integer("BCRYPT_COST", 12),
			LoginMaxAttempts:   p.integer("LOGIN_MAX_ATTEMPTS", 5),
			LoginLockoutWindow: p.minutes("LOGIN_LOCKOUT_WINDOW_MINUTES", 15),
		},
		Access: AccessConfig{
			OrgPrefix:          p.str("ORG_PREFIX", "CLUB"),
			QRSecretKey:        os.Getenv("QR_SECRET_KEY"),
			WarningDebtCeiling: p.float("DEUDA_MAXIMA_ADVERTENCIA", 500),
		},
		Audit: AuditConfig{
			RetentionDays:     p.integer("AUDIT_RETENTION_DAYS", 365),
			ArchiveDir:        p.str("AUDIT_ARCHIVE_DIR", "./archive/audit"),
			RetentionInterval: time.Duration(p.integer("AUDIT_RETENTION_INTERVAL_HOURS", 24)) * time.Hour,
		},
		CORS: CORSConfig{
			AllowedOrigins: p.list("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods: p.list("CORS_ALLOW_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: p.list("CORS_ALLOW_HEADERS", []string{"Authorization", "Content-Type", "X-Request-ID"}),
		},
	}
	if err := p.err(); err != nil {
		return Server{}, err
	}

	if cfg.IsDevelopment() {
		// Use defaults for development - must be overridden in production
		if cfg.Auth.SecretKey == "" {
			cfg.Auth.SecretKey = devSecretKey
		}
		if cfg.Access.QRSecretKey == "" {
			cfg.Access.QRSecretKey = devQRSecretKey
		}
	}

	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot run safely with.
func (s Server) Validate() error {
	var errs []error
	if s.Auth.SecretKey == "" {
		errs = append(errs, errors.New("SECRET_KEY is required"))
	}
	if s.Access.QRSecretKey == "" {
		errs = append(errs, errors.New("QR_SECRET_KEY is required"))
	}
	if !s.IsDevelopment() {
		if s.Auth.SecretKey == devSecretKey || s.Access.QRSecretKey == devQRSecretKey {
			errs = append(errs, errors.New("development secrets are not allowed outside development"))
		}
		if s.SeedDev {
			errs = append(errs, errors.New("SEED_DEV is only allowed in development"))
		}
	}
	switch s.Auth.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, fmt.Errorf("JWT_ALGORITHM must be HS256, HS384 or HS512, got %q", s.Auth.Algorithm))
	}
	if strings.Contains(s.Access.OrgPrefix, "-") || s.Access.OrgPrefix == "" {
		errs = append(errs, fmt.Errorf("ORG_PREFIX must be non-empty and must not contain '-', got %q", s.Access.OrgPrefix))
	}
	if s.Access.WarningDebtCeiling < 0 {
		errs = append(errs, errors.New("DEUDA_MAXIMA_ADVERTENCIA must be non-negative"))
	}
	if s.Auth.AccessTokenTTL <= 0 || s.Auth.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if s.Audit.RetentionDays < 0 {
		errs = append(errs, errors.New("AUDIT_RETENTION_DAYS must be non-negative"))
	}
	if s.Auth.LoginMaxAttempts < 0 {
		errs = append(errs, errors.New("LOGIN_MAX_ATTEMPTS must be non-negative"))
	}
	return errors.Join(errs...)
}

// parser collects parse errors so every bad variable is reported at once.
type parser struct {
	errs []error
}

func (p *parser) err() error {
	return errors.Join(p.errs...)
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid number %q", key, v))
		return def
	}
	return f
}

func (p *parser) boolean(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

func (p *parser) minutes(key string, def int) time.Duration {
	return time.Duration(p.integer(key, def)) * time.Minute
}

// list parses a comma-separated value, ignoring empty and repeated items.
func (p *parser) list(key string, def []string) []string {
	if out := platformstrings.SplitList(os.Getenv(key), ","); len(out) > 0 {
		return out
	}
	return def
}
