package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	HTTP     HTTPConfig
	GRPC     GRPCConfig
	MySQL    MySQLConfig
	Session  SessionConfig
	Tokens   TokenConfig
	Password PasswordConfig
	Mail     MailConfig
	Storage  StorageConfig
	Transfer TransferConfig
	Admin    AdminConfig
	Log      LogConfig
}

type AppConfig struct {
	BaseURL   string
	SecretKey string
}

type HTTPConfig struct {
	Host      string
	Port      string
	BodyLimit string
}

type GRPCConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN         string
	AutoMigrate bool
}

type SessionConfig struct {
	CookieName   string
	TTL          time.Duration
	SecureCookie bool
}

type TokenConfig struct {
	ResetTTL time.Duration
}

type PasswordConfig struct {
	Policy PasswordPolicy
}

type MailConfig struct {
	Driver   string
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type StorageConfig struct {
	Driver          string
	Root            string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3PathStyle     bool
	AgeIdentity     string
	AgeIdentityFile string
}

type TransferConfig struct {
	TTL             time.Duration
	MaxCodeAttempts int
}

type AdminConfig struct {
	APIKey string
}

type LogConfig struct {
	Level  string
	Format string
}

type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
	RejectNumeric    bool
}

func (p PasswordPolicy) Validate(password string) error {
	if len(password) < p.MinLength {
		return fmt.Errorf("password must be at least %d characters long", p.MinLength)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial, hasNonDigit bool
	for _, ch := range password {
		if !unicode.IsDigit(ch) {
			hasNonDigit = true
		}
		switch {
		case unicode.IsUpper(ch):
			hasUpper = true
		case unicode.IsLower(ch):
			hasLower = true
		case unicode.IsDigit(ch):
			hasNumber = true
		case unicode.IsPunct(ch) || unicode.IsSymbol(ch):
			hasSpecial = true
		}
	}

	if p.RejectNumeric && !hasNonDigit {
		return errors.New("password can't be entirely numeric")
	}

	var missing []string
	if p.RequireUppercase && !hasUpper {
		missing = append(missing, "uppercase letter")
	}
	if p.RequireLowercase && !hasLower {
		missing = append(missing, "lowercase letter")
	}
	if p.RequireNumber && !hasNumber {
		missing = append(missing, "number")
	}
	if p.RequireSpecial && !hasSpecial {
		missing = append(missing, "special character")
	}

	if len(missing) > 0 {
		return fmt.Errorf("password must contain at least one: %s", strings.Join(missing, ", "))
	}

	return nil
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignores error if not found)
	_ = godotenv.Load()

	secretKey := os.Getenv("APP_SECRET_KEY")
	if secretKey == "" {
		return nil, errors.New("APP_SECRET_KEY environment variable is required")
	}

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	cfg := &Config{
		App: AppConfig{
			BaseURL:   strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:8080"), "/"),
			SecretKey: secretKey,
		},
		HTTP: HTTPConfig{
			Host:      getEnv("HTTP_HOST", "0.0.0.0"),
			Port:      getEnv("HTTP_PORT", "8080"),
			BodyLimit: getEnv("HTTP_BODY_LIMIT", "100M"),
		},
		GRPC: GRPCConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN:         mysqlDSN,
			AutoMigrate: getBoolEnv("MYSQL_AUTO_MIGRATE", false),
		},
		Session: SessionConfig{
			CookieName:   getEnv("SESSION_COOKIE_NAME", "filedrop_session"),
			TTL:          getDurationEnv("SESSION_TTL", 14*24*time.Hour),
			SecureCookie: getBoolEnv("SESSION_COOKIE_SECURE", false),
		},
		Tokens: TokenConfig{
			ResetTTL: getDurationEnv("RESET_TOKEN_TTL", 3*24*time.Hour),
		},
		Password: PasswordConfig{
			Policy: loadPasswordPolicy(),
		},
		Mail: MailConfig{
			Driver:   getEnv("MAIL_DRIVER", "log"),
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnv("SMTP_PORT", "25"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("MAIL_FROM", "webmaster@localhost"),
		},
		Storage: StorageConfig{
			Driver:          getEnv("STORAGE_DRIVER", "filesystem"),
			Root:            getEnv("STORAGE_ROOT", "media"),
			S3Bucket:        os.Getenv("S3_BUCKET"),
			S3Region:        getEnv("S3_REGION", "us-east-1"),
			S3Endpoint:      os.Getenv("S3_ENDPOINT"),
			S3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
			S3SecretKey:     os.Getenv("S3_SECRET_KEY"),
			S3PathStyle:     getBoolEnv("S3_PATH_STYLE", false),
			AgeIdentity:     os.Getenv("STORAGE_AGE_IDENTITY"),
			AgeIdentityFile: os.Getenv("STORAGE_AGE_IDENTITY_FILE"),
		},
		Transfer: TransferConfig{
			TTL:             7 * 24 * time.Hour,
			MaxCodeAttempts: getIntEnv("TRANSFER_MAX_CODE_ATTEMPTS", 32),
		},
		Admin: AdminConfig{
			APIKey: os.Getenv("ADMIN_API_KEY"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.Storage.Driver == "s3" && cfg.Storage.S3Bucket == "" {
		return nil, errors.New("S3_BUCKET environment variable is required for the s3 storage driver")
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return c.MySQL.DSN
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func loadPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        getIntEnv("PASSWORD_MIN_LENGTH", 8),
		RequireUppercase: getBoolEnv("PASSWORD_REQUIRE_UPPERCASE", false),
		RequireLowercase: getBoolEnv("PASSWORD_REQUIRE_LOWERCASE", false),
		RequireNumber:    getBoolEnv("PASSWORD_REQUIRE_NUMBER", false),
		RequireSpecial:   getBoolEnv("PASSWORD_REQUIRE_SPECIAL", false),
		RejectNumeric:    getBoolEnv("PASSWORD_REJECT_NUMERIC", true),
	}
}
