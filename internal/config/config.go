package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Issue store
	StoreDriver string
	MongoURI    string
	MongoDB     string

	// JWT
	JWTSecret       string
	JWTAccessExpiry time.Duration

	// Classifier
	ClassifierURL     string
	ClassifierTimeout time.Duration

	// List queries
	QueryDefaultLimit int
	QueryMaxLimit     int

	// Uploads
	UploadPath       string
	MaxFileSize      int64
	AllowedFileTypes []string

	// Admin
	AdminEmails string

	// Server
	Port        string
	CORSOrigins string
	SentryDSN   string
	AppEnv      string
}

func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "civictrack"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:     getEnv("MONGO_DB", "civictrack"),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		JWTAccessExpiry: parseDuration(getEnv("JWT_ACCESS_EXPIRY", "24h"), 24*time.Hour),

		ClassifierURL:     getEnv("CLASSIFIER_URL", ""),
		ClassifierTimeout: parseDuration(getEnv("CLASSIFIER_TIMEOUT", "3s"), 3*time.Second),

		QueryDefaultLimit: parseInt(getEnv("QUERY_DEFAULT_LIMIT", "10"), 10),
		QueryMaxLimit:     parseInt(getEnv("QUERY_MAX_LIMIT", "100"), 100),

		UploadPath:       getEnv("UPLOAD_PATH", "./public/uploads"),
		MaxFileSize:      int64(parseInt(getEnv("MAX_FILE_SIZE", "5000000"), 5000000)),
		AllowedFileTypes: ParseCSV(getEnv("ALLOWED_FILE_TYPES", "image/jpeg,image/jpg,image/png")),

		AdminEmails: getEnv("ADMIN_EMAILS", ""),

		Port:        getEnv("PORT", "5000"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
		SentryDSN:   getEnv("SENTRY_DSN", ""),
		AppEnv:      getEnv("APP_ENV", "development"),
	}
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.DBPassword == "" {
		errs = append(errs, errors.New("DB_PASSWORD is required"))
	}
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMongo:
	default:
		errs = append(errs, errors.New("STORE_DRIVER must be postgres or mongo"))
	}
	if c.QueryMaxLimit < 1 || c.QueryDefaultLimit < 1 || c.QueryDefaultLimit > c.QueryMaxLimit {
		errs = append(errs, errors.New("QUERY_DEFAULT_LIMIT must be within [1, QUERY_MAX_LIMIT]"))
	}
	return errors.Join(errs...)
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// AdminEmailList returns ADMIN_EMAILS lower-cased.
func (c *Config) AdminEmailList() []string {
	list := ParseCSV(c.AdminEmails)
	for i := range list {
		list[i] = strings.ToLower(list[i])
	}
	return list
}

// LogValue lists the effective settings without secrets.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("store_driver", c.StoreDriver),
		slog.String("db_host", c.DBHost),
		slog.String("db_name", c.DBName),
		slog.Bool("classifier_configured", c.ClassifierURL != ""),
		slog.Duration("classifier_timeout", c.ClassifierTimeout),
		slog.Int("query_default_limit", c.QueryDefaultLimit),
		slog.Int("query_max_limit", c.QueryMaxLimit),
		slog.String("upload_path", c.UploadPath),
		slog.Int64("max_file_size", c.MaxFileSize),
		slog.String("port", c.Port),
		slog.String("env", c.AppEnv),
	)
}

func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}
