package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DB        DBConfig
	MinIO     MinIOConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Server    ServerConfig
	Google    GoogleOAuthConfig
	Drive     DriveConfig
	Upload    UploadConfig
	Bootstrap BootstrapConfig
	Log       LogConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Enabled   bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

type ServerConfig struct {
	Port         string
	FrontendURL  string
	BodyLimitMB  int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// DriveConfig configures the Google Drive upload provider. CredentialsFile
// points at a service account JSON key.
type DriveConfig struct {
	CredentialsFile   string
	FolderID          string
	UploadURL         string
	APIURL            string
	SharePublic       bool
	RequestsPerSecond float64
	ChunkTimeout      time.Duration
}

// UploadConfig holds the resumable upload policy. ChunkSizeMB, RetryAttempts and
// RetryDelay are advertised to uploaders through /api/version and never enforced.
type UploadConfig struct {
	MaxFileSizeMB    int64
	AllowedMimeTypes []string
	ChunkSizeMB      int
	RetryAttempts    int
	RetryDelay       time.Duration
	Ledger           string
	SessionTTL       time.Duration
	SweepInterval    time.Duration
}

type BootstrapConfig struct {
	AdminEmails []string
}

type LogConfig struct {
	Level  string
	Format string
}

const (
	LedgerDatabase = "database"
	LedgerRedis    = "redis"
)

func Load() *Config {
	return &Config{
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "cinestream"),
			Password: getEnv("DB_PASSWORD", "cinestream_secret"),
			Name:     getEnv("DB_NAME", "cinestream"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "cinestream"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "cinestream_secret"),
			Bucket:    getEnv("MINIO_BUCKET", "posters"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
			Enabled:   getEnvAsBool("MINIO_ENABLED", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			PoolSize: getEnvAsInt("REDIS_POOL_SIZE", 10),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-me-in-production"),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			FrontendURL:  getEnv("FRONTEND_URL", "http://localhost:3000"),
			BodyLimitMB:  getEnvAsInt("BODY_LIMIT_MB", 64),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 5*time.Minute),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 5*time.Minute),
		},
		Google: GoogleOAuthConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:8080/api/auth/google/callback"),
		},
		Drive: DriveConfig{
			CredentialsFile:   getEnv("DRIVE_CREDENTIALS_FILE", ""),
			FolderID:          getEnv("DRIVE_FOLDER_ID", ""),
			UploadURL:         getEnv("DRIVE_UPLOAD_URL", "https://www.googleapis.com/upload/drive/v3"),
			APIURL:            getEnv("DRIVE_API_URL", "https://www.googleapis.com/drive/v3"),
			SharePublic:       getEnvAsBool("DRIVE_SHARE_PUBLIC", true),
			RequestsPerSecond: getEnvAsFloat("DRIVE_REQUESTS_PER_SECOND", 10),
			ChunkTimeout:      getEnvAsDuration("DRIVE_CHUNK_TIMEOUT", 5*time.Minute),
		},
		Upload: UploadConfig{
			MaxFileSizeMB:    int64(getEnvAsInt("MAX_FILE_SIZE_MB", 5120)),
			AllowedMimeTypes: getEnvAsList("ALLOWED_MIME_TYPES", []string{"video/mp4"}),
			ChunkSizeMB:      getEnvAsInt("UPLOAD_CHUNK_SIZE_MB", 8),
			RetryAttempts:    getEnvAsInt("UPLOAD_RETRY_ATTEMPTS", 3),
			RetryDelay:       getEnvAsDuration("UPLOAD_RETRY_DELAY", 2*time.Second),
			Ledger:           getEnv("UPLOAD_LEDGER", LedgerDatabase),
			SessionTTL:       getEnvAsDuration("UPLOAD_SESSION_TTL", 7*24*time.Hour),
			SweepInterval:    getEnvAsDuration("UPLOAD_SWEEP_INTERVAL", 15*time.Minute),
		},
		Bootstrap: BootstrapConfig{
			AdminEmails: getEnvAsList("BOOTSTRAP_ADMIN_EMAILS", nil),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// MaxFileSizeBytes converts the megabyte limit into the byte bound used by the upload policy.
func (u UploadConfig) MaxFileSizeBytes() int64 {
	return u.MaxFileSizeMB * 1024 * 1024
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var items []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
