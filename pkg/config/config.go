package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Batch modes for the bulk card endpoint.
const (
	BatchModeBestEffort = "best_effort"
	BatchModeStrict     = "strict"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Uploads  UploadsConfig
	Cards    CardsConfig
	QRCache  QRCacheConfig
	Admin    AdminSeedConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// UploadsConfig locates uploaded photos and bounds multipart payloads.
type UploadsConfig struct {
	Dir               string
	MaxPhotoSizeBytes int64
	MaxSheetSizeBytes int64
}

// CardsConfig drives ID-card rendering and the bulk archive endpoint.
type CardsConfig struct {
	PublicBaseURL        string
	InstitutionName      string
	InstitutionDomain    string
	QRPixelSize          int
	Compress             bool
	MaxConcurrentRenders int
	BatchMode            string
	BatchManifest        bool
}

// QRCacheConfig toggles the Redis cache in front of QR encoding.
type QRCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// AdminSeedConfig holds the credentials of the bootstrap administrator.
type AdminSeedConfig struct {
	Email    string
	Password string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Uploads = UploadsConfig{
		Dir:               v.GetString("UPLOADS_DIR"),
		MaxPhotoSizeBytes: positiveInt64(v.GetInt64("UPLOADS_MAX_PHOTO_SIZE"), 5*1024*1024),
		MaxSheetSizeBytes: positiveInt64(v.GetInt64("UPLOADS_MAX_SHEET_SIZE"), 10*1024*1024),
	}

	publicBaseURL := v.GetString("CARD_PUBLIC_BASE_URL")
	if publicBaseURL == "" {
		publicBaseURL = v.GetString("FRONTEND_URL")
	}
	cfg.Cards = CardsConfig{
		PublicBaseURL:        strings.TrimRight(publicBaseURL, "/"),
		InstitutionName:      v.GetString("CARD_INSTITUTION_NAME"),
		InstitutionDomain:    v.GetString("CARD_INSTITUTION_DOMAIN"),
		QRPixelSize:          v.GetInt("CARD_QR_PIXEL_SIZE"),
		Compress:             v.GetBool("CARD_COMPRESS"),
		MaxConcurrentRenders: v.GetInt("CARD_MAX_CONCURRENT_RENDERS"),
		BatchMode:            strings.ToLower(strings.TrimSpace(v.GetString("CARD_BATCH_MODE"))),
		BatchManifest:        v.GetBool("CARD_BATCH_MANIFEST"),
	}

	cfg.QRCache = QRCacheConfig{
		Enabled: v.GetBool("QR_CACHE_ENABLED"),
		TTL:     parseDuration(v.GetString("QR_CACHE_TTL"), 24*time.Hour),
	}

	cfg.Admin = AdminSeedConfig{
		Email:    v.GetString("ADMIN_SEED_EMAIL"),
		Password: v.GetString("ADMIN_SEED_PASSWORD"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the card pipeline cannot run with.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Cards.PublicBaseURL) == "" {
		missing = append(missing, "CARD_PUBLIC_BASE_URL")
	}
	if strings.TrimSpace(c.Cards.InstitutionName) == "" {
		missing = append(missing, "CARD_INSTITUTION_NAME")
	}
	if strings.TrimSpace(c.Cards.InstitutionDomain) == "" {
		missing = append(missing, "CARD_INSTITUTION_DOMAIN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	switch c.Cards.BatchMode {
	case BatchModeBestEffort, BatchModeStrict:
	default:
		return fmt.Errorf("unknown CARD_BATCH_MODE %q", c.Cards.BatchMode)
	}
	if c.Cards.MaxConcurrentRenders <= 0 {
		return fmt.Errorf("CARD_MAX_CONCURRENT_RENDERS must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 5000)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "gestion_professeurs")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "1h")
	v.SetDefault("JWT_ISSUER", "staff-card-api")

	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("UPLOADS_DIR", "./uploads")
	v.SetDefault("UPLOADS_MAX_PHOTO_SIZE", 5*1024*1024)
	v.SetDefault("UPLOADS_MAX_SHEET_SIZE", 10*1024*1024)

	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("CARD_PUBLIC_BASE_URL", "")
	v.SetDefault("CARD_INSTITUTION_NAME", "Université Chouaib Doukkali")
	v.SetDefault("CARD_INSTITUTION_DOMAIN", "www.ucd.ac.ma")
	v.SetDefault("CARD_QR_PIXEL_SIZE", 80)
	v.SetDefault("CARD_COMPRESS", true)
	v.SetDefault("CARD_MAX_CONCURRENT_RENDERS", 8)
	v.SetDefault("CARD_BATCH_MODE", BatchModeBestEffort)
	v.SetDefault("CARD_BATCH_MANIFEST", false)

	v.SetDefault("QR_CACHE_ENABLED", false)
	v.SetDefault("QR_CACHE_TTL", "24h")

	v.SetDefault("ADMIN_SEED_EMAIL", "admin@email.com")
	v.SetDefault("ADMIN_SEED_PASSWORD", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func positiveInt64(value, fallback int64) int64 {
	if value <= 0 {
		return fallback
	}
	return value
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
