package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// Kafka configuration
	Kafka KafkaConfig

	// JWT configuration
	JWT JWTConfig

	// SMS configuration
	SMS SMSConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// CORS configuration
	CORS CORSConfig

	// Security configuration
	Security SecurityConfig

	// Payment gateway configuration
	Payment PaymentConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// RedisConfig holds Redis configuration. Redis is optional: when Addr is
// empty the server runs without seat holds or search caching.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	SeatHoldTTL time.Duration
	CacheTTL    time.Duration
}

// Enabled reports whether a Redis address has been configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// KafkaConfig holds Kafka configuration. Kafka is optional: when Brokers is
// empty no events are published.
type KafkaConfig struct {
	Brokers            []string
	BookingEventsTopic string
	NotificationsTopic string
	ConsumerGroup      string
}

// Enabled reports whether Kafka brokers have been configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret             string
	RefreshSecret      string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// SMSConfig holds SMS gateway configuration
type SMSConfig struct {
	Mode     string // "dev" or "production" - dev logs messages, production sends actual SMS
	Method   string // "url" or "api_v2" - url uses GET with esmsqk, api_v2 uses POST with login
	APIURL   string
	ESMSQK   string // Dialog URL message key (for URL method)
	Username string
	Password string
	Mask     string // Dialog SMS mask/source address
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	LoginAttempts        int
	LoginWindowMinutes   int
	BookingAttempts      int
	BookingWindowMinutes int
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	BcryptCost       int
	EnableRequestLog bool
	EnableAuditLog   bool
}

// PaymentConfig holds the demo gateway configuration
type PaymentConfig struct {
	GatewayName     string
	Currency        string
	FailureRate     float64       // probability of a random gateway failure when no test scenario is forced
	AttemptLifetime time.Duration // how long an initiated attempt stays payable before expiry
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", ""),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			SeatHoldTTL: time.Duration(getEnvAsInt("SEAT_HOLD_TTL_SECONDS", 300)) * time.Second,
			CacheTTL:    time.Duration(getEnvAsInt("SEARCH_CACHE_TTL_SECONDS", 60)) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:            getEnvAsSlice("KAFKA_BROKERS", nil),
			BookingEventsTopic: getEnv("KAFKA_BOOKING_EVENTS_TOPIC", "booking-events"),
			NotificationsTopic: getEnv("KAFKA_NOTIFICATIONS_TOPIC", "notifications"),
			ConsumerGroup:      getEnv("KAFKA_CONSUMER_GROUP", "ticketing-worker"),
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", ""),
			RefreshSecret:      getEnv("JWT_REFRESH_SECRET", ""),
			AccessTokenExpiry:  time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
			RefreshTokenExpiry: time.Duration(getEnvAsInt("JWT_REFRESH_TOKEN_EXPIRY", 604800)) * time.Second,
		},
		SMS: SMSConfig{
			Mode:     getEnv("SMS_MODE", "dev"),          // "dev" or "production"
			Method:   getEnv("DIALOG_SMS_METHOD", "url"), // "url" or "api_v2"
			APIURL:   getEnv("DIALOG_SMS_API_URL", "https://e-sms.dialog.lk/api/v2"),
			ESMSQK:   getEnv("DIALOG_SMS_ESMSQK", ""),
			Username: getEnv("DIALOG_SMS_USERNAME", ""),
			Password: getEnv("DIALOG_SMS_PASSWORD", ""),
			Mask:     getEnv("DIALOG_SMS_MASK", ""),
		},
		RateLimit: RateLimitConfig{
			LoginAttempts:        getEnvAsInt("LOGIN_RATE_LIMIT", 5),
			LoginWindowMinutes:   getEnvAsInt("LOGIN_RATE_WINDOW_MINUTES", 15),
			BookingAttempts:      getEnvAsInt("BOOKING_RATE_LIMIT", 10),
			BookingWindowMinutes: getEnvAsInt("BOOKING_RATE_WINDOW_MINUTES", 10),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Security: SecurityConfig{
			BcryptCost:       getEnvAsInt("BCRYPT_COST", 12),
			EnableRequestLog: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
			EnableAuditLog:   getEnvAsBool("ENABLE_AUDIT_LOGGING", true),
		},
		Payment: PaymentConfig{
			GatewayName:     getEnv("PAYMENT_GATEWAY_NAME", "DEMO_PAYMENT_GATEWAY"),
			Currency:        getEnv("PAYMENT_CURRENCY", "USD"),
			FailureRate:     getEnvAsFloat("PAYMENT_FAILURE_RATE", 0.05),
			AttemptLifetime: time.Duration(getEnvAsInt("PAYMENT_ATTEMPT_LIFETIME_MINUTES", 30)) * time.Minute,
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.JWT.RefreshSecret == "" {
		return fmt.Errorf("JWT_REFRESH_SECRET is required")
	}

	if c.Payment.FailureRate < 0 || c.Payment.FailureRate > 1 {
		return fmt.Errorf("PAYMENT_FAILURE_RATE must be between 0 and 1")
	}

	// Validate SMS configuration only in production mode
	if c.SMS.Mode == "production" {
		if c.SMS.Method == "url" {
			// URL method requires ESMSQK key
			if c.SMS.ESMSQK == "" {
				return fmt.Errorf("DIALOG_SMS_ESMSQK is required for URL method in production mode")
			}
		} else if c.SMS.Method == "api_v2" {
			if c.SMS.APIURL == "" {
				return fmt.Errorf("DIALOG_SMS_API_URL is required for API v2 method in production mode")
			}

			if c.SMS.Username == "" {
				return fmt.Errorf("DIALOG_SMS_USERNAME is required for API v2 method in production mode")
			}

			if c.SMS.Password == "" {
				return fmt.Errorf("DIALOG_SMS_PASSWORD is required for API v2 method in production mode")
			}
		} else {
			return fmt.Errorf("invalid SMS method: %s (must be 'url' or 'api_v2')", c.SMS.Method)
		}
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid float value for %s, using default: %g", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
