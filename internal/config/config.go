package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Stripe     StripeConfig
	Auth       AuthConfig
	QR         QRConfig
	Uploads    UploadConfig
	Log        LogConfig
	Migrations MigrationConfig
}

type ServerConfig struct {
	Port            string
	BaseURL         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	DSN          string
	Host         string
	Port         string
	Username     string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	ConnRetries  int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers     []string
	Enabled     bool
	EnsureTopic bool
	// InstanceID names this replica's consumer group so every replica reads every availability update.
	InstanceID string
	Topics     TopicConfig
}

type TopicConfig struct {
	TicketReserved    string
	TicketCancelled   string
	CheckoutCompleted string
	CheckoutCancelled string
	EventChanged      string
	OrganizerRequests string
	Availability      string
}

// All lists every configured topic, for bootstrapping.
func (t TopicConfig) All() []string {
	var out []string
	for _, topic := range []string{t.TicketReserved, t.TicketCancelled, t.CheckoutCompleted,
		t.CheckoutCancelled, t.EventChanged, t.OrganizerRequests, t.Availability} {
		if topic != "" {
			out = append(out, topic)
		}
	}
	return out
}

type StripeConfig struct {
	SecretKey  string
	Currency   string
	SuccessURL string
	CancelURL  string
}

type AuthConfig struct {
	JWTSecret    string
	TokenTTL     time.Duration
	SessionTTL   time.Duration
	CookieName   string
	CookieSecure bool
	OIDCIssuer   string
	OIDCClientID string
}

type QRConfig struct {
	Secret string
	Size   int
}

// UploadConfig splits uploads in two trees: Dir is served under PublicPrefix, PrivateDir never is.
type UploadConfig struct {
	Dir          string
	PublicPrefix string
	PrivateDir   string
	MaxSizeBytes int64
}

type LogConfig struct {
	Dir     string
	Service string
}

type MigrationConfig struct {
	Dir  string
	Auto bool
}

func Load() *Config {
	baseURL := strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/")

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8080"),
			BaseURL:         baseURL,
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second),
		},
		Database: DatabaseConfig{
			DSN:          os.Getenv("POSTGRES_DSN"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			Username:     getEnv("DB_USERNAME", "ticketing"),
			Password:     getEnv("DB_PASSWORD", "ticketing"),
			Database:     getEnv("DB_NAME", "ticketing"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			ConnRetries:  getEnvInt("DB_CONN_RETRIES", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			Enabled:     getEnvBool("KAFKA_ENABLED", false),
			EnsureTopic: getEnvBool("KAFKA_ENSURE_TOPICS", true),
			InstanceID:  getEnv("KAFKA_INSTANCE_ID", hostname()),
			Topics: TopicConfig{
				TicketReserved:    getEnv("KAFKA_TOPIC_TICKET_RESERVED", "ticketing.tickets.reserved"),
				TicketCancelled:   getEnv("KAFKA_TOPIC_TICKET_CANCELLED", "ticketing.tickets.cancelled"),
				CheckoutCompleted: getEnv("KAFKA_TOPIC_CHECKOUT_COMPLETED", "ticketing.checkout.completed"),
				CheckoutCancelled: getEnv("KAFKA_TOPIC_CHECKOUT_CANCELLED", "ticketing.checkout.cancelled"),
				EventChanged:      getEnv("KAFKA_TOPIC_EVENT_CHANGED", "ticketing.events.changed"),
				OrganizerRequests: getEnv("KAFKA_TOPIC_ORGANIZER_REQUESTS", "ticketing.organizer-requests"),
				Availability:      getEnv("KAFKA_TOPIC_AVAILABILITY", "ticketing.availability"),
			},
		},
		Stripe: StripeConfig{
			SecretKey:  os.Getenv("STRIPE_SECRET_KEY"),
			Currency:   strings.ToLower(getEnv("STRIPE_CURRENCY", "eur")),
			SuccessURL: getEnv("STRIPE_SUCCESS_URL", baseURL+"/payment/success?session_id={CHECKOUT_SESSION_ID}"),
			CancelURL:  getEnv("STRIPE_CANCEL_URL", baseURL+"/payment/cancel?session_id={CHECKOUT_SESSION_ID}"),
		},
		Auth: AuthConfig{
			JWTSecret:    os.Getenv("JWT_SECRET"),
			TokenTTL:     getEnvDuration("JWT_TTL", 24*time.Hour),
			SessionTTL:   getEnvDuration("SESSION_TTL", 7*24*time.Hour),
			CookieName:   getEnv("SESSION_COOKIE_NAME", "ticketing_session"),
			CookieSecure: getEnvBool("SESSION_COOKIE_SECURE", false),
			OIDCIssuer:   os.Getenv("OIDC_ISSUER"),
			OIDCClientID: os.Getenv("OIDC_CLIENT_ID"),
		},
		QR: QRConfig{
			Secret: os.Getenv("QR_SECRET_KEY"),
			Size:   getEnvInt("QR_SIZE", 256),
		},
		Uploads: UploadConfig{
			Dir:          getEnv("UPLOAD_DIR", "static/uploads"),
			PublicPrefix: getEnv("UPLOAD_PUBLIC_PREFIX", "/static/uploads"),
			PrivateDir:   getEnv("UPLOAD_PRIVATE_DIR", "storage/private"),
			MaxSizeBytes: int64(getEnvInt("UPLOAD_MAX_SIZE_MB", 5)) << 20,
		},
		Log: LogConfig{
			Dir:     getEnv("LOG_DIR", "logs"),
			Service: getEnv("LOG_SERVICE", "event-ticketing"),
		},
		Migrations: MigrationConfig{
			Dir:  getEnv("MIGRATIONS_DIR", "./migrations"),
			Auto: getEnvBool("AUTO_MIGRATE", true),
		},
	}
}

// PostgresDSN prefers POSTGRES_DSN and otherwise assembles one from the DB_* settings.
func (c DatabaseConfig) PostgresDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// Validate reports the secrets the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if c.QR.Secret == "" {
		errs = append(errs, errors.New("QR_SECRET_KEY is not set"))
	}
	if c.Stripe.SecretKey == "" {
		errs = append(errs, errors.New("STRIPE_SECRET_KEY is not set"))
	}
	if c.Uploads.MaxSizeBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_SIZE_MB must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func hostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "event-ticketing"
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
