package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hezron-sketch/cafe-backend/pkg/messaging"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	MpesaModeLive = "live"
	MpesaModeMock = "mock"
)

type Config struct {
	Port     string
	Store    string
	Database DatabaseConfig
	Pricing  PricingConfig
	Mpesa    MpesaConfig
	RabbitMQ messaging.RabbitMQConfig

	CatalogReverify bool
	JWTSecret       string
	LogFormat       string
	LogLevel        string
	PublishRetries  int
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type PricingConfig struct {
	DeliveryFee float64
	PromoCodes  map[string]float64
}

type MpesaConfig struct {
	Mode           string
	BaseURL        string
	ShortCode      string
	Passkey        string
	ConsumerKey    string
	ConsumerSecret string
	CallbackURL    string
	Timeout        time.Duration
}

// Load reads an optional .env file and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("env file error: %w", err)
	}

	deliveryFee, err := strconv.ParseFloat(getEnvOrDefault("DELIVERY_FEE", "200"), 64)
	if err != nil || deliveryFee < 0 {
		return nil, fmt.Errorf("invalid DELIVERY_FEE: %q", os.Getenv("DELIVERY_FEE"))
	}

	promoCodes, err := ParsePromoCodes(os.Getenv("PROMO_CODES"))
	if err != nil {
		return nil, err
	}

	timeout, err := time.ParseDuration(getEnvOrDefault("MPESA_TIMEOUT", "15s"))
	if err != nil || timeout <= 0 {
		return nil, fmt.Errorf("invalid MPESA_TIMEOUT: %q", os.Getenv("MPESA_TIMEOUT"))
	}

	reverify, err := strconv.ParseBool(getEnvOrDefault("CATALOG_REVERIFY", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid CATALOG_REVERIFY: %w", err)
	}

	retries, err := strconv.Atoi(getEnvOrDefault("NOTIFY_RETRIES", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFY_RETRIES: %w", err)
	}

	rabbit, err := loadRabbitMQ()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:  getEnvOrDefault("PORT", "8080"),
		Store: strings.ToLower(getEnvOrDefault("ORDER_STORE", StorePostgres)),
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getEnvOrDefault("DB_PORT", "5432"),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", "postgres"),
			Name:     getEnvOrDefault("DB_NAME", "cafe_db"),
			SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
		},
		Pricing: PricingConfig{
			DeliveryFee: deliveryFee,
			PromoCodes:  promoCodes,
		},
		Mpesa: MpesaConfig{
			Mode:           strings.ToLower(getEnvOrDefault("MPESA_MODE", MpesaModeLive)),
			BaseURL:        strings.TrimRight(getEnvOrDefault("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"), "/"),
			ShortCode:      getEnvOrDefault("MPESA_SHORT_CODE", "174379"),
			Passkey:        os.Getenv("MPESA_PASSKEY"),
			ConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
			ConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
			CallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),
			Timeout:        timeout,
		},
		RabbitMQ:        rabbit,
		CatalogReverify: reverify,
		JWTSecret:       os.Getenv("JWT_SECRET"),
		LogFormat:       strings.ToLower(getEnvOrDefault("LOG_FORMAT", "text")),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		PublishRetries:  retries,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Store != StorePostgres && c.Store != StoreMemory {
		return fmt.Errorf("ORDER_STORE must be %s or %s, got %q", StorePostgres, StoreMemory, c.Store)
	}
	switch c.Mpesa.Mode {
	case MpesaModeMock:
	case MpesaModeLive:
		var missing []string
		for name, value := range map[string]string{
			"MPESA_PASSKEY":         c.Mpesa.Passkey,
			"MPESA_CONSUMER_KEY":    c.Mpesa.ConsumerKey,
			"MPESA_CONSUMER_SECRET": c.Mpesa.ConsumerSecret,
			"MPESA_CALLBACK_URL":    c.Mpesa.CallbackURL,
		} {
			if value == "" {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return fmt.Errorf("missing M-Pesa settings: %s", strings.Join(missing, ", "))
		}
	default:
		return fmt.Errorf("MPESA_MODE must be %s or %s, got %q", MpesaModeLive, MpesaModeMock, c.Mpesa.Mode)
	}
	return nil
}

func loadRabbitMQ() (messaging.RabbitMQConfig, error) {
	port, err := strconv.Atoi(getEnvOrDefault("RABBITMQ_PORT", "5672"))
	if err != nil || port <= 0 {
		return messaging.RabbitMQConfig{}, fmt.Errorf("invalid RABBITMQ_PORT: %q", os.Getenv("RABBITMQ_PORT"))
	}
	retryCount, err := strconv.Atoi(getEnvOrDefault("RABBITMQ_RETRY_COUNT", "3"))
	if err != nil {
		return messaging.RabbitMQConfig{}, fmt.Errorf("invalid RABBITMQ_RETRY_COUNT: %w", err)
	}
	retryDelay, err := time.ParseDuration(getEnvOrDefault("RABBITMQ_RETRY_DELAY", "5s"))
	if err != nil {
		return messaging.RabbitMQConfig{}, fmt.Errorf("invalid RABBITMQ_RETRY_DELAY: %w", err)
	}

	return messaging.RabbitMQConfig{
		Host:              getEnvOrDefault("RABBITMQ_HOST", "localhost"),
		Port:              port,
		Username:          getEnvOrDefault("RABBITMQ_USERNAME", "guest"),
		Password:          getEnvOrDefault("RABBITMQ_PASSWORD", "guest"),
		VHost:             getEnvOrDefault("RABBITMQ_VHOST", "/"),
		Exchange:          getEnvOrDefault("RABBITMQ_EXCHANGE", "cafe.events"),
		AuditQueue:        getEnvOrDefault("RABBITMQ_AUDIT_QUEUE", "cafe-reconciliation-queue"),
		RetryCount:        retryCount,
		RetryDelay:        retryDelay,
		ConnectionTimeout: 30 * time.Second,
	}, nil
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// ParsePromoCodes reads CODE:amount pairs separated by commas.
func ParsePromoCodes(raw string) (map[string]float64, error) {
	codes := make(map[string]float64)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		code, amountStr, ok := strings.Cut(pair, ":")
		code = strings.ToUpper(strings.TrimSpace(code))
		if !ok || code == "" {
			return nil, fmt.Errorf("invalid PROMO_CODES entry %q, want CODE:amount", pair)
		}
		amount, err := strconv.ParseFloat(strings.TrimSpace(amountStr), 64)
		if err != nil || amount < 0 {
			return nil, fmt.Errorf("invalid PROMO_CODES amount for %s", code)
		}
		codes[code] = amount
	}
	return codes, nil
}

// SetupLogging applies LOG_FORMAT and LOG_LEVEL to the standard logger.
func (c *Config) SetupLogging() {
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logrus.WithError(err).Warn("Unknown LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
