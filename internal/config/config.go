package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Service names, also used as Consul service names and log fields.
const (
	OrderService        = "order-service"
	InventoryService    = "inventory-service"
	NotificationService = "notification-service"
	APIGateway          = "api-gateway"
)

// State backends for the inventory service.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	ServiceName string
	Env         string
	HTTPPort    int

	RabbitHost      string
	RabbitPort      int
	RabbitUser      string
	RabbitPassword  string
	ConnectAttempts int
	ConnectDelay    time.Duration
	PublishRetries  int

	OrderServiceURL        string
	NotificationServiceURL string
	InventoryServiceURL    string
	StatusUpdateTimeout    time.Duration
	ReconcileRetries       int

	StateBackend      string
	RedisAddr         string
	ProcessedCapacity int
	ProcessedTTL      time.Duration
	ClaimTTL          time.Duration
	InventorySeed     map[string]int

	ConsulAddr   string
	OtelEndpoint string
}

// Load reads configuration for the named service. A .env file in the working
// directory is honoured when present.
func Load(serviceName string, defaultPort int) (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ServiceName: serviceName,
		Env:         getEnv("APP_ENV", "development"),
		HTTPPort:    getEnvInt("HTTP_PORT", defaultPort),

		RabbitHost:      getEnv("RABBIT_HOST", "localhost"),
		RabbitPort:      getEnvInt("RABBIT_PORT", 5672),
		RabbitUser:      getEnv("RABBIT_USER", "guest"),
		RabbitPassword:  getEnv("RABBIT_PASSWORD", "guest"),
		ConnectAttempts: getEnvInt("RABBIT_CONNECT_ATTEMPTS", 15),
		ConnectDelay:    getEnvDuration("RABBIT_CONNECT_DELAY", 3*time.Second),
		PublishRetries:  getEnvInt("PUBLISH_RETRIES", 3),

		OrderServiceURL:        getEnv("ORDER_SERVICE_URL", "http://localhost:5001"),
		NotificationServiceURL: getEnv("NOTIFICATION_SERVICE_URL", "http://localhost:5003"),
		InventoryServiceURL:    getEnv("INVENTORY_SERVICE_URL", "http://localhost:5002"),
		StatusUpdateTimeout:    getEnvDuration("STATUS_UPDATE_TIMEOUT", 5*time.Second),
		ReconcileRetries:       getEnvInt("RECONCILE_RETRIES", 0),

		StateBackend:      strings.ToLower(getEnv("STATE_BACKEND", BackendMemory)),
		RedisAddr:         getEnv("REDIS_ADDR", "localhost:6379"),
		ProcessedCapacity: getEnvInt("PROCESSED_CAPACITY", 100000),
		ProcessedTTL:      getEnvDuration("PROCESSED_TTL", 24*time.Hour),
		ClaimTTL:          getEnvDuration("CLAIM_TTL", 30*time.Second),

		ConsulAddr:   os.Getenv("CONSUL_ADDR"),
		OtelEndpoint: os.Getenv("OTEL_ENDPOINT"),
	}

	seed, err := ParseSeed(os.Getenv("INVENTORY_SEED"))
	if err != nil {
		return Config{}, err
	}
	cfg.InventorySeed = seed

	if cfg.StateBackend != BackendMemory && cfg.StateBackend != BackendRedis {
		return Config{}, fmt.Errorf("STATE_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, cfg.StateBackend)
	}
	if cfg.ConnectAttempts < 1 {
		return Config{}, fmt.Errorf("RABBIT_CONNECT_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

// RabbitURL returns the AMQP URL for the configured broker
func (c Config) RabbitURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", c.RabbitUser, c.RabbitPassword, c.RabbitHost, c.RabbitPort)
}

// ParseSeed parses "Pizza=10,Coffee=5". An empty string yields nil, meaning
// the built-in catalog.
func ParseSeed(raw string) (map[string]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	seed := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		name, qty, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid INVENTORY_SEED entry %q", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(qty))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid stock for %q in INVENTORY_SEED", name)
		}
		seed[strings.TrimSpace(name)] = n
	}
	return seed, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
