package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// HTTP holds HTTP server configuration.
type HTTP struct {
	Host string
	Port int
}

// GRPC holds gRPC server configuration.
type GRPC struct {
	Host string
	Port int
}

// Cache configures caching behavior and backend selection.
type Cache struct {
	Enabled    bool
	Driver     string
	DefaultTTL time.Duration
	Redis      Redis
}

// Redis contains redis-specific connection settings.
type Redis struct {
	Addr     string
	Password string
	DB       int
}

// Messaging configures the message bus used by the application.
type Messaging struct {
	Driver        string
	Enabled       bool
	Kafka         Kafka
	ConsumerGroup string
	Workers       Worker
}

// Kafka holds Kafka connection details.
type Kafka struct {
	Brokers        []string
	ClientID       string
	Topic          string
	CommitInterval time.Duration
	MinBytes       int
	MaxBytes       int
	ConnectTimeout time.Duration
}

// Worker configures background worker concurrency and polling.
type Worker struct {
	Enabled      bool
	PollInterval time.Duration
	Concurrency  int
}

// Store configures the local document store and subscription cadence.
type Store struct {
	LocalPath      string
	PollInterval   time.Duration
	CoalesceWindow time.Duration
	SeedCatalog    bool
}

// Remote is the credential set that selects a multi-client backend.
// Driver is one of redis, postgres, mysql or sqlite.
type Remote struct {
	Driver        string `json:"driver"`
	APIKey        string `json:"apiKey"`
	ProjectID     string `json:"projectId"`
	Endpoint      string `json:"endpoint"`
	AuthDomain    string `json:"authDomain,omitempty"`
	StorageBucket string `json:"storageBucket,omitempty"`
	AppID         string `json:"appId,omitempty"`
}

var placeholderKeys = []string{"colar_", "changeme", "your_", "<"}

// Valid reports whether the credential set carries a usable-looking key.
func (r Remote) Valid() bool {
	key := strings.TrimSpace(r.APIKey)
	if key == "" || r.Endpoint == "" {
		return false
	}
	lower := strings.ToLower(key)
	for _, p := range placeholderKeys {
		if strings.HasPrefix(lower, p) {
			return false
		}
	}
	return true
}

// Database holds pool settings for the SQL-backed remote store.
type Database struct {
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
}

// TextGen configures the narrative report collaborator.
type TextGen struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// QRCode configures table link and image generation.
type QRCode struct {
	BaseURL       string
	ImageEndpoint string
	Size          int
}

// Observability contains logging, tracing, and metrics configuration.
type Observability struct {
	ServiceName      string
	Environment      string
	LogLevel         string
	LogEncoding      string
	EnableTracing    bool
	TraceExporter    string
	TraceEndpoint    string
	TraceInsecure    bool
	// TraceSampleRatio is the share of root spans kept, in (0, 1].
	TraceSampleRatio float64
	EnableMetrics    bool
	MetricsExporter  string
	PrometheusPath   string
}

// Config wraps all application configuration knobs.
type Config struct {
	HTTP          HTTP
	GRPC          GRPC
	Cache         Cache
	Messaging     Messaging
	Store         Store
	Remote        Remote
	Database      Database
	TextGen       TextGen
	QRCode        QRCode
	Observability Observability
}

// Module wires the configuration loader into the Fx graph.
var Module = fx.Provide(New)

var loadEnvOnce sync.Once

// New builds a Config from environment variables or defaults.
func New() (Config, error) {
	loadEnvOnce.Do(func() {
		_ = godotenv.Load()
	})

	cfg := Config{
		HTTP: HTTP{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnvAsInt("HTTP_PORT", 8080),
		},
		GRPC: GRPC{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnvAsInt("GRPC_PORT", 9090),
		},
		Cache: Cache{
			Enabled:    getEnvAsBool("CACHE_ENABLED", false),
			Driver:     getEnv("CACHE_DRIVER", "redis"),
			DefaultTTL: getEnvAsDuration("CACHE_DEFAULT_TTL", time.Minute*5),
			Redis: Redis{
				Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
				Password: getEnv("REDIS_PASSWORD", ""),
				DB:       getEnvAsInt("REDIS_DB", 0),
			},
		},
		Messaging: Messaging{
			Driver:  getEnv("MESSAGING_DRIVER", "kafka"),
			Enabled: getEnvAsBool("MESSAGING_ENABLED", false),
			Kafka: Kafka{
				Brokers:        getEnvAsStringSlice("KAFKA_BROKERS", []string{"127.0.0.1:9092"}),
				ClientID:       getEnv("KAFKA_CLIENT_ID", "tableside"),
				Topic:          getEnv("KAFKA_TOPIC", "tableside.events"),
				CommitInterval: getEnvAsDuration("KAFKA_COMMIT_INTERVAL", time.Second),
				MinBytes:       getEnvAsInt("KAFKA_MIN_BYTES", 10e3),
				MaxBytes:       getEnvAsInt("KAFKA_MAX_BYTES", 10e6),
				ConnectTimeout: getEnvAsDuration("KAFKA_CONNECT_TIMEOUT", 5*time.Second),
			},
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "tableside-worker"),
			Workers: Worker{
				Enabled:      getEnvAsBool("WORKER_ENABLED", true),
				PollInterval: getEnvAsDuration("WORKER_POLL_INTERVAL", time.Second),
				Concurrency:  getEnvAsInt("WORKER_CONCURRENCY", 2),
			},
		},
		Store: Store{
			LocalPath:      getEnv("STORE_LOCAL_PATH", "data/tableside.json"),
			PollInterval:   getEnvAsDuration("STORE_POLL_INTERVAL", 2*time.Second),
			CoalesceWindow: getEnvAsDuration("STORE_COALESCE_WINDOW", 200*time.Millisecond),
			SeedCatalog:    getEnvAsBool("STORE_SEED_CATALOG", true),
		},
		Remote: Remote{
			Driver:        getEnv("REMOTE_DRIVER", "redis"),
			APIKey:        getEnv("REMOTE_API_KEY", ""),
			ProjectID:     getEnv("REMOTE_PROJECT_ID", "tableside"),
			Endpoint:      getEnv("REMOTE_ENDPOINT", ""),
			AuthDomain:    getEnv("REMOTE_AUTH_DOMAIN", ""),
			StorageBucket: getEnv("REMOTE_STORAGE_BUCKET", ""),
			AppID:         getEnv("REMOTE_APP_ID", ""),
		},
		Database: Database{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", time.Minute*5),
		},
		TextGen: TextGen{
			Endpoint: getEnv("TEXTGEN_ENDPOINT", "https://generativelanguage.googleapis.com/v1beta"),
			APIKey:   getEnv("TEXTGEN_API_KEY", ""),
			Model:    getEnv("TEXTGEN_MODEL", "gemini-2.5-flash"),
			Timeout:  getEnvAsDuration("TEXTGEN_TIMEOUT", 30*time.Second),
		},
		QRCode: QRCode{
			BaseURL:       getEnv("QR_BASE_URL", "http://localhost:3000"),
			ImageEndpoint: getEnv("QR_IMAGE_ENDPOINT", "https://api.qrserver.com/v1/create-qr-code/"),
			Size:          getEnvAsInt("QR_SIZE", 400),
		},
		Observability: Observability{
			ServiceName:      getEnv("OBS_SERVICE_NAME", "tableside"),
			Environment:      getEnv("OBS_ENVIRONMENT", "local"),
			LogLevel:         getEnv("OBS_LOG_LEVEL", "info"),
			LogEncoding:      getEnv("OBS_LOG_ENCODING", "json"),
			EnableTracing:    getEnvAsBool("OBS_ENABLE_TRACING", false),
			TraceExporter:    getEnv("OBS_TRACE_EXPORTER", "stdout"),
			TraceEndpoint:    getEnv("OBS_OTLP_ENDPOINT", "localhost:4317"),
			TraceInsecure:    getEnvAsBool("OBS_OTLP_INSECURE", true),
			TraceSampleRatio: getEnvAsFloat("OBS_TRACE_SAMPLE_RATIO", 1),
			EnableMetrics:    getEnvAsBool("OBS_ENABLE_METRICS", true),
			MetricsExporter:  getEnv("OBS_METRICS_EXPORTER", "prometheus"),
			PrometheusPath:   getEnv("OBS_PROMETHEUS_PATH", "/metrics"),
		},
	}

	if cfg.HTTP.Port <= 0 {
		return Config{}, fmt.Errorf("invalid HTTP port: %d", cfg.HTTP.Port)
	}

	if cfg.GRPC.Port <= 0 {
		return Config{}, fmt.Errorf("invalid gRPC port: %d", cfg.GRPC.Port)
	}

	if !cfg.Cache.Enabled {
		cfg.Cache.Driver = "noop"
	}

	switch cfg.Cache.Driver {
	case "redis", "noop":
		// supported
	default:
		return Config{}, fmt.Errorf("unsupported cache driver: %s", cfg.Cache.Driver)
	}

	if cfg.Cache.Driver == "redis" && cfg.Cache.Redis.Addr == "" {
		return Config{}, fmt.Errorf("missing REDIS_ADDR for redis cache")
	}

	if cfg.Cache.DefaultTTL < 0 {
		cfg.Cache.DefaultTTL = time.Minute * 5
	}

	if cfg.Store.PollInterval <= 0 {
		cfg.Store.PollInterval = 2 * time.Second
	}
	if cfg.Store.CoalesceWindow < 0 {
		cfg.Store.CoalesceWindow = 0
	}

	cfg.Remote.Driver = strings.ToLower(strings.TrimSpace(cfg.Remote.Driver))
	if err := ValidateRemoteDriver(cfg.Remote.Driver); err != nil {
		return Config{}, err
	}

	cfg.Observability.LogLevel = strings.ToLower(strings.TrimSpace(cfg.Observability.LogLevel))
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	cfg.Observability.LogEncoding = strings.ToLower(strings.TrimSpace(cfg.Observability.LogEncoding))
	if cfg.Observability.LogEncoding == "" {
		cfg.Observability.LogEncoding = "json"
	}
	cfg.Observability.TraceExporter = strings.ToLower(strings.TrimSpace(cfg.Observability.TraceExporter))
	if cfg.Observability.TraceExporter == "" {
		cfg.Observability.TraceExporter = "stdout"
	}
	cfg.Observability.MetricsExporter = strings.ToLower(strings.TrimSpace(cfg.Observability.MetricsExporter))
	if cfg.Observability.MetricsExporter == "" {
		cfg.Observability.MetricsExporter = "prometheus"
	}

	if r := cfg.Observability.TraceSampleRatio; r <= 0 || r > 1 {
		cfg.Observability.TraceSampleRatio = 1
	}

	if cfg.Observability.PrometheusPath == "" {
		cfg.Observability.PrometheusPath = "/metrics"
	} else if !strings.HasPrefix(cfg.Observability.PrometheusPath, "/") {
		cfg.Observability.PrometheusPath = "/" + cfg.Observability.PrometheusPath
	}

	if !cfg.Messaging.Enabled {
		cfg.Messaging.Driver = "noop"
	}

	switch cfg.Messaging.Driver {
	case "kafka", "noop":
		// supported
	default:
		return Config{}, fmt.Errorf("unsupported messaging driver: %s", cfg.Messaging.Driver)
	}

	if cfg.Messaging.Driver == "kafka" {
		if len(cfg.Messaging.Kafka.Brokers) == 0 {
			return Config{}, fmt.Errorf("KAFKA_BROKERS must be provided")
		}
		if cfg.Messaging.Kafka.Topic == "" {
			return Config{}, fmt.Errorf("KAFKA_TOPIC must be provided")
		}
		if cfg.Messaging.ConsumerGroup == "" {
			return Config{}, fmt.Errorf("KAFKA_CONSUMER_GROUP must be provided")
		}
	}

	if cfg.Messaging.Workers.Concurrency <= 0 {
		cfg.Messaging.Workers.Concurrency = 1
	}
	if cfg.Messaging.Workers.PollInterval <= 0 {
		cfg.Messaging.Workers.PollInterval = time.Second
	}

	if cfg.QRCode.Size <= 0 {
		cfg.QRCode.Size = 400
	}

	return cfg, nil
}

// ValidateRemoteDriver rejects unknown remote backend drivers.
func ValidateRemoteDriver(driver string) error {
	switch driver {
	case "redis", "postgres", "mysql", "sqlite":
		return nil
	default:
		return fmt.Errorf("unsupported remote driver: %s", driver)
	}
}
