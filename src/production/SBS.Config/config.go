package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported live sinks
const (
	SinkMQTT  = "mqtt"
	SinkKafka = "kafka"
	SinkMongo = "mongo"
)

const (
	DefaultRegion   = "us-west-2"
	DefaultLogFile  = "iot_data_generator.log"
	DefaultInterval = time.Second
)

// DefaultDevices is the fixed device set readings are attributed to
var DefaultDevices = []string{"SBS01", "SBS02", "SBS03", "SBS04", "SBS05"}

// Config holds all generator configuration
type Config struct {
	// Generator configuration
	Generator GeneratorConfig `json:"generator"`

	// MQTT broker configuration
	MQTT MQTTConfig `json:"mqtt"`

	// Kafka configuration
	Kafka KafkaConfig `json:"kafka"`

	// MongoDB configuration
	Mongo MongoConfig `json:"mongo"`

	// Circuit breaker configuration
	Breaker BreakerConfig `json:"breaker"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Health server configuration
	Health HealthConfig `json:"health"`
}

// GeneratorConfig holds the run loop settings
type GeneratorConfig struct {
	Region   string        `json:"region"`
	Send     bool          `json:"send"`
	Interval time.Duration `json:"interval"`
	Sink     string        `json:"sink"`
	Devices  []string      `json:"devices"`
	Count    int           `json:"count"` // 0 runs until interrupted
	Seed     int64         `json:"seed"`  // 0 seeds from the clock
}

// MQTTConfig holds MQTT-related configuration
type MQTTConfig struct {
	BrokerHost     string        `json:"broker_host"`
	BrokerPort     int           `json:"broker_port"`
	BrokerUser     string        `json:"broker_user"`
	BrokerPass     string        `json:"broker_pass"`
	UseTLS         bool          `json:"use_tls"`
	CACertPath     string        `json:"ca_cert_path"`
	CertPath       string        `json:"cert_path"`
	KeyPath        string        `json:"key_path"`
	ClientID       string        `json:"client_id"`
	QoS            int           `json:"qos"`
	KeepAlive      time.Duration `json:"keep_alive"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
}

// KafkaConfig holds Kafka writer configuration
type KafkaConfig struct {
	Brokers      []string      `json:"brokers"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// MongoConfig holds MongoDB sink configuration
type MongoConfig struct {
	URI            string        `json:"uri"`
	Database       string        `json:"database"`
	Collection     string        `json:"collection"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
}

// BreakerConfig holds circuit breaker thresholds for live sinks
type BreakerConfig struct {
	MaxFailures  int           `json:"max_failures"`
	ResetTimeout time.Duration `json:"reset_timeout"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"` // json or text
	File         string `json:"file"`   // tee'd with stdout, empty disables
	EnableCaller bool   `json:"enable_caller"`
}

// HealthConfig holds the optional health/metrics server settings
type HealthConfig struct {
	Port           string   `json:"port"` // empty disables the server
	AllowedOrigins []string `json:"allowed_origins"`
}

// Load loads configuration from environment variables with fallback defaults
func Load() (*Config, error) {
	// A missing .env file is fine, variables may be set directly
	_ = godotenv.Load()

	env := &envReader{}
	cfg := &Config{
		Generator: GeneratorConfig{
			Region:   env.str("AWS_REGION", DefaultRegion),
			Send:     env.boolean("SBS_SEND", false),
			Interval: env.seconds("SBS_INTERVAL", DefaultInterval),
			Sink:     strings.ToLower(env.str("SBS_SINK", SinkMQTT)),
			Devices:  env.stringSlice("SBS_DEVICES", DefaultDevices),
			Count:    env.integer("SBS_COUNT", 0),
			Seed:     int64(env.integer("SBS_SEED", 0)),
		},
		MQTT: MQTTConfig{
			BrokerHost:     env.str("BROKER_HOST", ""),
			BrokerPort:     env.integer("BROKER_PORT", 8883),
			BrokerUser:     env.str("BROKER_USER", ""),
			BrokerPass:     env.str("BROKER_PASS", ""),
			UseTLS:         env.boolean("BROKER_TLS", true),
			CACertPath:     env.str("BROKER_CA_FILE", ""),
			CertPath:       env.str("BROKER_CERT_FILE", ""),
			KeyPath:        env.str("BROKER_KEY_FILE", ""),
			ClientID:       env.str("MQTT_CLIENT_ID", "sbs-iot-generator"),
			QoS:            env.integer("MQTT_QOS", 1),
			KeepAlive:      env.duration("MQTT_KEEP_ALIVE", 30*time.Second),
			ConnectTimeout: env.duration("MQTT_CONNECT_TIMEOUT", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:      env.stringSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			WriteTimeout: env.duration("KAFKA_WRITE_TIMEOUT", 10*time.Second),
		},
		Mongo: MongoConfig{
			URI:            env.str("MONGODB_URI", ""),
			Database:       env.str("DB_NAME", "iot"),
			Collection:     env.str("COLL_NAME", "devicedata"),
			ConnectTimeout: env.duration("MONGODB_CONNECT_TIMEOUT", 20*time.Second),
		},
		Breaker: BreakerConfig{
			MaxFailures:  env.integer("BREAKER_MAX_FAILURES", 5),
			ResetTimeout: env.duration("BREAKER_RESET_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:        env.str("LOG_LEVEL", "info"),
			Format:       env.str("LOG_FORMAT", "text"),
			File:         env.str("LOG_FILE", DefaultLogFile),
			EnableCaller: env.boolean("LOG_ENABLE_CALLER", false),
		},
		Health: HealthConfig{
			Port:           env.str("HEALTH_PORT", ""),
			AllowedOrigins: env.stringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
	}

	if err := env.err(); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	return cfg, nil
}

// ApplyFlags overrides configuration with command line flags. Environment values
// act as the flag defaults.
func (c *Config) ApplyFlags(args []string) error {
	fs := flag.NewFlagSet("sbs-generator", flag.ContinueOnError)

	region := fs.String("region", c.Generator.Region, "cloud region of the IoT data endpoint")
	send := fs.Bool("send", c.Generator.Send, "enable actual sending to the live sink")
	interval := fs.Float64("interval", c.Generator.Interval.Seconds(), "interval between messages in seconds")
	logFile := fs.String("log-file", c.Logging.File, "log file path")
	sink := fs.String("sink", c.Generator.Sink, "live sink: mqtt, kafka or mongo")
	count := fs.Int("count", c.Generator.Count, "stop after this many messages (0 runs until interrupted)")
	seed := fs.Int64("seed", c.Generator.Seed, "random seed (0 seeds from the clock)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	c.Generator.Region = *region
	c.Generator.Send = *send
	c.Generator.Interval = time.Duration(*interval * float64(time.Second))
	c.Generator.Sink = strings.ToLower(*sink)
	c.Generator.Count = *count
	c.Generator.Seed = *seed
	c.Logging.File = *logFile
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Generator.Interval < 0 {
		return fmt.Errorf("interval must not be negative")
	}
	if len(c.Generator.Devices) == 0 {
		return fmt.Errorf("at least one device id is required")
	}
	if c.Generator.Count < 0 {
		return fmt.Errorf("count must not be negative")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Logging.Format)
	}

	switch c.Generator.Sink {
	case SinkMQTT:
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 1 {
			return fmt.Errorf("MQTT_QOS must be 0 or 1")
		}
		if (c.MQTT.CertPath == "") != (c.MQTT.KeyPath == "") {
			return fmt.Errorf("BROKER_CERT_FILE and BROKER_KEY_FILE must be set together")
		}
	case SinkKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for the kafka sink")
		}
	case SinkMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("MONGODB_URI is required for the mongo sink")
		}
	default:
		return fmt.Errorf("unknown sink %q", c.Generator.Sink)
	}

	if c.Breaker.MaxFailures < 1 {
		return fmt.Errorf("BREAKER_MAX_FAILURES must be at least 1")
	}
	return nil
}

// GetMQTTBrokerURL returns the MQTT broker URL. Without an explicit host the
// regional IoT data endpoint is used, which only accepts TLS.
func (c *Config) GetMQTTBrokerURL() string {
	host := c.MQTT.BrokerHost
	useTLS := c.MQTT.UseTLS
	if host == "" {
		host = fmt.Sprintf("data.iot.%s.amazonaws.com", c.Generator.Region)
		useTLS = true
	}
	scheme := "tcp"
	if useTLS {
		scheme = "tcps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, c.MQTT.BrokerPort)
}

// Mode returns a human readable name of the run mode
func (c *Config) Mode() string {
	if !c.Generator.Send {
		return "Simulation"
	}
	return "Sending to " + c.Generator.Sink
}

// envReader parses environment variables and collects every parse error
type envReader struct {
	errs []error
}

func (e *envReader) err() error {
	return errors.Join(e.errs...)
}

func (e *envReader) str(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (e *envReader) integer(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return intValue
}

func (e *envReader) boolean(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if value == "1" || value == "true" || value == "TRUE" {
		return true
	}
	if value == "0" || value == "false" || value == "FALSE" {
		return false
	}
	e.errs = append(e.errs, fmt.Errorf("invalid %s: %q (expected true/false or 1/0)", key, value))
	return defaultValue
}

func (e *envReader) duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return d
}

// seconds reads a float number of seconds, e.g. "0.5"
func (e *envReader) seconds(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return defaultValue
	}
	return time.Duration(f * float64(time.Second))
}

func (e *envReader) stringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
