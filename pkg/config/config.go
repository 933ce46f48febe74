package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Weather     WeatherConfig
	Feeds       FeedConfig
	Collection  CollectionConfig
	Aggregation AggregationConfig
	Models      ModelConfig
	Alerting    AlertingConfig
	AlertStore  AlertStoreConfig
	HTTP        HTTPConfig
	Log         LogConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers      []string
	TopicRecords string
	TopicAlerts  string
	Enabled      bool
}

// WeatherConfig configures the weather provider client.
type WeatherConfig struct {
	BaseURL   string
	APIKey    string
	Units     string
	RateLimit int
	Timeout   time.Duration
}

// FeedConfig configures the sensor feed provider client.
type FeedConfig struct {
	BaseURL   string
	Username  string
	APIKey    string
	RateLimit int
	Timeout   time.Duration
}

// FeedsURL returns the root under which individual feeds are addressed
func (f FeedConfig) FeedsURL() string {
	base := strings.TrimRight(f.BaseURL, "/")
	if f.Username == "" {
		return base
	}
	return base + "/" + f.Username + "/feeds"
}

// CollectionConfig configures the periodic collection task.
// An empty Hives list means every registered hive.
type CollectionConfig struct {
	Interval         time.Duration
	Hives            []int
	Workers          int
	DefaultLatitude  float64
	DefaultLongitude float64
}

type AggregationConfig struct {
	MinRecords int
	Lookback   time.Duration
	SampleCap  int
	DailyTime  string
	Timezone   string
}

type ModelConfig struct {
	PerformancePath string
	ThreatPath      string
}

// AlertingConfig holds cooldown windows and escalation settings.
type AlertingConfig struct {
	CooldownEnvironmental time.Duration
	CooldownPredator      time.Duration
	CooldownWaxMoth       time.Duration
	CooldownDefault       time.Duration
	EscalationWindow      time.Duration
	EscalationCount       int
	PublishTimeout        time.Duration
	RecommendationsFile   string
}

type AlertStoreConfig struct {
	DocumentPath        string
	DocumentRotateAfter int
	RecentLimit         int
}

type HTTPConfig struct {
	Addr string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	hives, err := getEnvAsIntList("COLLECTION_HIVES", []int{1})
	if err != nil {
		return nil, err
	}

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "hive_user"),
			Password: getEnv("DB_PASSWORD", "hive_pass"),
			DBName:   getEnv("DB_NAME", "hive_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:      strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicRecords: getEnv("KAFKA_TOPIC_RECORDS", "hive.records"),
			TopicAlerts:  getEnv("KAFKA_TOPIC_ALERTS", "hive.alerts"),
			Enabled:      getEnvAsBool("KAFKA_ENABLED", true),
		},
		Weather: WeatherConfig{
			BaseURL:   getEnv("WEATHER_BASE_URL", "https://api.openweathermap.org/data/2.5/weather"),
			APIKey:    getEnv("WEATHER_API_KEY", ""),
			Units:     getEnv("WEATHER_UNITS", "metric"),
			RateLimit: getEnvAsInt("WEATHER_RATE_LIMIT", 60),
			Timeout:   getEnvAsDuration("WEATHER_TIMEOUT", 10*time.Second),
		},
		Feeds: FeedConfig{
			BaseURL:   getEnv("FEED_BASE_URL", "https://io.adafruit.com/api/v2"),
			Username:  getEnv("FEED_USERNAME", ""),
			APIKey:    getEnv("FEED_API_KEY", ""),
			RateLimit: getEnvAsInt("FEED_RATE_LIMIT", 30),
			Timeout:   getEnvAsDuration("FEED_TIMEOUT", 10*time.Second),
		},
		Collection: CollectionConfig{
			Interval:         getEnvAsDuration("COLLECTION_INTERVAL", time.Minute),
			Hives:            hives,
			Workers:          getEnvAsInt("COLLECTION_WORKERS", 4),
			DefaultLatitude:  getEnvAsFloat("DEFAULT_LATITUDE", 6.9271),
			DefaultLongitude: getEnvAsFloat("DEFAULT_LONGITUDE", 79.8612),
		},
		Aggregation: AggregationConfig{
			MinRecords: getEnvAsInt("AGGREGATION_MIN_RECORDS", 100),
			Lookback:   getEnvAsDuration("AGGREGATION_LOOKBACK", 7*24*time.Hour),
			SampleCap:  getEnvAsInt("AGGREGATION_SAMPLE_CAP", 10080),
			DailyTime:  getEnv("AGGREGATION_DAILY_TIME", "00:10"),
			Timezone:   getEnv("AGGREGATION_TIMEZONE", "UTC"),
		},
		Models: ModelConfig{
			PerformancePath: getEnv("PERFORMANCE_MODEL_PATH", "models/performance_model.json"),
			ThreatPath:      getEnv("THREAT_MODEL_PATH", "models/threat_model.json"),
		},
		Alerting: AlertingConfig{
			CooldownEnvironmental: getEnvAsDuration("COOLDOWN_ENVIRONMENTAL", 5*time.Minute),
			CooldownPredator:      getEnvAsDuration("COOLDOWN_PREDATOR", 3*time.Minute),
			CooldownWaxMoth:       getEnvAsDuration("COOLDOWN_WAX_MOTH", 4*time.Minute),
			CooldownDefault:       getEnvAsDuration("COOLDOWN_DEFAULT", 10*time.Minute),
			EscalationWindow:      getEnvAsDuration("ALERT_ESCALATION_WINDOW", 24*time.Hour),
			EscalationCount:       getEnvAsInt("ALERT_ESCALATION_COUNT", 3),
			PublishTimeout:        getEnvAsDuration("ALERT_PUBLISH_TIMEOUT", 2*time.Second),
			RecommendationsFile:   getEnv("RECOMMENDATIONS_FILE", ""),
		},
		AlertStore: AlertStoreConfig{
			DocumentPath:        getEnv("ALERT_DOCUMENT_PATH", "outputs/alerts.json"),
			DocumentRotateAfter: getEnvAsInt("ALERT_DOCUMENT_ROTATE_AFTER", 10000),
			RecentLimit:         getEnvAsInt("ALERT_RECENT_LIMIT", 500),
		},
		HTTP: HTTPConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if config.Weather.RateLimit <= 0 || config.Feeds.RateLimit <= 0 {
		return nil, fmt.Errorf("rate limits must be positive (weather=%d, feeds=%d)",
			config.Weather.RateLimit, config.Feeds.RateLimit)
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsIntList parses a comma separated list such as "1,2,3".
// "all" yields an empty list.
func getEnvAsIntList(key string, defaultValue []int) ([]int, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	if strings.EqualFold(strings.TrimSpace(valueStr), "all") {
		return []int{}, nil
	}

	var values []int
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %q: %w", key, part, err)
		}
		values = append(values, v)
	}
	return values, nil
}
