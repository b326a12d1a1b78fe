package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"repogauge/pkg/secrets"
)

// Config represents the application configuration
type Config struct {
	GitHub        GitHubConfig        `json:"github"`
	Scan          ScanConfig          `json:"scan"`
	Thresholds    ThresholdConfig     `json:"thresholds"`
	Database      DatabaseConfig      `json:"database"`
	Redis         RedisConfig         `json:"redis"`
	Elasticsearch ElasticsearchConfig `json:"elasticsearch"`
	API           APIConfig           `json:"api"`
	Scheduler     SchedulerConfig     `json:"scheduler"`
	Telemetry     TelemetryConfig     `json:"telemetry"`
}

// GitHubConfig holds GitHub API configuration
type GitHubConfig struct {
	Token                string  `json:"token"`
	Owner                string  `json:"owner"`
	MaxRequestsPerSecond float64 `json:"max_requests_per_second"`
	PerPage              int     `json:"per_page"`
}

// ScanConfig controls how a scan run proceeds
type ScanConfig struct {
	BatchSize          int      `json:"batch_size"`
	Workers            int      `json:"workers"`
	IncludeForks       bool     `json:"include_forks"`
	IncludeArchived    bool     `json:"include_archived"`
	CheckpointPath     string   `json:"checkpoint_path"`
	RateThreshold      int      `json:"rate_threshold"`
	MaxRateWaitMinutes int      `json:"max_rate_wait_minutes"`
	ExcludedDirs       []string `json:"excluded_dirs"`
	MaxFileSizeBytes   int      `json:"max_file_size_bytes"`
	OutputPath         string   `json:"output_path"`
}

// ThresholdConfig holds scoring and anomaly thresholds
type ThresholdConfig struct {
	InactiveDays     int     `json:"inactive_days"`
	LargeRepoLOC     int     `json:"large_repo_loc"`
	LargeUntestedLOC int     `json:"large_untested_loc"`
	PopularStars     int     `json:"popular_stars"`
	AbandonedStars   int     `json:"abandoned_stars"`
	ManyOpenIssues   int     `json:"many_open_issues"`
	StaleAgeYears    int     `json:"stale_age_years"`
	LowTestRatio     float64 `json:"low_test_ratio"`
}

// DatabaseConfig holds database connection parameters
type DatabaseConfig struct {
	Enabled           bool   `json:"enabled"`
	Host              string `json:"host"`
	Port              int    `json:"port"`
	Database          string `json:"database"`
	User              string `json:"user"`
	Password          string `json:"password"`
	MaxConnections    int    `json:"max_connections"`
	ConnectionTimeout int    `json:"connection_timeout_seconds"`
}

// RedisConfig holds cache connection parameters
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// ElasticsearchConfig holds search export parameters
type ElasticsearchConfig struct {
	Enabled   bool     `json:"enabled"`
	Addresses []string `json:"addresses"`
	Index     string   `json:"index"`
}

// APIConfig holds the status server parameters
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// SchedulerConfig holds the periodic scan schedule
type SchedulerConfig struct {
	Enabled bool   `json:"enabled"`
	Cron    string `json:"cron"`
}

// TelemetryConfig holds tracing parameters
type TelemetryConfig struct {
	Enabled     bool    `json:"enabled"`
	Endpoint    string  `json:"endpoint"`
	ServiceName string  `json:"service_name"`
	SampleRate  float64 `json:"sample_rate"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvironmentOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration built from defaults and environment
// variables alone, for running without a config file.
func Default() (*Config, error) {
	var config Config
	config.applyEnvironmentOverrides()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// applyEnvironmentOverrides applies environment variable overrides
func (c *Config) applyEnvironmentOverrides() {
	// Token and passwords may arrive as Docker secret files.
	c.GitHub.Token = secrets.ReadSecretOrDefault("GITHUB_TOKEN", c.GitHub.Token)
	if owner := os.Getenv("GITHUB_OWNER"); owner != "" {
		c.GitHub.Owner = owner
	}

	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		c.Database.Host = host
		c.Database.Enabled = true
	}
	if port := os.Getenv("POSTGRES_PORT"); port != "" {
		if p, err := parseInt(port); err == nil {
			c.Database.Port = p
		}
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		c.Database.User = user
	}
	c.Database.Password = secrets.ReadSecretOrDefault("POSTGRES_PASSWORD", c.Database.Password)
	if dbname := os.Getenv("POSTGRES_DB"); dbname != "" {
		c.Database.Database = dbname
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
		c.Redis.Enabled = true
	}
	c.Redis.Password = secrets.ReadSecretOrDefault("REDIS_PASSWORD", c.Redis.Password)

	if urls := os.Getenv("ELASTICSEARCH_URL"); urls != "" {
		c.Elasticsearch.Addresses = parseCommaSeparated(urls)
		c.Elasticsearch.Enabled = true
	}

	if path := os.Getenv("CHECKPOINT_PATH"); path != "" {
		c.Scan.CheckpointPath = path
	}
	if addr := os.Getenv("API_ADDR"); addr != "" {
		c.API.Addr = addr
	}
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		c.Telemetry.Endpoint = endpoint
	}
}

// Validate validates the configuration and fills in defaults
func (c *Config) Validate() error {
	if c.GitHub.MaxRequestsPerSecond < 0 {
		return fmt.Errorf("max_requests_per_second must be >= 0")
	}
	if c.GitHub.MaxRequestsPerSecond == 0 {
		c.GitHub.MaxRequestsPerSecond = 5
	}
	if c.GitHub.PerPage == 0 {
		c.GitHub.PerPage = 100
	}

	if c.Scan.BatchSize < 0 {
		return fmt.Errorf("batch_size must be >= 0")
	}
	if c.Scan.BatchSize == 0 {
		c.Scan.BatchSize = 20
	}
	if c.Scan.Workers == 0 {
		c.Scan.Workers = 1
	}
	if c.Scan.CheckpointPath == "" {
		c.Scan.CheckpointPath = "analysis_checkpoint.json"
	}
	if c.Scan.RateThreshold == 0 {
		c.Scan.RateThreshold = 100
	}
	if c.Scan.MaxRateWaitMinutes == 0 {
		c.Scan.MaxRateWaitMinutes = 60
	}
	if c.Scan.MaxFileSizeBytes == 0 {
		c.Scan.MaxFileSizeBytes = 1024 * 1024 // 1MB
	}
	if c.Scan.OutputPath == "" {
		c.Scan.OutputPath = "repo_statistics.json"
	}

	if c.Thresholds.LowTestRatio < 0 || c.Thresholds.LowTestRatio >= 1 {
		if c.Thresholds.LowTestRatio != 0 {
			return fmt.Errorf("low_test_ratio must be in [0, 1)")
		}
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			c.Database.Host = "localhost"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 5432
		}
		if c.Database.MaxConnections == 0 {
			c.Database.MaxConnections = 10
		}
		if c.Database.ConnectionTimeout == 0 {
			c.Database.ConnectionTimeout = 10
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}

	if c.Elasticsearch.Enabled {
		if len(c.Elasticsearch.Addresses) == 0 {
			c.Elasticsearch.Addresses = []string{"http://localhost:9200"}
		}
		if c.Elasticsearch.Index == "" {
			c.Elasticsearch.Index = "repo-statistics"
		}
	}

	if c.API.Enabled && c.API.Addr == "" {
		c.API.Addr = ":8080"
	}

	if c.Scheduler.Enabled && c.Scheduler.Cron == "" {
		c.Scheduler.Cron = "0 3 * * *"
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.ServiceName == "" {
			c.Telemetry.ServiceName = "repogauge"
		}
		if c.Telemetry.SampleRate == 0 {
			c.Telemetry.SampleRate = 0.1
		}
	}

	return nil
}

// MaxRateWait returns the capped rate limit wait as a duration
func (c *Config) MaxRateWait() time.Duration {
	return time.Duration(c.Scan.MaxRateWaitMinutes) * time.Minute
}

// GetDatabaseURL returns the PostgreSQL connection string
func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions
func parseCommaSeparated(s string) []string {
	var result []string
	for _, item := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func parseInt(s string) (int, error) {
	var i int
	_, err := fmt.Sscanf(s, "%d", &i)
	return i, err
}
