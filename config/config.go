package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Presentation modes of the published table.
const (
	ModeAnalytics = "analytics"
	ModeOIDelta   = "oi_delta"
)

// Source kinds.
const (
	SourceNiftyTrader = "niftytrader"
	SourceKite        = "kite"
)

// Storage backends.
const (
	BackendSheets = "sheets"
	BackendCSV    = "csv"
	BackendS3     = "s3"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	Chainflow   ChainflowConfig   `yaml:"chainflow"`
	Mode        string            `yaml:"mode"`
	Symbols     []string          `yaml:"symbols"`
	Expiry      string            `yaml:"expiry"`
	Schedule    string            `yaml:"schedule"`
	Tables      TablesConfig      `yaml:"tables"`
	Source      SourceConfig      `yaml:"source"`
	Reader      ReaderConfig      `yaml:"reader"`
	Writer      WriterConfig      `yaml:"writer"`
	Storage     StorageConfig     `yaml:"storage"`
	MarketHours MarketHoursConfig `yaml:"market_hours"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Events      EventsConfig      `yaml:"events"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ChainflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// TablesConfig controls how table names are derived from symbols.
type TablesConfig struct {
	Prefix string `yaml:"prefix"`
	// SpotCell is the A1 reference read from the companion spot table.
	SpotCell string `yaml:"spot_cell"`
	// Expiries maps expiry dates to explicit table names. Used by the
	// oi_delta mode where one underlying is published per expiry.
	Expiries []ExpiryTable `yaml:"expiries"`
}

type ExpiryTable struct {
	Expiry string `yaml:"expiry"`
	Table  string `yaml:"table"`
}

type SourceConfig struct {
	Kind        string            `yaml:"kind"`
	NiftyTrader NiftyTraderConfig `yaml:"niftytrader"`
	Kite        KiteConfig        `yaml:"kite"`
}

type NiftyTraderConfig struct {
	BaseURL  string `yaml:"base_url"`
	Exchange string `yaml:"exchange"`
}

type KiteConfig struct {
	APIKey      string `yaml:"api_key"`
	AccessToken string `yaml:"access_token"`
	Exchange    string `yaml:"exchange"`
}

type ReaderConfig struct {
	MaxWorkers   int           `yaml:"max_workers"`
	Timeout      time.Duration `yaml:"timeout"`
	RequestDelay time.Duration `yaml:"request_delay"`
	Retry        RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	// MaxAttempts is the number of retries after the first request.
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

type WriterConfig struct {
	Summary bool `yaml:"summary"`
}

type StorageConfig struct {
	Backend string       `yaml:"backend"`
	Sheets  SheetsConfig `yaml:"sheets"`
	CSV     CSVConfig    `yaml:"csv"`
	S3      S3Config     `yaml:"s3"`
	Redis   RedisConfig  `yaml:"redis"`
}

type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id"`
	CredentialsPath string `yaml:"credentials_path"`
	DefaultRows     int64  `yaml:"default_rows"`
	DefaultCols     int64  `yaml:"default_cols"`
}

type CSVConfig struct {
	Dir string `yaml:"dir"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Compression     string `yaml:"compression"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type MarketHoursConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Timezone string `yaml:"timezone"`
	Open     string `yaml:"open"`
	Close    string `yaml:"close"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

// DashboardConfig controls the status server exposing /metrics, /status and
// recent metric events.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	History int    `yaml:"history"`
}

type EventsConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig enables one event per published table.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// envOverrides mirrors the variables the scheduled workflow exports.
type envOverrides struct {
	SheetID               string   `envconfig:"SHEET_ID"`
	GoogleCredentialsPath string   `envconfig:"GOOGLE_CREDENTIALS_PATH"`
	ExpiryDate            string   `envconfig:"EXPIRY_DATE"`
	Symbols               []string `envconfig:"SYMBOLS"`
	RequestTimeoutS       *float64 `envconfig:"REQUEST_TIMEOUT_S"`
	MaxRetries            *int     `envconfig:"MAX_RETRIES"`
	BackoffFactor         *float64 `envconfig:"BACKOFF_FACTOR"`
	RequestDelayS         *float64 `envconfig:"REQUEST_DELAY_S"`
	APIKey                string   `envconfig:"API_KEY"`
	AccessToken           string   `envconfig:"ACCESS_TOKEN"`
	AWSAccessKeyID        string   `envconfig:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey    string   `envconfig:"AWS_SECRET_ACCESS_KEY"`
	AWSRegion             string   `envconfig:"AWS_REGION"`
	S3Bucket              string   `envconfig:"S3_BUCKET"`
	RedisAddr             string   `envconfig:"REDIS_ADDR"`
	KafkaBrokers          []string `envconfig:"KAFKA_BROKERS"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := applyEnv(&config); err != nil {
		return nil, fmt.Errorf("failed to read environment overrides: %w", err)
	}

	config.Symbols = normalizeSymbols(config.Symbols)
	config.Mode = strings.ToLower(strings.TrimSpace(config.Mode))
	config.Storage.Backend = strings.ToLower(strings.TrimSpace(config.Storage.Backend))
	config.Source.Kind = strings.ToLower(strings.TrimSpace(config.Source.Kind))
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func defaultConfig() Config {
	return Config{
		Mode: ModeAnalytics,
		Tables: TablesConfig{
			Prefix:   "Option_",
			SpotCell: "A1",
		},
		Source: SourceConfig{
			Kind: SourceNiftyTrader,
			NiftyTrader: NiftyTraderConfig{
				BaseURL:  "https://webapi.niftytrader.in",
				Exchange: "nse",
			},
			Kite: KiteConfig{Exchange: "BFO"},
		},
		Reader: ReaderConfig{
			MaxWorkers: 1,
			Timeout:    15 * time.Second,
			Retry: RetryConfig{
				MaxAttempts:       3,
				BaseDelay:         500 * time.Millisecond,
				MaxDelay:          10 * time.Second,
				BackoffMultiplier: 2,
			},
		},
		Writer: WriterConfig{Summary: true},
		Storage: StorageConfig{
			Backend: BackendSheets,
			Sheets: SheetsConfig{
				CredentialsPath: "service_account.json",
				DefaultRows:     100,
				DefaultCols:     20,
			},
			CSV:   CSVConfig{Dir: "tables"},
			S3:    S3Config{Prefix: "tables", Compression: "snappy"},
			Redis: RedisConfig{Addr: "localhost:6379", KeyPrefix: "chainflow:table:"},
		},
		MarketHours: MarketHoursConfig{
			Enabled:  true,
			Timezone: "Asia/Kolkata",
			Open:     "08:40",
			Close:    "15:30",
		},
		Metrics: MetricsConfig{
			CloudWatch: CloudWatchConfig{Namespace: "Chainflow"},
		},
		Dashboard: DashboardConfig{Address: ":8080", History: 50},
		Events: EventsConfig{
			Kafka: KafkaConfig{Topic: "chainflow.tables"},
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return err
	}

	if v := strings.TrimSpace(env.SheetID); v != "" {
		cfg.Storage.Sheets.SpreadsheetID = v
	}
	if v := strings.TrimSpace(env.GoogleCredentialsPath); v != "" {
		cfg.Storage.Sheets.CredentialsPath = v
	}
	if v := strings.TrimSpace(env.ExpiryDate); v != "" {
		cfg.Expiry = v
	}
	if syms := normalizeSymbols(env.Symbols); len(syms) > 0 {
		cfg.Symbols = syms
	}
	if env.RequestTimeoutS != nil {
		cfg.Reader.Timeout = seconds(*env.RequestTimeoutS)
	}
	if env.MaxRetries != nil {
		cfg.Reader.Retry.MaxAttempts = *env.MaxRetries
	}
	if env.BackoffFactor != nil {
		cfg.Reader.Retry.BaseDelay = seconds(*env.BackoffFactor)
	}
	if env.RequestDelayS != nil {
		cfg.Reader.RequestDelay = seconds(*env.RequestDelayS)
	}
	if v := strings.TrimSpace(env.APIKey); v != "" {
		cfg.Source.Kite.APIKey = v
	}
	if v := strings.TrimSpace(env.AccessToken); v != "" {
		cfg.Source.Kite.AccessToken = v
	}
	if v := strings.TrimSpace(env.AWSAccessKeyID); v != "" {
		cfg.Storage.S3.AccessKeyID = v
	}
	if v := strings.TrimSpace(env.AWSSecretAccessKey); v != "" {
		cfg.Storage.S3.SecretAccessKey = v
	}
	if v := strings.TrimSpace(env.AWSRegion); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := strings.TrimSpace(env.S3Bucket); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := strings.TrimSpace(env.RedisAddr); v != "" {
		cfg.Storage.Redis.Addr = v
	}
	if len(env.KafkaBrokers) > 0 {
		cfg.Events.Kafka.Brokers = env.KafkaBrokers
	}
	return nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// normalizeSymbols trims, lower-cases and de-duplicates while keeping order.
func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

var expiryRegexp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func validateExpiry(expiry string) error {
	if !expiryRegexp.MatchString(expiry) {
		return fmt.Errorf("expiry '%s' must be formatted as YYYY-MM-DD", expiry)
	}
	if _, err := time.Parse("2006-01-02", expiry); err != nil {
		return fmt.Errorf("expiry '%s' is not a valid date", expiry)
	}
	return nil
}

func validateConfig(cfg *Config) error {
	if cfg.Chainflow.Name == "" {
		return fmt.Errorf("chainflow.name is required")
	}

	if cfg.Chainflow.Version == "" {
		return fmt.Errorf("chainflow.version is required")
	}

	switch cfg.Mode {
	case ModeAnalytics, ModeOIDelta:
	default:
		return fmt.Errorf("mode '%s' is invalid", cfg.Mode)
	}

	if len(cfg.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}

	if err := validateExpiry(cfg.Expiry); err != nil {
		return err
	}
	tables := make(map[string]struct{}, len(cfg.Tables.Expiries))
	for i, m := range cfg.Tables.Expiries {
		if err := validateExpiry(m.Expiry); err != nil {
			return fmt.Errorf("tables.expiries[%d]: %w", i, err)
		}
		if m.Table == "" {
			return fmt.Errorf("tables.expiries[%d].table is required", i)
		}
		if _, dup := tables[m.Table]; dup {
			return fmt.Errorf("tables.expiries[%d]: table '%s' is mapped twice", i, m.Table)
		}
		tables[m.Table] = struct{}{}
	}

	if cfg.Reader.MaxWorkers <= 0 {
		return fmt.Errorf("reader.max_workers must be greater than 0")
	}
	if cfg.Reader.Timeout <= 0 {
		return fmt.Errorf("reader.timeout must be greater than 0")
	}
	if cfg.Reader.Retry.MaxAttempts < 0 {
		return fmt.Errorf("reader.retry.max_attempts must not be negative")
	}
	if cfg.Reader.RequestDelay < 0 {
		return fmt.Errorf("reader.request_delay must not be negative")
	}

	switch cfg.Source.Kind {
	case SourceNiftyTrader:
		if cfg.Source.NiftyTrader.BaseURL == "" {
			return fmt.Errorf("source.niftytrader.base_url is required")
		}
	case SourceKite:
		if cfg.Source.Kite.APIKey == "" || cfg.Source.Kite.AccessToken == "" {
			return fmt.Errorf("source.kite.api_key and source.kite.access_token are required for the kite source")
		}
	default:
		return fmt.Errorf("source.kind '%s' is invalid", cfg.Source.Kind)
	}

	switch cfg.Storage.Backend {
	case BackendSheets:
		if cfg.Storage.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("storage.sheets.spreadsheet_id is required when the sheets backend is used")
		}
		if cfg.Storage.Sheets.CredentialsPath == "" {
			return fmt.Errorf("storage.sheets.credentials_path is required when the sheets backend is used")
		}
	case BackendCSV:
		if cfg.Storage.CSV.Dir == "" {
			return fmt.Errorf("storage.csv.dir is required when the csv backend is used")
		}
	case BackendS3:
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when the s3 backend is used")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when the s3 backend is used")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	case BackendRedis:
		if cfg.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required when the redis backend is used")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage.backend '%s' is invalid", cfg.Storage.Backend)
	}

	if cfg.Events.Kafka.Enabled {
		if len(cfg.Events.Kafka.Brokers) == 0 {
			return fmt.Errorf("events.kafka.brokers is required when kafka events are enabled")
		}
		if cfg.Events.Kafka.Topic == "" {
			return fmt.Errorf("events.kafka.topic is required when kafka events are enabled")
		}
	}

	if cfg.Dashboard.Enabled && cfg.Dashboard.History <= 0 {
		return fmt.Errorf("dashboard.history must be greater than 0")
	}

	if cfg.MarketHours.Enabled {
		if _, err := time.LoadLocation(cfg.MarketHours.Timezone); err != nil {
			return fmt.Errorf("market_hours.timezone '%s' is invalid: %w", cfg.MarketHours.Timezone, err)
		}
		if _, err := time.Parse("15:04", cfg.MarketHours.Open); err != nil {
			return fmt.Errorf("market_hours.open '%s' must be HH:MM", cfg.MarketHours.Open)
		}
		if _, err := time.Parse("15:04", cfg.MarketHours.Close); err != nil {
			return fmt.Errorf("market_hours.close '%s' must be HH:MM", cfg.MarketHours.Close)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
