package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. SIGNALGATE_KAFKA_BROKERS.
const EnvPrefix = "SIGNALGATE_"

// Config is loaded once at startup and handed to constructors. Nothing mutates it afterwards.
type Config struct {
	Environment   string              `yaml:"environment" env:"ENVIRONMENT" default:"development" validate:"required,oneof=development staging production test"`
	Log           LogConfig           `yaml:"log" envPrefix:"LOG_"`
	Server        ServerConfig        `yaml:"server" envPrefix:"SERVER_"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Cycle         CycleConfig         `yaml:"cycle" envPrefix:"CYCLE_"`
	Fusion        FusionConfig        `yaml:"fusion"`
	Momentum      MomentumConfig      `yaml:"momentum"`
	Quality       QualityConfig       `yaml:"quality"`
	Alerts        AlertsConfig        `yaml:"alerts" envPrefix:"ALERTS_"`
	Ledger        LedgerConfig        `yaml:"ledger" envPrefix:"LEDGER_"`
	Retry         RetryConfig         `yaml:"retry"`
	Cache         CacheConfig         `yaml:"cache" envPrefix:"CACHE_"`
	Redis         RedisConfig         `yaml:"redis" envPrefix:"REDIS_"`
	Postgres      PostgresConfig      `yaml:"postgres" envPrefix:"POSTGRES_"`
	Kafka         KafkaConfig         `yaml:"kafka" envPrefix:"KAFKA_"`
	ClickHouse    ClickHouseConfig    `yaml:"clickhouse" envPrefix:"CLICKHOUSE_"`
	Collaborators CollaboratorsConfig `yaml:"collaborators" envPrefix:"COLLABORATORS_"`
}

type LogConfig struct {
	Level           string        `yaml:"level" env:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Format          string        `yaml:"format" env:"FORMAT" default:"json" validate:"oneof=json console"`
	Output          string        `yaml:"output" default:"stdout"`
	CollectErrors   bool          `yaml:"collect_errors" default:"false"`
	CollectInterval time.Duration `yaml:"collect_interval" default:"30s"`
	CollectMaxKeys  int           `yaml:"collect_max_keys" default:"100"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" env:"PORT" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	CORS            bool          `yaml:"cors" default:"true"`
	CORSOrigins     []string      `yaml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
	SlowRequest     time.Duration `yaml:"slow_request" default:"1s"`
	TriggerRPS      float64       `yaml:"trigger_rps" default:"0.2" validate:"gt=0"`
	TriggerBurst    int           `yaml:"trigger_burst" default:"2" validate:"min=1"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type CycleConfig struct {
	Schedule      string        `yaml:"schedule" env:"SCHEDULE" default:"0 */15 * * * *"`
	Tickers       []string      `yaml:"tickers" env:"TICKERS" envSeparator:","`
	Workers       int           `yaml:"workers" env:"WORKERS" default:"8" validate:"min=1,max=256"`
	TickerTimeout time.Duration `yaml:"ticker_timeout" default:"20s"`
	SinkTimeout   time.Duration `yaml:"sink_timeout" default:"10s"`
	MaxTickers    int           `yaml:"max_tickers" default:"500" validate:"min=1"`
	RunOnStart    bool          `yaml:"run_on_start" default:"false"`
}

// FusionWeights is the single global weight set used for every ticker and alert type.
type FusionWeights struct {
	RSI         int `yaml:"rsi" default:"2" validate:"min=0"`
	MACD        int `yaml:"macd" default:"2" validate:"min=0"`
	MAAlignment int `yaml:"ma_alignment" default:"2" validate:"min=0"`
	SMA200      int `yaml:"sma200" default:"1" validate:"min=0"`
	Bollinger   int `yaml:"bollinger" default:"1" validate:"min=0"`
	ADXDI       int `yaml:"adx_di" default:"2" validate:"min=0"`
	Ichimoku    int `yaml:"ichimoku" default:"2" validate:"min=0"`
	VWAP        int `yaml:"vwap" default:"1" validate:"min=0"`
}

// Sum is the maximum net magnitude a fusion can reach.
func (w FusionWeights) Sum() int {
	return w.RSI + w.MACD + w.MAAlignment + w.SMA200 + w.Bollinger + w.ADXDI + w.Ichimoku + w.VWAP
}

type FusionConfig struct {
	Weights       FusionWeights `yaml:"weights"`
	BuyThreshold  int           `yaml:"buy_threshold" default:"3" validate:"min=1"`
	SellThreshold int           `yaml:"sell_threshold" default:"-3" validate:"max=-1"`
	RSIOversold   float64       `yaml:"rsi_oversold" default:"30"`
	RSIOverbought float64       `yaml:"rsi_overbought" default:"70"`
	ADXTrending   float64       `yaml:"adx_trending" default:"25"`
	MaxRationales int           `yaml:"max_rationales" default:"3" validate:"min=1"`
}

type MomentumConfig struct {
	ReturnWeight      float64 `yaml:"return_weight" default:"0.5" validate:"gte=0"`
	PersistenceWeight float64 `yaml:"persistence_weight" default:"0.3" validate:"gte=0"`
	VolumeWeight      float64 `yaml:"volume_weight" default:"0.2" validate:"gte=0"`
	MaxStreak         int     `yaml:"max_streak" default:"5" validate:"min=1"`
	VolumeLookback    int     `yaml:"volume_lookback" default:"20" validate:"min=1"`
	VolumeCap         float64 `yaml:"volume_cap" default:"3" validate:"gt=1"`
	AccelerationRatio float64 `yaml:"acceleration_ratio" default:"1.2" validate:"gt=1"`
	DecelerationRatio float64 `yaml:"deceleration_ratio" default:"0.8" validate:"gt=0,lt=1"`
}

type QualityWeights struct {
	Momentum    float64 `yaml:"momentum" default:"25" validate:"gte=0"`
	Technical   float64 `yaml:"technical" default:"20" validate:"gte=0"`
	RiskReward  float64 `yaml:"risk_reward" default:"20" validate:"gte=0"`
	Backtest    float64 `yaml:"backtest" default:"15" validate:"gte=0"`
	RiskProfile float64 `yaml:"risk_profile" default:"10" validate:"gte=0"`
	Alerts      float64 `yaml:"alerts" default:"10" validate:"gte=0"`
	Sentiment   float64 `yaml:"sentiment" default:"10" validate:"gte=0"`
}

func (w QualityWeights) Sum() float64 {
	return w.Momentum + w.Technical + w.RiskReward + w.Backtest + w.RiskProfile + w.Alerts + w.Sentiment
}

// TierBoundaries are inclusive lower bounds, except Avoid which is an exclusive upper bound.
type TierBoundaries struct {
	StrongBuy float64 `yaml:"strong_buy" default:"60"`
	Buy       float64 `yaml:"buy" default:"35"`
	Hold      float64 `yaml:"hold" default:"0"`
	Sell      float64 `yaml:"sell" default:"-20"`
	Avoid     float64 `yaml:"avoid" default:"-40"`
}

type QualityConfig struct {
	Weights QualityWeights `yaml:"weights"`
	Tiers   TierBoundaries `yaml:"tiers"`
}

// AlertRule says which quality gates apply to an alert type.
type AlertRule struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	RequireMomentum   bool `yaml:"require_momentum" json:"require_momentum"`
	RequireRiskReward bool `yaml:"require_risk_reward" json:"require_risk_reward"`
}

type SentimentVetoConfig struct {
	Enabled   bool    `yaml:"enabled" default:"true"`
	Threshold float64 `yaml:"threshold" default:"60" validate:"gt=0,lte=100"`
}

type AlertsConfig struct {
	DedupWindow          time.Duration        `yaml:"dedup_window" env:"DEDUP_WINDOW" default:"24h" validate:"gt=0"`
	Near52WHighPct       float64              `yaml:"near_52w_high_pct" default:"3" validate:"gt=0"`
	Near52WLowPct        float64              `yaml:"near_52w_low_pct" default:"3" validate:"gt=0"`
	SMA200TestPct        float64              `yaml:"sma200_test_pct" default:"1" validate:"gt=0"`
	VolumeRatio          float64              `yaml:"volume_ratio" default:"2" validate:"gt=0"`
	ExtremeVolumeRatio   float64              `yaml:"extreme_volume_ratio" default:"3" validate:"gt=0"`
	PriceMovePct         float64              `yaml:"price_move_pct" default:"5" validate:"gt=0"`
	GapPct               float64              `yaml:"gap_pct" default:"5" validate:"gt=0"`
	DrawdownWarnPct      float64              `yaml:"drawdown_warn_pct" default:"40" validate:"gt=0"`
	MinMomentum          float64              `yaml:"min_momentum" env:"MIN_MOMENTUM" default:"70" validate:"gte=0,lte=100"`
	MinRiskReward        float64              `yaml:"min_risk_reward" env:"MIN_RISK_REWARD" default:"2" validate:"gte=0"`
	UnboundedRatioPasses bool                 `yaml:"unbounded_ratio_passes" default:"true"`
	SentimentVeto        SentimentVetoConfig  `yaml:"sentiment_veto"`
	Rules                map[string]AlertRule `yaml:"rules"`
}

// Rule returns the rule for an alert type; unknown types are disabled.
func (c AlertsConfig) Rule(alertType string) AlertRule {
	if r, ok := c.Rules[alertType]; ok {
		return r
	}
	return AlertRule{}
}

type LedgerConfig struct {
	Backend     string        `yaml:"backend" env:"BACKEND" default:"redis" validate:"oneof=redis postgres memory"`
	KeyPrefix   string        `yaml:"key_prefix" default:"ledger"`
	Table       string        `yaml:"table" default:"alert_ledger"`
	LockTimeout time.Duration `yaml:"lock_timeout" default:"2s"`
}

type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" default:"4" validate:"min=1,max=10"`
	InitialInterval time.Duration `yaml:"initial_interval" default:"50ms"`
	MaxInterval     time.Duration `yaml:"max_interval" default:"1s"`
	Multiplier      float64       `yaml:"multiplier" default:"2" validate:"gte=1"`
}

type CacheConfig struct {
	Backend       string        `yaml:"backend" env:"BACKEND" default:"redis" validate:"oneof=redis memory"`
	ReadingsTTL   time.Duration `yaml:"readings_ttl" default:"2h"`
	EvaluationTTL time.Duration `yaml:"evaluation_ttl" default:"48h"`
	MemoryMaxSize int           `yaml:"memory_max_size" default:"10000" validate:"min=1"`
	MemoryCleanup time.Duration `yaml:"memory_cleanup" default:"1m" validate:"gt=0"`
}

type RedisConfig struct {
	Host         string        `yaml:"host" env:"HOST" default:"localhost"`
	Port         int           `yaml:"port" env:"PORT" default:"6379"`
	Password     string        `yaml:"password" env:"PASSWORD"`
	DB           int           `yaml:"db" default:"0"`
	PoolSize     int           `yaml:"pool_size" default:"20"`
	MinIdleConns int           `yaml:"min_idle_conns" default:"4"`
	PoolTimeout  time.Duration `yaml:"pool_timeout" default:"5s"`
	Prefix       string        `yaml:"prefix" default:"signalgate"`
}

type PostgresConfig struct {
	DSN             string        `yaml:"dsn" env:"DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" default:"10"`
	MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"5m"`
}

type KafkaTopics struct {
	Readings    string `yaml:"readings" default:"signalgate.readings"`
	Evaluations string `yaml:"evaluations" default:"signalgate.evaluations"`
	Alerts      string `yaml:"alerts" default:"signalgate.alerts"`
	LogSummary  string `yaml:"log_summary" default:"signalgate.ops.log_summary"`
}

type KafkaConfig struct {
	Enabled      bool        `yaml:"enabled" env:"ENABLED" default:"false"`
	Brokers      []string    `yaml:"brokers" env:"BROKERS" envSeparator:","`
	Topics       KafkaTopics `yaml:"topics"`
	RequiredAcks int         `yaml:"required_acks" default:"-1"`
	Compression  string      `yaml:"compression" default:"snappy" validate:"oneof=gzip snappy lz4 zstd"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"3"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async" default:"false"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"signalgate"`
		Workers    int           `yaml:"workers" default:"4"`
		BufferSize int           `yaml:"buffer_size" default:"256"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"signalgate.readings.dlq"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled" env:"ENABLED" default:"false"`
	Host             string        `yaml:"host" env:"HOST" default:"localhost"`
	Port             int           `yaml:"port" env:"PORT" default:"9000"`
	Database         string        `yaml:"database" env:"DATABASE" default:"signalgate"`
	User             string        `yaml:"user" env:"USER" default:"default"`
	Password         string        `yaml:"password" env:"PASSWORD"`
	UseHTTP          bool          `yaml:"use_http" default:"false"`
	AsyncInsert      bool          `yaml:"async_insert" default:"true"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert" default:"true"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
}

type CollaboratorsConfig struct {
	BaseURL  string        `yaml:"base_url" env:"BASE_URL"`
	Timeout  time.Duration `yaml:"timeout" default:"3s"`
	Attempts int           `yaml:"attempts" default:"2" validate:"min=1"`
}

// DefaultAlertRules mirrors which quality gates make sense per condition:
// bullish continuation setups need momentum and a reward profile, bearish
// or informational conditions are not held to momentum.
func DefaultAlertRules() map[string]AlertRule {
	return map[string]AlertRule{
		"BREAKOUT_NEAR_HIGH": {Enabled: true, RequireMomentum: true, RequireRiskReward: true},
		"BOUNCE_NEAR_LOW":    {Enabled: true, RequireRiskReward: true},
		"SMA200_TEST":        {Enabled: true, RequireRiskReward: true},
		"VOLUME_SPIKE":       {Enabled: true, RequireMomentum: true},
		"PRICE_MOVE_UP":      {Enabled: true, RequireMomentum: true},
		"PRICE_MOVE_DOWN":    {Enabled: true},
		"GAP_UP":             {Enabled: true},
		"GAP_DOWN":           {Enabled: true},
		"HIGH_DRAWDOWN_RISK": {Enabled: true},
	}
}

var validate = validator.New()

// Default returns a fully defaulted config without reading any file.
func Default() *Config {
	c := &Config{}
	if err := defaults.Set(c); err != nil {
		// struct tags are static; a failure here is a programming error
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	c.Alerts.Rules = DefaultAlertRules()
	return c
}

// Load reads a YAML file on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	c, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads YAML, then a local .env file if present, then SIGNALGATE_* overrides.
func LoadWithEnv(path string) (*Config, error) {
	c, err := load(path)
	if err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	c.normalize()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes over the defaults. It does not validate.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.normalize()
	return c, nil
}

func (c *Config) normalize() {
	for i, t := range c.Cycle.Tickers {
		c.Cycle.Tickers[i] = strings.ToUpper(strings.TrimSpace(t))
	}
	// keys not already upper case came from the file and win over the defaults
	normalized := make(map[string]AlertRule, len(c.Alerts.Rules))
	for k, v := range c.Alerts.Rules {
		if k == strings.ToUpper(k) {
			normalized[k] = v
		}
	}
	for k, v := range c.Alerts.Rules {
		if k != strings.ToUpper(k) {
			normalized[strings.ToUpper(k)] = v
		}
	}
	c.Alerts.Rules = normalized
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Fusion.Weights.Sum() == 0 {
		return fmt.Errorf("fusion.weights must not all be zero")
	}
	if c.Fusion.RSIOversold >= c.Fusion.RSIOverbought {
		return fmt.Errorf("fusion.rsi_oversold must be below rsi_overbought")
	}
	if c.Quality.Weights.Sum() <= 0 {
		return fmt.Errorf("quality.weights must sum to a positive value")
	}
	t := c.Quality.Tiers
	if !(t.StrongBuy > t.Buy && t.Buy > t.Hold && t.Hold > t.Sell && t.Sell > t.Avoid) {
		return fmt.Errorf("quality.tiers must be strictly descending: strong_buy > buy > hold > sell > avoid")
	}
	if c.Alerts.ExtremeVolumeRatio < c.Alerts.VolumeRatio {
		return fmt.Errorf("alerts.extreme_volume_ratio must be >= volume_ratio")
	}
	if c.Momentum.ReturnWeight+c.Momentum.PersistenceWeight+c.Momentum.VolumeWeight <= 0 {
		return fmt.Errorf("momentum weights must sum to a positive value")
	}
	if c.Ledger.Backend == "postgres" && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when ledger.backend is postgres")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}
