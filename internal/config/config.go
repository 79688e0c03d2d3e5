package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Run            RunConfig            `yaml:"run" mapstructure:"run"`
	Fetch          FetchConfig          `yaml:"fetch" mapstructure:"fetch"`
	Render         RenderConfig         `yaml:"render" mapstructure:"render"`
	Score          ScoreConfig          `yaml:"score" mapstructure:"score"`
	Recommendation RecommendationConfig `yaml:"recommendation" mapstructure:"recommendation"`
	Sources        SourcesConfig        `yaml:"sources" mapstructure:"sources"`
	Cache          CacheConfig          `yaml:"cache" mapstructure:"cache"`
	Server         ServerConfig         `yaml:"server" mapstructure:"server"`
	Monitoring     MonitoringConfig     `yaml:"monitoring" mapstructure:"monitoring"`
	Report         ReportConfig         `yaml:"report" mapstructure:"report"`
	Log            LogConfig            `yaml:"log" mapstructure:"log"`
}

// RunConfig configures the run coordinator and output.
type RunConfig struct {
	Workers           int      `yaml:"workers" mapstructure:"workers"`
	SourceTimeoutSecs int      `yaml:"source_timeout_secs" mapstructure:"source_timeout_secs"`
	OutputDir         string   `yaml:"output_dir" mapstructure:"output_dir"`
	Formats           []string `yaml:"formats" mapstructure:"formats"`
}

// FetchConfig configures the fetch client.
type FetchConfig struct {
	MaxRetries       int           `yaml:"max_retries" mapstructure:"max_retries"`
	InitialBackoffMS int           `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int           `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	JitterFraction   float64       `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	MinDelayMS       int           `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	MaxDelayMS       int           `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	TimeoutSecs      int           `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	HostIntervalMS   int           `yaml:"host_interval_ms" mapstructure:"host_interval_ms"`
	UserAgents       []string      `yaml:"user_agents" mapstructure:"user_agents"`
	Block            BlockConfig   `yaml:"block" mapstructure:"block"`
	Circuit          CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
}

// BlockConfig tunes the block detector. The markers and size threshold are
// heuristics and expected to change per deployment.
type BlockConfig struct {
	Markers         []string `yaml:"markers" mapstructure:"markers"`
	MinBodyBytes    int      `yaml:"min_body_bytes" mapstructure:"min_body_bytes"`
	MarkerScanBytes int      `yaml:"marker_scan_bytes" mapstructure:"marker_scan_bytes"`
	StatusCodes     []int    `yaml:"status_codes" mapstructure:"status_codes"`
}

// CircuitConfig configures the per-host circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// RenderConfig configures the headless browser used for RENDERED sources.
type RenderConfig struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	MaxTabs     int    `yaml:"max_tabs" mapstructure:"max_tabs"`
	SettleMS    int    `yaml:"settle_ms" mapstructure:"settle_ms"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ExecPath    string `yaml:"exec_path" mapstructure:"exec_path"`
}

// ScoreConfig holds confidence scoring weights.
type ScoreConfig struct {
	Symbol         float64          `yaml:"symbol" mapstructure:"symbol"`
	Price          float64          `yaml:"price" mapstructure:"price"`
	Recommendation float64          `yaml:"recommendation" mapstructure:"recommendation"`
	URL            float64          `yaml:"url" mapstructure:"url"`
	Growth         float64          `yaml:"growth" mapstructure:"growth"`
	NoPriceCeiling float64          `yaml:"no_price_ceiling" mapstructure:"no_price_ceiling"`
	GrowthBand     GrowthBandConfig `yaml:"growth_band" mapstructure:"growth_band"`
}

// GrowthBandConfig is the target growth range that earns the growth bonus.
type GrowthBandConfig struct {
	Enabled bool    `yaml:"enabled" mapstructure:"enabled"`
	Min     float64 `yaml:"min" mapstructure:"min"`
	Max     float64 `yaml:"max" mapstructure:"max"`
}

// RecommendationConfig maps recommendation types (buy, sell, hold) to the
// phrases that imply them.
type RecommendationConfig struct {
	Keywords map[string][]string `yaml:"keywords" mapstructure:"keywords"`
}

// SourcesConfig selects the source catalog.
type SourcesConfig struct {
	Catalog string   `yaml:"catalog" mapstructure:"catalog"`
	Enabled []string `yaml:"enabled" mapstructure:"enabled"`
}

// CacheConfig configures the fetched-page cache. An empty driver disables it.
type CacheConfig struct {
	Driver     string `yaml:"driver" mapstructure:"driver"`
	DSN        string `yaml:"dsn" mapstructure:"dsn"`
	TTLMinutes int    `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures post-run alerts. An empty webhook URL only
// logs them.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
}

// ReportConfig tunes the written reports. MinConfidence selects the quality
// leads list; it never filters the run document.
type ReportConfig struct {
	MinConfidence float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	PerSource     bool    `yaml:"per_source" mapstructure:"per_source"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultUserAgents is the identity pool used when none is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; SM-S918B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
}

// DefaultBlockMarkers are lowercase phrases that indicate an anti-bot page.
var DefaultBlockMarkers = []string{
	"captcha",
	"are you a robot",
	"not a robot",
	"verify you are human",
	"checking your browser",
	"cf-browser-verification",
	"access denied",
	"unusual traffic",
}

// DefaultRecommendationKeywords is the phrase table for recommendation types.
var DefaultRecommendationKeywords = map[string][]string{
	"buy":  {"buy", "strong buy", "bullish", "accumulate", "outperform"},
	"sell": {"sell", "strong sell", "bearish", "reduce", "underperform"},
	"hold": {"hold", "neutral", "market perform", "book profit"},
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STOCKLEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("run.workers", 4)
	v.SetDefault("run.source_timeout_secs", 90)
	v.SetDefault("run.output_dir", "output")
	v.SetDefault("run.formats", []string{"json", "xlsx", "md"})
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.initial_backoff_ms", 500)
	v.SetDefault("fetch.max_backoff_ms", 10000)
	v.SetDefault("fetch.jitter_fraction", 0.25)
	v.SetDefault("fetch.min_delay_ms", 1000)
	v.SetDefault("fetch.max_delay_ms", 3000)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.host_interval_ms", 2000)
	v.SetDefault("fetch.user_agents", DefaultUserAgents)
	v.SetDefault("fetch.block.markers", DefaultBlockMarkers)
	v.SetDefault("fetch.block.min_body_bytes", 500)
	v.SetDefault("fetch.block.marker_scan_bytes", 10000)
	v.SetDefault("fetch.block.status_codes", []int{403, 429})
	v.SetDefault("fetch.circuit.failure_threshold", 5)
	v.SetDefault("fetch.circuit.reset_timeout_secs", 60)
	v.SetDefault("render.enabled", true)
	v.SetDefault("render.max_tabs", 2)
	v.SetDefault("render.settle_ms", 2000)
	v.SetDefault("render.timeout_secs", 45)
	v.SetDefault("score.symbol", 0.1)
	v.SetDefault("score.price", 0.2)
	v.SetDefault("score.recommendation", 0.2)
	v.SetDefault("score.url", 0.1)
	v.SetDefault("score.growth", 0.2)
	v.SetDefault("score.no_price_ceiling", 0.3)
	v.SetDefault("score.growth_band.enabled", true)
	v.SetDefault("score.growth_band.min", 7.0)
	v.SetDefault("score.growth_band.max", 15.0)
	v.SetDefault("recommendation.keywords", DefaultRecommendationKeywords)
	v.SetDefault("cache.ttl_minutes", 30)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("report.min_confidence", 0.7)
	v.SetDefault("report.per_source", false)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings required by the given mode ("run", "serve"
// or "cache") and reports every problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "cache":
		if c.Cache.Driver == "" {
			errs = append(errs, "cache.driver is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Run.Workers < 1 {
		errs = append(errs, "run.workers must be >= 1")
	}
	if c.Run.SourceTimeoutSecs <= 0 {
		errs = append(errs, "run.source_timeout_secs must be > 0")
	}
	if c.Fetch.MaxRetries < 0 {
		errs = append(errs, "fetch.max_retries must be >= 0")
	}
	if c.Fetch.MinDelayMS < 0 || c.Fetch.MinDelayMS > c.Fetch.MaxDelayMS {
		errs = append(errs, "fetch.min_delay_ms must be between 0 and fetch.max_delay_ms")
	}
	if len(c.Fetch.UserAgents) == 0 {
		errs = append(errs, "fetch.user_agents must not be empty")
	}
	if c.Score.Symbol < 0 || c.Score.Price < 0 || c.Score.Recommendation < 0 || c.Score.URL < 0 || c.Score.Growth < 0 {
		errs = append(errs, "score weights must be >= 0")
	}
	if c.Score.NoPriceCeiling < 0 || c.Score.NoPriceCeiling > 1 {
		errs = append(errs, "score.no_price_ceiling must be between 0 and 1")
	}
	if c.Score.GrowthBand.Enabled && c.Score.GrowthBand.Min > c.Score.GrowthBand.Max {
		errs = append(errs, "score.growth_band.min must be <= score.growth_band.max")
	}
	for k := range c.Recommendation.Keywords {
		switch strings.ToLower(k) {
		case "buy", "sell", "hold":
		default:
			errs = append(errs, "recommendation.keywords: unknown type "+k)
		}
	}
	if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
	}
	if c.Report.MinConfidence < 0 || c.Report.MinConfidence > 1 {
		errs = append(errs, "report.min_confidence must be between 0 and 1")
	}
	switch c.Cache.Driver {
	case "", "sqlite", "postgres":
	default:
		errs = append(errs, "cache.driver must be sqlite, postgres or empty")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
