package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/isoreach/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Overpass  OverpassConfig  `yaml:"overpass" mapstructure:"overpass"`
	Stations  StationsConfig  `yaml:"stations" mapstructure:"stations"`
	Isochrone IsochroneConfig `yaml:"isochrone" mapstructure:"isochrone"`
	Cadastre  CadastreConfig  `yaml:"cadastre" mapstructure:"cadastre"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Regions   []RegionConfig  `yaml:"regions" mapstructure:"regions" validate:"required,min=1,unique=Name,dive"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// GeocodeConfig configures the Nominatim region resolver.
type GeocodeConfig struct {
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	UserAgent       string  `yaml:"user_agent" mapstructure:"user_agent" validate:"required"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec" validate:"gt=0"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"min=1"`
	// CountryCodes limits matches to ISO 3166-1 alpha-2 codes. Empty
	// searches worldwide.
	CountryCodes []string `yaml:"country_codes" mapstructure:"country_codes" validate:"dive,len=2"`
}

// OverpassConfig configures the Overpass feature query service.
type OverpassConfig struct {
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"min=1"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec" validate:"gt=0"`
}

// StationsConfig selects where station points come from.
type StationsConfig struct {
	Source         string `yaml:"source" mapstructure:"source" validate:"oneof=overpass pbf"`
	PBFPath        string `yaml:"pbf_path" mapstructure:"pbf_path" validate:"required_if=Source pbf"`
	ExclusionsFile string `yaml:"exclusions_file" mapstructure:"exclusions_file"`
}

// IsochroneConfig configures the routing service and the request pacing.
type IsochroneConfig struct {
	Provider         string `yaml:"provider" mapstructure:"provider" validate:"oneof=openrouteservice mapbox"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	APIKey           string `yaml:"api_key" mapstructure:"api_key"`
	Minutes          int    `yaml:"minutes" mapstructure:"minutes" validate:"min=1,max=60"`
	Mode             string `yaml:"mode" mapstructure:"mode" validate:"oneof=driving"`
	DelayMs          int    `yaml:"delay_ms" mapstructure:"delay_ms" validate:"min=0"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"min=1"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts" validate:"min=1"`
	BreakerThreshold int    `yaml:"breaker_threshold" mapstructure:"breaker_threshold" validate:"min=0"`
	BreakerResetSecs int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs" validate:"min=0"`
	CacheTTLHours    int    `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours" validate:"min=0"`
}

// CadastreConfig configures building footprint loading.
type CadastreConfig struct {
	TempDir             string  `yaml:"temp_dir" mapstructure:"temp_dir"`
	SimplifyToleranceM  float64 `yaml:"simplify_tolerance_m" mapstructure:"simplify_tolerance_m" validate:"min=0"`
	DownloadTimeoutSecs int     `yaml:"download_timeout_secs" mapstructure:"download_timeout_secs" validate:"min=1"`
}

// PipelineConfig configures region orchestration.
type PipelineConfig struct {
	RegionConcurrency int  `yaml:"region_concurrency" mapstructure:"region_concurrency" validate:"min=1"`
	FailFast          bool `yaml:"fail_fast" mapstructure:"fail_fast"`
	ClassifyWorkers   int  `yaml:"classify_workers" mapstructure:"classify_workers" validate:"min=1"`
}

// StoreConfig configures the result store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres none"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	// Postgres pool tuning.
	MaxConns          int32 `yaml:"max_conns" mapstructure:"max_conns" validate:"min=0"`
	MinConns          int32 `yaml:"min_conns" mapstructure:"min_conns" validate:"min=0"`
	PrepareStatements bool  `yaml:"prepare_statements" mapstructure:"prepare_statements"`
}

// CacheConfig configures the isochrone response cache.
type CacheConfig struct {
	Backend       string `yaml:"backend" mapstructure:"backend" validate:"oneof=store redis none"`
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db" validate:"min=0"`
}

// OutputConfig configures exported artifacts.
type OutputConfig struct {
	Dir            string   `yaml:"dir" mapstructure:"dir" validate:"required"`
	HistogramBinKm float64  `yaml:"histogram_bin_km" mapstructure:"histogram_bin_km" validate:"gt=0"`
	Formats        []string `yaml:"formats" mapstructure:"formats" validate:"dive,oneof=csv xlsx geojson"`
}

// ServerConfig configures the map server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port" validate:"min=1,max=65535"`
}

// RegionConfig describes one region to analyse.
type RegionConfig struct {
	Name             string    `yaml:"name" mapstructure:"name" validate:"required"`
	Query            string    `yaml:"query" mapstructure:"query"`
	Buildings        string    `yaml:"buildings" mapstructure:"buildings" validate:"required"`
	SourceEPSG       int       `yaml:"source_epsg" mapstructure:"source_epsg" validate:"min=0"`
	BBox             []float64 `yaml:"bbox" mapstructure:"bbox" validate:"omitempty,len=4"`
	ExcludedStations []string  `yaml:"excluded_stations" mapstructure:"excluded_stations"`
}

// Model converts the region config into the domain type. A bbox given as
// [min_lon, min_lat, max_lon, max_lat] skips geocoding.
func (r RegionConfig) Model() model.Region {
	reg := model.Region{
		Name:             r.Name,
		Query:            r.Query,
		Buildings:        r.Buildings,
		SourceEPSG:       r.SourceEPSG,
		ExcludedStations: append([]string(nil), r.ExcludedStations...),
	}
	if reg.Query == "" {
		reg.Query = r.Name
	}
	if len(r.BBox) == 4 {
		reg.BBox = &model.BBox{MinLon: r.BBox[0], MinLat: r.BBox[1], MaxLon: r.BBox[2], MaxLat: r.BBox[3]}
	}
	return reg
}

// RegionModels returns the configured regions in config order.
func (c *Config) RegionModels() []model.Region {
	out := make([]model.Region, 0, len(c.Regions))
	for _, r := range c.Regions {
		out = append(out, r.Model())
	}
	return out
}

// Validate checks struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return eris.Wrap(err, "config: validate")
	}
	return nil
}

func defaultRegions() []map[string]any {
	return []map[string]any{
		{
			"name":        "Hovedstaden",
			"query":       "Region Hovedstaden, Danmark",
			"buildings":   "data/hovedstaden/bygninger.shp",
			"source_epsg": 25832,
		},
		{
			"name":        "Sjaelland",
			"query":       "Region Sjælland, Danmark",
			"buildings":   "data/sjaelland/bygninger.shp",
			"source_epsg": 25832,
		},
	}
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ISOREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.user_agent", "isoreach/1.0")
	v.SetDefault("geocode.rate_limit_per_sec", 1.0)
	v.SetDefault("geocode.timeout_secs", 30)
	v.SetDefault("geocode.country_codes", []string{"dk"})
	v.SetDefault("overpass.base_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.timeout_secs", 180)
	v.SetDefault("overpass.rate_limit_per_sec", 0.5)
	v.SetDefault("stations.source", "overpass")
	v.SetDefault("stations.pbf_path", "")
	v.SetDefault("stations.exclusions_file", "")
	v.SetDefault("isochrone.provider", "openrouteservice")
	v.SetDefault("isochrone.base_url", "")
	v.SetDefault("isochrone.api_key", "")
	v.SetDefault("isochrone.minutes", 15)
	v.SetDefault("isochrone.mode", "driving")
	v.SetDefault("isochrone.delay_ms", 1500)
	v.SetDefault("isochrone.timeout_secs", 60)
	v.SetDefault("isochrone.max_attempts", 1)
	v.SetDefault("isochrone.breaker_threshold", 0)
	v.SetDefault("isochrone.breaker_reset_secs", 60)
	v.SetDefault("isochrone.cache_ttl_hours", 24*7)
	v.SetDefault("cadastre.temp_dir", "/tmp/isoreach")
	v.SetDefault("cadastre.simplify_tolerance_m", 1.0)
	v.SetDefault("cadastre.download_timeout_secs", 600)
	v.SetDefault("pipeline.region_concurrency", 1)
	v.SetDefault("pipeline.fail_fast", false)
	v.SetDefault("pipeline.classify_workers", 1)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "isoreach.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("store.prepare_statements", false)
	v.SetDefault("cache.backend", "store")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("output.dir", "out")
	v.SetDefault("output.histogram_bin_km", 0.5)
	v.SetDefault("output.formats", []string{"csv", "xlsx", "geojson"})
	v.SetDefault("server.port", 8080)
	v.SetDefault("regions", defaultRegions())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
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
