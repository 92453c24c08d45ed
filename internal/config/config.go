package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data    DataConfig    `yaml:"data" mapstructure:"data"`
	Sources SourcesConfig `yaml:"sources" mapstructure:"sources"`
	Build   BuildConfig   `yaml:"build" mapstructure:"build"`
	PDOK    PDOKConfig    `yaml:"pdok" mapstructure:"pdok"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the flat files produced by the build and read at lookup time.
type DataConfig struct {
	Dir          string `yaml:"dir" mapstructure:"dir"`
	ProfilesFile string `yaml:"profiles_file" mapstructure:"profiles_file"`
	MapAreasFile string `yaml:"mapareas_file" mapstructure:"mapareas_file"`
}

// ProfilesPath returns the full path of the combined profile table.
func (d DataConfig) ProfilesPath() string {
	return joinPath(d.Dir, d.ProfilesFile)
}

// MapAreasPath returns the full path of the map-area index.
func (d DataConfig) MapAreasPath() string {
	return joinPath(d.Dir, d.MapAreasFile)
}

// SourcesConfig lists the reference datasets. Each source is a local path or
// an http(s):// or ftp:// URL.
type SourcesConfig struct {
	TempDir        string `yaml:"temp_dir" mapstructure:"temp_dir"`
	SoilMap        string `yaml:"soil_map" mapstructure:"soil_map"`
	Bofek          string `yaml:"bofek" mapstructure:"bofek"`
	BofekField     string `yaml:"bofek_field" mapstructure:"bofek_field"`
	BofekNames     string `yaml:"bofek_names" mapstructure:"bofek_names"`
	Staring        string `yaml:"staring" mapstructure:"staring"`
	StaringParams  string `yaml:"staring_params" mapstructure:"staring_params"`
	StaringNames   string `yaml:"staring_names" mapstructure:"staring_names"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries     int    `yaml:"max_retries" mapstructure:"max_retries"`
	FTPTimeoutSecs int    `yaml:"ftp_timeout_secs" mapstructure:"ftp_timeout_secs"`
}

// BuildConfig tunes the spatial join.
type BuildConfig struct {
	SampleGrid    int  `yaml:"sample_grid" mapstructure:"sample_grid"`
	MaxCandidates int  `yaml:"max_candidates" mapstructure:"max_candidates"`
	Strict        bool `yaml:"strict" mapstructure:"strict"`
	WithGeometry  bool `yaml:"with_geometry" mapstructure:"with_geometry"`
}

// PDOKConfig configures the BRO soil map WMS used for online location lookups.
type PDOKConfig struct {
	WMSURL          string  `yaml:"wms_url" mapstructure:"wms_url"`
	CRS             string  `yaml:"crs" mapstructure:"crs"`
	RateLimit       float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	CacheTTLMinutes int     `yaml:"cache_ttl_minutes" mapstructure:"cache_ttl_minutes"`
	MaxAttempts     int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BreakerFailures int     `yaml:"breaker_failures" mapstructure:"breaker_failures"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DUTCHSOILS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.profiles_file", "soilprofiles.csv")
	v.SetDefault("data.mapareas_file", "mapareas.csv")
	v.SetDefault("sources.temp_dir", "/tmp/dutchsoils")
	v.SetDefault("sources.soil_map", "https://service.pdok.nl/bzk/bro-bodemkaart/atom/downloads/BRO_DownloadBodemkaart.gpkg")
	v.SetDefault("sources.bofek", "BOFEK2020_GIS.zip")
	v.SetDefault("sources.bofek_field", "BOFEK2020")
	v.SetDefault("sources.bofek_names", "BOFEK2020_clusters.xlsx")
	v.SetDefault("sources.staring", "Staringreeks2018.zip")
	v.SetDefault("sources.staring_params", "Staringreeks2018.csv")
	v.SetDefault("sources.staring_names", "StaringreeksNamen2018.csv")
	v.SetDefault("sources.user_agent", "dutchsoils/1.0")
	v.SetDefault("sources.timeout_secs", 600)
	v.SetDefault("sources.max_retries", 3)
	v.SetDefault("sources.ftp_timeout_secs", 30)
	v.SetDefault("build.sample_grid", 8)
	v.SetDefault("build.max_candidates", 16)
	v.SetDefault("build.strict", false)
	v.SetDefault("build.with_geometry", true)
	v.SetDefault("pdok.wms_url", "https://service.pdok.nl/bzk/bro-bodemkaart/wms/v1_0")
	v.SetDefault("pdok.crs", "EPSG:28992")
	v.SetDefault("pdok.rate_limit", 5)
	v.SetDefault("pdok.timeout_secs", 30)
	v.SetDefault("pdok.cache_ttl_minutes", 60)
	v.SetDefault("pdok.max_attempts", 3)
	v.SetDefault("pdok.breaker_failures", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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

// Validate checks the settings a command depends on. Mode is the command name
// ("build", "lookup" or "online").
func (c *Config) Validate(mode string) error {
	var missing []string
	require := func(val, name string) {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, fmt.Sprintf("%s is required", name))
		}
	}

	require(c.Data.Dir, "data.dir")
	require(c.Data.ProfilesFile, "data.profiles_file")

	switch mode {
	case "build":
		require(c.Sources.SoilMap, "sources.soil_map")
		require(c.Sources.Bofek, "sources.bofek")
		require(c.Sources.BofekField, "sources.bofek_field")
		require(c.Sources.BofekNames, "sources.bofek_names")
		require(c.Sources.Staring, "sources.staring")
		require(c.Sources.TempDir, "sources.temp_dir")
		if c.Build.SampleGrid < 1 {
			missing = append(missing, "build.sample_grid must be at least 1")
		}
		if c.Build.MaxCandidates < 1 {
			missing = append(missing, "build.max_candidates must be at least 1")
		}
	case "lookup":
	case "online":
		require(c.PDOK.WMSURL, "pdok.wms_url")
		require(c.PDOK.CRS, "pdok.crs")
		if c.PDOK.RateLimit <= 0 {
			missing = append(missing, "pdok.rate_limit must be positive")
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
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

func joinPath(dir, file string) string {
	if dir == "" || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(dir, file)
}
