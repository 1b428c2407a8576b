package config

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Incidence sources for the scoring constant I.
const (
	IncidenceConstant   = "constant"
	IncidenceWeeklyMean = "weekly_mean"
)

// Config holds the full application configuration.
type Config struct {
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Sectors   SectorsConfig   `yaml:"sectors" mapstructure:"sectors"`
	Cases     CasesConfig     `yaml:"cases" mapstructure:"cases"`
	Coverage  CoverageConfig  `yaml:"coverage" mapstructure:"coverage"`
	Incidence IncidenceConfig `yaml:"incidence" mapstructure:"incidence"`
	Priority  PriorityConfig  `yaml:"priority" mapstructure:"priority"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// SourcesConfig holds the source handles of a run: local paths or
// file://, http(s):// or ftp:// URIs.
type SourcesConfig struct {
	Sectors    string `yaml:"sectors" mapstructure:"sectors"`
	Cases      string `yaml:"cases" mapstructure:"cases"`
	Coverage   string `yaml:"coverage" mapstructure:"coverage"`
	Population string `yaml:"population" mapstructure:"population"`
}

// TableConfig describes how a CSV or XLSX table is read.
type TableConfig struct {
	// Delimiter is a single character, "tab", or empty to detect ';' or ','.
	Delimiter string `yaml:"delimiter" mapstructure:"delimiter"`
	Charset   string `yaml:"charset" mapstructure:"charset"`
	Sheet     string `yaml:"sheet" mapstructure:"sheet"`
}

// SectorsConfig configures the sector mesh attributes.
type SectorsConfig struct {
	IDField            string      `yaml:"id_field" mapstructure:"id_field"`
	PopulationField    string      `yaml:"population_field" mapstructure:"population_field"`
	IDWidth            int         `yaml:"id_width" mapstructure:"id_width"`
	SRID               int         `yaml:"srid" mapstructure:"srid"`
	PopulationIDColumn string      `yaml:"population_id_column" mapstructure:"population_id_column"`
	PopulationColumn   string      `yaml:"population_column" mapstructure:"population_column"`
	PopulationTable    TableConfig `yaml:"population_table" mapstructure:"population_table"`
}

// CasesConfig configures the SRAG case table.
type CasesConfig struct {
	DateColumn       string      `yaml:"date_column" mapstructure:"date_column"`
	AgeColumn        string      `yaml:"age_column" mapstructure:"age_column"`
	SexColumn        string      `yaml:"sex_column" mapstructure:"sex_column"`
	PregnancyColumn  string      `yaml:"pregnancy_column" mapstructure:"pregnancy_column"`
	RiskFactorColumn string      `yaml:"risk_factor_column" mapstructure:"risk_factor_column"`
	DateFormats      []string    `yaml:"date_formats" mapstructure:"date_formats"`
	Table            TableConfig `yaml:"table" mapstructure:"table"`
}

// CoverageConfig configures the vaccine coverage table.
type CoverageConfig struct {
	Column string      `yaml:"column" mapstructure:"column"`
	Unit   string      `yaml:"unit" mapstructure:"unit"`
	Table  TableConfig `yaml:"table" mapstructure:"table"`
}

// IncidenceConfig configures weekly aggregation.
type IncidenceConfig struct {
	WeekStart string `yaml:"week_start" mapstructure:"week_start"`
	ZeroFill  bool   `yaml:"zero_fill" mapstructure:"zero_fill"`
}

// PriorityConfig holds the scoring constants. MeanIncidence has no default:
// a missing value is a configuration error, never zero.
type PriorityConfig struct {
	MeanIncidence   *float64 `yaml:"mean_incidence" mapstructure:"mean_incidence"`
	IncidenceSource string   `yaml:"incidence_source" mapstructure:"incidence_source"`
}

// FetchConfig configures remote source retrieval.
type FetchConfig struct {
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries    int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	UserAgent     string  `yaml:"user_agent" mapstructure:"user_agent"`
	TempDir       string  `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins     []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RefreshTimeoutSecs int      `yaml:"refresh_timeout_secs" mapstructure:"refresh_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// keys without defaults still need binding so AutomaticEnv reaches them on Unmarshal.
var envOnlyKeys = []string{
	"sources.sectors",
	"sources.cases",
	"sources.coverage",
	"sources.population",
	"priority.mean_incidence",
	"store.database_url",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PRIORITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("sectors.id_field", "CD_SETOR")
	v.SetDefault("sectors.population_field", "D_Pop_Risco")
	v.SetDefault("sectors.id_width", 15)
	v.SetDefault("sectors.srid", 4326)
	v.SetDefault("cases.date_column", "DT_SIN_PRI")
	v.SetDefault("cases.age_column", "NU_IDADE_N")
	v.SetDefault("cases.sex_column", "CS_SEXO")
	v.SetDefault("cases.pregnancy_column", "CS_GESTANT")
	v.SetDefault("cases.risk_factor_column", "FATOR_RISC")
	v.SetDefault("cases.table.charset", "utf-8")
	v.SetDefault("coverage.column", "C_Vacinal")
	v.SetDefault("coverage.unit", "percent")
	v.SetDefault("incidence.week_start", "monday")
	v.SetDefault("incidence.zero_fill", false)
	v.SetDefault("priority.incidence_source", IncidenceConstant)
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.rate_per_second", 5.0)
	v.SetDefault("fetch.user_agent", "sector-priority/1.0")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.refresh_timeout_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a ranking run depends on and reports every
// problem at once.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Sources.Sectors) == "" {
		errs = append(errs, "sources.sectors is required")
	}
	if strings.TrimSpace(c.Sources.Coverage) == "" {
		errs = append(errs, "sources.coverage is required")
	}

	switch c.Priority.IncidenceSource {
	case IncidenceConstant:
		if c.Priority.MeanIncidence == nil {
			errs = append(errs, "priority.mean_incidence is required (set it, or choose incidence_source: weekly_mean)")
		}
	case IncidenceWeeklyMean:
		if strings.TrimSpace(c.Sources.Cases) == "" {
			errs = append(errs, "sources.cases is required when priority.incidence_source is weekly_mean")
		}
	default:
		errs = append(errs, "priority.incidence_source must be constant or weekly_mean")
	}
	if mi := c.Priority.MeanIncidence; mi != nil && (*mi < 0 || math.IsNaN(*mi) || math.IsInf(*mi, 0)) {
		errs = append(errs, "priority.mean_incidence must be a finite number >= 0")
	}

	errs = append(errs, c.validateShape()...)

	if len(errs) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateShape checks the settings every command depends on, without
// requiring the ranking sources or constants.
func (c *Config) ValidateShape() error {
	if errs := c.validateShape(); len(errs) > 0 {
		return eris.Errorf("config: invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateShape() []string {
	var errs []string

	switch strings.ToLower(c.Coverage.Unit) {
	case "percent", "fraction":
	default:
		errs = append(errs, "coverage.unit must be percent or fraction")
	}
	switch strings.ToLower(c.Incidence.WeekStart) {
	case "monday", "sunday":
	default:
		errs = append(errs, "incidence.week_start must be monday or sunday")
	}
	for name, tc := range map[string]TableConfig{
		"cases.table":              c.Cases.Table,
		"coverage.table":           c.Coverage.Table,
		"sectors.population_table": c.Sectors.PopulationTable,
	} {
		if _, err := ParseDelimiter(tc.Delimiter); err != nil {
			errs = append(errs, name+".delimiter "+err.Error())
		}
	}
	if c.Sectors.IDWidth < 0 {
		errs = append(errs, "sectors.id_width must be >= 0")
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "none":
	default:
		errs = append(errs, "store.driver must be sqlite, postgres or none")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required for the postgres driver")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, "log.level "+err.Error())
	}

	// map iteration order is random; keep the message stable
	sort.Strings(errs)
	return errs
}

// ParseDelimiter converts a configured delimiter to a rune. Empty means
// auto-detect and returns 0.
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, eris.Errorf("must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '"' || r == '\n' || r == '\r' {
		return 0, eris.Errorf("cannot be %q", s)
	}
	return r, nil
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
