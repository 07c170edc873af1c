package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/gelap-etl/internal/domain"
)

// Config holds all converter settings, populated from environment variables
// over an optional TOML file.
type Config struct {
	DataDir    string
	OutputPath string

	// Dataset shape. HouseCount and ApplianceCount have no defaults.
	HouseCount     int
	ApplianceCount int
	SiteMeterIndex int // 0 means ApplianceCount+1

	SkipExtract    bool
	SortIndex      bool
	DropDuplicates bool

	SourceTimezone string
	TargetTimezone string

	// Positional columns of appliance CSVs.
	ApplianceTimestampColumn int
	ApplianceValueColumn     int

	MetadataDir string

	LogLevel        string
	LogFormat       string
	MetricsAddr     string
	ShutdownTimeout time.Duration

	// Optional table notifications; disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string
}

// fileSettings mirrors the TOML config file. Every key is optional.
type fileSettings struct {
	DataDir                  *string   `toml:"data_dir"`
	OutputPath               *string   `toml:"output_path"`
	HouseCount               *int      `toml:"house_count"`
	ApplianceCount           *int      `toml:"appliance_count"`
	SiteMeterIndex           *int      `toml:"site_meter_index"`
	SkipExtract              *bool     `toml:"skip_extract"`
	SortIndex                *bool     `toml:"sort_index"`
	DropDuplicates           *bool     `toml:"drop_duplicates"`
	SourceTimezone           *string   `toml:"source_timezone"`
	TargetTimezone           *string   `toml:"target_timezone"`
	ApplianceTimestampColumn *int      `toml:"appliance_timestamp_column"`
	ApplianceValueColumn     *int      `toml:"appliance_value_column"`
	MetadataDir              *string   `toml:"metadata_dir"`
	LogLevel                 *string   `toml:"log_level"`
	LogFormat                *string   `toml:"log_format"`
	MetricsAddr              *string   `toml:"metrics_addr"`
	ShutdownTimeout          *string   `toml:"shutdown_timeout"`
	KafkaBrokers             *[]string `toml:"kafka_brokers"`
	KafkaTopic               *string   `toml:"kafka_topic"`
}

func builtinDefaults() map[string]string {
	return map[string]string{
		"DATA_DIR":                   "",
		"OUTPUT_PATH":                "",
		"HOUSE_COUNT":                "",
		"APPLIANCE_COUNT":            "",
		"SITE_METER_INDEX":           "0",
		"SKIP_EXTRACT":               "false",
		"SORT_INDEX":                 "true",
		"DROP_DUPLICATES":            "false",
		"SOURCE_TIMEZONE":            domain.DefaultSourceTimezone,
		"TARGET_TIMEZONE":            domain.DefaultTargetTimezone,
		"APPLIANCE_TIMESTAMP_COLUMN": "0",
		"APPLIANCE_VALUE_COLUMN":     "2",
		"METADATA_DIR":               "metadata",
		"LOG_LEVEL":                  "info",
		"LOG_FORMAT":                 "json",
		"METRICS_ADDR":               "",
		"SHUTDOWN_TIMEOUT":           defaultShutdownTimeout,
		"KAFKA_BROKERS":              "",
		"KAFKA_TOPIC":                "gelap-tables",
	}
}

// Load reads configuration from environment variables, applying defaults where unset.
// When path is non-empty the TOML file at path supplies the defaults instead.
// Required settings are checked separately by Validate so flags can fill them in.
func Load(path string) (*Config, error) {
	defaults := builtinDefaults()
	if path != "" {
		if err := overlayFile(defaults, path); err != nil {
			return nil, err
		}
	}
	get := func(key string) string {
		return strings.TrimSpace(sharedcfg.EnvOrDefault(key, defaults[key]))
	}

	var p parser
	cfg := &Config{
		DataDir:                  get("DATA_DIR"),
		OutputPath:               get("OUTPUT_PATH"),
		HouseCount:               p.optionalInt("HOUSE_COUNT", get("HOUSE_COUNT")),
		ApplianceCount:           p.optionalInt("APPLIANCE_COUNT", get("APPLIANCE_COUNT")),
		SiteMeterIndex:           p.optionalInt("SITE_METER_INDEX", get("SITE_METER_INDEX")),
		SkipExtract:              p.boolean("SKIP_EXTRACT", get("SKIP_EXTRACT")),
		SortIndex:                p.boolean("SORT_INDEX", get("SORT_INDEX")),
		DropDuplicates:           p.boolean("DROP_DUPLICATES", get("DROP_DUPLICATES")),
		SourceTimezone:           get("SOURCE_TIMEZONE"),
		TargetTimezone:           get("TARGET_TIMEZONE"),
		ApplianceTimestampColumn: p.optionalInt("APPLIANCE_TIMESTAMP_COLUMN", get("APPLIANCE_TIMESTAMP_COLUMN")),
		ApplianceValueColumn:     p.optionalInt("APPLIANCE_VALUE_COLUMN", get("APPLIANCE_VALUE_COLUMN")),
		MetadataDir:              get("METADATA_DIR"),
		LogLevel:                 get("LOG_LEVEL"),
		LogFormat:                get("LOG_FORMAT"),
		MetricsAddr:              get("METRICS_ADDR"),
		ShutdownTimeout:          p.shutdownTimeout(defaults["SHUTDOWN_TIMEOUT"]),
		KafkaTopic:               get("KAFKA_TOPIC"),
	}
	if brokers := get("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}
	if p.err != nil {
		return nil, p.err
	}

	if cfg.HouseCount < 0 || cfg.ApplianceCount < 0 || cfg.SiteMeterIndex < 0 {
		return nil, errors.New("HOUSE_COUNT, APPLIANCE_COUNT and SITE_METER_INDEX must not be negative")
	}
	if cfg.ApplianceTimestampColumn < 0 || cfg.ApplianceValueColumn < 0 {
		return nil, errors.New("APPLIANCE_TIMESTAMP_COLUMN and APPLIANCE_VALUE_COLUMN must not be negative")
	}
	if cfg.ApplianceTimestampColumn == cfg.ApplianceValueColumn {
		return nil, errors.New("APPLIANCE_TIMESTAMP_COLUMN and APPLIANCE_VALUE_COLUMN must differ")
	}
	if _, err := time.LoadLocation(cfg.SourceTimezone); err != nil {
		return nil, fmt.Errorf("invalid SOURCE_TIMEZONE: %w", err)
	}
	if _, err := time.LoadLocation(cfg.TargetTimezone); err != nil {
		return nil, fmt.Errorf("invalid TARGET_TIMEZONE: %w", err)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// Validate checks the settings that have no defaults.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("DATA_DIR is required")
	}
	if c.OutputPath == "" {
		return errors.New("OUTPUT_PATH is required")
	}
	if c.HouseCount == 0 {
		return errors.New("HOUSE_COUNT is required")
	}
	if c.ApplianceCount == 0 {
		return errors.New("APPLIANCE_COUNT is required")
	}
	if err := c.Dataset().Validate(); err != nil {
		return fmt.Errorf("invalid SITE_METER_INDEX: %w", err)
	}
	return nil
}

// Dataset returns the dataset shape described by the config.
func (c *Config) Dataset() domain.Dataset {
	return domain.Dataset{
		Houses:     c.HouseCount,
		Appliances: c.ApplianceCount,
		SiteMeter:  c.SiteMeterIndex,
	}
}

// NormalizeOptions resolves the sort, deduplication and timezone settings.
func (c *Config) NormalizeOptions() (domain.NormalizeOptions, error) {
	return domain.NewNormalizeOptions(c.SortIndex, c.DropDuplicates, c.SourceTimezone, c.TargetTimezone)
}

// overlayFile replaces defaults with every key present in the TOML file.
func overlayFile(defaults map[string]string, path string) error {
	var fs fileSettings
	if _, err := toml.DecodeFile(path, &fs); err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	setString := func(key string, v *string) {
		if v != nil {
			defaults[key] = *v
		}
	}
	setInt := func(key string, v *int) {
		if v != nil {
			defaults[key] = strconv.Itoa(*v)
		}
	}
	setBool := func(key string, v *bool) {
		if v != nil {
			defaults[key] = strconv.FormatBool(*v)
		}
	}

	setString("DATA_DIR", fs.DataDir)
	setString("OUTPUT_PATH", fs.OutputPath)
	setInt("HOUSE_COUNT", fs.HouseCount)
	setInt("APPLIANCE_COUNT", fs.ApplianceCount)
	setInt("SITE_METER_INDEX", fs.SiteMeterIndex)
	setBool("SKIP_EXTRACT", fs.SkipExtract)
	setBool("SORT_INDEX", fs.SortIndex)
	setBool("DROP_DUPLICATES", fs.DropDuplicates)
	setString("SOURCE_TIMEZONE", fs.SourceTimezone)
	setString("TARGET_TIMEZONE", fs.TargetTimezone)
	setInt("APPLIANCE_TIMESTAMP_COLUMN", fs.ApplianceTimestampColumn)
	setInt("APPLIANCE_VALUE_COLUMN", fs.ApplianceValueColumn)
	setString("METADATA_DIR", fs.MetadataDir)
	setString("LOG_LEVEL", fs.LogLevel)
	setString("LOG_FORMAT", fs.LogFormat)
	setString("METRICS_ADDR", fs.MetricsAddr)
	setString("SHUTDOWN_TIMEOUT", fs.ShutdownTimeout)
	setString("KAFKA_TOPIC", fs.KafkaTopic)
	if fs.KafkaBrokers != nil {
		defaults["KAFKA_BROKERS"] = strings.Join(*fs.KafkaBrokers, ",")
	}
	return nil
}

const defaultShutdownTimeout = "10s"

// parser records the first conversion error so Load can build the struct in one pass.
type parser struct {
	err error
}

func (p *parser) fail(key string, raw string) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %q", key, raw)
	}
}

// optionalInt parses an integer; an empty value is 0.
func (p *parser) optionalInt(key, raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw)
		return 0
	}
	return n
}

func (p *parser) boolean(key, raw string) bool {
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw)
		return false
	}
	return b
}

// shutdownTimeout reads SHUTDOWN_TIMEOUT through the shared parser. A value
// from the config file applies only when the variable is unset.
func (p *parser) shutdownTimeout(fileValue string) time.Duration {
	if os.Getenv("SHUTDOWN_TIMEOUT") == "" && fileValue != defaultShutdownTimeout {
		return p.positiveDuration("SHUTDOWN_TIMEOUT", strings.TrimSpace(fileValue))
	}
	d, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		if p.err == nil {
			p.err = err
		}
		return 0
	}
	return d
}

func (p *parser) positiveDuration(key, raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		p.fail(key, raw)
		return 0
	}
	return d
}
