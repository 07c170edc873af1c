package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/gelap-etl/internal/domain"
)

const (
	testDataDir = "/data/gelap"
	testOutput  = "/data/gelap.db"
)

func writeTOML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gelap.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.DataDir)
	assert.Empty(t, cfg.OutputPath)
	assert.Zero(t, cfg.HouseCount)
	assert.Zero(t, cfg.ApplianceCount)
	assert.Zero(t, cfg.SiteMeterIndex)
	assert.False(t, cfg.SkipExtract)
	assert.True(t, cfg.SortIndex)
	assert.False(t, cfg.DropDuplicates)
	assert.Equal(t, "UTC", cfg.SourceTimezone)
	assert.Equal(t, "Europe/Berlin", cfg.TargetTimezone)
	assert.Equal(t, 0, cfg.ApplianceTimestampColumn)
	assert.Equal(t, 2, cfg.ApplianceValueColumn)
	assert.Equal(t, "metadata", cfg.MetadataDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "gelap-tables", cfg.KafkaTopic)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("DATA_DIR", testDataDir)
	t.Setenv("OUTPUT_PATH", testOutput)
	t.Setenv("HOUSE_COUNT", "20")
	t.Setenv("APPLIANCE_COUNT", "10")
	t.Setenv("SITE_METER_INDEX", "11")
	t.Setenv("SKIP_EXTRACT", "true")
	t.Setenv("SORT_INDEX", "false")
	t.Setenv("DROP_DUPLICATES", "true")
	t.Setenv("SOURCE_TIMEZONE", "Etc/GMT")
	t.Setenv("TARGET_TIMEZONE", "Europe/Vienna")
	t.Setenv("APPLIANCE_TIMESTAMP_COLUMN", "1")
	t.Setenv("APPLIANCE_VALUE_COLUMN", "2")
	t.Setenv("METADATA_DIR", "/etc/gelap/metadata")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("METRICS_ADDR", ":9090")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "custom-tables")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, testDataDir, cfg.DataDir)
	assert.Equal(t, testOutput, cfg.OutputPath)
	assert.Equal(t, 20, cfg.HouseCount)
	assert.Equal(t, 10, cfg.ApplianceCount)
	assert.Equal(t, 11, cfg.SiteMeterIndex)
	assert.True(t, cfg.SkipExtract)
	assert.False(t, cfg.SortIndex)
	assert.True(t, cfg.DropDuplicates)
	assert.Equal(t, "Etc/GMT", cfg.SourceTimezone)
	assert.Equal(t, "Europe/Vienna", cfg.TargetTimezone)
	assert.Equal(t, 1, cfg.ApplianceTimestampColumn)
	assert.Equal(t, "/etc/gelap/metadata", cfg.MetadataDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-tables", cfg.KafkaTopic)
}

func TestLoad_TOMLFile(t *testing.T) {
	path := writeTOML(t, `
data_dir = "/srv/gelap"
output_path = "/srv/gelap.db"
house_count = 4
appliance_count = 10
drop_duplicates = true
kafka_brokers = ["kafka:9092"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/srv/gelap", cfg.DataDir)
	assert.Equal(t, "/srv/gelap.db", cfg.OutputPath)
	assert.Equal(t, 4, cfg.HouseCount)
	assert.Equal(t, 10, cfg.ApplianceCount)
	assert.True(t, cfg.DropDuplicates)
	assert.True(t, cfg.SortIndex, "unset keys keep built-in defaults")
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
}

func TestLoad_EnvOverridesTOML(t *testing.T) {
	path := writeTOML(t, "house_count = 4\nappliance_count = 10\n")
	t.Setenv("HOUSE_COUNT", "20")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.HouseCount)
	assert.Equal(t, 10, cfg.ApplianceCount)
}

func TestLoad_ShutdownTimeoutSources(t *testing.T) {
	path := writeTOML(t, "shutdown_timeout = \"45s\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.ShutdownTimeout, "file value applies when env is unset")

	t.Setenv("SHUTDOWN_TIMEOUT", "5s")
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout, "env overrides the file")

	t.Setenv("SHUTDOWN_TIMEOUT", "0s")
	_, err = Load("")
	require.EqualError(t, err, "invalid SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidShutdownTimeoutInFile(t *testing.T) {
	_, err := Load(writeTOML(t, "shutdown_timeout = \"soon\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_MissingTOMLFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoad_InvalidTOML(t *testing.T) {
	_, err := Load(writeTOML(t, "house_count = \"four\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value, wantErr string
	}{
		{"HOUSE_COUNT", "many", "HOUSE_COUNT"},
		{"HOUSE_COUNT", "-1", "must not be negative"},
		{"SORT_INDEX", "maybe", "SORT_INDEX"},
		{"DROP_DUPLICATES", "2", "DROP_DUPLICATES"},
		{"SHUTDOWN_TIMEOUT", "not-a-duration", "SHUTDOWN_TIMEOUT"},
		{"SHUTDOWN_TIMEOUT", "-1s", "SHUTDOWN_TIMEOUT"},
		{"SOURCE_TIMEZONE", "Mars/Olympus", "SOURCE_TIMEZONE"},
		{"TARGET_TIMEZONE", "Mars/Olympus", "TARGET_TIMEZONE"},
		{"APPLIANCE_VALUE_COLUMN", "0", "must differ"},
		{"APPLIANCE_VALUE_COLUMN", "-3", "must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_RequiredSettings(t *testing.T) {
	base := Config{DataDir: testDataDir, OutputPath: testOutput, HouseCount: 2, ApplianceCount: 2}
	require.NoError(t, base.Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"data dir", func(c *Config) { c.DataDir = "" }, "DATA_DIR"},
		{"output", func(c *Config) { c.OutputPath = "" }, "OUTPUT_PATH"},
		{"houses", func(c *Config) { c.HouseCount = 0 }, "HOUSE_COUNT"},
		{"appliances", func(c *Config) { c.ApplianceCount = 0 }, "APPLIANCE_COUNT"},
		{"site meter collision", func(c *Config) { c.SiteMeterIndex = 1 }, "SITE_METER_INDEX"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_DatasetAndNormalizeOptions(t *testing.T) {
	cfg := Config{
		HouseCount:     4,
		ApplianceCount: 10,
		SortIndex:      true,
		DropDuplicates: true,
		SourceTimezone: domain.DefaultSourceTimezone,
		TargetTimezone: domain.DefaultTargetTimezone,
	}

	d := cfg.Dataset()
	assert.Equal(t, 4, d.Houses)
	assert.Equal(t, 11, d.SiteMeterNumber())

	opts, err := cfg.NormalizeOptions()
	require.NoError(t, err)
	assert.True(t, opts.Sort)
	assert.True(t, opts.DropDuplicates)
	assert.Equal(t, "Europe/Berlin", opts.Target.String())
}
