package settings

import (
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	testutils "github.com/jdillenkofer/fixity/internal/testing"
	"github.com/stretchr/testify/assert"
)

func addrOf[T any](t T) *T { return &t }

func TestMergeSettingsTwoNils(t *testing.T) {
	testutils.SkipIfIntegration(t)

	a := Settings{
		dbPath: nil,
	}
	b := Settings{
		dbPath: nil,
	}
	mergedSettings := mergeSettings(&a, &b)
	assert.NotNil(t, mergedSettings)
	assert.Nil(t, a.dbPath)
	assert.Nil(t, b.dbPath)
	assert.Nil(t, mergedSettings.dbPath)
	assert.Equal(t, defaultDbPath, mergedSettings.DbPath())
}

func TestMergeSettingsNilAndValue(t *testing.T) {
	testutils.SkipIfIntegration(t)

	a := Settings{
		dbPath: nil,
	}
	b := Settings{
		dbPath: addrOf("test.db"),
	}
	mergedSettings := mergeSettings(&a, &b)
	assert.NotNil(t, mergedSettings)
	assert.Nil(t, a.dbPath)
	assert.Equal(t, "test.db", *b.dbPath)
	assert.Equal(t, b.dbPath, mergedSettings.dbPath)
}

func TestMergeSettingsTwoValues(t *testing.T) {
	testutils.SkipIfIntegration(t)

	a := Settings{
		dbPath:        addrOf("test.db"),
		checkInterval: addrOf(time.Hour),
	}
	b := Settings{
		dbPath: addrOf("test2.db"),
	}
	mergedSettings := mergeSettings(&a, &b)
	assert.NotNil(t, mergedSettings)
	assert.Equal(t, "test.db", *a.dbPath)
	assert.Equal(t, "test2.db", *b.dbPath)
	assert.Equal(t, b.dbPath, mergedSettings.dbPath)
	assert.Equal(t, time.Hour, mergedSettings.CheckInterval())
}

func writeConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.json")
	assert.Nil(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSettingsDefaults(t *testing.T) {
	testutils.SkipIfIntegration(t)

	s, err := LoadSettings(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	assert.Nil(t, err)
	assert.Equal(t, "sqlite", s.DbType())
	assert.Equal(t, defaultDbPath, s.DataSource())
	assert.Equal(t, "MD5", s.DefaultAlgorithm())
	assert.Equal(t, 24*time.Hour, s.CheckInterval())
	assert.True(t, s.MonitoringEnabled())
	assert.False(t, s.OtelEnabled())
	level, err := s.SlogLevel()
	assert.Nil(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoadSettingsPrecedence(t *testing.T) {
	testutils.SkipIfIntegration(t)
	configFile := writeConfigFile(t, `{
  "dbType": "postgres",
  "dbUrl": "postgres://file",
  "apiPort": 7000,
  "checkInterval": "2h",
  "ingestAlgorithm": "SHA-256",
  "logLevel": "debug"
}`)
	t.Setenv(apiPortEnvKey, "7002")
	t.Setenv(logLevelEnvKey, "warn")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	count := fs.Int("count", 0, "")
	s, err := LoadSettings(fs, []string{"-configFile", configFile, "-apiPort", "7001", "-dbUrl", "postgres://flag", "-count", "3", "extra"})
	assert.Nil(t, err)

	assert.Equal(t, 3, *count)
	assert.Equal(t, []string{"extra"}, fs.Args())
	assert.Equal(t, "postgres", s.DbType())
	assert.Equal(t, "postgres://flag", s.DataSource())
	assert.Equal(t, 7002, s.ApiPort())
	assert.Equal(t, 2*time.Hour, s.CheckInterval())
	assert.Equal(t, "SHA-256", s.IngestAlgorithm())
	assert.Equal(t, "MD5", s.DefaultAlgorithm())
	level, err := s.SlogLevel()
	assert.Nil(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}

func TestLoadSettingsConfigFileFromEnv(t *testing.T) {
	testutils.SkipIfIntegration(t)
	t.Setenv(configFileEnvKey, writeConfigFile(t, `{"auditLogPath": "/var/log/fixity.jsonl"}`))

	s, err := LoadSettings(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	assert.Nil(t, err)
	assert.Equal(t, "/var/log/fixity.jsonl", s.AuditLogPath())
}

func TestLoadSettingsRejectsBadInput(t *testing.T) {
	testutils.SkipIfIntegration(t)

	_, err := LoadSettings(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-configFile", filepath.Join(t.TempDir(), "missing.json")})
	assert.NotNil(t, err)

	_, err = LoadSettings(flag.NewFlagSet("test", flag.ContinueOnError), []string{"-logLevel", "loud"})
	assert.ErrorIs(t, err, ErrInvalidLogLevel)

	t.Setenv(checkIntervalEnvKey, "soon")
	_, err = LoadSettings(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	assert.NotNil(t, err)
}
