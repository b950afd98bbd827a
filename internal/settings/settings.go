package settings

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"time"
	"unsafe"
)

const defaultDbType = "sqlite"
const defaultDbPath = "./data/fixity.db"
const defaultBindAddress = "0.0.0.0"
const defaultApiPort = 9000
const defaultMonitoringPort = 9001
const defaultMonitoringEnabled = true
const defaultOtelEnabled = false
const defaultOtelExporter = "otlp"
const defaultAlgorithm = "MD5"
const defaultCheckInterval = 24 * time.Hour
const defaultLogLevel = "info"
const defaultConfigFile = "config.json"

const mergableTagKey = "mergable"

var ErrInvalidLogLevel = errors.New("invalid log level")

type Settings struct {
	dbType              *string        `mergable:""`
	dbPath              *string        `mergable:""`
	dbUrl               *string        `mergable:""`
	bitstoreConfig      *string        `mergable:""`
	bindAddress         *string        `mergable:""`
	apiPort             *int           `mergable:""`
	monitoringPort      *int           `mergable:""`
	monitoringEnabled   *bool          `mergable:""`
	authorizationScript *string        `mergable:""`
	otelEnabled         *bool          `mergable:""`
	otelExporter        *string        `mergable:""`
	otelEndpoint        *string        `mergable:""`
	auditLogPath        *string        `mergable:""`
	auditLogSigningKey  *string        `mergable:""`
	defaultAlgorithm    *string        `mergable:""`
	ingestAlgorithm     *string        `mergable:""`
	checkInterval       *time.Duration `mergable:""`
	logLevel            *string        `mergable:""`
}

func valueOrDefault[V any](v *V, defaultValue V) V {
	if v == nil {
		return defaultValue
	}
	return *v
}

func (s *Settings) DbType() string {
	return valueOrDefault(s.dbType, defaultDbType)
}

func (s *Settings) DbPath() string {
	return valueOrDefault(s.dbPath, defaultDbPath)
}

func (s *Settings) DbUrl() string {
	return valueOrDefault(s.dbUrl, "")
}

// DataSource is the path or url handed to the database driver selected by DbType.
func (s *Settings) DataSource() string {
	if s.DbType() == "postgres" {
		return s.DbUrl()
	}
	return s.DbPath()
}

// BitstoreConfig is the path of the JSON bitstore graph, empty when unset.
func (s *Settings) BitstoreConfig() string {
	return valueOrDefault(s.bitstoreConfig, "")
}

func (s *Settings) BindAddress() string {
	return valueOrDefault(s.bindAddress, defaultBindAddress)
}

func (s *Settings) ApiPort() int {
	return valueOrDefault(s.apiPort, defaultApiPort)
}

func (s *Settings) MonitoringPort() int {
	return valueOrDefault(s.monitoringPort, defaultMonitoringPort)
}

func (s *Settings) MonitoringEnabled() bool {
	return valueOrDefault(s.monitoringEnabled, defaultMonitoringEnabled)
}

func (s *Settings) AuthorizationScript() string {
	return valueOrDefault(s.authorizationScript, "")
}

func (s *Settings) OtelEnabled() bool {
	return valueOrDefault(s.otelEnabled, defaultOtelEnabled)
}

func (s *Settings) OtelExporter() string {
	return valueOrDefault(s.otelExporter, defaultOtelExporter)
}

func (s *Settings) OtelEndpoint() string {
	return valueOrDefault(s.otelEndpoint, "")
}

func (s *Settings) AuditLogPath() string {
	return valueOrDefault(s.auditLogPath, "")
}

func (s *Settings) AuditLogSigningKey() string {
	return valueOrDefault(s.auditLogSigningKey, "")
}

func (s *Settings) DefaultAlgorithm() string {
	return valueOrDefault(s.defaultAlgorithm, defaultAlgorithm)
}

func (s *Settings) IngestAlgorithm() string {
	return valueOrDefault(s.ingestAlgorithm, defaultAlgorithm)
}

func (s *Settings) CheckInterval() time.Duration {
	return valueOrDefault(s.checkInterval, defaultCheckInterval)
}

func (s *Settings) LogLevel() string {
	return valueOrDefault(s.logLevel, defaultLogLevel)
}

func (s *Settings) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s.LogLevel()))); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLogLevel, s.LogLevel())
	}
	return level, nil
}

func getUnexportedField(field reflect.Value) any {
	return reflect.NewAt(field.Type(), unsafe.Pointer(field.UnsafeAddr())).Elem().Interface()
}

func setUnexportedField(field reflect.Value, value any) {
	reflect.NewAt(field.Type(), unsafe.Pointer(field.UnsafeAddr())).Elem().Set(reflect.ValueOf(value))
}

func isNilish(val any) bool {
	if val == nil {
		return true
	}

	v := reflect.ValueOf(val)
	k := v.Kind()
	switch k {
	case reflect.Chan, reflect.Func, reflect.Map, reflect.Pointer,
		reflect.UnsafePointer, reflect.Interface, reflect.Slice:
		return v.IsNil()
	}

	return false
}

func (s *Settings) merge(other *Settings) {
	fields := reflect.VisibleFields(reflect.TypeOf(other).Elem())
	sStruct := reflect.ValueOf(s).Elem()
	otherStruct := reflect.ValueOf(other).Elem()

	for _, field := range fields {
		if _, ok := field.Tag.Lookup(mergableTagKey); !ok {
			continue
		}
		sField := sStruct.FieldByName(field.Name)
		otherField := otherStruct.FieldByName(field.Name)

		otherFieldValue := getUnexportedField(otherField)
		if field.Type.Kind() == reflect.Pointer && isNilish(otherFieldValue) {
			continue
		}
		setUnexportedField(sField, otherFieldValue)
	}
}

func mergeSettings(settings ...*Settings) *Settings {
	var result *Settings = &Settings{}
	for _, setting := range settings {
		if setting == nil {
			continue
		}
		result.merge(setting)
	}
	return result
}

// LoadSettings registers the settings flags on fs, parses args and merges the
// config file, the flags and the FIXITY_* environment in that order.
// Subcommands register their own flags on fs before calling LoadSettings.
func LoadSettings(fs *flag.FlagSet, args []string) (*Settings, error) {
	cmdArgsSettings, configFile, err := loadSettingsFromCmdArgs(fs, args)
	if err != nil {
		return nil, err
	}
	envSettings, err := loadSettingsFromEnv()
	if err != nil {
		return nil, err
	}

	if configFile == nil {
		configFile = getStringFromEnv(configFileEnvKey)
	}
	var jsonSettings *Settings
	if configFile != nil {
		jsonSettings, err = loadSettingsFromJson(*configFile)
		if err != nil {
			return nil, err
		}
	} else if _, statErr := os.Stat(defaultConfigFile); statErr == nil {
		jsonSettings, err = loadSettingsFromJson(defaultConfigFile)
		if err != nil {
			return nil, err
		}
	}

	settings := mergeSettings(jsonSettings, cmdArgsSettings, envSettings)
	if _, err := settings.SlogLevel(); err != nil {
		return nil, err
	}
	return settings, nil
}
