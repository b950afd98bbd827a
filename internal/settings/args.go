package settings

import (
	"flag"
	"time"
)

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func registerStringFlag(fs *flag.FlagSet, name string, defaultValue string, description string) func() *string {
	stringVar := fs.String(name, defaultValue, description)
	return func() *string {
		if !isFlagSet(fs, name) {
			return nil
		}
		return stringVar
	}
}

func registerIntFlag(fs *flag.FlagSet, name string, defaultValue int, description string) func() *int {
	intVar := fs.Int(name, defaultValue, description)
	return func() *int {
		if !isFlagSet(fs, name) {
			return nil
		}
		return intVar
	}
}

func registerBoolFlag(fs *flag.FlagSet, name string, defaultValue bool, description string) func() *bool {
	boolVar := fs.Bool(name, defaultValue, description)
	return func() *bool {
		if !isFlagSet(fs, name) {
			return nil
		}
		return boolVar
	}
}

func registerDurationFlag(fs *flag.FlagSet, name string, defaultValue time.Duration, description string) func() *time.Duration {
	durationVar := fs.Duration(name, defaultValue, description)
	return func() *time.Duration {
		if !isFlagSet(fs, name) {
			return nil
		}
		return durationVar
	}
}

func loadSettingsFromCmdArgs(fs *flag.FlagSet, args []string) (*Settings, *string, error) {
	configFileAccessor := registerStringFlag(fs, "configFile", defaultConfigFile, "path of the JSON settings file")
	dbTypeAccessor := registerStringFlag(fs, "dbType", defaultDbType, "database type (sqlite or postgres)")
	dbPathAccessor := registerStringFlag(fs, "dbPath", defaultDbPath, "path of the sqlite database")
	dbUrlAccessor := registerStringFlag(fs, "dbUrl", "", "connection url of the postgres database")
	bitstoreConfigAccessor := registerStringFlag(fs, "bitstoreConfig", "", "path of the JSON bitstore configuration")
	bindAddressAccessor := registerStringFlag(fs, "bindAddress", defaultBindAddress, "the address the http sockets are bound to")
	apiPortAccessor := registerIntFlag(fs, "apiPort", defaultApiPort, "the port of the reporting api")
	monitoringPortAccessor := registerIntFlag(fs, "monitoringPort", defaultMonitoringPort, "the port of the monitoring api")
	monitoringEnabledAccessor := registerBoolFlag(fs, "monitoringEnabled", defaultMonitoringEnabled, "serve /metrics and /health")
	authorizationScriptAccessor := registerStringFlag(fs, "authorizationScript", "", "path of the lua script authorizing api requests")
	otelEnabledAccessor := registerBoolFlag(fs, "otelEnabled", defaultOtelEnabled, "export traces with opentelemetry")
	otelExporterAccessor := registerStringFlag(fs, "otelExporter", defaultOtelExporter, "trace exporter (otlp or stdout)")
	otelEndpointAccessor := registerStringFlag(fs, "otelEndpoint", "", "endpoint of the otlp trace collector")
	auditLogPathAccessor := registerStringFlag(fs, "auditLogPath", "", "path of the tamper evident history mirror")
	auditLogSigningKeyAccessor := registerStringFlag(fs, "auditLogSigningKey", "", "ed25519 private key (file or base64) signing the history mirror")
	defaultAlgorithmAccessor := registerStringFlag(fs, "defaultAlgorithm", defaultAlgorithm, "algorithm used for records without one")
	ingestAlgorithmAccessor := registerStringFlag(fs, "ingestAlgorithm", defaultAlgorithm, "algorithm used when registering bitstreams")
	checkIntervalAccessor := registerDurationFlag(fs, "checkInterval", defaultCheckInterval, "pause between daemon check cycles")
	logLevelAccessor := registerStringFlag(fs, "logLevel", defaultLogLevel, "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	return &Settings{
		dbType:              dbTypeAccessor(),
		dbPath:              dbPathAccessor(),
		dbUrl:               dbUrlAccessor(),
		bitstoreConfig:      bitstoreConfigAccessor(),
		bindAddress:         bindAddressAccessor(),
		apiPort:             apiPortAccessor(),
		monitoringPort:      monitoringPortAccessor(),
		monitoringEnabled:   monitoringEnabledAccessor(),
		authorizationScript: authorizationScriptAccessor(),
		otelEnabled:         otelEnabledAccessor(),
		otelExporter:        otelExporterAccessor(),
		otelEndpoint:        otelEndpointAccessor(),
		auditLogPath:        auditLogPathAccessor(),
		auditLogSigningKey:  auditLogSigningKeyAccessor(),
		defaultAlgorithm:    defaultAlgorithmAccessor(),
		ingestAlgorithm:     ingestAlgorithmAccessor(),
		checkInterval:       checkIntervalAccessor(),
		logLevel:            logLevelAccessor(),
	}, configFileAccessor(), nil
}
