package settings

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envKeyPrefix string = "FIXITY"

const configFileEnvKey string = envKeyPrefix + "_CONFIG_FILE"
const dbTypeEnvKey string = envKeyPrefix + "_DB_TYPE"
const dbPathEnvKey string = envKeyPrefix + "_DB_PATH"
const dbUrlEnvKey string = envKeyPrefix + "_DB_URL"
const bitstoreConfigEnvKey string = envKeyPrefix + "_BITSTORE_CONFIG"
const bindAddressEnvKey string = envKeyPrefix + "_BIND_ADDRESS"
const apiPortEnvKey string = envKeyPrefix + "_API_PORT"
const monitoringPortEnvKey string = envKeyPrefix + "_MONITORING_PORT"
const monitoringEnabledEnvKey string = envKeyPrefix + "_MONITORING_ENABLED"
const authorizationScriptEnvKey string = envKeyPrefix + "_AUTHORIZATION_SCRIPT"
const otelEnabledEnvKey string = envKeyPrefix + "_OTEL_ENABLED"
const otelExporterEnvKey string = envKeyPrefix + "_OTEL_EXPORTER"
const otelEndpointEnvKey string = envKeyPrefix + "_OTEL_ENDPOINT"
const auditLogPathEnvKey string = envKeyPrefix + "_AUDIT_LOG_PATH"
const auditLogSigningKeyEnvKey string = envKeyPrefix + "_AUDIT_LOG_SIGNING_KEY"
const defaultAlgorithmEnvKey string = envKeyPrefix + "_DEFAULT_ALGORITHM"
const ingestAlgorithmEnvKey string = envKeyPrefix + "_INGEST_ALGORITHM"
const checkIntervalEnvKey string = envKeyPrefix + "_CHECK_INTERVAL"
const logLevelEnvKey string = envKeyPrefix + "_LOG_LEVEL"

func getStringFromEnv(envKey string) *string {
	val := os.Getenv(envKey)
	if val == "" {
		return nil
	}
	return &val
}

func getIntFromEnv(envKey string) (*int, error) {
	val := os.Getenv(envKey)
	if val == "" {
		return nil, nil
	}
	int64Val, err := strconv.ParseInt(val, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid value for %s: %w", envKey, err)
	}
	intVal := int(int64Val)
	return &intVal, nil
}

func getBoolFromEnv(envKey string) *bool {
	val := os.Getenv(envKey)
	val = strings.ToLower(val)
	if val == "" {
		return nil
	}
	retval := val == "1" || val == "t" || val == "true"
	return &retval
}

func getDurationFromEnv(envKey string) (*time.Duration, error) {
	val := os.Getenv(envKey)
	if val == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return nil, fmt.Errorf("invalid value for %s: %w", envKey, err)
	}
	return &d, nil
}

func loadSettingsFromEnv() (*Settings, error) {
	apiPort, err := getIntFromEnv(apiPortEnvKey)
	if err != nil {
		return nil, err
	}
	monitoringPort, err := getIntFromEnv(monitoringPortEnvKey)
	if err != nil {
		return nil, err
	}
	checkInterval, err := getDurationFromEnv(checkIntervalEnvKey)
	if err != nil {
		return nil, err
	}
	return &Settings{
		dbType:              getStringFromEnv(dbTypeEnvKey),
		dbPath:              getStringFromEnv(dbPathEnvKey),
		dbUrl:               getStringFromEnv(dbUrlEnvKey),
		bitstoreConfig:      getStringFromEnv(bitstoreConfigEnvKey),
		bindAddress:         getStringFromEnv(bindAddressEnvKey),
		apiPort:             apiPort,
		monitoringPort:      monitoringPort,
		monitoringEnabled:   getBoolFromEnv(monitoringEnabledEnvKey),
		authorizationScript: getStringFromEnv(authorizationScriptEnvKey),
		otelEnabled:         getBoolFromEnv(otelEnabledEnvKey),
		otelExporter:        getStringFromEnv(otelExporterEnvKey),
		otelEndpoint:        getStringFromEnv(otelEndpointEnvKey),
		auditLogPath:        getStringFromEnv(auditLogPathEnvKey),
		auditLogSigningKey:  getStringFromEnv(auditLogSigningKeyEnvKey),
		defaultAlgorithm:    getStringFromEnv(defaultAlgorithmEnvKey),
		ingestAlgorithm:     getStringFromEnv(ingestAlgorithmEnvKey),
		checkInterval:       checkInterval,
		logLevel:            getStringFromEnv(logLevelEnvKey),
	}, nil
}
