package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jdillenkofer/fixity/internal/config"
)

type jsonSettings struct {
	DbType              *string          `json:"dbType"`
	DbPath              *string          `json:"dbPath"`
	DbUrl               *string          `json:"dbUrl"`
	BitstoreConfig      *string          `json:"bitstoreConfig"`
	BindAddress         *string          `json:"bindAddress"`
	ApiPort             *int             `json:"apiPort"`
	MonitoringPort      *int             `json:"monitoringPort"`
	MonitoringEnabled   *bool            `json:"monitoringEnabled"`
	AuthorizationScript *string          `json:"authorizationScript"`
	OtelEnabled         *bool            `json:"otelEnabled"`
	OtelExporter        *string          `json:"otelExporter"`
	OtelEndpoint        *string          `json:"otelEndpoint"`
	AuditLogPath        *string          `json:"auditLogPath"`
	AuditLogSigningKey  *string          `json:"auditLogSigningKey"`
	DefaultAlgorithm    *string          `json:"defaultAlgorithm"`
	IngestAlgorithm     *string          `json:"ingestAlgorithm"`
	CheckInterval       *config.Duration `json:"checkInterval"`
	LogLevel            *string          `json:"logLevel"`
}

func loadSettingsFromJson(jsonFile string) (*Settings, error) {
	jsonData, err := os.ReadFile(jsonFile)
	if err != nil {
		return nil, fmt.Errorf("could not read settings file %s: %w", jsonFile, err)
	}
	var js jsonSettings
	err = json.Unmarshal(jsonData, &js)
	if err != nil {
		return nil, fmt.Errorf("could not parse settings file %s: %w", jsonFile, err)
	}
	var checkInterval *time.Duration
	if js.CheckInterval != nil {
		d := time.Duration(*js.CheckInterval)
		checkInterval = &d
	}
	return &Settings{
		dbType:              js.DbType,
		dbPath:              js.DbPath,
		dbUrl:               js.DbUrl,
		bitstoreConfig:      js.BitstoreConfig,
		bindAddress:         js.BindAddress,
		apiPort:             js.ApiPort,
		monitoringPort:      js.MonitoringPort,
		monitoringEnabled:   js.MonitoringEnabled,
		authorizationScript: js.AuthorizationScript,
		otelEnabled:         js.OtelEnabled,
		otelExporter:        js.OtelExporter,
		otelEndpoint:        js.OtelEndpoint,
		auditLogPath:        js.AuditLogPath,
		auditLogSigningKey:  js.AuditLogSigningKey,
		defaultAlgorithm:    js.DefaultAlgorithm,
		ingestAlgorithm:     js.IngestAlgorithm,
		checkInterval:       checkInterval,
		logLevel:            js.LogLevel,
	}, nil
}
