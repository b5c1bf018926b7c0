// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sentinel assembles and runs the RCA service: configuration,
// dependency wiring, background maintenance, and the HTTP boundary.
package sentinel

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from Go duration syntax
// in YAML ("30s", "2h"), which yaml.v3 does not handle natively.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to the standard library type.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the top-level service configuration. Values resolve in
// order: defaults, then the optional YAML file, then environment
// variables.
type Config struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port"`

	// WeaviateURL is the vector store endpoint. Empty runs the
	// sentinel without incident memory (anomaly detection disabled).
	WeaviateURL string `yaml:"weaviate_url"`

	// LLMBackend selects the diagnosis backend: "openai" or "ollama".
	LLMBackend string `yaml:"llm_backend"`

	// DiagnosisRPM caps diagnosis calls per minute.
	DiagnosisRPM int `yaml:"diagnosis_rpm"`

	// BadgerPath is the directory for the remediation journal.
	BadgerPath string `yaml:"badger_path"`

	// BadgerInMemory runs the journal without disk persistence.
	BadgerInMemory bool `yaml:"badger_in_memory"`

	// PolicyPath optionally points at a YAML guardrail policy that is
	// hot-reloaded on change. Empty uses the built-in policy.
	PolicyPath string `yaml:"policy_path"`

	// GCSBucket enables audit snapshot export when set.
	GCSBucket string `yaml:"gcs_bucket"`

	// GCSKeyPath is an optional service-account key file for export.
	GCSKeyPath string `yaml:"gcs_key_path"`

	// InfluxURL enables the telemetry sink when set.
	InfluxURL    string `yaml:"influx_url"`
	InfluxToken  string `yaml:"influx_token"`
	InfluxOrg    string `yaml:"influx_org"`
	InfluxBucket string `yaml:"influx_bucket"`

	// GraphPruneInterval is the cadence of graph maintenance.
	GraphPruneInterval Duration `yaml:"graph_prune_interval"`

	// GraphMaxAge is the observation age pruned by maintenance.
	GraphMaxAge Duration `yaml:"graph_max_age"`

	// AnalysisInterval overrides the pipeline analysis cadence.
	AnalysisInterval Duration `yaml:"analysis_interval"`

	// TraceExporter and MetricExporter select telemetry backends:
	// otlp|stdout|none and prometheus|stdout|none.
	TraceExporter  string `yaml:"trace_exporter"`
	MetricExporter string `yaml:"metric_exporter"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`

	// JSONLogs switches slog output to JSON.
	JSONLogs bool `yaml:"json_logs"`

	// LogLevel is the minimum severity: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogDir enables mirrored file logging when set.
	LogDir string `yaml:"log_dir"`
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.Port <= 0 {
		cfg.Port = 12400
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "ollama"
	}
	if cfg.DiagnosisRPM <= 0 {
		cfg.DiagnosisRPM = 10
	}
	if cfg.BadgerPath == "" {
		cfg.BadgerPath = "data/sentinel"
	}
	if cfg.GraphPruneInterval <= 0 {
		cfg.GraphPruneInterval = Duration(time.Minute)
	}
	if cfg.GraphMaxAge <= 0 {
		cfg.GraphMaxAge = Duration(time.Hour)
	}
	if cfg.TraceExporter == "" {
		cfg.TraceExporter = "stdout"
	}
	if cfg.MetricExporter == "" {
		cfg.MetricExporter = "prometheus"
	}
	return cfg
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	if c.LLMBackend != "openai" && c.LLMBackend != "ollama" {
		return fmt.Errorf("unsupported llm backend %q (want openai or ollama)", c.LLMBackend)
	}
	if !c.BadgerInMemory && c.BadgerPath == "" {
		return fmt.Errorf("badger path is required for persistent journal")
	}
	return nil
}

// LoadConfig resolves the configuration from an optional YAML file and
// the environment. A missing file is not an error; a malformed one is.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Port = getEnvInt("SENTINEL_PORT", cfg.Port)
	cfg.WeaviateURL = getEnvString("WEAVIATE_SERVICE_URL", cfg.WeaviateURL)
	cfg.LLMBackend = getEnvString("LLM_BACKEND_TYPE", cfg.LLMBackend)
	cfg.DiagnosisRPM = getEnvInt("SENTINEL_DIAGNOSIS_RPM", cfg.DiagnosisRPM)
	cfg.BadgerPath = getEnvString("SENTINEL_BADGER_PATH", cfg.BadgerPath)
	cfg.PolicyPath = getEnvString("SENTINEL_POLICY_PATH", cfg.PolicyPath)
	cfg.GCSBucket = getEnvString("SENTINEL_GCS_BUCKET", cfg.GCSBucket)
	cfg.GCSKeyPath = getEnvString("SENTINEL_GCS_KEY_PATH", cfg.GCSKeyPath)
	cfg.InfluxURL = getEnvString("INFLUXDB_URL", cfg.InfluxURL)
	cfg.InfluxToken = getEnvString("INFLUXDB_TOKEN", cfg.InfluxToken)
	cfg.InfluxOrg = getEnvString("INFLUXDB_ORG", cfg.InfluxOrg)
	cfg.InfluxBucket = getEnvString("INFLUXDB_BUCKET", cfg.InfluxBucket)
	cfg.LogLevel = getEnvString("SENTINEL_LOG_LEVEL", cfg.LogLevel)
	cfg.LogDir = getEnvString("SENTINEL_LOG_DIR", cfg.LogDir)
	cfg.TraceExporter = getEnvString("OTEL_TRACES_EXPORTER", cfg.TraceExporter)
	cfg.MetricExporter = getEnvString("OTEL_METRICS_EXPORTER", cfg.MetricExporter)
	cfg.OTLPEndpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)

	cfg = applyConfigDefaults(cfg)
	return cfg, cfg.Validate()
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
