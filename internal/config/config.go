// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of tscore.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the persister core's configuration
// surface: the wide-column cluster connection, ingestion transport, and
// ambient observability settings.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Config is the full configuration surface of the persister core.
// cassandra_* fields are the ones named explicitly in the external
// interface contract; the rest are ambient additions (logging, ingestion
// transport, archive, metrics).
type Config struct {
	CassandraKeyspace string   `json:"cassandra_keyspace"`
	CassandraServers  []string `json:"cassandra_servers"`
	CassandraUser     string   `json:"cassandra_user"`
	CassandraPass     string   `json:"cassandra_pass"`
	CassandraReplicas int      `json:"cassandra_replicas"`

	// Test-only, per the external interface contract. Both are parsed and
	// validated but not read elsewhere in this module; the keyspace drop
	// is served by the admin endpoint regardless of db_clear_on_testing.
	DBClearOnTesting   bool `json:"db_clear_on_testing"`
	DBProfileOnTesting bool `json:"db_profile_on_testing"`

	// Ambient additions.
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	NatsAddress string `json:"nats_address"`
	NatsSubject string `json:"nats_subject"`

	ArchiveS3Bucket string `json:"archive_s3_bucket"`
	ArchiveS3Prefix string `json:"archive_s3_prefix"`

	MetricsAddr string `json:"metrics_addr"`
}

const schemaJSON = `{
	"type": "object",
	"properties": {
		"cassandra_keyspace": {"type": "string", "minLength": 1},
		"cassandra_servers": {"type": "array", "items": {"type": "string"}, "minItems": 1},
		"cassandra_user": {"type": "string"},
		"cassandra_pass": {"type": "string"},
		"cassandra_replicas": {"type": "integer", "minimum": 1},
		"db_clear_on_testing": {"type": "boolean"},
		"db_profile_on_testing": {"type": "boolean"},
		"log_level": {"type": "string", "enum": ["debug", "info", "warn", "error", "crit"]},
		"log_format": {"type": "string", "enum": ["json", "console"]},
		"nats_address": {"type": "string"},
		"nats_subject": {"type": "string"},
		"archive_s3_bucket": {"type": "string"},
		"archive_s3_prefix": {"type": "string"},
		"metrics_addr": {"type": "string"}
	},
	"required": ["cassandra_keyspace", "cassandra_servers"]
}`

// Load reads path as JSON, applies .env overrides via godotenv (when
// envFile is non-empty), and validates the result against the embedded
// schema before returning it.
func Load(path string, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("config: load env file: %w", err)
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := Validate(raw); err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// Validate checks raw JSON config bytes against the embedded schema.
func Validate(raw []byte) error {
	sch, err := jsonschema.CompileString("config.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("config: unmarshal for validation: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if pass := os.Getenv("TSCORE_CASSANDRA_PASS"); pass != "" {
		cfg.CassandraPass = pass
	}
	if user := os.Getenv("TSCORE_CASSANDRA_USER"); user != "" {
		cfg.CassandraUser = user
	}
}
