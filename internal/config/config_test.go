package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadValid(t *testing.T) {
	p := writeTempConfig(t, `{
		"cassandra_keyspace": "tscore",
		"cassandra_servers": ["127.0.0.1"],
		"cassandra_replicas": 1,
		"log_level": "debug"
	}`)

	cfg, err := Load(p, "")
	require.NoError(t, err)
	assert.Equal(t, "tscore", cfg.CassandraKeyspace)
	assert.Equal(t, []string{"127.0.0.1"}, cfg.CassandraServers)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingRequired(t *testing.T) {
	p := writeTempConfig(t, `{"cassandra_servers": ["127.0.0.1"]}`)
	_, err := Load(p, "")
	assert.Error(t, err)
}

func TestLoadUnknownField(t *testing.T) {
	p := writeTempConfig(t, `{
		"cassandra_keyspace": "tscore",
		"cassandra_servers": ["127.0.0.1"],
		"bogus_field": true
	}`)
	_, err := Load(p, "")
	assert.Error(t, err)
}
