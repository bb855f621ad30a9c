package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func valid() *Config {
	cfg := Default()
	cfg.GraphQL.Schema = "schema.graphql"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, ":8000", cfg.Server.Addr)
	require.Equal(t, 10*time.Second, cfg.Server.Timeout)
	require.Equal(t, uint32(1000), cfg.GraphQL.MaxFirst)
	require.Equal(t, uint32(5000), cfg.GraphQL.MaxSkip)
	require.True(t, cfg.GraphQL.Introspection)
	require.Equal(t, "entityql.changes", cfg.Feed.SubjectPrefix)
	require.Error(t, cfg.Validate(), "the schema path has no default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid", modify: func(c *Config) {}},
		{name: "missing addr", modify: func(c *Config) { c.Server.Addr = "" }, wantErr: "server.addr"},
		{name: "negative timeout", modify: func(c *Config) { c.Server.Timeout = -time.Second }, wantErr: "server.timeout"},
		{name: "zero max_first", modify: func(c *Config) { c.GraphQL.MaxFirst = 0 }, wantErr: "graphql.max_first"},
		{name: "negative block", modify: func(c *Config) { c.GraphQL.Block = -1 }, wantErr: "graphql.block"},
		{name: "no permits", modify: func(c *Config) { c.Limits.MaxConcurrentQueries = 0 }, wantErr: "limits.max_concurrent_queries"},
		{name: "bad level", modify: func(c *Config) { c.Log.Level = "loud" }, wantErr: "log.level"},
		{name: "shared listener", modify: func(c *Config) { c.Metrics.Addr = c.Server.Addr }, wantErr: "metrics.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entityql.yaml")
	content := `
server:
  addr: ":9000"
  timeout: 3s
  cors_origins: ["https://example.com"]
graphql:
  schema: ./schema.graphql
  max_first: 100
limits:
  result_cache_size: 0
feed:
  nats_url: nats://localhost:4222
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, ":9000", cfg.Server.Addr)
	require.Equal(t, 3*time.Second, cfg.Server.Timeout)
	require.Equal(t, []string{"https://example.com"}, cfg.Server.CORSOrigins)
	require.Equal(t, "./schema.graphql", cfg.GraphQL.Schema)
	require.Equal(t, uint32(100), cfg.GraphQL.MaxFirst)
	require.Equal(t, uint32(5000), cfg.GraphQL.MaxSkip, "unset values keep their default")
	require.Equal(t, 0, cfg.Limits.ResultCacheSize)
	require.Equal(t, "nats://localhost:4222", cfg.Feed.NATSURL)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  adr: ':1'\n"), 0o644))
	_, err = Load(path)
	require.ErrorContains(t, err, "adr")

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	cfg, err := Load(empty)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}
