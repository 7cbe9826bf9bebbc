package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/draftflow/internal/common"
	"github.com/Veraticus/draftflow/internal/flow"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	if yaml != "" {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
		v.SetConfigFile(path)
		require.NoError(t, v.ReadInConfig())
	}
	return v
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.NotContains(t, cfg.Store.DSN, "~")
	assert.Equal(t, 500, cfg.Engine.PageSize)
	assert.Equal(t, 3, cfg.Engine.MaxConcurrency)
	assert.Equal(t, 50*time.Millisecond, cfg.Engine.WaveDelay)
	assert.True(t, cfg.Engine.PushDown)
	assert.Equal(t, 5, cfg.Store.KeepSnapshots)
	assert.False(t, cfg.Server.TLS)
	assert.NotContains(t, cfg.Server.CertDir, "~")
}

func TestLoad_File(t *testing.T) {
	cfg, err := Load(newViper(t, `
store:
  driver: rest
  url: https://example.supabase.co/rest/v1
  api_key: anon
  requests_per_second: 5
engine:
  page_size: 1000
  wave_delay: 200ms
  timezone: Europe/Berlin
  flow_attribution: exact
cache:
  max_pages: 8
`))
	require.NoError(t, err)

	assert.Equal(t, DriverREST, cfg.Store.Driver)
	assert.Equal(t, "anon", cfg.Store.APIKey)
	assert.InDelta(t, 5.0, cfg.Store.RequestsPerSecond, 1e-9)
	assert.Equal(t, 200*time.Millisecond, cfg.Engine.WaveDelay)

	ec, err := cfg.EngineConfig()
	require.NoError(t, err)
	assert.Equal(t, 1000, ec.PageSize)
	assert.Equal(t, flow.AttributionExact, ec.FlowAttribution)
	assert.Equal(t, "Europe/Berlin", ec.Location.String())
	assert.Equal(t, 8, ec.Cache.MaxPages)
	require.NoError(t, ec.Validate())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("DRAFTFLOW_ENGINE_PAGE_SIZE", "250")
	t.Setenv("DRAFTFLOW_STORE_DRIVER", "postgres")
	t.Setenv("DRAFTFLOW_STORE_DSN", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/draftflow")

	cfg, err := Load(newViper(t, ""))
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Engine.PageSize)
	assert.Equal(t, "postgres://localhost/draftflow", cfg.Store.DSN)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"page size above store limit", "engine:\n  page_size: 5000\n"},
		{"unknown driver", "store:\n  driver: mongo\n"},
		{"rest without url", "store:\n  driver: rest\n"},
		{"bad timezone", "engine:\n  timezone: Mars/Olympus\n"},
		{"bad attribution", "engine:\n  flow_attribution: causal\n"},
		{"bad log level", "logging:\n  level: loud\n"},
		{"bad addr", "server:\n  addr: nowhere\n"},
		{"negative snapshot retention", "store:\n  keep_snapshots: -1\n"},
		{"tls without cert dir", "server:\n  tls: true\n  cert_dir: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(t, tt.yaml))
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("DRAFTFLOW_TEST_DIR", "/srv/data")

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"~", home},
		{"~/db/draftflow.db", filepath.Join(home, "db/draftflow.db")},
		{"$DRAFTFLOW_TEST_DIR/draftflow.db", "/srv/data/draftflow.db"},
		{"/abs/path.db", "/abs/path.db"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}

func TestEnsureParent(t *testing.T) {
	file := filepath.Join(t.TempDir(), "a", "b", "draftflow.db")
	require.NoError(t, EnsureParent(file))
	info, err := os.Stat(filepath.Dir(file))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
