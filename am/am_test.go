package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Isolated viper instance without user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	if cfg.Database.Path != DefaultDatabasePath {
		t.Errorf("expected default database path %q, got %q", DefaultDatabasePath, cfg.Database.Path)
	}
	if cfg.Ingest.SpoolDir != "spool" || cfg.Ingest.DoneDir != "spool/done" || cfg.Ingest.FailedDir != "spool/failed" {
		t.Errorf("unexpected spool defaults: %+v", cfg.Ingest)
	}
	if !cfg.Ingest.ConditionConfigVersionUpper {
		t.Error("expected condition_config_version_upper to default to true")
	}
	if cfg.Catalog.URL != "" {
		t.Errorf("expected empty catalog url, got %q", cfg.Catalog.URL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bkingest.toml")
	content := `
[database]
path = "/data/bk.db"

[ingest]
spool_dir = "/data/in"
done_dir = "/data/done"
failed_dir = "/data/failed"

[catalog]
url = "https://catalog.example.org"
requests_per_second = 2.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), DefaultFilePermissions))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/bk.db", cfg.Database.Path)
	assert.Equal(t, "/data/in", cfg.Ingest.SpoolDir)
	assert.Equal(t, "https://catalog.example.org", cfg.Catalog.URL)
	assert.Equal(t, 2.5, cfg.Catalog.RequestsPerSecond)
	// untouched keys keep their defaults
	assert.Equal(t, DefaultCatalogTimeout, cfg.Catalog.TimeoutSeconds)
	assert.Equal(t, DefaultWatchDebounceMS, cfg.Ingest.WatchDebounceMS)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestMergeConfigFiles_Precedence(t *testing.T) {
	dir := t.TempDir()
	low := filepath.Join(dir, "low.toml")
	high := filepath.Join(dir, "high.toml")
	require.NoError(t, os.WriteFile(low, []byte("[database]\npath = \"low.db\"\n[ingest]\nspool_dir = \"low-spool\"\n"), DefaultFilePermissions))
	require.NoError(t, os.WriteFile(high, []byte("[database]\npath = \"high.db\"\n"), DefaultFilePermissions))

	Reset()
	defer Reset()

	v := viper.New()
	SetDefaults(v)
	merged := mergeConfigFiles(v, []configCandidate{
		{path: low, source: SourceUser},
		{path: filepath.Join(dir, "absent.toml"), source: SourceUser},
		{path: high, source: SourceProject},
	})

	assert.Equal(t, []string{low, high}, merged)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.Equal(t, "high.db", cfg.Database.Path)
	assert.Equal(t, "low-spool", cfg.Ingest.SpoolDir)

	assert.Equal(t, SourceInfo{Source: SourceProject, Path: high}, ConfigSources["database.path"])
	assert.Equal(t, SourceInfo{Source: SourceUser, Path: low}, ConfigSources["ingest.spool_dir"])
	_, tracked := ConfigSources["catalog.url"]
	assert.False(t, tracked, "defaults are not tracked as file sources")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		v := viper.New()
		SetDefaults(v)
		cfg, _ := LoadWithViper(v)
		return *cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"empty database path", func(c *Config) { c.Database.Path = "" }, true},
		{"done equals spool", func(c *Config) { c.Ingest.DoneDir = c.Ingest.SpoolDir }, true},
		{"failed empty", func(c *Config) { c.Ingest.FailedDir = "" }, true},
		{"negative debounce", func(c *Config) { c.Ingest.WatchDebounceMS = -1 }, true},
		{"catalog bad scheme", func(c *Config) { c.Catalog.URL = "ftp://catalog" }, true},
		{"catalog zero rate", func(c *Config) {
			c.Catalog.URL = "https://catalog"
			c.Catalog.RequestsPerSecond = 0
		}, true},
		{"catalog ok", func(c *Config) { c.Catalog.URL = "http://catalog:8080" }, false},
		{"server addr empty", func(c *Config) { c.Server.Addr = "" }, true},
		{"server zero body limit", func(c *Config) { c.Server.MaxDocumentBytes = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
