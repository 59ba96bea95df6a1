package am

// Config represents the bkingest configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database" json:"database" yaml:"database" toml:"database"`
	Ingest   IngestConfig   `mapstructure:"ingest" json:"ingest" yaml:"ingest" toml:"ingest"`
	Catalog  CatalogConfig  `mapstructure:"catalog" json:"catalog" yaml:"catalog" toml:"catalog"`
	Server   ServerConfig   `mapstructure:"server" json:"server" yaml:"server" toml:"server"`
	Log      LogConfig      `mapstructure:"log" json:"log" yaml:"log" toml:"log"`
}

// DatabaseConfig configures the SQLite bookkeeping database
type DatabaseConfig struct {
	Path string `mapstructure:"path" json:"path" yaml:"path" toml:"path"`
}

// IngestConfig configures document ingestion and the spool directories
type IngestConfig struct {
	SpoolDir        string `mapstructure:"spool_dir" json:"spool_dir" yaml:"spool_dir" toml:"spool_dir"`
	DoneDir         string `mapstructure:"done_dir" json:"done_dir" yaml:"done_dir" toml:"done_dir"`
	FailedDir       string `mapstructure:"failed_dir" json:"failed_dir" yaml:"failed_dir" toml:"failed_dir"`
	WatchDebounceMS int    `mapstructure:"watch_debounce_ms" json:"watch_debounce_ms" yaml:"watch_debounce_ms" toml:"watch_debounce_ms"`

	// Upper-case ConfigVersion of condition-bearing (online) jobs before insertion
	ConditionConfigVersionUpper bool `mapstructure:"condition_config_version_upper" json:"condition_config_version_upper" yaml:"condition_config_version_upper" toml:"condition_config_version_upper"`
}

// CatalogConfig configures the remote replica catalog.
// An empty URL selects the local SQLite replica table.
type CatalogConfig struct {
	URL                  string  `mapstructure:"url" json:"url" yaml:"url" toml:"url"`
	TimeoutSeconds       int     `mapstructure:"timeout_seconds" json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds"`
	RequestsPerSecond    float64 `mapstructure:"requests_per_second" json:"requests_per_second" yaml:"requests_per_second" toml:"requests_per_second"`
	AllowPrivateNetworks bool    `mapstructure:"allow_private_networks" json:"allow_private_networks" yaml:"allow_private_networks" toml:"allow_private_networks"`
}

// ServerConfig configures the HTTP document receiver
type ServerConfig struct {
	Addr             string `mapstructure:"addr" json:"addr" yaml:"addr" toml:"addr"`
	MaxDocumentBytes int64  `mapstructure:"max_document_bytes" json:"max_document_bytes" yaml:"max_document_bytes" toml:"max_document_bytes"`
	ShutdownSeconds  int    `mapstructure:"shutdown_seconds" json:"shutdown_seconds" yaml:"shutdown_seconds" toml:"shutdown_seconds"`
}

// LogConfig configures log output
type LogConfig struct {
	JSON bool `mapstructure:"json" json:"json" yaml:"json" toml:"json"`
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
