package am

import (
	"github.com/spf13/viper"
)

// Default values
const (
	DefaultDatabasePath      = "bookkeeping.db"
	DefaultSpoolDir          = "spool"
	DefaultDoneDir           = "spool/done"
	DefaultFailedDir         = "spool/failed"
	DefaultWatchDebounceMS   = 500
	DefaultCatalogTimeout    = 30
	DefaultCatalogRatePerSec = 5.0
	DefaultServerAddr        = "127.0.0.1:8780"
	DefaultMaxDocumentBytes  = 8 << 20
	DefaultShutdownSeconds   = 10
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", DefaultDatabasePath)

	// Ingestion defaults
	v.SetDefault("ingest.spool_dir", DefaultSpoolDir)
	v.SetDefault("ingest.done_dir", DefaultDoneDir)
	v.SetDefault("ingest.failed_dir", DefaultFailedDir)
	v.SetDefault("ingest.watch_debounce_ms", DefaultWatchDebounceMS)
	v.SetDefault("ingest.condition_config_version_upper", true)

	// Replica catalog defaults (empty url = local replica table)
	v.SetDefault("catalog.url", "")
	v.SetDefault("catalog.timeout_seconds", DefaultCatalogTimeout)
	v.SetDefault("catalog.requests_per_second", DefaultCatalogRatePerSec)
	v.SetDefault("catalog.allow_private_networks", false)

	v.SetDefault("server.addr", DefaultServerAddr)
	v.SetDefault("server.max_document_bytes", DefaultMaxDocumentBytes)
	v.SetDefault("server.shutdown_seconds", DefaultShutdownSeconds)

	v.SetDefault("log.json", false)
}

// BindSensitiveEnvVars explicitly binds configuration that is commonly injected by deployment tooling
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("database.path", "BKINGEST_DATABASE_PATH", "BKINGEST_DB")
	_ = v.BindEnv("catalog.url", "BKINGEST_CATALOG_URL")
}
