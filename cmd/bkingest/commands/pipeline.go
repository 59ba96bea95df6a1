package commands

import (
	"database/sql"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/bkingest/am"
	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/bookkeeping/sqlstore"
	"github.com/teranos/bkingest/catalog"
	"github.com/teranos/bkingest/db"
	"github.com/teranos/bkingest/errors"
	"github.com/teranos/bkingest/ingest"
	"github.com/teranos/bkingest/logger"
	"github.com/teranos/bkingest/xmldoc"
)

// pipeline is everything a command needs to ingest documents
type pipeline struct {
	cfg     *am.Config
	db      *sql.DB
	store   *sqlstore.Store
	manager *ingest.Manager
}

func (p *pipeline) Close() error {
	return p.db.Close()
}

// loadConfig loads and validates the configuration, applying the --db override
func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if path, _ := cmd.Flags().GetString("db"); path != "" {
		override := *cfg
		override.Database.Path = path
		cfg = &override
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// openStore opens and migrates the configured database
func openStore(cfg *am.Config) (*sql.DB, *sqlstore.Store, error) {
	database, err := db.OpenWithMigrations(cfg.Database.Path, logger.ComponentLogger("db"))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open database at %s", cfg.Database.Path)
	}
	return database, sqlstore.New(database, nil), nil
}

// replicaCatalog picks the remote catalog when one is configured, else the local replica table
func replicaCatalog(cfg *am.Config, store *sqlstore.Store) (bookkeeping.ReplicaCatalog, error) {
	if cfg.Catalog.URL == "" {
		return store, nil
	}
	return catalog.New(cfg.Catalog.URL, catalog.Options{
		Timeout:              time.Duration(cfg.Catalog.TimeoutSeconds) * time.Second,
		RequestsPerSecond:    cfg.Catalog.RequestsPerSecond,
		AllowPrivateNetworks: cfg.Catalog.AllowPrivateNetworks,
	})
}

func openPipeline(cmd *cobra.Command) (*pipeline, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	database, store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	cat, err := replicaCatalog(cfg, store)
	if err != nil {
		database.Close()
		return nil, err
	}

	jobs := ingest.NewJobRegistrarWithOptions(store, nil, ingest.JobRegistrarOptions{
		UpperConfigVersion: cfg.Ingest.ConditionConfigVersionUpper,
	})
	replicas := ingest.NewReplicaRegistrar(store, cat, nil)
	manager := ingest.NewManager(jobs, replicas, ingest.ManagerOptions{
		Parser: ingest.ParserFunc(xmldoc.Parse),
	})

	return &pipeline{cfg: cfg, db: database, store: store, manager: manager}, nil
}
