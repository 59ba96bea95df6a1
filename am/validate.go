package am

import (
	"net/url"

	"github.com/teranos/bkingest/errors"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database.path cannot be empty")
	}

	if c.Ingest.SpoolDir == "" {
		return errors.New("ingest.spool_dir cannot be empty")
	}
	// done/failed must differ from the spool dir, otherwise processed files are picked up again
	if c.Ingest.DoneDir == "" || c.Ingest.DoneDir == c.Ingest.SpoolDir {
		return errors.Newf("ingest.done_dir must be set and differ from ingest.spool_dir, got %q", c.Ingest.DoneDir)
	}
	if c.Ingest.FailedDir == "" || c.Ingest.FailedDir == c.Ingest.SpoolDir {
		return errors.Newf("ingest.failed_dir must be set and differ from ingest.spool_dir, got %q", c.Ingest.FailedDir)
	}
	if c.Ingest.WatchDebounceMS < 0 {
		return errors.Newf("ingest.watch_debounce_ms must be >= 0, got %d", c.Ingest.WatchDebounceMS)
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr cannot be empty")
	}
	if c.Server.MaxDocumentBytes <= 0 {
		return errors.Newf("server.max_document_bytes must be > 0, got %d", c.Server.MaxDocumentBytes)
	}

	// Catalog is only validated when a remote catalog is configured
	if c.Catalog.URL != "" {
		u, err := url.Parse(c.Catalog.URL)
		if err != nil {
			return errors.Wrapf(err, "catalog.url is not a valid URL")
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return errors.Newf("catalog.url must use http or https, got %q", u.Scheme)
		}
		if c.Catalog.TimeoutSeconds <= 0 {
			return errors.Newf("catalog.timeout_seconds must be > 0, got %d", c.Catalog.TimeoutSeconds)
		}
		if c.Catalog.RequestsPerSecond <= 0 {
			return errors.Newf("catalog.requests_per_second must be > 0, got %f", c.Catalog.RequestsPerSecond)
		}
	}

	return nil
}
