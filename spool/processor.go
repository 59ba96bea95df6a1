// Package spool ingests bookkeeping documents dropped into a directory.
//
// Files are processed one at a time in name order. Each file ends up in the
// done directory or, with a sibling .err file holding the failure, in the
// failed directory.
package spool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/bkingest/errors"
	"github.com/teranos/bkingest/ingest"
	"github.com/teranos/bkingest/logger"
)

const (
	dirPermissions  = 0755
	filePermissions = 0644

	// ErrSuffix names the sidecar holding the failure of a rejected document
	ErrSuffix = ".err"
)

// Ingester accepts raw document bytes
type Ingester interface {
	IngestBytes(ctx context.Context, data []byte) (ingest.Receipt, error)
}

// Options configures a Processor
type Options struct {
	SpoolDir  string
	DoneDir   string
	FailedDir string
	Logger    *zap.SugaredLogger // Default: component logger "spool"
}

// Result is the outcome of one spooled file
type Result struct {
	File    string
	Receipt ingest.Receipt
	Err     error
}

// Summary counts the files handled by one pass
type Summary struct {
	Succeeded int
	Failed    int
	Results   []Result
}

// Processed is the number of files handled
func (s Summary) Processed() int {
	return s.Succeeded + s.Failed
}

// Processor drains a spool directory through an Ingester
type Processor struct {
	ingester Ingester
	opts     Options
	log      *zap.SugaredLogger
}

// NewProcessor creates a processor. All three directories are required.
func NewProcessor(ingester Ingester, opts Options) (*Processor, error) {
	if ingester == nil {
		return nil, errors.New("spool processor needs an ingester")
	}
	for name, dir := range map[string]string{"spool": opts.SpoolDir, "done": opts.DoneDir, "failed": opts.FailedDir} {
		if dir == "" {
			return nil, errors.Newf("%s directory not configured", name)
		}
	}
	return &Processor{
		ingester: ingester,
		opts:     opts,
		log:      logger.OrComponent(opts.Logger, "spool"),
	}, nil
}

// Dir is the directory being drained
func (p *Processor) Dir() string {
	return p.opts.SpoolDir
}

// RunOnce ingests every *.xml file currently in the spool directory.
// Rejected documents are counted, not returned; the error reports a spool
// that cannot be read, a file that cannot be moved out of it, or cancellation.
// A document whose ingestion is cut short by cancellation is left in the spool.
func (p *Processor) RunOnce(ctx context.Context) (Summary, error) {
	var summary Summary

	for _, dir := range []string{p.opts.DoneDir, p.opts.FailedDir} {
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			return summary, errors.Wrapf(err, "failed to create %s", dir)
		}
	}

	files, err := p.pending()
	if err != nil {
		return summary, err
	}
	if len(files) == 0 {
		return summary, nil
	}

	start := time.Now()
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		res := p.processFile(ctx, name)
		if res.Err != nil && ctx.Err() != nil {
			// interrupted, not rejected: the document stays for the next pass
			p.log.Infow("Spool pass interrupted", logger.FieldPath, name)
			return summary, ctx.Err()
		}
		summary.Results = append(summary.Results, res)
		if res.Err != nil {
			summary.Failed++
			if err := p.reject(name, res.Err); err != nil {
				return summary, err
			}
			continue
		}
		summary.Succeeded++
		if err := moveFile(p.path(name), filepath.Join(p.opts.DoneDir, name)); err != nil {
			return summary, err
		}
	}

	logger.SpoolInfow(p.log, "Spool drained",
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return summary, nil
}

// pending lists spooled documents in name order
func (p *Processor) pending() ([]string, error) {
	entries, err := os.ReadDir(p.opts.SpoolDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read spool directory %s", p.opts.SpoolDir)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && isDocument(e.Name()) {
			files = append(files, e.Name())
		}
	}
	return files, nil
}

func (p *Processor) processFile(ctx context.Context, name string) Result {
	res := Result{File: name}
	data, err := os.ReadFile(p.path(name))
	if err != nil {
		res.Err = errors.Wrapf(err, "failed to read %s", name)
		return res
	}
	res.Receipt, res.Err = p.ingester.IngestBytes(ctx, data)
	if res.Err == nil {
		p.log.Debugw("Spooled document ingested",
			logger.FieldPath, name,
			logger.FieldIngestID, res.Receipt.IngestID)
	}
	return res
}

func (p *Processor) reject(name string, cause error) error {
	logger.SpoolWarnw(p.log, "Spooled document rejected",
		logger.FieldPath, name,
		logger.FieldError, cause)

	errPath := filepath.Join(p.opts.FailedDir, name+ErrSuffix)
	if err := os.WriteFile(errPath, []byte(cause.Error()+"\n"), filePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", errPath)
	}
	return moveFile(p.path(name), filepath.Join(p.opts.FailedDir, name))
}

func (p *Processor) path(name string) string {
	return filepath.Join(p.opts.SpoolDir, name)
}

// isDocument skips hidden files, which writers use for partial uploads
func isDocument(name string) bool {
	return !strings.HasPrefix(name, ".") && strings.EqualFold(filepath.Ext(name), ".xml")
}

func moveFile(from, to string) error {
	if err := os.Rename(from, to); err != nil {
		return errors.Wrapf(err, "failed to move %s to %s", from, to)
	}
	return nil
}
