package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/logger"
)

// Parser turns raw document bytes into a typed document
type Parser interface {
	Parse(data []byte) (bookkeeping.Document, error)
}

// ParserFunc adapts a function to Parser
type ParserFunc func(data []byte) (bookkeeping.Document, error)

// Parse calls f(data)
func (f ParserFunc) Parse(data []byte) (bookkeeping.Document, error) {
	return f(data)
}

// Receipt summarises one accepted document
type Receipt struct {
	IngestID string
	Kind     bookkeeping.DocumentKind
	JobID    int64
	Files    int // outputs of a job, actions of a replica document
}

// Manager dispatches documents to the job or replica registrar
type Manager struct {
	jobs     *JobRegistrar
	replicas *ReplicaRegistrar
	parser   Parser
	log      *zap.SugaredLogger
}

// ManagerOptions configures a Manager
type ManagerOptions struct {
	Parser Parser             // Required for IngestBytes
	Logger *zap.SugaredLogger // Default: component logger "ingest.manager"
}

// NewManager creates a manager over the two registrars
func NewManager(jobs *JobRegistrar, replicas *ReplicaRegistrar, opts ManagerOptions) *Manager {
	return &Manager{
		jobs:     jobs,
		replicas: replicas,
		parser:   opts.Parser,
		log:      logger.OrComponent(opts.Logger, "ingest.manager"),
	}
}

// withIngestID tags ctx with a fresh ingest ID unless it already carries one
func withIngestID(ctx context.Context) (context.Context, string) {
	if id := logger.IngestIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return logger.WithIngestID(ctx, id), id
}

// Ingest registers an already parsed document. Registrar errors are returned unchanged.
func (m *Manager) Ingest(ctx context.Context, doc bookkeeping.Document) error {
	_, err := m.ingest(ctx, doc)
	return err
}

// IngestBytes parses and registers a raw document
func (m *Manager) IngestBytes(ctx context.Context, data []byte) (Receipt, error) {
	ctx, id := withIngestID(ctx)
	if m.parser == nil {
		return Receipt{IngestID: id}, &Error{Kind: MalformedXML, Stage: StageDispatch, Cause: errNoParser}
	}

	doc, err := m.parser.Parse(data)
	if err != nil {
		ierr := &Error{Kind: MalformedXML, Stage: StageDispatch, Cause: err}
		logger.FromContext(ctx, m.log).Errorw("Document rejected", ierr.logFields()...)
		return Receipt{IngestID: id}, ierr
	}
	return m.ingest(ctx, doc)
}

func (m *Manager) ingest(ctx context.Context, doc bookkeeping.Document) (Receipt, error) {
	ctx, id := withIngestID(ctx)
	log := logger.FromContext(ctx, m.log)
	receipt := Receipt{IngestID: id, Kind: doc.Kind}
	start := time.Now()

	var err error
	switch {
	case doc.Kind == bookkeeping.KindJob && doc.Job != nil:
		log.Infow("Ingesting job document",
			"inputs", len(doc.Job.InputFiles),
			"outputs", len(doc.Job.OutputFiles))
		err = m.jobs.Process(ctx, doc.Job)
		if doc.Job.JobID != nil && err == nil {
			receipt.JobID = *doc.Job.JobID
		}
		receipt.Files = len(doc.Job.OutputFiles)

	case doc.Kind == bookkeeping.KindReplica && doc.Replica != nil:
		log.Infow("Ingesting replica document", logger.FieldCount, len(doc.Replica.Actions))
		err = m.replicas.Process(ctx, doc.Replica)
		receipt.Files = len(doc.Replica.Actions)

	default:
		ierr := &Error{Kind: UnknownDocumentKind, Stage: StageDispatch}
		log.Errorw("Unknown document kind", logger.FieldErrorKind, ierr.Kind.String(), logger.FieldDocument, doc.Root)
		return receipt, ierr
	}

	if err != nil {
		return receipt, err
	}
	log.Infow("Document committed",
		logger.FieldDocument, doc.Kind.String(),
		logger.FieldJobID, receipt.JobID,
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return receipt, nil
}
