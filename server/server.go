// Package server receives bookkeeping documents over HTTP.
//
// Documents are registered one at a time regardless of how many requests
// arrive concurrently; read endpoints are not serialised.
package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/bookkeeping/sqlstore"
	"github.com/teranos/bkingest/errors"
	"github.com/teranos/bkingest/ingest"
	"github.com/teranos/bkingest/logger"
	"github.com/teranos/bkingest/version"
)

// State is the lifecycle state of a Server
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

const (
	defaultMaxDocumentBytes = 8 << 20
	defaultShutdownTimeout  = 10 * time.Second
)

// Ingester accepts raw document bytes
type Ingester interface {
	IngestBytes(ctx context.Context, data []byte) (ingest.Receipt, error)
}

// Reader reads registered jobs and files back
type Reader interface {
	Job(ctx context.Context, jobID int64) (*sqlstore.JobRecord, error)
	OutputFile(ctx context.Context, name string) (*sqlstore.FileRecord, error)
}

// Options configures a Server
type Options struct {
	MaxDocumentBytes int64         // Default: 8 MiB
	ShutdownTimeout  time.Duration // Default: 10s
	Logger           *zap.SugaredLogger
}

// Server is the HTTP document receiver
type Server struct {
	ingester Ingester
	reader   Reader
	opts     Options
	log      *zap.SugaredLogger

	ingestMu sync.Mutex
	state    atomic.Int32
	accepted atomic.Int64
	rejected atomic.Int64
}

// New creates a server. reader may be nil, which disables the read endpoints.
func New(ingester Ingester, reader Reader, opts Options) *Server {
	if opts.MaxDocumentBytes <= 0 {
		opts.MaxDocumentBytes = defaultMaxDocumentBytes
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Server{
		ingester: ingester,
		reader:   reader,
		opts:     opts,
		log:      logger.OrComponent(opts.Logger, "server"),
	}
}

// State returns the current lifecycle state
func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) setState(st State) {
	s.state.Store(int32(st))
	s.log.Infow("Server state changed", "state", st.String())
}

// Handler returns the routes of the receiver
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/documents", s.handleDocument)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleJob)
	mux.HandleFunc("GET /api/files", s.handleFile)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then drains in-flight requests
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.setState(StateRunning)
	s.log.Infow("Server ready", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		s.setState(StateStopped)
		return errors.Wrap(err, "server stopped")
	case <-ctx.Done():
	}

	s.setState(StateDraining)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.setState(StateStopped)
	if err != nil {
		return errors.Wrap(err, "graceful shutdown failed")
	}
	return nil
}

type receiptBody struct {
	IngestID string `json:"ingest_id"`
	Kind     string `json:"kind"`
	JobID    int64  `json:"job_id,omitempty"`
	Files    int    `json:"files"`
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	if s.State() == StateDraining {
		writeError(w, s.log, http.StatusServiceUnavailable, "server is shutting down")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxDocumentBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, s.log, http.StatusRequestEntityTooLarge, "document exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return
		}
		writeError(w, s.log, http.StatusBadRequest, "failed to read document")
		return
	}

	s.ingestMu.Lock()
	receipt, err := s.ingester.IngestBytes(r.Context(), data)
	s.ingestMu.Unlock()

	if err != nil {
		s.rejected.Add(1)
		writeIngestError(w, s.log, err)
		return
	}
	s.accepted.Add(1)
	writeJSON(w, s.log, http.StatusCreated, receiptBody{
		IngestID: receipt.IngestID,
		Kind:     receipt.Kind.String(),
		JobID:    receipt.JobID,
		Files:    receipt.Files,
	})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	if s.reader == nil {
		writeError(w, s.log, http.StatusNotFound, "read endpoints disabled")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, s.log, http.StatusBadRequest, "job id must be an integer")
		return
	}

	rec, err := s.reader.Job(r.Context(), id)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, map[string]interface{}{
		"job_id":     rec.ID,
		"attributes": rec.Row,
	})
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	if s.reader == nil {
		writeError(w, s.log, http.StatusNotFound, "read endpoints disabled")
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, s.log, http.StatusBadRequest, "missing name parameter")
		return
	}

	rec, err := s.reader.OutputFile(r.Context(), name)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, map[string]interface{}{
		"file_id":    rec.ID,
		"job_id":     rec.JobID,
		"attributes": rec.Row,
	})
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	if bookkeeping.IsNotFound(err) {
		writeError(w, s.log, http.StatusNotFound, err.Error())
		return
	}
	s.log.Errorw("Lookup failed", logger.FieldError, err)
	writeError(w, s.log, http.StatusInternalServerError, "lookup failed")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := version.Get()
	writeJSON(w, s.log, http.StatusOK, map[string]interface{}{
		"status":   s.State().String(),
		"version":  info.Version,
		"commit":   info.CommitHash,
		"accepted": s.accepted.Load(),
		"rejected": s.rejected.Load(),
	})
}
