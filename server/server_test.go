package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/bookkeeping/sqlstore"
	"github.com/teranos/bkingest/errors"
	"github.com/teranos/bkingest/ingest"
)

type fakeIngester struct {
	err error
}

func (f *fakeIngester) IngestBytes(_ context.Context, data []byte) (ingest.Receipt, error) {
	if f.err != nil {
		return ingest.Receipt{}, f.err
	}
	return ingest.Receipt{IngestID: "abc", Kind: bookkeeping.KindJob, JobID: 7, Files: len(data)}, nil
}

type fakeReader struct{}

func (fakeReader) Job(_ context.Context, id int64) (*sqlstore.JobRecord, error) {
	if id != 7 {
		return nil, errors.Wrapf(bookkeeping.ErrNotFound, "job %d", id)
	}
	return &sqlstore.JobRecord{ID: 7, Row: bookkeeping.Row{bookkeeping.ParamProduction: "100"}}, nil
}

func (fakeReader) OutputFile(_ context.Context, name string) (*sqlstore.FileRecord, error) {
	if name != "/lhcb/a.dst" {
		return nil, errors.New("database is locked")
	}
	return &sqlstore.FileRecord{ID: 3, Row: bookkeeping.Row{bookkeeping.ParamFileName: name}}, nil
}

func newTestServer(t *testing.T, ing Ingester, opts Options) *Server {
	t.Helper()
	opts.Logger = zaptest.NewLogger(t).Sugar()
	return New(ing, fakeReader{}, opts)
}

func do(t *testing.T, s *Server, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	return rec, decoded
}

func TestPostDocument_Accepted(t *testing.T) {
	s := newTestServer(t, &fakeIngester{}, Options{})

	rec, body := do(t, s, http.MethodPost, "/api/documents", "<Job/>")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "abc", body["ingest_id"])
	assert.Equal(t, "job", body["kind"])
	assert.Equal(t, float64(7), body["job_id"])

	_, health := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, float64(1), health["accepted"])
}

func TestPostDocument_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"malformed", &ingest.Error{Kind: ingest.MalformedXML}, http.StatusBadRequest, "MalformedXml"},
		{"missing inputs", &ingest.Error{Kind: ingest.FilesNotRegistered, Stage: ingest.StageInputResolution, Files: []string{"a"}}, http.StatusUnprocessableEntity, "FilesNotRegistered"},
		{"store", &ingest.Error{Kind: ingest.JobInsertFailed}, http.StatusBadGateway, "JobInsertFailed"},
		{"untyped", errors.New("boom"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeIngester{err: tt.err}, Options{})
			rec, body := do(t, s, http.MethodPost, "/api/documents", "<Job/>")
			assert.Equal(t, tt.status, rec.Code)
			if tt.kind == "" {
				assert.NotContains(t, body, "kind")
			} else {
				assert.Equal(t, tt.kind, body["kind"])
			}
		})
	}
}

func TestPostDocument_TooLarge(t *testing.T) {
	s := newTestServer(t, &fakeIngester{}, Options{MaxDocumentBytes: 4})

	rec, _ := do(t, s, http.MethodPost, "/api/documents", "<Job></Job>")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPostDocument_Draining(t *testing.T) {
	s := newTestServer(t, &fakeIngester{}, Options{})
	s.state.Store(int32(StateDraining))

	rec, _ := do(t, s, http.MethodPost, "/api/documents", "<Job/>")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadEndpoints(t *testing.T) {
	s := newTestServer(t, &fakeIngester{}, Options{})

	rec, body := do(t, s, http.MethodGet, "/api/jobs/7", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "100", body["attributes"].(map[string]interface{})[bookkeeping.ParamProduction])

	rec, _ = do(t, s, http.MethodGet, "/api/jobs/8", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/api/jobs/x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = do(t, s, http.MethodGet, "/api/files?name=/lhcb/a.dst", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), body["file_id"])

	rec, _ = do(t, s, http.MethodGet, "/api/files?name=/lhcb/b.dst", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/api/files", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, &fakeIngester{}, Options{ShutdownTimeout: time.Second})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool { return s.State() == StateRunning }, 5*time.Second, 10*time.Millisecond)
	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, StateStopped, s.State())
}
