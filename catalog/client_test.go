package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/bkingest/bookkeeping"
)

func newTestClient(t *testing.T, h http.HandlerFunc, rps float64) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/", Options{
		Timeout:              2 * time.Second,
		RequestsPerSecond:    rps,
		AllowPrivateNetworks: true,
		Logger:               zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)
	return c
}

func TestCurrentReplicas(t *testing.T) {
	var gotPath, gotLFN string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotLFN = r.URL.Query().Get("lfn")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"replicas":{"CERN-DST":{"pfn":"root://eos/x.dst","se":"CERN-DST-EOS"}}}`))
	}, 0)

	replicas, err := c.CurrentReplicas(context.Background(), "/lhcb/MC/2024/DST/x.dst")
	require.NoError(t, err)
	assert.Equal(t, "/replicas", gotPath)
	assert.Equal(t, "/lhcb/MC/2024/DST/x.dst", gotLFN)
	assert.Equal(t, map[string]bookkeeping.ReplicaInfo{
		"CERN-DST": {PFN: "root://eos/x.dst", SE: "CERN-DST-EOS"},
	}, replicas)
}

func TestCurrentReplicas_EmptyAndNotFound(t *testing.T) {
	status := http.StatusOK
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{}`))
		}
	}, 0)

	replicas, err := c.CurrentReplicas(context.Background(), "a")
	require.NoError(t, err)
	assert.NotNil(t, replicas)
	assert.Empty(t, replicas)

	status = http.StatusNotFound
	replicas, err = c.CurrentReplicas(context.Background(), "a")
	require.NoError(t, err)
	assert.Empty(t, replicas)
}

func TestCurrentReplicas_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "catalog down", http.StatusBadGateway)
	}, 0)

	_, err := c.CurrentReplicas(context.Background(), "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestCurrentReplicas_BadJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"replicas":`))
	}, 0)

	_, err := c.CurrentReplicas(context.Background(), "a")
	assert.Error(t, err)
}

func TestCurrentReplicas_RateLimited(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"replicas":{}}`))
	}, 0.5)

	ctx := context.Background()
	_, err := c.CurrentReplicas(ctx, "a")
	require.NoError(t, err)

	// the burst is spent; the next token is two seconds away
	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = c.CurrentReplicas(short, "b")
	assert.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCurrentReplicas_ContextCanceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.CurrentReplicas(ctx, "a")
	assert.Error(t, err)
}

func TestNew_RejectsInvalidURL(t *testing.T) {
	_, err := New("ftp://catalog.example.org", Options{})
	assert.Error(t, err)

	_, err = New("http://127.0.0.1:9000", Options{})
	assert.Error(t, err, "private targets need AllowPrivateNetworks")
}
