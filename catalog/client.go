// Package catalog queries a remote replica catalog over HTTP.
package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/bkingest/bookkeeping"
	"github.com/teranos/bkingest/errors"
	"github.com/teranos/bkingest/internal/httpclient"
	"github.com/teranos/bkingest/logger"
)

const (
	defaultTimeout = 30 * time.Second
	// Responses larger than this are rejected
	maxResponseBytes = 4 << 20
)

// Options configures a catalog Client
type Options struct {
	Timeout              time.Duration // Default: 30s
	RequestsPerSecond    float64       // Zero or negative disables rate limiting
	AllowPrivateNetworks bool
	Logger               *zap.SugaredLogger
}

// Client implements bookkeeping.ReplicaCatalog against GET {base}/replicas?lfn=<name>
type Client struct {
	base    *url.URL
	http    *httpclient.Client
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

type replicasResponse struct {
	Replicas map[string]bookkeeping.ReplicaInfo `json:"replicas"`
}

var _ bookkeeping.ReplicaCatalog = (*Client)(nil)

// New creates a catalog client for baseURL
func New(baseURL string, opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	hc := httpclient.New(opts.Timeout, httpclient.Options{AllowPrivateNetwork: opts.AllowPrivateNetworks})

	base, err := hc.ValidateURL(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid catalog URL %q", baseURL)
	}

	c := &Client{
		base: base,
		http: hc,
		log:  logger.OrComponent(opts.Logger, "catalog"),
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c, nil
}

// CurrentReplicas returns the replicas the catalog knows for fileName, keyed by location
func (c *Client) CurrentReplicas(ctx context.Context, fileName string) (map[string]bookkeeping.ReplicaInfo, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "catalog rate limiter")
		}
	}

	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/replicas"
	u.RawQuery = url.Values{"lfn": []string{fileName}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build catalog request")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "catalog request for %s failed", fileName)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read catalog response")
	}
	if len(body) > maxResponseBytes {
		return nil, errors.Newf("catalog response for %s exceeds %d bytes", fileName, maxResponseBytes)
	}

	// The catalog answers 404 for a file it holds no replicas of
	if resp.StatusCode == http.StatusNotFound {
		return map[string]bookkeeping.ReplicaInfo{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := errors.Newf("catalog returned %d for %s", resp.StatusCode, fileName)
		if msg := strings.TrimSpace(string(body)); msg != "" {
			err = errors.WithDetail(err, msg)
		}
		return nil, err
	}

	var parsed replicasResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(err, "failed to decode catalog response")
	}
	if parsed.Replicas == nil {
		parsed.Replicas = make(map[string]bookkeeping.ReplicaInfo)
	}

	c.log.Debugw("Catalog lookup",
		logger.FieldFile, fileName,
		logger.FieldCount, len(parsed.Replicas),
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return parsed.Replicas, nil
}
