package publisher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"node-rewards-ingester/internal/day"
	"node-rewards-ingester/internal/metrics"
)

var testDay = day.MustNew(2024, time.March, 1)

type recorder struct {
	mu       sync.Mutex
	status   int
	requests []recorded
}

type recorded struct {
	method   string
	path     string
	ctype    string
	encoding string
	auth     string
	body     []byte
}

func (r *recorder) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.requests = append(r.requests, recorded{
			method:   req.Method,
			path:     req.URL.Path,
			ctype:    req.Header.Get("Content-Type"),
			encoding: req.Header.Get("Content-Encoding"),
			auth:     req.Header.Get("Authorization"),
			body:     body,
		})
		status := r.status
		r.mu.Unlock()
		if status == 0 {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
		if status >= 300 {
			_, _ = w.Write([]byte("cannot parse line\n"))
		}
	})
}

func twoSamples() []metrics.Sample {
	ts := testDay.NoonMillis()
	return []metrics.Sample{
		{Name: metrics.NodesCount, Labels: []metrics.Label{metrics.L("provider_id", "P")}, Value: decimal.Zero, TimestampMs: ts},
		{Name: metrics.TotalBaseRewards, Labels: []metrics.Label{metrics.L("provider_id", "P")}, Value: decimal.NewFromInt(12345), TimestampMs: ts},
	}
}

func newPublisher(t *testing.T, url string, opts Options) *Publisher {
	t.Helper()
	opts.BaseURL = url
	p, err := New(opts, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPushSendsLines(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	p := newPublisher(t, srv.URL, Options{Headers: map[string]string{"Authorization": "Bearer x"}})
	require.NoError(t, p.Push(context.Background(), testDay, twoSamples()))

	require.Len(t, rec.requests, 1)
	got := rec.requests[0]
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/api/v1/import/prometheus", got.path)
	assert.Equal(t, "text/plain", got.ctype)
	assert.Empty(t, got.encoding)
	assert.Equal(t, "Bearer x", got.auth)
	assert.Equal(t,
		"nodes_count{provider_id=\"P\"} 0 1709294400000\n"+
			"total_base_rewards_xdr_permyriad{provider_id=\"P\"} 12345 1709294400000\n",
		string(got.body))
}

func TestPushEmptyMakesNoRequest(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	p := newPublisher(t, srv.URL, Options{})
	assert.ErrorIs(t, p.Push(context.Background(), testDay, nil), ErrNoSamples)
	assert.ErrorIs(t, p.PushLines(context.Background(), testDay, nil), ErrNoSamples)
	assert.Empty(t, rec.requests)
}

func TestPushIsIdempotent(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	p := newPublisher(t, srv.URL, Options{})
	require.NoError(t, p.Push(context.Background(), testDay, twoSamples()))
	require.NoError(t, p.Push(context.Background(), testDay, twoSamples()))

	require.Len(t, rec.requests, 2)
	assert.Equal(t, rec.requests[0].body, rec.requests[1].body)
}

func TestPushRejected(t *testing.T) {
	rec := &recorder{status: http.StatusBadRequest}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	p := newPublisher(t, srv.URL, Options{})
	err := p.Push(context.Background(), testDay, twoSamples())

	var pe *PushError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusBadRequest, pe.StatusCode)
	assert.Equal(t, "cannot parse line", pe.Body)
	assert.Equal(t, testDay, pe.Day)
}

func TestPushUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := newPublisher(t, url, Options{Timeout: time.Second})
	err := p.Push(context.Background(), testDay, twoSamples())

	var pe *PushError
	require.ErrorAs(t, err, &pe)
	assert.Zero(t, pe.StatusCode)
	assert.Error(t, pe.Err)
}

func TestPushCompressed(t *testing.T) {
	want, err := metrics.Encode(twoSamples())
	require.NoError(t, err)

	for _, algo := range []string{CompressionGzip, CompressionZstd} {
		t.Run(algo, func(t *testing.T) {
			rec := &recorder{}
			srv := httptest.NewServer(rec.handler())
			defer srv.Close()

			p := newPublisher(t, srv.URL, Options{Compression: algo})
			require.NoError(t, p.Push(context.Background(), testDay, twoSamples()))
			require.Len(t, rec.requests, 1)
			assert.Equal(t, algo, rec.requests[0].encoding)

			var r io.Reader
			switch algo {
			case CompressionGzip:
				gr, err := gzip.NewReader(bytes.NewReader(rec.requests[0].body))
				require.NoError(t, err)
				r = gr
			case CompressionZstd:
				zr, err := zstd.NewReader(bytes.NewReader(rec.requests[0].body))
				require.NoError(t, err)
				defer zr.Close()
				r = zr
			}
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(Options{}, zerolog.Nop())
	assert.Error(t, err)

	_, err = New(Options{BaseURL: "http://vm:8428", Compression: "snappy"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestReady(t *testing.T) {
	var ready bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/-/ready", r.URL.Path)
		if !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	p := newPublisher(t, srv.URL+"/", Options{})
	assert.Error(t, p.Ready(context.Background()))
	ready = true
	assert.NoError(t, p.Ready(context.Background()))
}
