// Package publisher pushes exposition lines into VictoriaMetrics.
package publisher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"node-rewards-ingester/internal/day"
	"node-rewards-ingester/internal/metrics"
)

const (
	readyPath  = "/-/ready"
	importPath = "/api/v1/import/prometheus"

	maxErrorBody = 4 << 10
)

// ErrNoSamples means there was nothing to push for the day.
var ErrNoSamples = errors.New("no samples to push")

// PushError reports a rejected or failed import.
type PushError struct {
	Day        day.Day
	StatusCode int
	Body       string
	Err        error
}

func (e *PushError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("push %s: status %d: %s", e.Day, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("push %s: %v", e.Day, e.Err)
	default:
		return fmt.Sprintf("push %s failed", e.Day)
	}
}

func (e *PushError) Unwrap() error { return e.Err }

// Options parameterise the VictoriaMetrics publisher.
type Options struct {
	BaseURL      string
	Timeout      time.Duration
	ReadyTimeout time.Duration
	Compression  string
	Headers      map[string]string
}

// Publisher imports samples through the Prometheus text import endpoint.
type Publisher struct {
	opts       Options
	logger     zerolog.Logger
	client     *http.Client
	baseURL    string
	compressor *compressor
}

// New constructs a publisher.
func New(opts Options, logger zerolog.Logger) (*Publisher, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("victoria metrics url not configured")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 5 * time.Second
	}

	comp, err := newCompressor(opts.Compression)
	if err != nil {
		return nil, err
	}

	return &Publisher{
		opts:       opts,
		logger:     logger.With().Str("component", "publisher").Logger(),
		client:     &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		compressor: comp,
	}, nil
}

// Close releases compressor resources.
func (p *Publisher) Close() error {
	return p.compressor.close()
}

// Ready returns nil once the store answers its readiness check with 200.
func (p *Publisher) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.ReadyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+readyPath, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("victoria metrics not ready: status %d", resp.StatusCode)
	}
	return nil
}

// Push sends all samples of a day in a single import request. Re-pushing the
// same day writes the same series at the same timestamps.
func (p *Publisher) Push(ctx context.Context, d day.Day, samples []metrics.Sample) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}

	body, err := metrics.Encode(samples)
	if err != nil {
		return &PushError{Day: d, Err: err}
	}
	return p.PushLines(ctx, d, body)
}

// PushLines sends pre-rendered exposition lines.
func (p *Publisher) PushLines(ctx context.Context, d day.Day, body []byte) error {
	if len(body) == 0 {
		return ErrNoSamples
	}

	payload, err := p.compressor.compress(body)
	if err != nil {
		return &PushError{Day: d, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+importPath, bytes.NewReader(payload))
	if err != nil {
		return &PushError{Day: d, Err: err}
	}
	req.Header.Set("Content-Type", "text/plain")
	if enc := p.compressor.contentEncoding(); enc != "" {
		req.Header.Set("Content-Encoding", enc)
	}
	for k, v := range p.opts.Headers {
		req.Header.Set(k, v)
	}

	started := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return &PushError{Day: d, Err: err}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &PushError{Day: d, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	p.logger.Debug().
		Stringer("day", d).
		Int("bytes", len(body)).
		Int("wire_bytes", len(payload)).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("pushed samples")
	return nil
}
