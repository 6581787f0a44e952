package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aviate-labs/agent-go"
	"github.com/aviate-labs/agent-go/principal"
	"github.com/rs/zerolog"

	"node-rewards-ingester/internal/candid"
)

// DefaultICURL is the public boundary node API.
const DefaultICURL = "https://ic0.app"

// AgentOptions parameterise the IC agent transport.
type AgentOptions struct {
	URL     string
	Timeout time.Duration
}

// AgentTransport issues anonymous query calls through an IC agent and renders
// the typed replies into the Candid JSON convention the decoders read.
type AgentTransport struct {
	agent   *agent.Agent
	timeout time.Duration
	logger  zerolog.Logger
}

// NewAgentTransport constructs a transport against opts.URL, or the public
// boundary nodes when it is empty.
func NewAgentTransport(opts AgentOptions, logger zerolog.Logger) (*AgentTransport, error) {
	rawURL := strings.TrimRight(strings.TrimSpace(opts.URL), "/")
	if rawURL == "" {
		rawURL = DefaultICURL
	}
	host, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse ic url: %w", err)
	}
	if host.Scheme == "" || host.Host == "" {
		return nil, fmt.Errorf("ic url %q must be absolute", rawURL)
	}

	a, err := agent.New(agent.Config{
		ClientConfig: &agent.ClientConfig{Host: host},
	})
	if err != nil {
		return nil, fmt.Errorf("create ic agent: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &AgentTransport{
		agent:   a,
		timeout: timeout,
		logger:  logger.With().Str("component", "agent_transport").Str("host", host.Host).Logger(),
	}, nil
}

// Query calls method on canisterID with arg as its single Candid argument.
// Only the methods in replyTypes are supported, since the agent needs the
// reply type up front.
func (t *AgentTransport) Query(ctx context.Context, canisterID, method string, arg any) (json.RawMessage, error) {
	fail := func(err error) (json.RawMessage, error) {
		return nil, &TransportError{Canister: canisterID, Method: method, Err: err}
	}

	newReply, ok := replyTypes[method]
	if !ok {
		return fail(fmt.Errorf("no reply type registered for %s", method))
	}
	id, err := principal.Decode(canisterID)
	if err != nil {
		return fail(fmt.Errorf("canister id: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	reply := newReply()
	started := time.Now()

	// The agent call takes no context; the buffered channel lets an abandoned
	// call finish without blocking.
	done := make(chan error, 1)
	go func() {
		done <- t.agent.Query(id, method, []any{arg}, []any{reply})
	}()

	select {
	case <-ctx.Done():
		return fail(ctx.Err())
	case err := <-done:
		if err != nil {
			return fail(err)
		}
	}

	t.logger.Debug().
		Str("canister", canisterID).
		Str("method", method).
		Dur("elapsed", time.Since(started)).
		Msg("agent query")

	return candid.FromNative(reply)
}

var _ Transport = (*AgentTransport)(nil)
