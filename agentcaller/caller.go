// Package agentcaller is the HTTP Agent Caller collaborator: it invokes a derivation
// agent's update endpoint and returns the identifiers of the entities it produced. The
// original transport used an HTTP GET carrying a JSON body; most HTTP client stacks
// (and intermediate proxies) reject or mangle a body on GET, so this package sends the
// same JSON payload as a POST instead. The wire contract's field names are otherwise
// unchanged: an agent still reads "derived_agent_input" and writes
// "derived_agent_output".
package agentcaller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/TheWorldAvatar/BaseLib/internal/logger"
)

// Request is the payload sent to a derivation agent: the identifiers of its current
// inputs.
type Request struct {
	DerivedAgentInput []string `json:"derived_agent_input"`
}

// Response is the payload an agent returns: the identifiers of the entities it wrote
// during this update.
type Response struct {
	DerivedAgentOutput []string `json:"derived_agent_output"`
}

// AgentError reports that an agent's HTTP endpoint returned a non-success status or an
// undecodable body.
type AgentError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agentcaller: agent %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Caller is the interface the derivation engine depends on.
type Caller interface {
	Call(ctx context.Context, url string, inputs []string) (*Response, error)
}

// HTTPCaller invokes an agent over HTTP: build the request with
// http.NewRequestWithContext, set the content type, decode the JSON body, log with
// zerolog.
type HTTPCaller struct {
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPCaller returns a caller using the given HTTP client. Passing nil uses
// http.DefaultClient.
func NewHTTPCaller(client *http.Client) *HTTPCaller {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPCaller{httpClient: client, logger: logger.Get("agentcaller")}
}

var _ Caller = (*HTTPCaller)(nil)

// Call posts the current inputs to the agent's URL and returns the outputs it reports.
func (c *HTTPCaller) Call(ctx context.Context, url string, inputs []string) (*Response, error) {
	payload, err := json.Marshal(Request{DerivedAgentInput: inputs})
	if err != nil {
		return nil, fmt.Errorf("agentcaller: failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("agentcaller: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug().Str("url", url).Strs("inputs", inputs).Msg("calling derivation agent")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agentcaller: request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	var decoded Response
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error().Str("url", url).Int("status", resp.StatusCode).Msg("agent call rejected")
		return nil, &AgentError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &AgentError{URL: url, StatusCode: resp.StatusCode, Body: fmt.Sprintf("undecodable response body: %v", err)}
	}

	c.logger.Debug().Str("url", url).Strs("outputs", decoded.DerivedAgentOutput).Msg("agent call completed")
	return &decoded, nil
}
