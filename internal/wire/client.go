package wire

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dusk-indust/coordinate/internal/agent"
)

// Client calls hosted agents over HTTP/JSON-RPC.
type Client struct {
	http      *http.Client
	requestID atomic.Int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a wire client. Without options, requests are bounded
// only by their context.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{http: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Discover fetches the agent card from the well-known path under baseURL.
func (c *Client) Discover(ctx context.Context, baseURL string) (*AgentCard, error) {
	url := strings.TrimRight(baseURL, "/") + CardPath

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("wire: create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("wire: discover agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("wire: discover agent: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var card AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("wire: decode agent card: %w", err)
	}
	if card.ID == "" {
		return nil, fmt.Errorf("wire: discover agent: card at %s has no id", url)
	}
	return &card, nil
}

// Process sends in to the agent at endpoint.
func (c *Client) Process(ctx context.Context, endpoint string, in agent.Input) (agent.Output, error) {
	var out agent.Output
	if err := c.call(ctx, endpoint, MethodProcess, ProcessParams{Input: in}, &out); err != nil {
		return agent.Output{}, err
	}
	return out, nil
}

// Communicate delivers a peer message to the agent at endpoint and returns
// its reply.
func (c *Client) Communicate(ctx context.Context, endpoint, peer string, msg agent.Message) (agent.Message, error) {
	var reply agent.Message
	params := CommunicateParams{Peer: peer, Message: msg}
	if err := c.call(ctx, endpoint, MethodCommunicate, params, &reply); err != nil {
		return agent.Message{}, err
	}
	return reply, nil
}

// nextID returns a monotonically increasing request ID for JSON-RPC calls.
func (c *Client) nextID() int64 {
	return c.requestID.Add(1)
}

// call performs a JSON-RPC 2.0 call over HTTP POST.
func (c *Client) call(ctx context.Context, endpoint, method string, params any, result any) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("wire: marshal params: %w", err)
	}

	body, err := json.Marshal(JSONRPCRequest{
		JSONRPC: JSONRPCVersion,
		ID:      c.nextID(),
		Method:  method,
		Params:  paramsJSON,
	})
	if err != nil {
		return fmt.Errorf("wire: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("wire: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("wire: %s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("wire: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wire: %s: HTTP %d: %s", method, resp.StatusCode, string(respBody))
	}

	var rpcResp JSONRPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("wire: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return &RPCError{
			Method:  method,
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
			Data:    rpcResp.Error.Data,
		}
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("wire: decode result: %w", err)
		}
	}
	return nil
}

// RPCError represents a JSON-RPC error returned by a hosted agent.
type RPCError struct {
	Method  string
	Code    int
	Message string
	Data    json.RawMessage
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("wire: %s: rpc error %d: %s (data: %s)", e.Method, e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("wire: %s: rpc error %d: %s", e.Method, e.Code, e.Message)
}
