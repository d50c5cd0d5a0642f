package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/totegamma/agentdesk"
)

const (
	defaultTimeout      = 10 * time.Second
	DefaultPollInterval = 30 * time.Second
)

// APIError is a failure envelope returned by the server.
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" && e.Detail != e.Message {
		return fmt.Sprintf("agentdesk: %d %s: %s", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("agentdesk: %d %s", e.StatusCode, e.Message)
}

// Client talks to the agentdesk REST API. Terminal statuses and the output
// view of failed requests never change, so they are cached in process.
// Completed outputs are always fetched since a later callback may repoint them.
type Client struct {
	client    *http.Client
	cache     *cache.Cache
	baseURL   string
	userAgent string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		cache:     cache.New(10*time.Minute, 15*time.Minute),
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: "agentdesk-client",
	}
	c.client = &http.Client{
		Timeout:   defaultTimeout,
		Transport: c,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	return http.DefaultTransport.RoundTrip(req)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to perform request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var envelope agentdesk.ErrorResponse
		if json.Unmarshal(raw, &envelope) == nil && envelope.Message != "" {
			apiErr.Message = envelope.Message
			apiErr.Detail = envelope.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) CreateAgent(ctx context.Context, req agentdesk.CreateAgentRequest) (agentdesk.CreateAgentResult, error) {
	var res agentdesk.Response[agentdesk.CreateAgentResult]
	err := c.do(ctx, http.MethodPost, "/agents", req, &res)
	return res.Data, err
}

func statusKey(id string) string { return "status:" + id }
func outputKey(id string) string { return "output:" + id }

func (c *Client) GetStatus(ctx context.Context, requestID string) (agentdesk.Status, error) {
	if cached, found := c.cache.Get(statusKey(requestID)); found {
		return cached.(agentdesk.Status), nil
	}

	var res agentdesk.Response[agentdesk.AgentStatus]
	if err := c.do(ctx, http.MethodGet, "/agents/status/"+url.PathEscape(requestID), nil, &res); err != nil {
		return "", err
	}

	status := res.Data.Status
	if status.IsTerminal() {
		c.cache.Set(statusKey(requestID), status, cache.DefaultExpiration)
	}
	return status, nil
}

func (c *Client) GetOutput(ctx context.Context, requestID string) (agentdesk.AgentOutputResult, error) {
	if cached, found := c.cache.Get(outputKey(requestID)); found {
		return cached.(agentdesk.AgentOutputResult), nil
	}

	var res agentdesk.Response[agentdesk.AgentOutputResult]
	if err := c.do(ctx, http.MethodGet, "/agents/"+url.PathEscape(requestID)+"/output", nil, &res); err != nil {
		return agentdesk.AgentOutputResult{}, err
	}

	if res.Data.Status == agentdesk.StatusFailed {
		c.cache.Set(outputKey(requestID), res.Data, cache.DefaultExpiration)
	}
	return res.Data, nil
}

type ListOptions struct {
	Page    int
	Limit   int
	Type    agentdesk.AgentType
	Country string
	Search  string
}

func (c *Client) ListAgents(ctx context.Context, opts ListOptions) (agentdesk.AgentList, error) {
	q := url.Values{}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Type != "" {
		q.Set("type", string(opts.Type))
	}
	if opts.Country != "" {
		q.Set("country", opts.Country)
	}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}

	path := "/agents"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var res agentdesk.Response[agentdesk.AgentList]
	err := c.do(ctx, http.MethodGet, path, nil, &res)
	return res.Data, err
}

func (c *Client) UpdateOtp(ctx context.Context, requestID, otp string) (agentdesk.OtpUpdateResult, error) {
	var res agentdesk.Response[agentdesk.OtpUpdateResult]
	err := c.do(ctx, http.MethodPost, "/agents/otp/update", agentdesk.OtpUpdateRequest{RequestID: requestID, Otp: otp}, &res)
	return res.Data, err
}

func (c *Client) DeleteAgent(ctx context.Context, requestID string) (agentdesk.Agent, error) {
	var res agentdesk.Response[agentdesk.Agent]
	err := c.do(ctx, http.MethodDelete, "/agents/"+url.PathEscape(requestID), nil, &res)
	if err == nil {
		c.cache.Delete(statusKey(requestID))
		c.cache.Delete(outputKey(requestID))
	}
	return res.Data, err
}

// WaitForCompletion polls the status every interval until it is terminal,
// then fetches the output once.
func (c *Client) WaitForCompletion(ctx context.Context, requestID string, interval time.Duration) (agentdesk.AgentOutputResult, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.GetStatus(ctx, requestID)
		if err != nil {
			return agentdesk.AgentOutputResult{}, err
		}
		if status.IsTerminal() {
			return c.GetOutput(ctx, requestID)
		}

		select {
		case <-ctx.Done():
			return agentdesk.AgentOutputResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
