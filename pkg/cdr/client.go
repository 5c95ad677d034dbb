// Package cdr is a minimal client for the FHIR store of a clinical data repository.
package cdr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/gofhir/cdrloader/pkg/resource"
)

// Header names used by the FHIR store.
const (
	HeaderIfNoneExist = "If-None-Exist"
	HeaderAPIVersion  = "api-version"
)

// APIVersion is the api-version the store API is called with.
const APIVersion = "1"

// Response is the outcome of a create request. Body is always valid JSON:
// the parsed response, a JSON string holding a non-JSON body, or null.
type Response struct {
	StatusCode int
	Body       json.RawMessage
	Duration   time.Duration
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ID returns the server assigned id from the response body, if any.
func (r *Response) ID() string {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return ""
	}
	return body.ID
}

// Client creates resources in a tenant of the FHIR store.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	baseURL    string
	mediaType  string
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP timeout. It applies to a client given with
// WithHTTPClient without modifying it. Zero keeps the client's own timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// NewClient creates a client for the store at baseURL
// (https://{host}/store/fhir/{org}). mediaType is used for Accept and Content-Type.
func NewClient(baseURL, mediaType string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		mediaType:  mediaType,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.timeout > 0 {
		client := *c.httpClient
		client.Timeout = c.timeout
		c.httpClient = &client
	}
	return c
}

// IfNoneExist returns the conditional create expression for r.
// A resource without url yields "url=", so the header is never omitted.
func IfNoneExist(r resource.Resource) string {
	return "url=" + r.URL
}

// Create posts r to its type collection with a conditional create on its url.
//
// A non-2xx status is not an error; the caller inspects the Response. When no
// response was received the Response is nil. When the body could not be read
// completely both are returned: the Response keeps the status code and the
// part of the body that was read.
func (c *Client) Create(ctx context.Context, token string, r resource.Resource) (*Response, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, r.Type)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(r.Raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", c.mediaType)
	req.Header.Set("Content-Type", c.mediaType)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(HeaderAPIVersion, APIVersion)
	req.Header.Set(HeaderIfNoneExist, IfNoneExist(r))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", r, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Response{
			StatusCode: resp.StatusCode,
			Body:       parseBody(data),
			Duration:   time.Since(start),
		}, fmt.Errorf("failed to read response for %s: %w", r, err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       parseBody(data),
		Duration:   time.Since(start),
	}, nil
}

// parseBody keeps JSON bodies as they are and wraps anything else in a JSON string.
func parseBody(data []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	quoted, err := json.Marshal(string(data))
	if err != nil {
		return json.RawMessage("null")
	}
	return quoted
}
