// Package gateway is the HTTP client for the document question-answering
// backend: ingest, list, delete, and query.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Operation names, used in errors and logs.
const (
	OpIngest = "ingest"
	OpList   = "list_documents"
	OpDelete = "delete_document"
	OpQuery  = "query"
)

// IngestField is the multipart field the gateway reads uploaded files from.
const IngestField = "files"

// maxErrorBodySize bounds how much of a failure body is read for a detail.
const maxErrorBodySize = 64 << 10

// QueryResponse holds the candidate answer fields of a query reply.
// Which one carries the text depends on the gateway version.
type QueryResponse struct {
	Response string `json:"response"`
	Answer   string `json:"answer"`
	Content  string `json:"content"`
}

// UnmarshalJSON keeps the string-valued answer fields and ignores the rest,
// so one odd field does not hide a usable answer.
func (q *QueryResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Response json.RawMessage `json:"response"`
		Answer   json.RawMessage `json:"answer"`
		Content  json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*q = QueryResponse{
		Response: stringValue(raw.Response),
		Answer:   stringValue(raw.Answer),
		Content:  stringValue(raw.Content),
	}
	return nil
}

func stringValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

type listResponse struct {
	Documents []string `json:"documents"`
}

type queryRequest struct {
	Query string `json:"query"`
}

// Client talks to the gateway. It applies no request timeout and no retry.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a gateway client for the given origin.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("gateway url must be http or https, got %q", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("gateway url has no host: %q", baseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the gateway origin the client was configured with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ingest uploads one file under the "files" multipart field, keeping its
// original filename.
func (c *Client) Ingest(ctx context.Context, filename, contentType string, content io.Reader) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, IngestField, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("copy upload content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ingest", &body)
	if err != nil {
		return fmt.Errorf("build ingest request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(OpIngest, req)
	if err != nil {
		return err
	}
	c.drain(resp)
	return nil
}

// ListDocuments returns the ingested document names in gateway order.
// An absent "documents" field is an empty list.
func (c *Client) ListDocuments(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/documents", nil)
	if err != nil {
		return nil, fmt.Errorf("build list request: %w", err)
	}

	resp, err := c.do(OpList, req)
	if err != nil {
		return nil, err
	}
	defer c.drain(resp)

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &TransportError{Op: OpList, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	if out.Documents == nil {
		return []string{}, nil
	}
	return out.Documents, nil
}

// DeleteDocument removes a document. The name is percent-encoded as a
// single path segment.
func (c *Client) DeleteDocument(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/documents/"+url.PathEscape(name), nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}

	resp, err := c.do(OpDelete, req)
	if err != nil {
		return err
	}
	c.drain(resp)
	return nil
}

// Query asks a question about the ingested documents.
func (c *Client) Query(ctx context.Context, query string) (QueryResponse, error) {
	payload, err := json.Marshal(queryRequest{Query: query})
	if err != nil {
		return QueryResponse{}, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(payload))
	if err != nil {
		return QueryResponse{}, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(OpQuery, req)
	if err != nil {
		return QueryResponse{}, err
	}
	defer c.drain(resp)

	var out QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return QueryResponse{}, &TransportError{Op: OpQuery, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}
	return out, nil
}

// do sends the request and classifies failures. On success the caller owns
// the response body.
func (c *Client) do(op string, req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("Gateway request failed", "op", op, "url", req.URL.Redacted(), "error", err)
		return nil, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if closeErr := resp.Body.Close(); closeErr != nil {
		c.logger.Debug("Failed to close gateway response body", "op", op, "error", closeErr)
	}
	if readErr != nil {
		c.logger.Debug("Failed to read gateway error body", "op", op, "error", readErr)
	}

	gwErr := &GatewayError{Op: op, Status: resp.StatusCode, Detail: parseDetail(body)}
	c.logger.Warn("Gateway returned error status", "op", op, "status", resp.StatusCode, "detail", gwErr.Detail)
	return nil, gwErr
}

func (c *Client) drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))
	if err := resp.Body.Close(); err != nil {
		c.logger.Debug("Failed to close gateway response body", "error", err)
	}
}
