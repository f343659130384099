package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/formbridge/internal/config"
	"github.com/pitabwire/formbridge/model"
)

// ServerValidationError carries field-level rejections returned by a backend
// service. Keys are wire keys; the caller translates them to form keys before
// merging into client-side validation state.
type ServerValidationError struct {
	Message     string
	FieldErrors map[string][]string
}

func (e *ServerValidationError) Error() string {
	return fmt.Sprintf("backend rejected submission: %s", e.Message)
}

// SubmitResult is the parsed outcome of a successful submission.
type SubmitResult struct {
	StatusCode int
	Body       map[string]any
}

type serviceClient struct {
	cfg    config.ServiceConfig
	client *http.Client
}

// Client executes HTTP calls against configured backend services. Requests
// are single-shot: a failed or rejected submission is surfaced to the user,
// never silently retried.
type Client struct {
	clients map[string]*serviceClient
	logger  *zap.Logger
}

// New creates a Client with one HTTP client per configured service.
func New(services map[string]config.ServiceConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	clients := make(map[string]*serviceClient, len(services))
	for id, svcCfg := range services {
		timeout := svcCfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		transport := &http.Transport{
			MaxIdleConns:        100,
			MaxConnsPerHost:     50,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
		clients[id] = &serviceClient{
			cfg: svcCfg,
			client: &http.Client{
				Timeout:   timeout,
				Transport: transport,
			},
		}
	}
	return &Client{clients: clients, logger: logger}
}

// PathWithID substitutes the {id} placeholder in a path template.
func PathWithID(path, id string) string {
	return strings.ReplaceAll(path, "{id}", url.PathEscape(id))
}

// FetchItems GETs a list endpoint and extracts the record array at itemsPath.
// It satisfies the reference-data fetcher contract.
func (c *Client) FetchItems(ctx context.Context, rctx *model.RequestContext, serviceID, path, itemsPath string) ([]map[string]any, error) {
	body, err := c.getJSON(ctx, rctx, serviceID, path)
	if err != nil {
		return nil, err
	}
	items := extractItems(body, itemsPath)
	if items == nil {
		return nil, fmt.Errorf("backend: %s %s: no record array at %q", serviceID, path, itemsPath)
	}
	return items, nil
}

// FetchRecord GETs a single record. The path must already have its {id}
// substituted.
func (c *Client) FetchRecord(ctx context.Context, rctx *model.RequestContext, serviceID, path string) (map[string]any, error) {
	body, err := c.getJSON(ctx, rctx, serviceID, path)
	if err != nil {
		return nil, err
	}
	if m, ok := body.(map[string]any); ok {
		// Unwrap a single-record data envelope.
		if inner, ok := m["data"].(map[string]any); ok {
			return inner, nil
		}
		return m, nil
	}
	return nil, fmt.Errorf("backend: %s %s: response is not an object", serviceID, path)
}

// Submit POSTs a serialized payload. A 2xx returns the parsed body; a 4xx
// with field errors returns a ServerValidationError; everything else is an
// infrastructure error envelope.
func (c *Client) Submit(ctx context.Context, rctx *model.RequestContext, serviceID, path string, payload model.WirePayload) (*SubmitResult, error) {
	svc, ok := c.clients[serviceID]
	if !ok {
		return nil, fmt.Errorf("backend: service %q not configured", serviceID)
	}

	var body io.Reader
	var contentType string
	switch payload.Encoding {
	case model.EncodingMultipart:
		buf, ct, err := encodeMultipart(payload)
		if err != nil {
			return nil, err
		}
		body, contentType = buf, ct
	default:
		data, err := json.Marshal(payload.Body)
		if err != nil {
			return nil, fmt.Errorf("backend: marshal body: %w", err)
		}
		body, contentType = bytes.NewReader(data), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header = buildHeaders(rctx, svc.cfg)
	req.Header.Set("Content-Type", contentType)

	resp, err := svc.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("backend: read response: %w", err)
	}

	// A response that lands after the caller gave up is discarded.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	parsed := parseJSONObject(respBody)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &SubmitResult{StatusCode: resp.StatusCode, Body: parsed}, nil
	case resp.StatusCode == http.StatusBadRequest ||
		resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, parseRejection(parsed)
	case resp.StatusCode == http.StatusConflict:
		return nil, model.NewConflictError(rejectionMessage(parsed))
	case resp.StatusCode >= 500:
		c.logger.Warn("backend submission failed",
			zap.String("service", serviceID),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return nil, model.NewBackendUnavailableError()
	default:
		return nil, fmt.Errorf("backend: %s %s: unexpected status %d", serviceID, path, resp.StatusCode)
	}
}

func (c *Client) getJSON(ctx context.Context, rctx *model.RequestContext, serviceID, path string) (any, error) {
	svc, ok := c.clients[serviceID]
	if !ok {
		return nil, fmt.Errorf("backend: service %q not configured", serviceID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header = buildHeaders(rctx, svc.cfg)

	resp, err := svc.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("backend: read response: %w", err)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, model.NewNotFoundError(fmt.Sprintf("record not found at %s", path))
	case resp.StatusCode >= 500:
		return nil, model.NewBackendUnavailableError()
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("backend: %s %s: status %d", serviceID, path, resp.StatusCode)
	}

	var parsed any
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("backend: %s %s: invalid JSON response: %w", serviceID, path, err)
	}
	return parsed, nil
}

// encodeMultipart writes ordered fields followed by file parts.
func encodeMultipart(payload model.WirePayload) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for _, f := range payload.Fields {
		if err := w.WriteField(f.Key, f.Value); err != nil {
			return nil, "", fmt.Errorf("backend: write field %q: %w", f.Key, err)
		}
	}

	for _, fp := range payload.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fp.Key, fp.Filename))
		ct := fp.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("backend: create part %q: %w", fp.Key, err)
		}
		if _, err := part.Write(fp.Content); err != nil {
			return nil, "", fmt.Errorf("backend: write part %q: %w", fp.Key, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("backend: close multipart writer: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

func buildHeaders(rctx *model.RequestContext, cfg config.ServiceConfig) http.Header {
	h := make(http.Header)
	h.Set("Accept", "application/json")

	if rctx != nil {
		h.Set("X-Correlation-Id", sanitizeHeader(rctx.CorrelationID))
		h.Set("X-Request-Subject", sanitizeHeader(rctx.SubjectID))
		if rctx.TenantID != "" {
			h.Set("X-Tenant-Id", sanitizeHeader(rctx.TenantID))
		}
	}

	for k, v := range cfg.Headers {
		h.Set(sanitizeHeader(k), sanitizeHeader(v))
	}

	return h
}

// sanitizeHeader strips newlines and carriage returns to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}

func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return model.NewBackendTimeoutError()
		}
		return ctx.Err()
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return model.NewBackendTimeoutError()
	}
	if isConnectionError(err) {
		return model.NewBackendUnavailableError()
	}
	return fmt.Errorf("backend: request failed: %w", err)
}

func isConnectionError(err error) bool {
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func parseJSONObject(data []byte) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var parsed map[string]any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil
	}
	return parsed
}

// parseRejection maps the conventional {message, errors: {field: [msgs]}}
// rejection body into a ServerValidationError.
func parseRejection(body map[string]any) error {
	sve := &ServerValidationError{
		Message:     rejectionMessage(body),
		FieldErrors: make(map[string][]string),
	}

	if raw, ok := body["errors"].(map[string]any); ok {
		for field, v := range raw {
			switch msgs := v.(type) {
			case []any:
				for _, m := range msgs {
					if s, ok := m.(string); ok {
						sve.FieldErrors[field] = append(sve.FieldErrors[field], s)
					}
				}
			case string:
				sve.FieldErrors[field] = append(sve.FieldErrors[field], msgs)
			}
		}
	}

	return sve
}

func rejectionMessage(body map[string]any) string {
	if msg, ok := body["message"].(string); ok && msg != "" {
		return msg
	}
	return "The given data was invalid"
}

// extractItems resolves the record array in a list response. An empty
// itemsPath tries the body itself, then the "data" and "items" conventions.
func extractItems(body any, itemsPath string) []map[string]any {
	if itemsPath != "" {
		current := body
		for _, part := range strings.Split(itemsPath, ".") {
			m, ok := current.(map[string]any)
			if !ok {
				return nil
			}
			current = m[part]
		}
		if arr, ok := current.([]any); ok {
			return toMapSlice(arr)
		}
		return nil
	}

	if arr, ok := body.([]any); ok {
		return toMapSlice(arr)
	}
	if m, ok := body.(map[string]any); ok {
		if arr, ok := m["data"].([]any); ok {
			return toMapSlice(arr)
		}
		if arr, ok := m["items"].([]any); ok {
			return toMapSlice(arr)
		}
	}
	return nil
}

func toMapSlice(arr []any) []map[string]any {
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
