package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/philverify/feedwatch/safeurl"
)

// Client calls the remote verification backend: POST {apiBase}/verify/{kind}
// with a one-field JSON body. apiBase is passed per call because settings
// can change at runtime.
type Client struct {
	httpc *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpc = h }
}

// NewClient creates a backend client with a 60s timeout; verification runs
// an NLP pipeline and is slow on cold models.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{httpc: &http.Client{Timeout: 60 * time.Second}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// bodyField is the JSON field name the backend expects for each kind.
func bodyField(kind Kind) string {
	if kind == KindImage {
		return "image_url"
	}
	return string(kind)
}

// Verify issues exactly one outbound call; it never retries. Failures come
// back as *TransportError (nothing answered) or *BackendError (the backend
// answered with a failure).
func (c *Client) Verify(ctx context.Context, apiBase string, kind Kind, payload string) (*VerificationResult, error) {
	endpoint := strings.TrimRight(apiBase, "/") + "/verify/" + string(kind)

	body, err := json.Marshal(map[string]string{bodyField(kind): payload})
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("encode request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := safeurl.LimitedReadAll(resp.Body, safeurl.MaxResponseBody)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &BackendError{Status: resp.StatusCode, Detail: parseDetail(raw)}
	}

	var result VerificationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("decode response: %w", err)}
	}
	result.InputType = string(kind)
	return &result, nil
}

// parseDetail extracts the backend's error detail. The backend reports
// either {"detail": "message"} or, for validation failures,
// {"detail": [{"msg": "..."}, ...]}.
func parseDetail(raw []byte) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || len(envelope.Detail) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(envelope.Detail, &s) == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(envelope.Detail, &items) == nil {
		var msgs []string
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
