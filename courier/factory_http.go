package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/philverify/feedwatch/safeurl"
)

// httpConfig is the per-route config parsed from the routes table JSON.
type httpConfig struct {
	TimeoutMs   int64  `json:"timeout_ms"`
	ContentType string `json:"content_type"`
}

// HTTPFactory creates Handlers that POST the payload to a remote endpoint.
// Per-route timeout and content-type come from the config column.
//
// The endpoint only gets a scheme check, not the private-address guard:
// backends routinely run on localhost, and the endpoint is operator
// configuration, not page content.
//
//	router.RegisterTransport("http", courier.HTTPFactory())
func HTTPFactory() TransportFactory {
	return func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		if err := safeurl.ValidateScheme(endpoint); err != nil {
			return nil, nil, fmt.Errorf("courier/http: %w", err)
		}

		var cfg httpConfig
		if len(config) > 0 {
			_ = json.Unmarshal(config, &cfg)
		}

		timeout := 30 * time.Second
		if cfg.TimeoutMs > 0 {
			timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
		}
		contentType := "application/json"
		if cfg.ContentType != "" {
			contentType = cfg.ContentType
		}

		client := &http.Client{Timeout: timeout}

		handler := func(ctx context.Context, payload []byte) ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
			if err != nil {
				return nil, fmt.Errorf("courier/http: create request: %w", err)
			}
			req.Header.Set("Content-Type", contentType)

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("courier/http: do request: %w", err)
			}
			defer resp.Body.Close()

			body, err := safeurl.LimitedReadAll(resp.Body, safeurl.MaxResponseBody)
			if err != nil {
				return nil, fmt.Errorf("courier/http: read response: %w", err)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, fmt.Errorf("courier/http: status %d: %s", resp.StatusCode, body)
			}
			return body, nil
		}
		closeFn := func() { client.CloseIdleConnections() }
		return handler, closeFn, nil
	}
}
