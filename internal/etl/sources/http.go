package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docmodel/internal/etl"
	"docmodel/internal/value"
)

// ── HTTP Source ─────────────────────────────────────────────
// Fetches documents from a REST API endpoint.

// httpClient is shared by every read; the request context bounds each call.
var httpClient = &http.Client{Timeout: 30 * time.Second}

type httpSource struct{}

func init() { etl.RegisterSource(&httpSource{}) }

func (s *httpSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "http",
		Label: "HTTP API",
		ConfigFields: []etl.ConfigField{
			{Key: "url", Label: "URL", Type: "string", Required: true, Help: "Full URL to fetch (e.g., https://api.example.com/orders)"},
			{Key: "method", Label: "Method", Type: "select", Options: []string{"GET", "POST"}, Default: "GET"},
			{Key: "headers", Label: "Headers", Type: "textarea", Help: "JSON object of headers (e.g., {\"Authorization\": \"Bearer xxx\"})"},
			{Key: "body", Label: "Body", Type: "textarea", Help: "Request body (for POST)"},
			{Key: "dataPath", Label: "Data Path", Type: "string", Help: "Dot-separated path to the array in the response (e.g., 'data.items')"},
			parseJSONField,
		},
	}
}

func (s *httpSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	return discover(ctx, s, cfg)
}

func (s *httpSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		records, err := fetchHTTP(ctx, cfg)
		if err != nil {
			errCh <- err
			return
		}
		emit(ctx, out, cfg, records)
	}()

	return out, errCh
}

func fetchHTTP(ctx context.Context, cfg etl.SourceConfig) ([]etl.Record, error) {
	url := cfg.String("url")
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}
	method := strings.ToUpper(cfg.String("method"))
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if body := cfg.String("body"); body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	headers, err := requestHeaders(cfg["headers"])
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	doc, err := value.FromJSON(data)
	if err != nil {
		return nil, err
	}
	doc, err = navigatePath(doc, cfg.String("dataPath"))
	if err != nil {
		return nil, err
	}
	return toRecords(doc), nil
}

// requestHeaders accepts headers as a JSON object string or as a decoded map.
func requestHeaders(raw any) (map[string]string, error) {
	switch h := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(h) == "" {
			return nil, nil
		}
		var headers map[string]string
		if err := json.Unmarshal([]byte(h), &headers); err != nil {
			return nil, fmt.Errorf("parse headers: %w", err)
		}
		return headers, nil
	case map[string]any:
		headers := make(map[string]string, len(h))
		for k, v := range h {
			headers[k] = fmt.Sprint(v)
		}
		return headers, nil
	default:
		return nil, fmt.Errorf("headers: unsupported type %T", raw)
	}
}
