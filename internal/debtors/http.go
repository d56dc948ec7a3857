package debtors

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kasbon/internal/reminder"
)

// HTTPSource reads the snapshot from a ledger API.
type HTTPSource struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPSource creates a client for baseURL. timeout <= 0 means 30s.
func NewHTTPSource(baseURL, token string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// IsConfigured returns true if the source has a base URL.
func (s *HTTPSource) IsConfigured() bool { return s.baseURL != "" }

func (s *HTTPSource) Snapshot(ctx context.Context) ([]reminder.Debtor, error) {
	body, err := s.doRequest(ctx, http.MethodGet, "/debtors")
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(body)
}

func (s *HTTPSource) doRequest(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}
