package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"commune-portal/admin-portal-backend/pkg/workflows"
)

// HTTPClient talks to the attestation service over its JSON API. Every call
// carries the configured timeout so ledger latency never stalls a caller.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type submitRequest struct {
	Kind    Kind            `json:"kind"`
	RefID   string          `json:"ref_id"`
	Actor   string          `json:"actor"`
	Payload json.RawMessage `json:"payload"`
}

func (c *HTTPClient) Submit(ctx context.Context, kind Kind, refID string, payload json.RawMessage, actor string) (*Receipt, error) {
	body, err := json.Marshal(submitRequest{Kind: kind, RefID: refID, Actor: actor, Payload: payload})
	if err != nil {
		return nil, &workflows.LedgerError{Op: "submit", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/attestations", bytes.NewReader(body))
	if err != nil {
		return nil, &workflows.LedgerError{Op: "submit", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &workflows.LedgerError{Op: "submit", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, &workflows.LedgerError{Op: "submit", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, &workflows.LedgerError{Op: "submit", Err: err}
	}
	return &receipt, nil
}

func (c *HTTPClient) Verify(ctx context.Context, refID string, expectedHash string) (bool, error) {
	endpoint := fmt.Sprintf("%s/attestations/%s/verify?hash=%s",
		c.baseURL, url.PathEscape(refID), url.QueryEscape(expectedHash))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, &workflows.LedgerError{Op: "verify", Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, &workflows.LedgerError{Op: "verify", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, &workflows.LedgerError{Op: "verify", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var result struct {
		Verified bool `json:"verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, &workflows.LedgerError{Op: "verify", Err: err}
	}
	return result.Verified, nil
}

func (c *HTTPClient) History(ctx context.Context, refID string) ([]Entry, error) {
	endpoint := fmt.Sprintf("%s/attestations/%s", c.baseURL, url.PathEscape(refID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &workflows.LedgerError{Op: "history", Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &workflows.LedgerError{Op: "history", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &workflows.LedgerError{Op: "history", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, &workflows.LedgerError{Op: "history", Err: err}
	}
	return entries, nil
}
