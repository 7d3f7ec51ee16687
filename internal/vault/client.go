// Package vault talks to the external vault API that stores expense
// payloads. Each request carries the caller's access token and the
// collection key of the collection holding their expenses.
package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"zerobudget/internal/core"
)

// Credentials are forwarded per request; the server never stores them.
type Credentials struct {
	AccessToken   string
	CollectionKey string
}

// WritePayload is the document shape the vault stores for new expenses.
// Field names match what existing clients already wrote.
type WritePayload struct {
	Amount         float64 `json:"amount"`
	Cat            string  `json:"cat"`
	Desc           string  `json:"desc"`
	Timestamp      string  `json:"timestamp"`
	UserID         string  `json:"userId"`
	SupabaseUserID string  `json:"supabaseUserId"`
	CollectionKey  string  `json:"collectionKey"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: newPooledHTTPClient(),
	}
}

// newPooledHTTPClient creates an HTTP client with connection pooling and
// timeouts suited to many small concurrent vault reads.
func newPooledHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
}

// Write stores a new expense payload and returns the id the vault assigned.
func (c *Client) Write(ctx context.Context, creds Credentials, payload WritePayload) (string, error) {
	payload.CollectionKey = creds.CollectionKey

	body, err := c.do(ctx, creds, http.MethodPost, c.baseURL+"/write", payload)
	if err != nil {
		return "", err
	}

	var result struct {
		CreatedIDs []string `json:"createdIds"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode vault write response: %w", err)
	}
	if len(result.CreatedIDs) == 0 {
		return "", fmt.Errorf("vault write returned no created ids")
	}
	return result.CreatedIDs[0], nil
}

// Read fetches one raw record by id. The vault has returned both wrapped
// ({"data": {...}}) and bare documents over time, so both are accepted.
func (c *Client) Read(ctx context.Context, creds Credentials, id string) (core.RawRecord, error) {
	body, err := c.do(ctx, creds, http.MethodGet, c.baseURL+"/read/"+id, nil)
	if err != nil {
		return core.RawRecord{}, err
	}

	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil && len(wrapped.Data) > 0 {
		body = wrapped.Data
	}

	var raw core.RawRecord
	if err := json.Unmarshal(body, &raw); err != nil {
		return core.RawRecord{}, fmt.Errorf("decode vault record %s: %w", id, err)
	}
	return raw, nil
}

// Update replaces the stored payload for an existing expense.
func (c *Client) Update(ctx context.Context, creds Credentials, id string, payload WritePayload) error {
	payload.CollectionKey = creds.CollectionKey

	_, err := c.do(ctx, creds, http.MethodPut, c.baseURL+"/update/"+id, payload)
	return err
}

// Delete removes the stored payload for an expense.
func (c *Client) Delete(ctx context.Context, creds Credentials, id string) error {
	_, err := c.do(ctx, creds, http.MethodDelete, c.baseURL+"/delete/"+id, nil)
	return err
}

func (c *Client) do(ctx context.Context, creds Credentials, method, url string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode vault payload: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create vault request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("X-Collection-Key", creds.CollectionKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read vault response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vault %s %s: status %d: %s", method, url, resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
