package msgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"vigil/internal/config"
)

const userAgent = "Vigil/0.1.0"

// maxBatchSize is the remote source's per-request identifier cap.
const maxBatchSize = 15

// HTTPDoer describes the HTTP client used by the presence source client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// User is one directory entry returned by the remote source.
type User struct {
	ID          string `json:"id"`
	Mail        string `json:"mail"`
	DisplayName string `json:"displayName"`
	JobTitle    string `json:"jobTitle"`
}

// Client talks to a Microsoft Graph style API for directory lookups and
// presence snapshots. Requests are rate limited to stay under the remote
// throttle.
type Client struct {
	baseURL string
	token   string
	client  HTTPDoer
	limiter *rate.Limiter
}

// NewClient builds a presence source client from configuration.
func NewClient(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.Presence.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.Presence.BaseURL, "/"),
		token:   cfg.Presence.AccessToken,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(time.Second), 4),
	}
}

// NewClientWithDoer constructs a client around an explicit HTTP doer.
// Used by tests and callers that manage their own transport.
func NewClientWithDoer(baseURL, token string, doer HTTPDoer) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		client:  doer,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

// ResolveUsers looks up directory entries for a set of contact addresses.
// Lookups are issued in batches of at most 15 addresses. Addresses the
// remote source does not recognize are simply absent from the result.
func (c *Client) ResolveUsers(ctx context.Context, addresses []string) ([]User, error) {
	var users []User
	for _, chunk := range chunkStrings(addresses, maxBatchSize) {
		quoted := make([]string, len(chunk))
		for i, address := range chunk {
			quoted[i] = "'" + strings.ReplaceAll(address, "'", "''") + "'"
		}
		query := url.Values{}
		query.Set("$select", "id,mail,displayName,jobTitle")
		query.Set("$filter", fmt.Sprintf("mail in (%s)", strings.Join(quoted, ",")))

		var response struct {
			Value []User `json:"value"`
		}
		if err := c.get(ctx, "/users?"+query.Encode(), &response); err != nil {
			return nil, fmt.Errorf("resolve users: %w", err)
		}
		for _, user := range response.Value {
			user.Mail = strings.ToLower(strings.TrimSpace(user.Mail))
			if user.ID == "" || user.Mail == "" {
				continue
			}
			users = append(users, user)
		}
	}
	return users, nil
}

// FetchAvailability returns the latest availability label per identity ID.
// IDs are queried in batches of at most 15. A failed batch omits its
// identities from the result; the joined error describes every failed
// batch so the caller can log it, while the partial result remains usable.
func (c *Client) FetchAvailability(ctx context.Context, ids []string) (map[string]string, error) {
	labels := make(map[string]string, len(ids))
	var errs []error
	for _, chunk := range chunkStrings(ids, maxBatchSize) {
		body := struct {
			IDs []string `json:"ids"`
		}{IDs: chunk}

		var response struct {
			Value []struct {
				ID           string `json:"id"`
				Availability string `json:"availability"`
			} `json:"value"`
		}
		if err := c.post(ctx, "/communications/getPresencesByUserId", body, &response); err != nil {
			errs = append(errs, fmt.Errorf("fetch availability batch: %w", err))
			continue
		}
		for _, presence := range response.Value {
			if presence.ID == "" {
				continue
			}
			labels[presence.ID] = presence.Availability
		}
	}
	return labels, errors.Join(errs...)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c == nil || c.client == nil {
		return errors.New("presence source client is not configured")
	}
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("presence source returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func chunkStrings(values []string, size int) [][]string {
	if size <= 0 || len(values) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(values)+size-1)/size)
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}
