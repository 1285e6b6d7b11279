package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout bounds every request made with a client from NewClient
const DefaultTimeout = 15 * time.Second

// Client represents a Supabase client
type Client struct {
	URL        string
	ServiceKey string
	HTTPClient *http.Client
}

// NewClient creates a new Supabase client
func NewClient(url, serviceKey string) *Client {
	return &Client{
		URL:        url,
		ServiceKey: serviceKey,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// Error is returned for any response with a status of 400 or above
type Error struct {
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("supabase error (status %d): %s", e.StatusCode, e.Body)
}

// request describes one PostgREST or auth call
type request struct {
	method    string
	path      string
	query     url.Values
	body      any
	prefer    string
	userToken string
}

func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	var reader io.Reader
	if r.body != nil {
		jsonData, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.URL+r.path, reader)
	if err != nil {
		return nil, err
	}
	if len(r.query) > 0 {
		req.URL.RawQuery = r.query.Encode()
	}

	req.Header.Set("apikey", c.ServiceKey)
	// Use user token if provided, otherwise use service key
	if r.userToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.userToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.ServiceKey)
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.prefer != "" {
		req.Header.Set("Prefer", r.prefer)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &Error{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func toValues(query map[string]string) url.Values {
	q := make(url.Values, len(query))
	for key, value := range query {
		q.Add(key, value)
	}
	return q
}

// Query executes a query on a Supabase table
func (c *Client) Query(ctx context.Context, table string, query map[string]string) ([]byte, error) {
	return c.QueryWithToken(ctx, table, query, "")
}

// QueryWithToken executes a query with an optional user JWT token for RLS
func (c *Client) QueryWithToken(ctx context.Context, table string, query map[string]string, userToken string) ([]byte, error) {
	return c.do(ctx, request{
		method:    http.MethodGet,
		path:      "/rest/v1/" + table,
		query:     toValues(query),
		userToken: userToken,
	})
}

// Insert inserts a record into a Supabase table
func (c *Client) Insert(ctx context.Context, table string, data any) ([]byte, error) {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/rest/v1/" + table,
		body:   data,
		prefer: "return=representation",
	})
}

// VerifyToken verifies a JWT token with Supabase
func (c *Client) VerifyToken(ctx context.Context, token string) (*User, error) {
	body, err := c.do(ctx, request{
		method:    http.MethodGet,
		path:      "/auth/v1/user",
		userToken: token,
	})
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &user, nil
}

// User represents a Supabase user
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
