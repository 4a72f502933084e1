package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// APIError carries the provider status code for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("social api returned status %d", e.StatusCode)
}

type HTTPClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// Transient 5xx/network retries. Rate limits (429) are never retried
	// here; they surface as ErrRateLimited for the caller to handle.
	MaxRetries int
}

// HTTPClient implements Client against the provider's REST API.
type HTTPClient struct {
	cfg    HTTPClientConfig
	client *http.Client
	retry  retrypolicy.RetryPolicy[*http.Response]
}

func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	retry := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode >= 500
		}).
		WithBackoff(time.Second, 10*time.Second).
		WithMaxRetries(cfg.MaxRetries).
		Build()

	return &HTTPClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		retry:  retry,
	}
}

func (c *HTTPClient) FetchComments(ctx context.Context, accountID, postID string) ([]Comment, error) {
	endpoint := fmt.Sprintf("%s/v1/posts/%s/comments", c.cfg.BaseURL, url.PathEscape(postID))

	var out struct {
		Comments []Comment `json:"comments"`
	}
	if err := c.getJSON(ctx, accountID, endpoint, nil, &out); err != nil {
		return nil, fmt.Errorf("fetching comments for post %s: %w", postID, err)
	}
	return out.Comments, nil
}

func (c *HTTPClient) FetchConversation(ctx context.Context, accountID, recipientID string, since time.Time) ([]Message, error) {
	endpoint := fmt.Sprintf("%s/v1/conversations/%s/messages", c.cfg.BaseURL, url.PathEscape(recipientID))
	query := url.Values{}
	if !since.IsZero() {
		query.Set("since", strconv.FormatInt(since.UnixMilli(), 10))
	}

	var out struct {
		Messages []Message `json:"messages"`
	}
	if err := c.getJSON(ctx, accountID, endpoint, query, &out); err != nil {
		return nil, fmt.Errorf("fetching conversation with %s: %w", recipientID, err)
	}
	return out.Messages, nil
}

func (c *HTTPClient) SendMessage(ctx context.Context, accountID, recipientID, text string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/messages", c.cfg.BaseURL)
	body := map[string]string{
		"recipient_id": recipientID,
		"text":         text,
	}

	var out struct {
		MessageID string `json:"message_id"`
	}
	if err := c.postJSON(ctx, accountID, endpoint, body, &out); err != nil {
		return "", fmt.Errorf("sending message to %s: %w", recipientID, err)
	}
	return out.MessageID, nil
}

func (c *HTTPClient) FetchLatestPosts(ctx context.Context, accountID, userID string, limit int) ([]Post, error) {
	endpoint := fmt.Sprintf("%s/v1/users/%s/posts", c.cfg.BaseURL, url.PathEscape(userID))
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var out struct {
		Posts []Post `json:"posts"`
	}
	if err := c.getJSON(ctx, accountID, endpoint, query, &out); err != nil {
		return nil, fmt.Errorf("fetching posts for user %s: %w", userID, err)
	}
	return out.Posts, nil
}

func (c *HTTPClient) Repost(ctx context.Context, accountID, postID string) error {
	endpoint := fmt.Sprintf("%s/v1/posts/%s/repost", c.cfg.BaseURL, url.PathEscape(postID))
	if err := c.postJSON(ctx, accountID, endpoint, struct{}{}, nil); err != nil {
		return fmt.Errorf("reposting %s: %w", postID, err)
	}
	return nil
}

func (c *HTTPClient) getJSON(ctx context.Context, accountID, endpoint string, query url.Values, out any) error {
	return c.doJSON(ctx, http.MethodGet, accountID, endpoint, query, nil, out)
}

func (c *HTTPClient) postJSON(ctx context.Context, accountID, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	return c.doJSON(ctx, http.MethodPost, accountID, endpoint, nil, payload, out)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, accountID, endpoint string, query url.Values, payload []byte, out any) error {
	resp, err := failsafe.With(c.retry).WithContext(ctx).Get(func() (*http.Response, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, err
		}
		if query != nil {
			req.URL.RawQuery = query.Encode()
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("X-Account-Id", accountID)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		// Retryable responses are discarded by the policy; close eagerly.
		if resp.StatusCode >= 500 {
			_ = resp.Body.Close()
		}
		return resp, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
