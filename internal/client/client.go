// Package client is a thin HTTP client for the TaskFlow REST API and its
// event stream, used by the terminal watch client.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/taskflow/internal/model"
)

// ErrUnauthorized is returned when the server rejects the access token.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response carrying the server's message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("taskflow API error (%d): %s", e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err means the token must be replaced.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// TaskPage is one page of tasks.
type TaskPage struct {
	Tasks []model.TaskView `json:"tasks"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Pages int              `json:"pages"`
}

// Session is the result of a successful login.
type Session struct {
	User        model.User `json:"user"`
	AccessToken string     `json:"accessToken"`
	ExpiresAt   time.Time  `json:"expiresAt"`
}

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Success    bool            `json:"success"`
}

// Client calls the TaskFlow API with a bearer token. It retries
// rate-limited requests with exponential backoff.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client

	// streamClient has no overall timeout; event streams stay open.
	streamClient *http.Client
	maxRetries   int
}

// New creates a client for the server at baseURL (e.g.,
// http://localhost:8000). token may be empty until Login.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
		maxRetries:   3,
	}
}

// BaseURL returns the server root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Token returns the current access token.
func (c *Client) Token() string {
	return c.token
}

// SetToken replaces the access token.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Login exchanges credentials for an access token and keeps it.
func (c *Client) Login(ctx context.Context, login, password string) (Session, error) {
	body := map[string]string{"password": password}
	if strings.Contains(login, "@") {
		body["email"] = login
	} else {
		body["username"] = login
	}

	var session Session
	if err := c.do(ctx, http.MethodPost, "/api/v1/users/login", body, &session); err != nil {
		return Session{}, err
	}
	c.token = session.AccessToken
	return session, nil
}

// CurrentUser returns the user the token belongs to.
func (c *Client) CurrentUser(ctx context.Context) (model.User, error) {
	var user model.User
	err := c.do(ctx, http.MethodGet, "/api/v1/users/current-user", nil, &user)
	return user, err
}

// ListTasks returns one page of visible tasks, newest first. An empty
// status lists every status.
func (c *Client) ListTasks(ctx context.Context, page, limit int, status string) (TaskPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))
	if status != "" {
		query.Set("status", status)
	}

	var result TaskPage
	err := c.do(ctx, http.MethodGet, "/api/v1/tasks?"+query.Encode(), nil, &result)
	return result, err
}

// GetTask returns one task with its comments.
func (c *Client) GetTask(ctx context.Context, id string) (model.TaskView, error) {
	var task model.TaskView
	err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(id), nil, &task)
	return task, err
}

// UpdateStatus changes a task's status.
func (c *Client) UpdateStatus(ctx context.Context, id string, status model.Status) (model.TaskView, error) {
	var task model.TaskView
	err := c.do(ctx, http.MethodPatch, "/api/v1/tasks/"+url.PathEscape(id),
		map[string]string{"status": string(status)}, &task)
	return task, err
}

// AddComment posts a comment on a task.
func (c *Client) AddComment(ctx context.Context, id, text string) (model.TaskView, error) {
	var task model.TaskView
	err := c.do(ctx, http.MethodPost, "/api/v1/tasks/"+url.PathEscape(id)+"/comments",
		map[string]string{"text": text}, &task)
	return task, err
}

// do builds the request, handles auth and rate limiting, and decodes the
// response envelope's data into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		c.authorize(req)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429) on %s %s", method, path)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfterDuration(resp, attempt)):
				continue
			}
		}

		var env envelope
		decodeErr := json.Unmarshal(respBody, &env)

		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%s %s: %w", method, path, ErrUnauthorized)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			message := env.Message
			if decodeErr != nil || message == "" {
				message = strings.TrimSpace(string(respBody))
			}
			return &APIError{StatusCode: resp.StatusCode, Message: message}
		}

		if result == nil {
			return nil
		}
		if decodeErr != nil {
			return fmt.Errorf("decoding response from %s %s: %w", method, path, decodeErr)
		}
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("decoding data from %s %s: %w", method, path, err)
		}
		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// retryAfterDuration reads Retry-After, falling back to exponential
// backoff capped at 30 seconds.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return Backoff(attempt)
}

// Backoff returns the wait before retry number attempt: 1s, 2s, 4s, ...
// up to 30s.
func Backoff(attempt int) time.Duration {
	if attempt > 5 {
		return 30 * time.Second
	}
	return min(time.Duration(1<<uint(attempt))*time.Second, 30*time.Second)
}
