package peoplepulse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/peoplepulse/pulse/internal/timesheet"
)

const (
	defaultTimeout = 30 * time.Second
	maxRetries     = 3
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *ProjectCache
	logger     *logrus.Logger
	validate   *validator.Validate
	backoff    func(attempt int) time.Duration
}

type Option func(*Client)

func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(c *Client) { c.backoff = fn }
}

// NewClient builds a gateway for the PeoplePulse API at baseURL.
// A non-empty token is sent as a bearer token on every request.
func NewClient(baseURL, token string, cacheTTL time.Duration, logger *logrus.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	httpClient := &http.Client{}
	if token != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		httpClient = oauth2.NewClient(context.Background(), src)
	}
	httpClient.Timeout = defaultTimeout

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		cache:      NewProjectCache(cacheTTL),
		logger:     logger,
		validate:   validator.New(),
		backoff:    backoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, int, error) {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	requestID := uuid.NewString()
	log := c.logger.WithFields(logrus.Fields{
		"method":     method,
		"path":       path,
		"request_id": requestID,
	})
	log.Debug("PeoplePulse API request")

	// POST creates a record, so a resend could create a duplicate.
	retries := maxRetries
	if method == http.MethodPost {
		retries = 0
	}

	var resp *http.Response
	requestStart := time.Now()
	for attempt := 0; attempt <= retries; attempt++ {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, 0, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", requestID)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err = c.httpClient.Do(req)
		if err != nil {
			if attempt == retries || ctx.Err() != nil {
				log.WithError(err).WithField("elapsed", time.Since(requestStart)).Error("API request transport error")
				return nil, 0, fmt.Errorf("sending request: %w", err)
			}
			log.WithError(err).WithField("attempt", attempt+1).Debug("API request transport error, retrying")
			if err := sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, 0, err
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			if attempt == retries {
				break
			}
			resp.Body.Close()
			log.WithFields(logrus.Fields{"status": resp.StatusCode, "attempt": attempt + 1}).Debug("API request retryable error")
			if err := sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, 0, err
			}
			continue
		}
		break
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}

	log.WithFields(logrus.Fields{
		"status":  resp.StatusCode,
		"bytes":   len(respBody),
		"elapsed": time.Since(requestStart),
	}).Debug("PeoplePulse API response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: string(respBody)}
		if resp.StatusCode != http.StatusNotFound {
			log.WithFields(logrus.Fields{"status": resp.StatusCode, "response": truncate(apiErr.Body, 200)}).Error("API request failed")
		}
		return nil, resp.StatusCode, apiErr
	}

	return respBody, resp.StatusCode, nil
}

func backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func emptyBody(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// GetTimesheet returns the persisted timesheet for the resource and week,
// or nil when none has been created yet.
func (c *Client) GetTimesheet(ctx context.Context, resourceID int64, weekStart time.Time) (*timesheet.Timesheet, error) {
	path := fmt.Sprintf("/Timesheet/timesheet/%d/%s", resourceID, timesheet.DateKey(weekStart))
	data, status, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting timesheet: %w", err)
	}
	if status == http.StatusNoContent || emptyBody(data) {
		return nil, nil
	}

	var ts timesheet.Timesheet
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("parsing timesheet response: %w", err)
	}
	if ts.ID == 0 {
		return nil, nil
	}
	return &ts, nil
}

func (c *Client) CreateTimesheet(ctx context.Context, ts *timesheet.Timesheet) (*timesheet.Timesheet, error) {
	if err := c.validate.Struct(ts); err != nil {
		return nil, fmt.Errorf("invalid timesheet payload: %w", err)
	}
	data, _, err := c.doRequest(ctx, http.MethodPost, "/Timesheet", ts)
	if err != nil {
		return nil, fmt.Errorf("creating timesheet: %w", err)
	}
	return decodeSaved(data)
}

func (c *Client) UpdateTimesheet(ctx context.Context, ts *timesheet.Timesheet) (*timesheet.Timesheet, error) {
	if !ts.Persisted() {
		return nil, errors.New("updating timesheet: missing id")
	}
	if err := c.validate.Struct(ts); err != nil {
		return nil, fmt.Errorf("invalid timesheet payload: %w", err)
	}
	path := fmt.Sprintf("/Timesheet/%d", ts.ID)
	data, _, err := c.doRequest(ctx, http.MethodPut, path, ts)
	if err != nil {
		return nil, fmt.Errorf("updating timesheet %d: %w", ts.ID, err)
	}
	return decodeSaved(data)
}

// decodeSaved tolerates write endpoints that answer with no body.
func decodeSaved(data []byte) (*timesheet.Timesheet, error) {
	if emptyBody(data) {
		return nil, nil
	}
	var saved timesheet.Timesheet
	if err := json.Unmarshal(data, &saved); err != nil {
		return nil, fmt.Errorf("parsing timesheet response: %w", err)
	}
	return &saved, nil
}

func (c *Client) GetResource(ctx context.Context, id int64) (*Resource, error) {
	data, _, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/Resource/%d", id), nil)
	if err != nil {
		return nil, fmt.Errorf("getting resource %d: %w", id, err)
	}

	var r Resource
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing resource response: %w", err)
	}
	return &r, nil
}

// GetProjects lists the projects the resource may log time against.
func (c *Client) GetProjects(ctx context.Context, resourceID int64) ([]Project, error) {
	if resourceID <= 0 {
		return nil, fmt.Errorf("resource ID is empty, set resource.id in config or PEOPLEPULSE_RESOURCE_ID")
	}
	if cached := c.cache.Get(resourceID); cached != nil {
		return cached, nil
	}

	data, _, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/Project/resource/%d", resourceID), nil)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting projects: %w", err)
	}

	projects := []Project{}
	if !emptyBody(data) {
		if err := json.Unmarshal(data, &projects); err != nil {
			return nil, fmt.Errorf("parsing projects response: %w", err)
		}
	}

	c.cache.Set(resourceID, projects)
	return projects, nil
}

func (c *Client) InvalidateProjects() {
	c.cache.Invalidate()
}
