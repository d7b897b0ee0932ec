// Package sauce marks remote jobs as passed or failed through the Sauce
// REST API.
package sauce

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mailru/easyjson/jwriter"
	"github.com/oxtoacart/bpool"
	"github.com/tidwall/gjson"

	"github.com/grafana/browsermatrix/api"
	"github.com/grafana/browsermatrix/log"
)

// Defaults applied to zero Config fields.
const (
	DefaultBaseURL  = "https://saucelabs.com"
	DefaultAttempts = 3
	DefaultBackoff  = 500 * time.Millisecond

	maxErrorBody = 16 * 1024
)

// ErrNoCredentials is returned when the client has no username.
var ErrNoCredentials = errors.New("sauce: username is required")

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	JobID      string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("updating job %q: unexpected status %d", e.JobID, e.StatusCode)
	}
	return fmt.Sprintf("updating job %q: unexpected status %d: %s", e.JobID, e.StatusCode, e.Message)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// Config holds the REST endpoint and credentials.
type Config struct {
	BaseURL   string
	Username  string
	AccessKey string
	// Attempts is how many times a retryable update is tried.
	Attempts int
	Backoff  time.Duration
	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
}

var _ api.Reporter = &Client{}

// Client updates jobs through the REST API.
type Client struct {
	conf   Config
	pool   *bpool.BufferPool
	logger *log.Logger
}

// NewClient returns a Client for conf.
func NewClient(conf Config, logger *log.Logger) (*Client, error) {
	if conf.Username == "" {
		return nil, ErrNoCredentials
	}
	if conf.BaseURL == "" {
		conf.BaseURL = DefaultBaseURL
	}
	conf.BaseURL = strings.TrimRight(conf.BaseURL, "/")
	if conf.Attempts <= 0 {
		conf.Attempts = DefaultAttempts
	}
	if conf.Backoff <= 0 {
		conf.Backoff = DefaultBackoff
	}
	if conf.HTTPClient == nil {
		conf.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.NullLogger()
	}

	return &Client{
		conf:   conf,
		pool:   bpool.NewBufferPool(8),
		logger: logger,
	}, nil
}

// Report implements api.Reporter.
func (c *Client) Report(ctx context.Context, sessionID string, passed bool) error {
	return c.update(ctx, sessionID, passed)
}

// JobPassed marks the job as passed.
func (c *Client) JobPassed(ctx context.Context, jobID string) error {
	return c.update(ctx, jobID, true)
}

// JobFailed marks the job as failed.
func (c *Client) JobFailed(ctx context.Context, jobID string) error {
	return c.update(ctx, jobID, false)
}

func (c *Client) jobURL(jobID string) string {
	return fmt.Sprintf("%s/rest/v1/%s/jobs/%s",
		c.conf.BaseURL, url.PathEscape(c.conf.Username), url.PathEscape(jobID))
}

func (c *Client) update(ctx context.Context, jobID string, passed bool) error {
	if jobID == "" {
		return errors.New("sauce: empty job id")
	}

	var err error
	for attempt := 1; attempt <= c.conf.Attempts; attempt++ {
		if attempt > 1 {
			wait := c.conf.Backoff * time.Duration(1<<(attempt-2))
			c.logger.Debugf("sauce:update", "job:%q retrying in %s after: %v", jobID, wait, err)
			t := time.NewTimer(wait)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("updating job %q: %w", jobID, ctx.Err())
			}
		}

		err = c.put(ctx, jobID, passed)
		var serr *StatusError
		if err == nil || !errors.As(err, &serr) || !serr.retryable() {
			break
		}
	}
	if err != nil {
		return err
	}

	c.logger.Debugf("sauce:update", "job:%q passed:%t", jobID, passed)
	return nil
}

func (c *Client) put(ctx context.Context, jobID string, passed bool) error {
	buf := c.pool.Get()
	defer c.pool.Put(buf)

	w := jwriter.Writer{}
	w.RawString(`{"passed":`)
	w.Bool(passed)
	w.RawByte('}')
	if _, err := w.DumpTo(buf); err != nil {
		return fmt.Errorf("encoding job update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.jobURL(jobID), buf)
	if err != nil {
		return fmt.Errorf("building job update request: %w", err)
	}
	req.SetBasicAuth(c.conf.Username, c.conf.AccessKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.conf.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("updating job %q: %w", jobID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		JobID:      jobID,
		StatusCode: resp.StatusCode,
		Message:    errorMessage(body),
	}
}

// errorMessage extracts the message of an error response body.
func errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"message", "detail", "error"} {
			if r := gjson.GetBytes(body, path); r.Type == gjson.String {
				return r.String()
			}
		}
	}
	return strings.TrimSpace(string(body))
}
