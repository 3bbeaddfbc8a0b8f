package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/lakewatch/thermal-service/internal/apperrors"
	thttp "github.com/lakewatch/thermal-service/internal/http"
	"github.com/lakewatch/thermal-service/internal/http/ratelimit"
)

// Config holds provider endpoint, credentials and client tuning.
type Config struct {
	BaseURL   string
	Username  string
	Password  string
	Timeout   time.Duration
	RateLimit ratelimit.Config
	// Cache shares tokens between processes; nil keeps them in memory only.
	Cache TokenCache
}

// Client talks to the provider API with bearer tokens obtained from
// POST /login.
type Client struct {
	baseURL string
	source  *loginSource
	api     *thttp.Client
}

var _ API = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("provider base url is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("provider credentials are required")
	}
	if err := cfg.RateLimit.Validate(); err != nil {
		return nil, fmt.Errorf("provider rate limit: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	base := strings.TrimRight(cfg.BaseURL, "/")

	src := &loginSource{
		http:     thttp.NewClient(cfg.RateLimit, thttp.WithTimeout(cfg.Timeout)),
		baseURL:  base,
		username: cfg.Username,
		password: cfg.Password,
		cache:    cfg.Cache,
		now:      time.Now,
	}
	authed := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &oauth2.Transport{Source: src, Base: http.DefaultTransport},
	}
	return &Client{
		baseURL: base,
		source:  src,
		api:     thttp.NewClient(cfg.RateLimit, thttp.WithHTTPClient(authed)),
	}, nil
}

// Login forces a token fetch, e.g. to check credentials.
func (c *Client) Login(ctx context.Context) error {
	c.source.invalidate(ctx)
	_, err := c.source.Token()
	return err
}

// SubmitTask posts an area task and returns its id.
func (c *Client) SubmitTask(ctx context.Context, task TaskRequest) (string, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("encode task: %w", err)
	}
	var out submitResponse
	if err := c.doJSON(ctx, thttp.Request{
		Method: http.MethodPost,
		URL:    c.baseURL + "/task",
		Body:   body,
		Header: http.Header{"Content-Type": []string{"application/json"}},
	}, &out); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", apperrors.TransientProvider(nil, "submit response carried no task id")
	}
	return out.TaskID, nil
}

// TaskStatus returns the provider's status string for a task.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (string, error) {
	var out taskStatusResponse
	if err := c.doJSON(ctx, thttp.Request{
		Method: http.MethodGet,
		URL:    c.baseURL + "/task/" + url.PathEscape(taskID),
	}, &out); err != nil {
		return "", err
	}
	if out.Status == "" {
		return "", apperrors.TransientProvider(nil, "status response for %s carried no status", taskID)
	}
	return out.Status, nil
}

// Bundle returns the manifest of a finished task.
func (c *Client) Bundle(ctx context.Context, taskID string) (*Bundle, error) {
	var out Bundle
	if err := c.doJSON(ctx, thttp.Request{
		Method: http.MethodGet,
		URL:    c.baseURL + "/bundle/" + url.PathEscape(taskID),
	}, &out); err != nil {
		return nil, err
	}
	if out.TaskID == "" {
		out.TaskID = taskID
	}
	return &out, nil
}

// Download fetches one bundle file.
func (c *Client) Download(ctx context.Context, taskID, fileID string) ([]byte, error) {
	resp, err := c.do(ctx, thttp.Request{
		Method: http.MethodGet,
		URL:    c.baseURL + "/bundle/" + url.PathEscape(taskID) + "/" + url.PathEscape(fileID),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.TransientProvider(err, "read file %s", fileID)
	}
	return data, nil
}

func (c *Client) doJSON(ctx context.Context, r thttp.Request, out any) error {
	if r.Header == nil {
		r.Header = http.Header{}
	}
	r.Header.Set("Accept", "application/json")
	resp, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.TransientProvider(err, "decode %s response", r.URL)
	}
	return nil
}

// do runs a request, logging in again once if the provider rejects the
// token.
func (c *Client) do(ctx context.Context, r thttp.Request) (*http.Response, error) {
	resp, err := c.api.Do(ctx, r)
	if isUnauthorized(err) {
		c.source.invalidate(ctx)
		resp, err = c.api.Do(ctx, r)
	}
	if err != nil {
		return nil, classify(err, r.Method+" "+r.URL)
	}
	return resp, nil
}

func isUnauthorized(err error) bool {
	var fre *ratelimit.FetchRetryError
	return errors.As(err, &fre) && fre.LastStatus == http.StatusUnauthorized
}

// classify maps transport failures onto the error taxonomy. Network errors,
// 401, 429 and 5xx are transient; 404 is NotFound; other statuses are
// returned as-is.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	var fre *ratelimit.FetchRetryError
	if errors.As(err, &fre) {
		switch {
		case fre.LastStatus == http.StatusNotFound:
			return apperrors.NotFound("%s: not found", op)
		case fre.LastStatus == http.StatusUnauthorized || fre.Retryable():
			return apperrors.TransientProvider(err, "%s", op)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return apperrors.TransientProvider(err, "%s", op)
}
