package upstream

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

	"seatwatch/internal/course"
	"seatwatch/internal/retry"
	logx "seatwatch/pkg/logx"

	"golang.org/x/time/rate"
)

// ErrNoCredential is wrapped in an Unauthorized error when no API key is configured.
var ErrNoCredential = errors.New("api key is not set")

const (
	DefaultBaseURL = "https://openapi.data.uwaterloo.ca"

	maxBodyBytes = 8 << 20
)

// Config controls the upstream client.
type Config struct {
	BaseURL string
	APIKey  string

	// Timeout bounds a single HTTP attempt; it is independent of retry backoff.
	Timeout time.Duration
	// RetryMax is the total number of tries for transient failures (default 3).
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// RatePerSec limits outgoing requests across all callers; 0 disables limiting.
	RatePerSec float64
}

// Client fetches class schedules. It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	backoff retry.Policy
	log     logx.Logger
}

// New builds a client. httpClient may be nil.
func New(cfg Config, httpClient *http.Client, log logx.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: lim,
		backoff: retry.Policy{Base: cfg.RetryBase, MaxDelay: cfg.RetryMaxDelay},
		log:     log,
	}
}

// Fetch returns the raw section records for a course, in upstream order.
func (c *Client) Fetch(ctx context.Context, key course.CourseKey) ([]Record, error) {
	path := "/v3/ClassSchedules/" + url.PathEscape(key.Term) + "/" + url.PathEscape(key.Subject) + "/" + url.PathEscape(key.CatalogNumber)
	var out []Record
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Terms lists the terms known to the API.
func (c *Client) Terms(ctx context.Context) ([]Term, error) {
	var out []Term
	if err := c.getJSON(ctx, "/v3/Terms", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CurrentTerm returns the term flagged current, falling back to the first listed term.
func (c *Client) CurrentTerm(ctx context.Context) (Term, error) {
	terms, err := c.Terms(ctx)
	if err != nil {
		return Term{}, err
	}
	for _, t := range terms {
		if t.IsCurrent {
			return t, nil
		}
	}
	if len(terms) > 0 {
		return terms[0], nil
	}
	return Term{}, &Error{Kind: Permanent, Attempts: 1, Err: errors.New("no terms returned")}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return &Error{Kind: Unauthorized, Err: ErrNoCredential}
	}
	u := c.cfg.BaseURL + path

	for attempt := 1; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		start := time.Now()
		status, err := c.once(ctx, u, out)
		if err == nil {
			c.log.Debug("upstream fetch ok", logx.String("path", path), logx.Int("attempt", attempt), logx.Duration("took", time.Since(start)))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		kind := Transient
		if status != 0 {
			kind = classifyStatus(status)
		}
		var de *decodeError
		if errors.As(err, &de) {
			kind = Permanent
		}
		if kind != Transient || attempt >= c.cfg.RetryMax {
			return &Error{Kind: kind, Status: status, Attempts: attempt, Err: err}
		}

		wait := c.backoff.Delay(attempt)
		c.log.Debug("upstream fetch failed; retrying",
			logx.String("path", path),
			logx.Int("status", status),
			logx.Int("attempt", attempt),
			logx.Duration("backoff", wait),
			logx.Err(err),
		)
		if err := retry.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }

// once performs a single attempt bounded by cfg.Timeout.
// A non-zero status is returned for HTTP-level failures.
func (c *Client) once(ctx context.Context, u string, out any) (int, error) {
	actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxBodyBytes)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(body, 512))
		return resp.StatusCode, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		if actx.Err() != nil {
			return 0, actx.Err()
		}
		return 0, &decodeError{err: err}
	}
	return 0, nil
}
