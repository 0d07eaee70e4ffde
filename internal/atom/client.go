// Package atom is the client for the carrier provisioning API ("Atom").
// It covers the four calls the bot needs: line lookup, usage query,
// network reset, and out-of-band SMS delivery.
package atom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pondmobile/supportbot/core/logger"
	"github.com/pondmobile/supportbot/core/telegram/netutil"
	"github.com/pondmobile/supportbot/internal/phone"
)

const (
	authHeader = "X-AUTH-TOKEN"

	defaultTimeout       = 10 * time.Second
	defaultDialTimeout   = 5 * time.Second
	defaultTLSHandshake  = 5 * time.Second
	defaultRetryAttempts = 2
	defaultRetryBackoff  = time.Second
)

// ErrLineNotFound is returned when the quick-find lookup matches no line.
var ErrLineNotFound = errors.New("atom: line not found")

// StatusError reports a non-success HTTP status from the API. It is distinct
// from transport-level failures, which surface as wrapped url/net errors.
type StatusError struct {
	Code int
	Op   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("atom: %s returned status %d", e.Op, e.Code)
}

// StatusCode extracts the HTTP status from err when it is a StatusError.
func StatusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

// IsTransport reports whether err is a connection-level failure rather than
// an HTTP status or a domain sentinel.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrLineNotFound) {
		return false
	}
	if _, ok := StatusCode(err); ok {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// Config carries the settings needed to construct a Client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client talks to the Atom API. Idempotent GETs retry on transient network
// failure; mutating calls are sent exactly once.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New builds a Client with a tuned transport.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: defaultDialTimeout}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: defaultTLSHandshake,
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http: &http.Client{
			Timeout: timeout,
			Transport: &retryTransport{
				base:       transport,
				maxRetries: defaultRetryAttempts,
				backoff:    defaultRetryBackoff,
			},
		},
	}
}

// Usage is the data allowance snapshot for a line, in kibibytes.
type Usage struct {
	UsedKiB      float64
	TotalKiB     float64
	RemainingKiB float64
}

type lineList struct {
	Lines []struct {
		ID int64 `json:"id"`
	} `json:"lines"`
}

type serviceDetails struct {
	UsageSummary struct {
		InternationalData struct {
			Total          json.Number `json:"total"`
			Remaining      json.Number `json:"remaining"`
			Used           json.Number `json:"used"`
			UsedByThisLine json.Number `json:"used_by_this_line"`
		} `json:"international_data"`
	} `json:"usage_summary"`
}

// LookupLine resolves an MDN to its line identifier via quick-find.
// ErrLineNotFound means the API answered but no line matched.
func (c *Client) LookupLine(ctx context.Context, mdn string) (int64, error) {
	clean := phone.Normalize(mdn)
	endpoint := fmt.Sprintf("%s/lines?by_quick_find[]=%s", c.baseURL, url.QueryEscape(clean))

	var list lineList
	if err := c.getJSON(ctx, "lookup_line", endpoint, &list); err != nil {
		return 0, err
	}
	if len(list.Lines) == 0 {
		return 0, ErrLineNotFound
	}
	return list.Lines[0].ID, nil
}

// QueryUsage fetches the data usage summary for a line.
func (c *Client) QueryUsage(ctx context.Context, lineID int64) (Usage, error) {
	endpoint := fmt.Sprintf("%s/lines/%d/query_service_details", c.baseURL, lineID)

	var details serviceDetails
	if err := c.getJSON(ctx, "query_usage", endpoint, &details); err != nil {
		return Usage{}, err
	}

	data := details.UsageSummary.InternationalData
	used := numberOr(data.UsedByThisLine, data.Used)
	return Usage{
		UsedKiB:      numberFloat(used),
		TotalKiB:     numberFloat(data.Total),
		RemainingKiB: numberFloat(data.Remaining),
	}, nil
}

// NetworkReset issues a reset for a line. Any 2xx status is success.
func (c *Client) NetworkReset(ctx context.Context, lineID int64) error {
	endpoint := fmt.Sprintf("%s/lines/%d/network_reset", c.baseURL, lineID)

	start := time.Now()
	resp, err := c.do(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		c.logCall(ctx, "network_reset", 0, start, err)
		return fmt.Errorf("atom: network reset: %w", err)
	}
	defer drain(resp)

	c.logCall(ctx, "network_reset", resp.StatusCode, start, nil)
	if resp.StatusCode >= 200 && resp.StatusCode <= 204 {
		return nil
	}
	return &StatusError{Code: resp.StatusCode, Op: "network_reset"}
}

// SendSMS delivers a text to an MDN through the carrier messaging surface.
// The bot uses it as the out-of-band channel for passcodes.
func (c *Client) SendSMS(ctx context.Context, mdn, text string) error {
	endpoint := c.baseURL + "/messages"
	body, err := json.Marshal(map[string]string{
		"to":   phone.Normalize(mdn),
		"body": text,
	})
	if err != nil {
		return fmt.Errorf("atom: encode sms: %w", err)
	}

	start := time.Now()
	resp, err := c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		c.logCall(ctx, "send_sms", 0, start, err)
		return fmt.Errorf("atom: send sms: %w", err)
	}
	defer drain(resp)

	c.logCall(ctx, "send_sms", resp.StatusCode, start, nil)
	if resp.StatusCode >= 200 && resp.StatusCode <= 204 {
		return nil
	}
	return &StatusError{Code: resp.StatusCode, Op: "send_sms"}
}

func (c *Client) getJSON(ctx context.Context, op, endpoint string, out any) error {
	start := time.Now()
	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.logCall(ctx, op, 0, start, err)
		return fmt.Errorf("atom: %s: %w", op, err)
	}
	defer drain(resp)

	c.logCall(ctx, op, resp.StatusCode, start, nil)
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Op: op}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("atom: %s: decode response: %w", op, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set(authHeader, c.token)
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

func (c *Client) logCall(ctx context.Context, op string, status int, start time.Time, err error) {
	if logger.Atom == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("event", "atom.call"),
		slog.String("op", op),
		slog.Duration("duration", logger.Took(start)),
	}
	if status != 0 {
		attrs = append(attrs, slog.Int("http_code", status))
	}
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	logger.Atom.LogAttrs(ctx, level, "atom.call", attrs...)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func numberOr(primary, fallback json.Number) json.Number {
	if primary.String() != "" {
		return primary
	}
	return fallback
}

func numberFloat(n json.Number) float64 {
	f, err := n.Float64()
	if err != nil {
		return 0
	}
	return f
}

// retryTransport retries idempotent requests on transient network errors.
// Mutating methods pass through untouched so a reset is never replayed.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return base.RoundTrip(req)
	}

	attempts := t.maxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := base.RoundTrip(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !netutil.ShouldRetry(err) || attempt == attempts {
			break
		}

		delay := t.backoff * time.Duration(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}
