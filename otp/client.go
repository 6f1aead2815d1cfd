// Package otp polls the external OTP store for the one-time code the portal
// e-mails after a login asks for it.
package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/use-agent/noticesync/config"
	"github.com/use-agent/noticesync/models"
)

// ErrNotYet is the store's explicit "no OTP for this request yet" (HTTP 404).
var ErrNotYet = errors.New("otp: not found yet")

// ExhaustedError is wrapped in the OTP_TIMEOUT error returned once the
// attempt budget is spent. NotFound and Transport count the two failure
// classes separately; LastErr is the last transport failure, if any.
type ExhaustedError struct {
	Attempts  int
	NotFound  int
	Transport int
	LastErr   error
}

func (e *ExhaustedError) Error() string {
	msg := fmt.Sprintf("no OTP after %d attempts (%d not found, %d transport errors)",
		e.Attempts, e.NotFound, e.Transport)
	if e.LastErr != nil {
		msg += ": last error: " + e.LastErr.Error()
	}
	return msg
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// record is the store's 200 body. The code arrives as a string or a number.
// requestedAtLayout keeps millisecond precision so a code generated within
// the same second as the request is not filtered out.
const requestedAtLayout = "2006-01-02T15:04:05.000Z07:00"

type record struct {
	OTP       json.RawMessage `json:"otp"`
	CreatedAt string          `json:"createdAt"`
}

// Client queries GET {URL}/{identity}?requestedAt=<UTC ISO-8601, milliseconds>.
type Client struct {
	http *resty.Client
	cfg  config.OTPConfig
	log  *slog.Logger

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds a Client from cfg. A nil logger uses slog.Default.
func NewClient(cfg config.OTPConfig, logger *slog.Logger) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 6
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 2 * time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New()
	client.SetHeader("Accept", "application/json")
	client.SetHeader("User-Agent", "noticesync-otp/1.0")
	client.SetTimeout(cfg.RequestTimeout)

	return &Client{
		http:  client,
		cfg:   cfg,
		log:   logger.With("component", "otp"),
		sleep: sleepContext,
	}
}

// FetchOTP waits InitialDelay, then queries the store up to MaxAttempts
// times with a doubling delay capped at MaxDelay. Not-found and transport
// failures are both retried; the budget is the only way to give up.
func (c *Client) FetchOTP(ctx context.Context, identity string, requestedAt time.Time) (string, error) {
	b := c.newBackOff()
	exhausted := &ExhaustedError{}
	wait := c.cfg.InitialDelay

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.sleep(ctx, wait); err != nil {
			return "", models.NewSyncError(models.ErrKindOTPTimeout, "OTP wait cancelled", err)
		}

		code, err := c.query(ctx, identity, requestedAt)
		exhausted.Attempts = attempt
		if err == nil {
			c.log.Info("OTP retrieved", "roll_no", identity, "attempt", attempt)
			return code, nil
		}

		if errors.Is(err, ErrNotYet) {
			exhausted.NotFound++
			c.log.Debug("OTP not available yet", "roll_no", identity, "attempt", attempt)
		} else {
			exhausted.Transport++
			exhausted.LastErr = err
			c.log.Warn("OTP store query failed", "roll_no", identity, "attempt", attempt, "error", err)
		}
		wait = b.NextBackOff()
	}

	return "", models.NewSyncError(models.ErrKindOTPTimeout, exhausted.Error(), exhausted)
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.cfg.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.cfg.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

func (c *Client) query(ctx context.Context, identity string, requestedAt time.Time) (string, error) {
	endpoint := strings.TrimRight(c.cfg.URL, "/") + "/" + url.PathEscape(identity)

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("requestedAt", requestedAt.UTC().Format(requestedAtLayout)).
		Get(endpoint)
	if err != nil {
		return "", fmt.Errorf("otp: request: %w", err)
	}

	switch res.StatusCode() {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", ErrNotYet
	default:
		return "", fmt.Errorf("otp: store returned status %d", res.StatusCode())
	}

	var rec record
	if err := json.Unmarshal(res.Body(), &rec); err != nil {
		return "", fmt.Errorf("otp: decode record: %w", err)
	}
	return parseCode(rec.OTP)
}

// parseCode accepts "123456" or 123456. A numeric code keeps its digits as
// written, so leading zeros only survive the string form.
func parseCode(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errors.New("otp: record has no code")
	}

	var code string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &code); err != nil {
			return "", fmt.Errorf("otp: decode code: %w", err)
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", fmt.Errorf("otp: decode code: %w", err)
		}
		code = n.String()
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return "", errors.New("otp: record has an empty code")
	}
	return code, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
