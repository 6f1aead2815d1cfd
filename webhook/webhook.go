// Package webhook delivers each run's new notices downstream.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/use-agent/noticesync/config"
	"github.com/use-agent/noticesync/models"
)

// SignatureHeader carries "sha256=<hex>" of the body when a secret is set.
const SignatureHeader = "X-Noticesync-Signature"

// Deliverer POSTs notice batches to one downstream URL.
type Deliverer struct {
	http   *resty.Client
	url    string
	secret string
	log    *slog.Logger
}

// NewDeliverer builds a Deliverer from cfg.
func NewDeliverer(cfg config.DeliveryConfig, logger *slog.Logger) *Deliverer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("User-Agent", "noticesync-webhook/1.0")
	client.SetTimeout(cfg.Timeout)

	return &Deliverer{
		http:   client,
		url:    cfg.URL,
		secret: cfg.Secret,
		log:    logger.With("component", "webhook"),
	}
}

// Deliver sends notices as a JSON array in one request. An empty batch is
// still sent as []. Any non-2xx status is a DELIVERY_FAILED error; there
// is no retry.
func (d *Deliverer) Deliver(ctx context.Context, notices []models.Notice) error {
	if notices == nil {
		notices = []models.Notice{}
	}
	body, err := json.Marshal(notices)
	if err != nil {
		return models.NewSyncError(models.ErrKindDelivery, "could not encode notices", err)
	}

	req := d.http.R().SetContext(ctx).SetBody(body)
	if d.secret != "" {
		req.SetHeader(SignatureHeader, "sha256="+Sign(d.secret, body))
	}

	start := time.Now()
	res, err := req.Post(d.url)
	if err != nil {
		return models.NewSyncError(models.ErrKindDelivery, "delivery request failed", err)
	}
	if !res.IsSuccess() {
		return models.NewSyncError(models.ErrKindDelivery,
			fmt.Sprintf("endpoint returned status %d", res.StatusCode()), nil)
	}

	d.log.Info("notices delivered",
		"count", len(notices),
		"status", res.StatusCode(),
		"elapsed", time.Since(start).String(),
	)
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
