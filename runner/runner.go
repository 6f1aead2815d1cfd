// Package runner composes one sync run: log in, read the notices newer than
// the watermark, deliver them, and always release the browser.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/noticesync/browser"
	"github.com/use-agent/noticesync/cleaner"
	"github.com/use-agent/noticesync/config"
	"github.com/use-agent/noticesync/models"
	"github.com/use-agent/noticesync/otp"
	"github.com/use-agent/noticesync/portal"
	"github.com/use-agent/noticesync/webhook"
)

// Step names the stage of a run.
type Step string

const (
	StepConfig    Step = "config"
	StepWatermark Step = "watermark"
	StepInit      Step = "init"
	StepLogin     Step = "login"
	StepScrape    Step = "scrape"
	StepDeliver   Step = "deliver"
)

// StepError records which step of a run failed.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepOf returns the failed step recorded in err, or "".
func StepOf(err error) Step {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}

// Session is the part of portal.Session a run drives.
type Session interface {
	Init(ctx context.Context) error
	Login(ctx context.Context) error
	Page() (portal.Page, error)
	Close() error
}

// Scraper reads the notices newer than a watermark from an authenticated page.
type Scraper interface {
	Scrape(ctx context.Context, page portal.Page, watermark time.Time) ([]models.Notice, error)
}

// Deliverer sends one batch of notices downstream.
type Deliverer interface {
	Deliver(ctx context.Context, notices []models.Notice) error
}

// Result is what a successful run produced.
type Result struct {
	Notices   []models.Notice
	Delivered int
	Elapsed   time.Duration
}

// Options carry a Runner's collaborators.
type Options struct {
	// NewSession builds the per-run session.
	NewSession func(creds models.Credentials) Session

	Scraper   Scraper
	Deliverer Deliverer
	Logger    *slog.Logger
}

// Runner executes sync runs. Runs share nothing but configuration and the
// stateless clients, so one Runner may serve concurrent runs.
type Runner struct {
	cfg  *config.Config
	opts Options
	log  *slog.Logger
}

// New returns a Runner using the given collaborators.
func New(cfg *config.Config, opts Options) *Runner {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Runner{cfg: cfg, opts: opts, log: log.With("component", "runner")}
}

// NewDefault wires the Rod browser, the OTP store client, the listing
// extractor and the webhook deliverer from cfg.
func NewDefault(cfg *config.Config, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	renderer, err := cleaner.NewRenderer(cfg.Portal.BodyFormat, cfg.Portal.BodySelector)
	if err != nil {
		return nil, models.NewSyncError(models.ErrKindConfiguration, err.Error(), err)
	}

	launcher := browser.NewLauncher(cfg.Browser, logger)
	otpClient := otp.NewClient(cfg.OTP, logger)

	newSession := func(creds models.Credentials) Session {
		return portal.NewSession(creds, launcher, otpClient, portal.SessionOptions{
			LoginURL:          cfg.Portal.LoginURL,
			NavigationTimeout: cfg.Portal.NavigationTimeout,
			ElementTimeout:    cfg.Portal.ElementTimeout,
			SettleTimeout:     cfg.Portal.SettleTimeout,
			Logger:            logger,
		})
	}

	extractor := portal.NewExtractor(portal.ExtractorOptions{
		ListingURL:        cfg.Portal.ListingURL,
		Location:          cfg.Portal.Location(),
		NavigationTimeout: cfg.Portal.NavigationTimeout,
		ListingTimeout:    cfg.Portal.ListingTimeout,
		DetailTimeout:     cfg.Portal.DetailTimeout,
		Render:            renderer.Render,
		Logger:            logger,
	})

	return New(cfg, Options{
		NewSession: newSession,
		Scraper:    extractor,
		Deliverer:  webhook.NewDeliverer(cfg.Delivery, logger),
		Logger:     logger,
	}), nil
}

// Run performs one sync. Every failure comes back as a *StepError. Once
// created, the session is closed exactly once on every path; a close
// failure is logged and never replaces the run's own outcome.
func (r *Runner) Run(ctx context.Context, req models.SyncRequest) (*Result, error) {
	log := r.log.With("roll_no", req.RollNo)
	start := time.Now()

	if err := r.cfg.ValidateEndpoints(); err != nil {
		return nil, &StepError{Step: StepConfig,
			Err: models.NewSyncError(models.ErrKindConfiguration, err.Error(), err)}
	}
	if err := req.Validate(); err != nil {
		return nil, &StepError{Step: StepConfig,
			Err: models.NewSyncError(models.ErrKindInvalidInput, err.Error(), err)}
	}

	watermark, err := portal.ParseWatermark(req.LastKnownNoticeAt, r.cfg.Portal.Location())
	if err != nil {
		return nil, &StepError{Step: StepWatermark, Err: err}
	}

	session := r.opts.NewSession(req.Credentials)
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Warn("session cleanup failed", "error", cerr)
		}
	}()

	if err := session.Init(ctx); err != nil {
		return nil, &StepError{Step: StepInit, Err: err}
	}
	if err := session.Login(ctx); err != nil {
		return nil, &StepError{Step: StepLogin, Err: err}
	}
	page, err := session.Page()
	if err != nil {
		return nil, &StepError{Step: StepLogin, Err: err}
	}

	notices, err := r.opts.Scraper.Scrape(ctx, page, watermark)
	if err != nil {
		return nil, &StepError{Step: StepScrape, Err: err}
	}

	res := &Result{Notices: notices}
	if len(notices) == 0 {
		res.Elapsed = time.Since(start)
		log.Info("no new notices", "elapsed", res.Elapsed.String())
		return res, nil
	}

	if err := r.opts.Deliverer.Deliver(ctx, notices); err != nil {
		return nil, &StepError{Step: StepDeliver, Err: err}
	}
	res.Delivered = len(notices)
	res.Elapsed = time.Since(start)

	log.Info("sync finished",
		"delivered", res.Delivered,
		"newest", notices[0].NoticeAt,
		"elapsed", res.Elapsed.String(),
	)
	return res, nil
}
