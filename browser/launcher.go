// Package browser implements the portal's Page capability on a Rod-driven
// Chromium. Each Launch starts a dedicated browser process; runs share no
// cookies or session state.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/noticesync/config"
	"github.com/use-agent/noticesync/portal"
)

// Launcher starts one Chromium per Launch call.
type Launcher struct {
	cfg config.BrowserConfig
	log *slog.Logger
}

// NewLauncher returns a Launcher for cfg.
func NewLauncher(cfg config.BrowserConfig, logger *slog.Logger) *Launcher {
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{cfg: cfg, log: logger.With("component", "browser")}
}

type launchResult struct {
	controlURL string
	err        error
}

// Launch starts the browser process and connects to it, within LaunchTimeout.
func (l *Launcher) Launch(ctx context.Context) (portal.Browser, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.LaunchTimeout)
	defer cancel()

	ln := l.newLauncher()

	done := make(chan launchResult, 1)
	go func() {
		u, err := ln.Launch()
		done <- launchResult{controlURL: u, err: err}
	}()

	var res launchResult
	select {
	case <-ctx.Done():
		ln.Kill()
		return nil, fmt.Errorf("browser: launch: %w", ctx.Err())
	case res = <-done:
	}
	if res.err != nil {
		return nil, fmt.Errorf("browser: launch: %w", res.err)
	}
	l.log.Debug("browser launched", "controlURL", res.controlURL)

	b := rod.New().ControlURL(res.controlURL)
	if err := b.Connect(); err != nil {
		ln.Kill()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	return &Browser{browser: b, launcher: ln, cfg: l.cfg, log: l.log}, nil
}

func (l *Launcher) newLauncher() *launcher.Launcher {
	ln := launcher.New().
		Headless(l.cfg.Headless).
		NoSandbox(l.cfg.NoSandbox)

	if l.cfg.BrowserBin != "" {
		ln = ln.Bin(l.cfg.BrowserBin)
	}
	if l.cfg.Proxy != "" {
		ln = ln.Proxy(l.cfg.Proxy)
	}
	if l.cfg.ViewportWidth > 0 && l.cfg.ViewportHeight > 0 {
		ln.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", l.cfg.ViewportWidth, l.cfg.ViewportHeight))
	}

	ln.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	ln.Delete(flags.Flag("enable-automation"))
	ln.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	ln.Set(flags.Flag("disable-popup-blocking"))
	ln.Set(flags.Flag("disable-prompt-on-repost"))
	ln.Set(flags.Flag("disable-renderer-backgrounding"))
	ln.Set(flags.Flag("disable-background-timer-throttling"))
	ln.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	ln.Set(flags.Flag("disable-component-update"))
	ln.Set(flags.Flag("disable-default-apps"))
	ln.Set(flags.Flag("disable-dev-shm-usage"))
	ln.Set(flags.Flag("disable-extensions"))
	ln.Set(flags.Flag("no-first-run"))
	return ln
}

// Browser is one running Chromium and the pages opened in it.
type Browser struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      config.BrowserConfig
	log      *slog.Logger

	mu      sync.Mutex
	routers []*rod.HijackRouter
	closed  bool
}

// NewPage opens a tab prepared for the portal: stealth evasions, user
// agent, viewport, extra headers and resource blocking are all in place
// before the first navigation.
func (b *Browser) NewPage(ctx context.Context) (portal.Page, error) {
	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}
	// Detach from ctx so later calls are bounded only by their own contexts.
	page = page.Context(context.Background())

	if b.cfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			b.log.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	if b.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      b.cfg.UserAgent,
			AcceptLanguage: b.cfg.AcceptLanguage,
		}); err != nil {
			return nil, fmt.Errorf("browser: set user agent: %w", err)
		}
	}

	if b.cfg.ViewportWidth > 0 && b.cfg.ViewportHeight > 0 {
		if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             b.cfg.ViewportWidth,
			Height:            b.cfg.ViewportHeight,
			DeviceScaleFactor: 1,
		}); err != nil {
			return nil, fmt.Errorf("browser: set viewport: %w", err)
		}
	}

	if b.cfg.AcceptLanguage != "" {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{"Accept-Language": b.cfg.AcceptLanguage}),
		}.Call(page)
	}

	if router := setupHijack(page, b.cfg.BlockedResourceTypes); router != nil {
		b.mu.Lock()
		b.routers = append(b.routers, router)
		b.mu.Unlock()
	}

	return &Page{page: page}, nil
}

// Close stops request interception, closes the browser and removes its
// profile directory. Calling it again is a no-op.
func (b *Browser) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	routers := b.routers
	b.routers = nil
	b.mu.Unlock()

	var errs []error
	for _, r := range routers {
		if err := r.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop hijack router: %w", err))
		}
	}
	if err := b.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	b.launcher.Kill()
	b.launcher.Cleanup()
	b.log.Debug("browser closed")
	return errors.Join(errs...)
}
