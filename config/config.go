package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Portal    PortalConfig
	OTP       OTPConfig
	Delivery  DeliveryConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Runs      RunsConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser launched for each run.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Proxy is an optional proxy URL for all browser traffic.
	Proxy string

	// Stealth injects the go-rod/stealth evasions before the first navigation.
	Stealth bool // default: true

	// UserAgent overrides the browser user agent.
	UserAgent string

	// AcceptLanguage is sent as an extra header on every browser request.
	AcceptLanguage string // default: "en-US,en;q=0.9"

	// ViewportWidth and ViewportHeight size the emulated window.
	ViewportWidth  int // default: 1280
	ViewportHeight int // default: 720

	// BlockedResourceTypes lists resource types the page never loads.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// LaunchTimeout bounds browser start-up and first page creation.
	LaunchTimeout time.Duration // default: 30s
}

// PortalConfig describes the portal being driven and every bounded wait on it.
type PortalConfig struct {
	// LoginURL is the portal's login entry point.
	LoginURL string

	// ListingURL is the notice listing page. Required for a run.
	ListingURL string

	// TimeZone is the IANA zone the portal's "DD-MM-YYYY HH:MM" timestamps are in.
	TimeZone string // default: "Asia/Kolkata"

	// NavigationTimeout bounds each page navigation.
	NavigationTimeout time.Duration // default: 30s

	// ElementTimeout bounds each wait-for-element during login.
	ElementTimeout time.Duration // default: 10s

	// ListingTimeout bounds the wait for the notice grid.
	ListingTimeout time.Duration // default: 10s

	// DetailTimeout bounds opening, reading and closing one detail view.
	DetailTimeout time.Duration // default: 5s

	// SettleTimeout bounds the wait for the DOM to settle after OTP submission.
	SettleTimeout time.Duration // default: 5s

	// BodyFormat selects how the detail view is rendered: "text" or "markdown".
	BodyFormat string // default: "text"

	// BodySelector optionally narrows the detail view to one region before rendering.
	BodySelector string
}

// OTPConfig controls the OTP rendezvous with the external store.
type OTPConfig struct {
	// URL is the base URL of the OTP store; the identity is appended as a path segment.
	URL string

	// MaxAttempts is the query budget before giving up.
	MaxAttempts int // default: 6

	// InitialDelay is the wait before the first query; it also seeds the backoff.
	InitialDelay time.Duration // default: 2s

	// MaxDelay caps the doubling delay between queries.
	MaxDelay time.Duration // default: 30s

	// RequestTimeout bounds a single query.
	RequestTimeout time.Duration // default: 10s
}

// DeliveryConfig controls the downstream notice delivery.
type DeliveryConfig struct {
	// URL receives one POST per run with a JSON array of notices.
	URL string

	// Secret, when set, signs the body with HMAC-SHA256.
	Secret string

	// Timeout bounds the delivery request.
	Timeout time.Duration // default: 15s
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 3
}

// RunsConfig controls background runs and their status records.
type RunsConfig struct {
	// MaxConcurrent caps simultaneously running syncs (one browser each).
	MaxConcurrent int // default: 2

	// Timeout is the hard deadline for a whole run.
	Timeout time.Duration // default: 10m

	// SerializeIdentity rejects a new run while another run for the same
	// roll number is still in flight.
	SerializeIdentity bool // default: true

	// MaxEntries is the maximum number of run records kept for status queries.
	MaxEntries int // default: 500

	// TTL is how long finished run records stay queryable.
	TTL time.Duration // default: 24h
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("NOTICESYNC_HOST", "0.0.0.0"),
			Port: envIntOr("NOTICESYNC_PORT", 8080),
			Mode: envOr("NOTICESYNC_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:       envBoolOr("NOTICESYNC_HEADLESS", true),
			NoSandbox:      envBoolOr("NOTICESYNC_NO_SANDBOX", false),
			BrowserBin:     os.Getenv("NOTICESYNC_BROWSER_BIN"),
			Proxy:          os.Getenv("NOTICESYNC_PROXY"),
			Stealth:        envBoolOr("NOTICESYNC_STEALTH", true),
			UserAgent:      envOr("NOTICESYNC_USER_AGENT", defaultUserAgent),
			AcceptLanguage: envOr("NOTICESYNC_ACCEPT_LANGUAGE", "en-US,en;q=0.9"),
			ViewportWidth:  envIntOr("NOTICESYNC_VIEWPORT_WIDTH", 1280),
			ViewportHeight: envIntOr("NOTICESYNC_VIEWPORT_HEIGHT", 720),
			BlockedResourceTypes: envSliceOr("NOTICESYNC_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			LaunchTimeout: envDurationOr("NOTICESYNC_LAUNCH_TIMEOUT", 30*time.Second),
		},
		Portal: PortalConfig{
			LoginURL:          envOr("NOTICESYNC_LOGIN_URL", "https://erp.iitkgp.ac.in"),
			ListingURL:        os.Getenv("NOTICESYNC_LISTING_URL"),
			TimeZone:          envOr("NOTICESYNC_PORTAL_TZ", "Asia/Kolkata"),
			NavigationTimeout: envDurationOr("NOTICESYNC_NAV_TIMEOUT", 30*time.Second),
			ElementTimeout:    envDurationOr("NOTICESYNC_ELEMENT_TIMEOUT", 10*time.Second),
			ListingTimeout:    envDurationOr("NOTICESYNC_LISTING_TIMEOUT", 10*time.Second),
			DetailTimeout:     envDurationOr("NOTICESYNC_DETAIL_TIMEOUT", 5*time.Second),
			SettleTimeout:     envDurationOr("NOTICESYNC_SETTLE_TIMEOUT", 5*time.Second),
			BodyFormat:        envOr("NOTICESYNC_BODY_FORMAT", "text"),
			BodySelector:      os.Getenv("NOTICESYNC_BODY_SELECTOR"),
		},
		OTP: OTPConfig{
			URL:            os.Getenv("NOTICESYNC_OTP_URL"),
			MaxAttempts:    envIntOr("NOTICESYNC_OTP_MAX_ATTEMPTS", 6),
			InitialDelay:   envDurationOr("NOTICESYNC_OTP_INITIAL_DELAY", 2*time.Second),
			MaxDelay:       envDurationOr("NOTICESYNC_OTP_MAX_DELAY", 30*time.Second),
			RequestTimeout: envDurationOr("NOTICESYNC_OTP_REQUEST_TIMEOUT", 10*time.Second),
		},
		Delivery: DeliveryConfig{
			URL:     os.Getenv("NOTICESYNC_DELIVERY_URL"),
			Secret:  os.Getenv("NOTICESYNC_DELIVERY_SECRET"),
			Timeout: envDurationOr("NOTICESYNC_DELIVERY_TIMEOUT", 15*time.Second),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("NOTICESYNC_AUTH_ENABLED", true),
			APIKeys: envSliceOr("NOTICESYNC_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("NOTICESYNC_RATE_RPS", 1.0),
			Burst:             envIntOr("NOTICESYNC_RATE_BURST", 3),
		},
		Runs: RunsConfig{
			MaxConcurrent:     envIntOr("NOTICESYNC_MAX_RUNS", 2),
			Timeout:           envDurationOr("NOTICESYNC_RUN_TIMEOUT", 10*time.Minute),
			SerializeIdentity: envBoolOr("NOTICESYNC_SERIALIZE_IDENTITY", true),
			MaxEntries:        envIntOr("NOTICESYNC_RUN_RECORDS", 500),
			TTL:               envDurationOr("NOTICESYNC_RUN_TTL", 24*time.Hour),
		},
		Log: LogConfig{
			Level:  envOr("NOTICESYNC_LOG_LEVEL", "info"),
			Format: envOr("NOTICESYNC_LOG_FORMAT", "json"),
		},
	}
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Validate checks the structural settings needed to start the process.
// Endpoint presence is checked per run by ValidateEndpoints.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Server,
		validation.Field(&c.Server.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Server.Mode, validation.In("debug", "release", "test")),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Portal,
		validation.Field(&c.Portal.BodyFormat, validation.In("text", "markdown")),
		validation.Field(&c.Portal.TimeZone, validation.Required, validation.By(loadableZone)),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.OTP,
		validation.Field(&c.OTP.MaxAttempts, validation.Required, validation.Min(1)),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Runs,
		validation.Field(&c.Runs.MaxConcurrent, validation.Required, validation.Min(1)),
		validation.Field(&c.Runs.MaxEntries, validation.Required, validation.Min(1)),
		validation.Field(&c.Runs.Timeout, validation.Required),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&c.Log,
		validation.Field(&c.Log.Format, validation.In("json", "text")),
	)
}

// ValidateEndpoints checks that every URL a run talks to is present and
// well formed. It never touches the network.
func (c *Config) ValidateEndpoints() error {
	if err := validation.ValidateStruct(&c.Portal,
		validation.Field(&c.Portal.LoginURL, validation.Required, is.URL),
		validation.Field(&c.Portal.ListingURL, validation.Required, is.URL),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.OTP,
		validation.Field(&c.OTP.URL, validation.Required, is.URL),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&c.Delivery,
		validation.Field(&c.Delivery.URL, validation.Required, is.URL),
	)
}

// Location resolves the portal time zone. Validate rejects zones that do
// not load, so the UTC fallback only covers unvalidated configs.
func (c *PortalConfig) Location() *time.Location {
	if loc, err := time.LoadLocation(c.TimeZone); err == nil {
		return loc
	}
	return time.UTC
}

func loadableZone(value interface{}) error {
	name, _ := value.(string)
	if name == "" {
		return nil
	}
	if _, err := time.LoadLocation(name); err != nil {
		return fmt.Errorf("unknown time zone %q", name)
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
