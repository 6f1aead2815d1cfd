// Package portal drives the notice portal: the multi-step login with its
// out-of-band OTP, and the incremental walk over the notice listing.
//
// Browser access goes through the Page and Row capabilities so that the
// session and the extractor can run against a scripted fake in tests. The
// rod-backed implementation lives in package browser.
package portal

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Row lookups when no element (or attribute)
// matches. Page methods wait instead and fail with the context's error.
var ErrNotFound = errors.New("portal: element not found")

// Page is one interactive browser tab. Every method that waits is bounded
// by ctx; callers always pass a context with a deadline.
type Page interface {
	// Navigate loads url and waits for the document to load.
	Navigate(ctx context.Context, url string) error

	// WaitVisible blocks until an element matching selector is visible.
	WaitVisible(ctx context.Context, selector string) error

	// WaitHidden blocks until no visible element matches selector.
	WaitHidden(ctx context.Context, selector string) error

	// Fill replaces the value of the input matching selector.
	Fill(ctx context.Context, selector, value string) error

	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error

	// Text returns the text of the first element matching selector.
	Text(ctx context.Context, selector string) (string, error)

	// HTML returns the outer HTML of the first element matching selector.
	HTML(ctx context.Context, selector string) (string, error)

	// VisibleTexts returns the trimmed, non-empty texts of every visible
	// element currently matching selector. It does not wait.
	VisibleTexts(ctx context.Context, selector string) ([]string, error)

	// Rows returns every element currently matching selector, in document order.
	Rows(ctx context.Context, selector string) ([]Row, error)

	// Settle waits, best effort, for the DOM to stop changing.
	Settle(ctx context.Context) error
}

// Row is one element of a listing, queried relative to itself.
// Lookups do not wait: a missing descendant yields ErrNotFound.
type Row interface {
	Text(ctx context.Context, selector string) (string, error)
	Attr(ctx context.Context, selector, name string) (string, error)
	Click(ctx context.Context, selector string) error
}

// Browser is a running browser process owned by one Session.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Launcher starts browsers.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// OTPSource resolves the one-time code dispatched for identity at requestedAt.
type OTPSource interface {
	FetchOTP(ctx context.Context, identity string, requestedAt time.Time) (string, error)
}
