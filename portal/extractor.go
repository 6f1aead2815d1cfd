package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/use-agent/noticesync/cleaner"
	"github.com/use-agent/noticesync/models"
)

// BodyRenderer turns the detail view's HTML into the stored notice text.
type BodyRenderer func(html string) (string, error)

// ExtractorOptions configure an Extractor.
type ExtractorOptions struct {
	ListingURL string
	Selectors  ListingSelectors

	// Location is the portal's zone; listing timestamps carry no offset.
	Location *time.Location

	NavigationTimeout time.Duration
	ListingTimeout    time.Duration
	DetailTimeout     time.Duration

	// Render converts detail HTML to text. Defaults to cleaner.Text.
	Render BodyRenderer

	Logger *slog.Logger
}

// Extractor walks the notice listing, newest first, and stops at the
// first row that is not newer than the watermark.
type Extractor struct {
	opts ExtractorOptions
	log  *slog.Logger
}

// NewExtractor fills unset options with the portal defaults.
func NewExtractor(opts ExtractorOptions) *Extractor {
	if opts.Selectors == (ListingSelectors{}) {
		opts.Selectors = GridSelectors(DefaultGridID)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.ListingTimeout <= 0 {
		opts.ListingTimeout = 10 * time.Second
	}
	if opts.DetailTimeout <= 0 {
		opts.DetailTimeout = 5 * time.Second
	}
	if opts.Render == nil {
		opts.Render = cleaner.Text
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{opts: opts, log: log.With("component", "extractor")}
}

type rowVerdict int

const (
	rowKeep rowVerdict = iota
	rowSkip
	rowStop
)

// Scrape returns the notices strictly newer than watermark, in listing
// order. An empty listing yields an empty, non-nil slice.
func (e *Extractor) Scrape(ctx context.Context, page Page, watermark time.Time) ([]models.Notice, error) {
	sel := e.opts.Selectors
	start := time.Now()

	if err := bounded(ctx, e.opts.NavigationTimeout, func(ctx context.Context) error {
		return page.Navigate(ctx, e.opts.ListingURL)
	}); err != nil {
		return nil, models.NewSyncError(models.ErrKindListing, "could not load notice listing", err)
	}
	if err := bounded(ctx, e.opts.ListingTimeout, func(ctx context.Context) error {
		return page.WaitVisible(ctx, sel.Grid)
	}); err != nil {
		return nil, models.NewSyncError(models.ErrKindListing, "notice grid did not appear", err)
	}

	rows, err := page.Rows(ctx, sel.Row)
	if err != nil {
		return nil, fmt.Errorf("portal: list rows: %w", err)
	}
	e.log.Info("listing loaded", "rows", len(rows), "watermark", watermark.Format(time.RFC3339))

	notices := make([]models.Notice, 0, len(rows))
scan:
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, verdict, err := e.readRow(ctx, page, row, watermark)
		if err != nil {
			return nil, fmt.Errorf("portal: row %d: %w", i+1, err)
		}
		switch verdict {
		case rowSkip:
			continue
		case rowStop:
			e.log.Debug("reached watermark", "row", i+1)
			break scan
		}
		notices = append(notices, n)
		e.log.Debug("notice scraped", "row", i+1, "id", n.ID, "notice_at", n.NoticeAt)
	}

	e.log.Info("scrape finished", "new", len(notices), "elapsed", time.Since(start).String())
	return notices, nil
}

func (e *Extractor) readRow(ctx context.Context, page Page, row Row, watermark time.Time) (models.Notice, rowVerdict, error) {
	sel := e.opts.Selectors

	raw, err := row.Text(ctx, sel.NoticeAt)
	if errors.Is(err, ErrNotFound) {
		return models.Notice{}, rowSkip, nil
	}
	if err != nil {
		return models.Notice{}, rowSkip, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.Notice{}, rowSkip, nil
	}
	at, err := ParseNoticeTime(raw, e.opts.Location)
	if err != nil {
		e.log.Warn("skipping row with unparseable timestamp", "notice_at", raw)
		return models.Notice{}, rowSkip, nil
	}
	if !at.After(watermark) {
		return models.Notice{}, rowStop, nil
	}

	n := models.Notice{NoticeAt: raw}
	if n.RowNum, err = e.intCell(ctx, row, sel.RowNum); err != nil {
		return n, rowSkip, err
	}
	if n.ID, err = e.intCell(ctx, row, sel.ID); err != nil {
		return n, rowSkip, err
	}
	if n.ID <= 0 || n.RowNum <= 0 {
		e.log.Debug("skipping row without id", "notice_at", raw)
		return n, rowSkip, nil
	}
	if n.NoticedBy, err = e.intCell(ctx, row, sel.NoticedBy); err != nil {
		return n, rowSkip, err
	}
	if n.Type, err = e.textCell(ctx, row, sel.Type); err != nil {
		return n, rowSkip, err
	}
	if n.Category, err = e.textCell(ctx, row, sel.Category); err != nil {
		return n, rowSkip, err
	}
	if n.Company, err = e.textCell(ctx, row, sel.Company); err != nil {
		return n, rowSkip, err
	}
	if n.NoticeText, err = e.body(ctx, page, row, n.ID); err != nil {
		return n, rowSkip, err
	}
	return n, rowKeep, nil
}

// textCell returns the trimmed cell text, or "" when the cell is absent.
func (e *Extractor) textCell(ctx context.Context, row Row, selector string) (string, error) {
	s, err := row.Text(ctx, selector)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return strings.TrimSpace(s), err
}

// intCell returns the cell as an integer; absent or non-numeric is 0.
func (e *Extractor) intCell(ctx context.Context, row Row, selector string) (int, error) {
	s, err := e.textCell(ctx, row, selector)
	if err != nil || s == "" {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, nil
	}
	return v, nil
}

// body prefers the full detail view and falls back to the listing summary.
func (e *Extractor) body(ctx context.Context, page Page, row Row, id int) (string, error) {
	text, err := e.detail(ctx, page, row)
	if err == nil && text != "" {
		return text, nil
	}
	e.log.Debug("detail view unavailable, using listing summary", "id", id, "error", err)

	sel := e.opts.Selectors
	summary, err := row.Attr(ctx, sel.Summary, sel.SummaryAttr)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return strings.TrimSpace(summary), err
}

func (e *Extractor) detail(ctx context.Context, page Page, row Row) (string, error) {
	sel := e.opts.Selectors

	if err := bounded(ctx, e.opts.DetailTimeout, func(ctx context.Context) error {
		return row.Click(ctx, sel.DetailTrigger)
	}); err != nil {
		return "", fmt.Errorf("open detail: %w", err)
	}
	defer e.closeDetail(ctx, page)

	var html string
	if err := bounded(ctx, e.opts.DetailTimeout, func(ctx context.Context) error {
		if err := page.WaitVisible(ctx, sel.DetailContent); err != nil {
			return err
		}
		var err error
		html, err = page.HTML(ctx, sel.DetailContent)
		return err
	}); err != nil {
		return "", fmt.Errorf("read detail: %w", err)
	}

	text, err := e.opts.Render(html)
	if err != nil {
		return "", fmt.Errorf("render detail: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// closeDetail dismisses the detail view so the next row's trigger is clickable.
func (e *Extractor) closeDetail(ctx context.Context, page Page) {
	sel := e.opts.Selectors
	err := bounded(ctx, e.opts.DetailTimeout, func(ctx context.Context) error {
		if err := page.Click(ctx, sel.DetailClose); err != nil {
			return err
		}
		return page.WaitHidden(ctx, sel.DetailContent)
	})
	if err != nil {
		e.log.Debug("detail view did not close", "error", err)
	}
}

func bounded(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}
