package portal

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/noticesync/models"
)

const listingURL = "https://portal.example/notices"

var ist = time.FixedZone("IST", 5*60*60+30*60)

type rowSpec struct {
	rowNum    string
	id        string
	noticeAt  string
	summary   string
	detail    string // empty: the detail view never opens
	typ       string
	company   string
	noticedBy string
}

// listingPage builds a page whose grid holds the given rows. Clicking a
// row's trigger shows its detail HTML; the close button hides it.
func listingPage(specs ...rowSpec) *fakePage {
	sel := GridSelectors(DefaultGridID)
	p := newFakePage()
	p.show(sel.Grid)
	p.onClick[sel.DetailClose] = func() { p.hide(sel.DetailContent) }

	for _, spec := range specs {
		cells := map[string]string{}
		set := func(selector, v string) {
			if v != "" {
				cells[selector] = v
			}
		}
		set(sel.RowNum, spec.rowNum)
		set(sel.ID, spec.id)
		set(sel.NoticeAt, spec.noticeAt)
		set(sel.Type, spec.typ)
		set(sel.Category, "Placement")
		set(sel.Company, spec.company)
		set(sel.NoticedBy, spec.noticedBy)

		row := &fakeRow{cells: cells}
		if spec.summary != "" {
			row.attrs = map[string]map[string]string{sel.Summary: {sel.SummaryAttr: spec.summary}}
		}
		if spec.detail != "" {
			detail := spec.detail
			row.onClick = func() error {
				p.mu.Lock()
				p.html[sel.DetailContent] = detail
				p.mu.Unlock()
				p.show(sel.DetailContent, sel.DetailClose)
				return nil
			}
		}
		p.rows = append(p.rows, row)
	}
	return p
}

func newTestExtractor() *Extractor {
	return NewExtractor(ExtractorOptions{
		ListingURL:        listingURL,
		Location:          ist,
		NavigationTimeout: time.Second,
		ListingTimeout:    time.Second,
		DetailTimeout:     time.Second,
	})
}

func mustWatermark(t *testing.T, s string) time.Time {
	t.Helper()
	w, err := ParseWatermark(s, ist)
	require.NoError(t, err)
	return w
}

func TestScrape_StopsAtWatermark(t *testing.T) {
	page := listingPage(
		rowSpec{rowNum: "1", id: "501", noticeAt: "10-07-2025 10:00", typ: "Notice", company: "Acme", noticedBy: "7",
			summary: "Shortlist...", detail: `<div class="ui-dialog-content"><p>Shortlist for <b>Acme</b> is out.</p></div>`},
		rowSpec{rowNum: "2", id: "500", noticeAt: "10-07-2025 09:00", summary: "Older", detail: "<p>older</p>"},
	)

	notices, err := newTestExtractor().Scrape(context.Background(), page, mustWatermark(t, "10-07-2025 09:00"))
	require.NoError(t, err)

	require.Len(t, notices, 1)
	assert.Equal(t, models.Notice{
		RowNum:     1,
		ID:         501,
		Type:       "Notice",
		Category:   "Placement",
		Company:    "Acme",
		NoticeAt:   "10-07-2025 10:00",
		NoticedBy:  7,
		NoticeText: "Shortlist for Acme is out.",
	}, notices[0])
	assert.Equal(t, []string{listingURL}, page.visits)
}

func TestScrape_StopIsFinal(t *testing.T) {
	// A newer row after the stop row is not considered.
	page := listingPage(
		rowSpec{rowNum: "1", id: "3", noticeAt: "12-07-2025 08:00", summary: "a"},
		rowSpec{rowNum: "2", id: "2", noticeAt: "11-07-2025 08:00", summary: "b"},
		rowSpec{rowNum: "3", id: "9", noticeAt: "13-07-2025 08:00", summary: "c"},
	)

	notices, err := newTestExtractor().Scrape(context.Background(), page, mustWatermark(t, "11-07-2025 08:00"))
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, 3, notices[0].ID)
}

func TestScrape_SkipsMalformedRows(t *testing.T) {
	page := listingPage(
		rowSpec{rowNum: "1", id: "10", summary: "no timestamp"},
		rowSpec{rowNum: "2", id: "11", noticeAt: "yesterday", summary: "bad timestamp"},
		rowSpec{rowNum: "3", id: "0", noticeAt: "12-07-2025 08:00", summary: "zero id"},
		rowSpec{rowNum: "", id: "12", noticeAt: "12-07-2025 08:00", summary: "no row number"},
		rowSpec{rowNum: "5", id: "abc", noticeAt: "12-07-2025 08:00", summary: "non-numeric id"},
		rowSpec{rowNum: "6", id: "13", noticeAt: "12-07-2025 07:00", summary: "kept"},
	)

	notices, err := newTestExtractor().Scrape(context.Background(), page, time.Time{})
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, 13, notices[0].ID)
	assert.Equal(t, 6, notices[0].RowNum)
}

func TestScrape_FallsBackToSummary(t *testing.T) {
	page := listingPage(
		rowSpec{rowNum: "1", id: "42", noticeAt: "12-07-2025 08:00", summary: "  Truncated summary  "},
		rowSpec{rowNum: "2", id: "41", noticeAt: "12-07-2025 07:00"},
	)

	notices, err := newTestExtractor().Scrape(context.Background(), page, time.Time{})
	require.NoError(t, err)
	require.Len(t, notices, 2)
	assert.Equal(t, "Truncated summary", notices[0].NoticeText)
	assert.Empty(t, notices[1].NoticeText)
	assert.Zero(t, notices[1].NoticedBy)
	assert.Empty(t, notices[1].Company)
}

func TestScrape_ClosesDetailBetweenRows(t *testing.T) {
	page := listingPage(
		rowSpec{rowNum: "1", id: "2", noticeAt: "12-07-2025 08:00", detail: "<p>second</p>"},
		rowSpec{rowNum: "2", id: "1", noticeAt: "12-07-2025 07:00", detail: "<p>first</p>"},
	)

	notices, err := newTestExtractor().Scrape(context.Background(), page, time.Time{})
	require.NoError(t, err)
	require.Len(t, notices, 2)
	assert.Equal(t, "second", notices[0].NoticeText)
	assert.Equal(t, "first", notices[1].NoticeText)

	sel := GridSelectors(DefaultGridID)
	assert.Equal(t, []string{sel.DetailClose, sel.DetailClose}, page.clicked())
	assert.False(t, page.visible[sel.DetailContent])
}

func TestScrape_CustomRenderer(t *testing.T) {
	page := listingPage(rowSpec{rowNum: "1", id: "5", noticeAt: "12-07-2025 08:00", detail: "<p>x</p>"})
	e := NewExtractor(ExtractorOptions{
		ListingURL: listingURL,
		Location:   ist,
		Render:     func(html string) (string, error) { return "rendered:" + html, nil },
	})

	notices, err := e.Scrape(context.Background(), page, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "rendered:<p>x</p>", notices[0].NoticeText)
}

func TestScrape_EmptyListing(t *testing.T) {
	notices, err := newTestExtractor().Scrape(context.Background(), listingPage(), time.Time{})
	require.NoError(t, err)
	assert.NotNil(t, notices)
	assert.Empty(t, notices)
}

func TestScrape_ListingUnavailable(t *testing.T) {
	t.Run("grid missing", func(t *testing.T) {
		page := listingPage()
		page.hide(GridSelectors(DefaultGridID).Grid)
		_, err := newTestExtractor().Scrape(context.Background(), page, time.Time{})
		assert.True(t, models.IsKind(err, models.ErrKindListing))
	})

	t.Run("navigation fails", func(t *testing.T) {
		page := listingPage()
		page.navErr = errBoom
		_, err := newTestExtractor().Scrape(context.Background(), page, time.Time{})
		assert.True(t, models.IsKind(err, models.ErrKindListing))
		assert.ErrorIs(t, err, errBoom)
	})
}

func TestScrape_RowErrorPropagates(t *testing.T) {
	page := listingPage()
	page.rows = []Row{&fakeRow{textErr: errBoom}}

	_, err := newTestExtractor().Scrape(context.Background(), page, time.Time{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
}

func TestScrape_ZeroWatermarkKeepsAll(t *testing.T) {
	var specs []rowSpec
	for i := 1; i <= 5; i++ {
		specs = append(specs, rowSpec{
			rowNum:   strconv.Itoa(i),
			id:       strconv.Itoa(100 - i),
			noticeAt: "01-01-2001 00:0" + strconv.Itoa(9-i),
			summary:  "s",
		})
	}

	notices, err := newTestExtractor().Scrape(context.Background(), listingPage(specs...), time.Time{})
	require.NoError(t, err)
	assert.Len(t, notices, 5)
	for i, n := range notices {
		assert.Equal(t, i+1, n.RowNum)
	}
}
