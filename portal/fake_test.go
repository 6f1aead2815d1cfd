package portal

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakePage is a scripted Page. Waits succeed or time out immediately.
type fakePage struct {
	mu sync.Mutex

	visible map[string]bool
	texts   map[string]string
	html    map[string]string
	errors  []string

	navErr   error
	rows     []Row
	onClick  map[string]func()
	filled   map[string]string
	clicks   []string
	visits   []string
	settled  int
	errScans int
}

func newFakePage() *fakePage {
	return &fakePage{
		visible: map[string]bool{},
		texts:   map[string]string{},
		html:    map[string]string{},
		onClick: map[string]func(){},
		filled:  map[string]string{},
	}
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visits = append(p.visits, url)
	return p.navErr
}

func (p *fakePage) WaitVisible(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.visible[selector] {
		return nil
	}
	return context.DeadlineExceeded
}

func (p *fakePage) WaitHidden(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.visible[selector] {
		return context.DeadlineExceeded
	}
	return nil
}

func (p *fakePage) Fill(_ context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible[selector] {
		return context.DeadlineExceeded
	}
	p.filled[selector] = value
	return nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	if !p.visible[selector] {
		p.mu.Unlock()
		return context.DeadlineExceeded
	}
	p.clicks = append(p.clicks, selector)
	hook := p.onClick[selector]
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (p *fakePage) Text(_ context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.texts[selector]
	if !ok {
		return "", context.DeadlineExceeded
	}
	return t, nil
}

func (p *fakePage) HTML(_ context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.html[selector]
	if !ok {
		return "", context.DeadlineExceeded
	}
	return h, nil
}

func (p *fakePage) VisibleTexts(context.Context, string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errScans++
	return append([]string(nil), p.errors...), nil
}

func (p *fakePage) Rows(context.Context, string) ([]Row, error) {
	return p.rows, nil
}

func (p *fakePage) Settle(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settled++
	return nil
}

func (p *fakePage) show(selectors ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		p.visible[s] = true
	}
}

func (p *fakePage) hide(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.visible, selector)
}

func (p *fakePage) clicked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// fakeRow is a listing row with fixed cell texts and attributes.
type fakeRow struct {
	cells   map[string]string
	attrs   map[string]map[string]string
	textErr error
	onClick func() error
}

func (r *fakeRow) Text(_ context.Context, selector string) (string, error) {
	if r.textErr != nil {
		return "", r.textErr
	}
	t, ok := r.cells[selector]
	if !ok {
		return "", ErrNotFound
	}
	return t, nil
}

func (r *fakeRow) Attr(_ context.Context, selector, name string) (string, error) {
	v, ok := r.attrs[selector][name]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (r *fakeRow) Click(context.Context, string) error {
	if r.onClick == nil {
		return ErrNotFound
	}
	return r.onClick()
}

type fakeBrowser struct {
	page     Page
	pageErr  error
	closeErr error
	closed   int
}

func (b *fakeBrowser) NewPage(context.Context) (Page, error) {
	if b.pageErr != nil {
		return nil, b.pageErr
	}
	return b.page, nil
}

func (b *fakeBrowser) Close() error {
	b.closed++
	return b.closeErr
}

type fakeLauncher struct {
	browser *fakeBrowser
	err     error
}

func (l *fakeLauncher) Launch(context.Context) (Browser, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.browser, nil
}

// fakeOTP records its call and returns a fixed code.
type fakeOTP struct {
	code        string
	err         error
	calls       int
	identity    string
	requestedAt time.Time

	// clicksAtCall captures the page's clicks when the fetch starts.
	page         *fakePage
	clicksAtCall []string
}

func (o *fakeOTP) FetchOTP(_ context.Context, identity string, requestedAt time.Time) (string, error) {
	o.calls++
	o.identity = identity
	o.requestedAt = requestedAt
	if o.page != nil {
		o.clicksAtCall = o.page.clicked()
	}
	return o.code, o.err
}

var errBoom = errors.New("boom")
