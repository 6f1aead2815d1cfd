package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/noticesync/portal"
)

// Page adapts a *rod.Page to portal.Page. Each call binds the page to the
// caller's context, so Rod's built-in element retries stop at its deadline.
type Page struct {
	page *rod.Page
}

var _ portal.Page = (*Page)(nil)

func (p *Page) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("find %q: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("wait visible %q: %w", selector, err)
	}
	return nil
}

func (p *Page) WaitHidden(ctx context.Context, selector string) error {
	pg := p.page.Context(ctx)
	has, el, err := pg.Has(selector)
	if err != nil {
		return fmt.Errorf("find %q: %w", selector, err)
	}
	if !has {
		return nil
	}
	if err := el.WaitInvisible(); err != nil {
		return fmt.Errorf("wait hidden %q: %w", selector, err)
	}
	return nil
}

func (p *Page) Fill(ctx context.Context, selector, value string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("find %q: %w", selector, err)
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("select %q: %w", selector, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("input %q: %w", selector, err)
	}
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("find %q: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return "", fmt.Errorf("find %q: %w", selector, err)
	}
	return el.Text()
}

func (p *Page) HTML(ctx context.Context, selector string) (string, error) {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return "", fmt.Errorf("find %q: %w", selector, err)
	}
	return el.HTML()
}

func (p *Page) VisibleTexts(ctx context.Context, selector string) ([]string, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	var texts []string
	for _, el := range els {
		visible, err := el.Visible()
		if err != nil || !visible {
			continue
		}
		text, err := el.Text()
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			texts = append(texts, text)
		}
	}
	return texts, nil
}

func (p *Page) Rows(ctx context.Context, selector string) ([]portal.Row, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	rows := make([]portal.Row, len(els))
	for i, el := range els {
		rows[i] = &row{el: el}
	}
	return rows, nil
}

// Settle waits for the DOM to stop changing for 300ms.
func (p *Page) Settle(ctx context.Context) error {
	return p.page.Context(ctx).WaitDOMStable(300*time.Millisecond, 0.1)
}

// row adapts a listing element. Lookups use Has, which never waits.
type row struct {
	el *rod.Element
}

func (r *row) find(ctx context.Context, selector string) (*rod.Element, error) {
	has, el, err := r.el.Context(ctx).Has(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	if !has {
		return nil, portal.ErrNotFound
	}
	return el, nil
}

func (r *row) Text(ctx context.Context, selector string) (string, error) {
	el, err := r.find(ctx, selector)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func (r *row) Attr(ctx context.Context, selector, name string) (string, error) {
	el, err := r.find(ctx, selector)
	if err != nil {
		return "", err
	}
	v, err := el.Attribute(name)
	if err != nil {
		return "", err
	}
	if v == nil {
		return "", portal.ErrNotFound
	}
	return *v, nil
}

func (r *row) Click(ctx context.Context, selector string) error {
	el, err := r.find(ctx, selector)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}
