package browsertest

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/thesyncim/confdrive/pkg/browser"
)

type element struct {
	tab *Tab
	gen int
	sel *goquery.Selection
}

var _ browser.Element = (*element)(nil)

func first(t *Tab, sel *goquery.Selection) (browser.Element, error) {
	if sel.Length() == 0 {
		return nil, browser.ErrNoElement
	}
	return &element{tab: t, gen: t.gen, sel: sel.First()}, nil
}

func all(t *Tab, sel *goquery.Selection) []browser.Element {
	els := make([]browser.Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		els = append(els, &element{tab: t, gen: t.gen, sel: s})
	})
	return els
}

// check reports whether the handle still points into the live document of
// an open tab. Callers hold the driver lock.
func (e *element) check() error {
	d := e.tab.driver
	if d.quit || e.tab.closed {
		return browser.ErrNoTab
	}
	if e.gen != e.tab.gen {
		return browser.ErrStaleElement
	}
	n := e.sel.Nodes[0]
	for n.Parent != nil {
		n = n.Parent
	}
	if n != e.tab.doc.Nodes[0] {
		return browser.ErrStaleElement
	}
	return nil
}

func (e *element) lock() func() {
	e.tab.driver.mu.Lock()
	return e.tab.driver.mu.Unlock
}

func (e *element) Click(ctx context.Context) error {
	defer e.lock()()
	if err := e.check(); err != nil {
		return err
	}
	d := e.tab.driver
	d.clicks = append(d.clicks, describe(e.sel))

	fns := d.site.handlersFor(e.sel)
	if len(fns) == 0 && goquery.NodeName(e.sel) == "a" {
		if href, ok := e.sel.Attr("href"); ok {
			return e.tab.Navigate(resolve(e.tab.url, href))
		}
	}
	for _, fn := range fns {
		fn(e.tab, e.sel)
	}
	return nil
}

func (e *element) Clear(ctx context.Context) error {
	defer e.lock()()
	if err := e.check(); err != nil {
		return err
	}
	e.sel.SetAttr("value", "")
	return nil
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	defer e.lock()()
	if err := e.check(); err != nil {
		return err
	}
	v, _ := e.sel.Attr("value")
	e.sel.SetAttr("value", v+text)
	return nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	defer e.lock()()
	if err := e.check(); err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(e.sel.Text()), " "), nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	defer e.lock()()
	if err := e.check(); err != nil {
		return "", err
	}
	v, _ := e.sel.Attr(name)
	return v, nil
}

func (e *element) Find(ctx context.Context, selector string) (browser.Element, error) {
	defer e.lock()()
	if err := e.check(); err != nil {
		return nil, err
	}
	return first(e.tab, e.sel.Find(selector))
}

func (e *element) FindAll(ctx context.Context, selector string) ([]browser.Element, error) {
	defer e.lock()()
	if err := e.check(); err != nil {
		return nil, err
	}
	return all(e.tab, e.sel.Find(selector)), nil
}

// describe renders a click target as tag plus its most telling attribute.
func describe(sel *goquery.Selection) string {
	name := goquery.NodeName(sel)
	for _, attr := range []string{"id", "title", "mattooltip", "href", "ng-reflect-value", "class"} {
		if v, ok := sel.Attr(attr); ok && v != "" {
			return fmt.Sprintf("%s[%s=%s]", name, attr, v)
		}
	}
	if text := strings.TrimSpace(sel.Text()); text != "" {
		return fmt.Sprintf("%s(%s)", name, text)
	}
	return name
}

// resolve joins a root-relative href onto the origin of base.
func resolve(base, href string) string {
	if !strings.HasPrefix(href, "/") {
		return href
	}
	scheme := strings.Index(base, "://")
	if scheme < 0 {
		return href
	}
	rest := base[scheme+3:]
	if i := strings.Index(rest, "/"); i >= 0 {
		rest = rest[:i]
	}
	return base[:scheme+3] + rest + href
}
