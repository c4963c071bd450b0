// Package playwright drives Chromium with playwright-go. Each driver runs
// its own Playwright server, browser and context so sessions stay isolated
// the same way separate Chrome processes are.
package playwright

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/thesyncim/confdrive/pkg/browser"
)

// Launcher starts Playwright-managed Chromium.
type Launcher struct {
	// Install downloads the driver and Chromium before the first launch.
	Install bool
	// Timeout bounds each Playwright action, in milliseconds. Default: 5000
	Timeout float64

	installOnce sync.Once
	installErr  error
}

var _ browser.Launcher = (*Launcher)(nil)

// New returns a launcher using an already installed Playwright.
func New() *Launcher {
	return &Launcher{Timeout: 5000}
}

func (l *Launcher) launchOptions(opts browser.LaunchOptions) playwright.BrowserTypeLaunchOptions {
	args := make([]string, 0, len(opts.Flags))
	for _, f := range opts.Flags {
		args = append(args, f.Arg())
	}
	return playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     args,
	}
}

func (l *Launcher) contextOptions(opts browser.LaunchOptions) playwright.BrowserNewContextOptions {
	return playwright.BrowserNewContextOptions{
		Viewport:          &playwright.Size{Width: opts.Width, Height: opts.Height},
		IgnoreHttpsErrors: playwright.Bool(true),
		Permissions:       []string{"camera", "microphone"},
	}
}

// Launch starts a Playwright server and Chromium, and opens the first tab.
func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.Install {
		l.installOnce.Do(func() {
			l.installErr = playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}})
		})
		if l.installErr != nil {
			return nil, fmt.Errorf("installing playwright: %w", l.installErr)
		}
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("running playwright: %w", err)
	}
	d := &Driver{pw: pw, timeout: l.Timeout}
	if d.browser, err = pw.Chromium.Launch(l.launchOptions(opts)); err != nil {
		_ = d.Quit()
		return nil, fmt.Errorf("launching chromium: %w", err)
	}
	if d.bctx, err = d.browser.NewContext(l.contextOptions(opts)); err != nil {
		_ = d.Quit()
		return nil, fmt.Errorf("creating browser context: %w", err)
	}
	if err := d.NewTab(ctx); err != nil {
		_ = d.Quit()
		return nil, err
	}
	return d, nil
}

type tab struct {
	handle string
	page   playwright.Page
}

// Driver is a browser.Driver backed by one Playwright browser context.
type Driver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	timeout float64

	mu     sync.Mutex
	tabs   []*tab
	active *tab
	seq    int
}

var _ browser.Driver = (*Driver)(nil)

func (d *Driver) page(ctx context.Context) (playwright.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return nil, browser.ErrNoTab
	}
	return d.active.page, nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	p, err := d.page(ctx)
	if err != nil {
		return err
	}
	_, err = p.Goto(url)
	return err
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	p, err := d.page(ctx)
	if err != nil {
		return "", err
	}
	return p.Title()
}

func (d *Driver) URL(ctx context.Context) (string, error) {
	p, err := d.page(ctx)
	if err != nil {
		return "", err
	}
	return p.URL(), nil
}

func (d *Driver) NewTab(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := d.bctx.NewPage()
	if err != nil {
		return fmt.Errorf("opening tab: %w", err)
	}
	if d.timeout > 0 {
		p.SetDefaultTimeout(d.timeout)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	t := &tab{handle: fmt.Sprintf("page-%d", d.seq), page: p}
	d.seq++
	d.tabs = append(d.tabs, t)
	d.active = t
	return nil
}

func (d *Driver) Tabs(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	handles := make([]string, 0, len(d.tabs))
	for _, t := range d.tabs {
		handles = append(handles, t.handle)
	}
	return handles, nil
}

func (d *Driver) SwitchTab(ctx context.Context, handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.tabs {
		if t.handle == handle {
			if err := t.page.BringToFront(); err != nil {
				return err
			}
			d.active = t
			return nil
		}
	}
	return fmt.Errorf("%s: %w", handle, browser.ErrNoTab)
}

func (d *Driver) CloseTab(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return browser.ErrNoTab
	}
	t := d.active
	d.active = nil
	for i, other := range d.tabs {
		if other == t {
			d.tabs = append(d.tabs[:i], d.tabs[i+1:]...)
			break
		}
	}
	return t.page.Close()
}

func (d *Driver) Find(ctx context.Context, selector string) (browser.Element, error) {
	p, err := d.page(ctx)
	if err != nil {
		return nil, err
	}
	h, err := p.QuerySelector(selector)
	if err != nil {
		return nil, convert(err)
	}
	if h == nil {
		return nil, browser.ErrNoElement
	}
	return &element{h: h}, nil
}

func (d *Driver) FindAll(ctx context.Context, selector string) ([]browser.Element, error) {
	p, err := d.page(ctx)
	if err != nil {
		return nil, err
	}
	hs, err := p.QuerySelectorAll(selector)
	if err != nil {
		return nil, convert(err)
	}
	return wrap(hs), nil
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	p, err := d.page(ctx)
	if err != nil {
		return nil, err
	}
	return p.Screenshot()
}

// Quit closes the browser and stops the Playwright server.
func (d *Driver) Quit() error {
	d.mu.Lock()
	d.tabs = nil
	d.active = nil
	d.mu.Unlock()

	var err error
	if d.browser != nil {
		err = d.browser.Close()
	}
	return errors.Join(err, d.pw.Stop())
}

type element struct {
	h playwright.ElementHandle
}

func wrap(hs []playwright.ElementHandle) []browser.Element {
	out := make([]browser.Element, 0, len(hs))
	for _, h := range hs {
		out = append(out, &element{h: h})
	}
	return out
}

func (e *element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return convert(e.h.Click())
}

func (e *element) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return convert(e.h.Fill(""))
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return convert(e.h.Type(text))
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := e.h.InnerText()
	return strings.TrimSpace(text), convert(err)
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := e.h.GetAttribute(name)
	return v, convert(err)
}

func (e *element) Find(ctx context.Context, selector string) (browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, err := e.h.QuerySelector(selector)
	if err != nil {
		return nil, convert(err)
	}
	if h == nil {
		return nil, browser.ErrNoElement
	}
	return &element{h: h}, nil
}

func (e *element) FindAll(ctx context.Context, selector string) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hs, err := e.h.QuerySelectorAll(selector)
	if err != nil {
		return nil, convert(err)
	}
	return wrap(hs), nil
}

// convert maps detached-node errors onto browser.ErrStaleElement.
func convert(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "not attached to the DOM") || strings.Contains(msg, "Execution context was destroyed") {
		return fmt.Errorf("%w: %v", browser.ErrStaleElement, err)
	}
	return err
}
