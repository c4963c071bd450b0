// Package browsertest provides an in-memory browser.Driver for tests.
//
// A Site is a set of HTML pages keyed by URL plus click handlers keyed by
// CSS selector. Drivers launched from a Site parse pages with goquery, so
// selectors are matched the same way a real engine would match them, and
// click handlers mutate the parsed document to emulate the application
// reacting to the user.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/thesyncim/confdrive/pkg/browser"
)

// BlankURL is the URL of a freshly opened tab.
const BlankURL = "about:blank"

// ClickFunc reacts to a click on an element matched by a registered
// selector. It runs with the driver locked and must only touch the driver
// through t.
type ClickFunc func(t *Tab, el *goquery.Selection)

// PageFunc renders a page for the tab loading it. It runs with the driver
// locked.
type PageFunc func(t *Tab) string

type handler struct {
	selector string
	fn       ClickFunc
}

// Site holds the pages and click handlers shared by every driver it
// launches.
type Site struct {
	mu       sync.Mutex
	pages    map[string]PageFunc
	handlers []handler
	drivers  []*Driver

	// LaunchErr, when set, is returned by the launcher.
	LaunchErr error
}

// NewSite returns an empty site.
func NewSite() *Site {
	return &Site{pages: make(map[string]PageFunc)}
}

// Page registers the HTML served at url. Re-registering replaces the page
// for future navigations.
func (s *Site) Page(url, html string) {
	s.PageFunc(url, func(*Tab) string { return html })
}

// PageFunc registers a page rendered on every navigation to url.
func (s *Site) PageFunc(url string, fn PageFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = fn
}

// OnClick registers fn for clicks on elements matching selector. Every
// matching handler runs, in registration order.
func (s *Site) OnClick(selector string, fn ClickFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler{selector: selector, fn: fn})
}

// Launcher returns a launcher that starts a new Driver per call.
func (s *Site) Launcher() browser.Launcher {
	return browser.LauncherFunc(func(ctx context.Context, opts browser.LaunchOptions) (browser.Driver, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.mu.Lock()
		err := s.LaunchErr
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		d := s.NewDriver()
		d.opts = opts
		return d, nil
	})
}

// NewDriver returns a driver with one blank tab.
func (s *Site) NewDriver() *Driver {
	d := &Driver{site: s}
	d.newTabLocked()

	s.mu.Lock()
	s.drivers = append(s.drivers, d)
	s.mu.Unlock()
	return d
}

// Drivers returns every driver launched so far.
func (s *Site) Drivers() []*Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Driver(nil), s.drivers...)
}

func (s *Site) page(url string) (PageFunc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn, ok := s.pages[url]
	return fn, ok
}

func (s *Site) handlersFor(sel *goquery.Selection) []ClickFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fns []ClickFunc
	for _, h := range s.handlers {
		if sel.Is(h.selector) {
			fns = append(fns, h.fn)
		}
	}
	return fns
}

// Tab is one tab of a Driver.
type Tab struct {
	Handle string

	driver *Driver
	url    string
	doc    *goquery.Document
	gen    int
	closed bool
}

// URL returns the loaded URL.
func (t *Tab) URL() string { return t.url }

// Doc returns the live document.
func (t *Tab) Doc() *goquery.Document { return t.doc }

// Navigate loads url from the site. Handles found before the navigation
// become stale.
func (t *Tab) Navigate(url string) error {
	html := "<html><head><title></title></head><body></body></html>"
	if fn, ok := t.driver.site.page(url); ok {
		html = fn(t)
	} else if url != BlankURL {
		return fmt.Errorf("browsertest: no page for %s", url)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Errorf("browsertest: parsing %s: %w", url, err)
	}
	t.url = url
	t.doc = doc
	t.gen++
	return nil
}

// SetHTML replaces the content of every element matching selector.
func (t *Tab) SetHTML(selector, html string) {
	t.doc.Find(selector).SetHtml(html)
}

// AppendHTML appends html to every element matching selector.
func (t *Tab) AppendHTML(selector, html string) {
	t.doc.Find(selector).AppendHtml(html)
}

// SetAttr sets an attribute on every element matching selector.
func (t *Tab) SetAttr(selector, name, value string) {
	t.doc.Find(selector).SetAttr(name, value)
}

// Remove detaches every element matching selector.
func (t *Tab) Remove(selector string) {
	t.doc.Find(selector).Remove()
}

// Driver is an in-memory browser.Driver.
type Driver struct {
	site *Site
	opts browser.LaunchOptions

	mu     sync.Mutex
	tabs   []*Tab
	active *Tab
	seq    int
	quit   bool
	clicks []string

	// QuitErr, when set, is returned by Quit.
	QuitErr error
}

var _ browser.Driver = (*Driver)(nil)

// Options returns the options the driver was launched with.
func (d *Driver) Options() browser.LaunchOptions { return d.opts }

// Quitted reports whether Quit has been called.
func (d *Driver) Quitted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.quit
}

// Clicks returns a short description of every clicked element, in order.
func (d *Driver) Clicks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.clicks...)
}

// Active returns the active tab, or nil once it has been closed.
func (d *Driver) Active() *Tab {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Do runs fn against the active tab with the driver locked. Tests use it
// to change the page from outside, e.g. to emulate another participant.
func (d *Driver) Do(fn func(t *Tab)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil {
		fn(d.active)
	}
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.tabLocked()
	if err != nil {
		return err
	}
	return t.Navigate(url)
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.tabLocked()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(t.doc.Find("title").First().Text()), nil
}

func (d *Driver) URL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.tabLocked()
	if err != nil {
		return "", err
	}
	return t.url, nil
}

func (d *Driver) NewTab(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.quit {
		return errQuit
	}
	d.newTabLocked()
	return nil
}

func (d *Driver) newTabLocked() {
	t := &Tab{Handle: fmt.Sprintf("tab-%d", d.seq), driver: d}
	d.seq++
	_ = t.Navigate(BlankURL)
	d.tabs = append(d.tabs, t)
	d.active = t
}

func (d *Driver) Tabs(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.quit {
		return nil, errQuit
	}
	handles := make([]string, 0, len(d.tabs))
	for _, t := range d.tabs {
		handles = append(handles, t.Handle)
	}
	return handles, nil
}

func (d *Driver) SwitchTab(ctx context.Context, handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.quit {
		return errQuit
	}
	for _, t := range d.tabs {
		if t.Handle == handle {
			d.active = t
			return nil
		}
	}
	return fmt.Errorf("%s: %w", handle, browser.ErrNoTab)
}

func (d *Driver) CloseTab(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.tabLocked()
	if err != nil {
		return err
	}
	t.closed = true
	for i, other := range d.tabs {
		if other == t {
			d.tabs = append(d.tabs[:i], d.tabs[i+1:]...)
			break
		}
	}
	d.active = nil
	return nil
}

func (d *Driver) Find(ctx context.Context, selector string) (browser.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.tabLocked()
	if err != nil {
		return nil, err
	}
	return first(t, t.doc.Find(selector))
}

func (d *Driver) FindAll(ctx context.Context, selector string) ([]browser.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, err := d.tabLocked()
	if err != nil {
		return nil, err
	}
	return all(t, t.doc.Find(selector)), nil
}

// pngSignature is enough for callers that only check the file type.
var pngSignature = []byte("\x89PNG\r\n\x1a\n")

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.tabLocked(); err != nil {
		return nil, err
	}
	return append([]byte(nil), pngSignature...), nil
}

func (d *Driver) Quit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quit = true
	d.tabs = nil
	d.active = nil
	return d.QuitErr
}

var errQuit = errors.New("browsertest: driver has quit")

func (d *Driver) tabLocked() (*Tab, error) {
	if d.quit {
		return nil, errQuit
	}
	if d.active == nil {
		return nil, browser.ErrNoTab
	}
	return d.active, nil
}
