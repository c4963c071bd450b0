// Package webdriver drives Chrome through the W3C WebDriver protocol, either
// against a running Selenium server or chromedriver, or against a
// chromedriver process it starts itself.
//
// The protocol has no cancellation; contexts are checked before each
// command.
package webdriver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strings"
	"sync"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"

	"github.com/thesyncim/confdrive/pkg/browser"
)

// Launcher creates WebDriver sessions.
type Launcher struct {
	// URL is the remote end, e.g. http://localhost:4444/wd/hub. When empty,
	// a chromedriver is started for every session.
	URL string
	// ChromeDriver is the path of the chromedriver binary.
	ChromeDriver string
	// Port is the port of a started chromedriver. Zero picks a free port
	// per session; a fixed port serves one session at a time.
	Port int
	// Chrome is the browser binary. Empty uses the driver's default.
	Chrome string

	mu       sync.Mutex
	portBusy bool
}

var _ browser.Launcher = (*Launcher)(nil)

// New returns a launcher for the remote end at url.
func New(url string) *Launcher {
	return &Launcher{URL: url}
}

// capabilities requests Chrome with the session's switches.
func (l *Launcher) capabilities(opts browser.LaunchOptions) selenium.Capabilities {
	caps := selenium.Capabilities{"browserName": "chrome"}
	caps.AddChrome(chrome.Capabilities{
		Path: l.Chrome,
		Args: opts.Args(),
		W3C:  true,
	})
	return caps
}

// chromeDriverURL is the remote end of a chromedriver started by
// selenium.NewChromeDriverService, which serves under /wd/hub.
func chromeDriverURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d/wd/hub", port)
}

func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// reservePort returns the port for a new chromedriver and a func that
// gives it back.
func (l *Launcher) reservePort() (int, func(), error) {
	if l.Port == 0 {
		port, err := freePort()
		if err != nil {
			return 0, nil, fmt.Errorf("finding a free port: %w", err)
		}
		return port, func() {}, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.portBusy {
		return 0, nil, fmt.Errorf("webdriver: chromedriver port %d is in use by another session", l.Port)
	}
	l.portBusy = true
	return l.Port, sync.OnceFunc(func() {
		l.mu.Lock()
		l.portBusy = false
		l.mu.Unlock()
	}), nil
}

// startChromeDriver starts a chromedriver of its own for one session.
func (l *Launcher) startChromeDriver() (*selenium.Service, string, func(), error) {
	if l.ChromeDriver == "" {
		return nil, "", nil, errors.New("webdriver: neither remote url nor chromedriver path set")
	}
	port, release, err := l.reservePort()
	if err != nil {
		return nil, "", nil, err
	}
	service, err := selenium.NewChromeDriverService(l.ChromeDriver, port)
	if err != nil {
		release()
		return nil, "", nil, fmt.Errorf("starting chromedriver: %w", err)
	}
	return service, chromeDriverURL(port), release, nil
}

// Launch opens a WebDriver session. A chromedriver started for it is
// stopped when the driver quits.
func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d := &Driver{url: l.URL, release: func() {}}
	if d.url == "" {
		var err error
		if d.service, d.url, d.release, err = l.startChromeDriver(); err != nil {
			return nil, err
		}
	}

	wd, err := selenium.NewRemote(l.capabilities(opts), d.url)
	if err != nil {
		if d.service != nil {
			_ = d.service.Stop()
		}
		d.release()
		return nil, fmt.Errorf("creating webdriver session: %w", err)
	}
	d.wd = wd
	return d, nil
}

// Driver is a browser.Driver backed by one WebDriver session.
type Driver struct {
	wd      selenium.WebDriver
	url     string
	service *selenium.Service
	release func()

	mu     sync.Mutex
	closed bool // active window closed
}

var _ browser.Driver = (*Driver)(nil)

func (d *Driver) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return browser.ErrNoTab
	}
	return nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.check(ctx); err != nil {
		return err
	}
	return convert(d.wd.Get(url))
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	if err := d.check(ctx); err != nil {
		return "", err
	}
	title, err := d.wd.Title()
	return title, convert(err)
}

func (d *Driver) URL(ctx context.Context) (string, error) {
	if err := d.check(ctx); err != nil {
		return "", err
	}
	u, err := d.wd.CurrentURL()
	return u, convert(err)
}

// NewTab opens a window with window.open and switches to it.
func (d *Driver) NewTab(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	before, err := d.wd.WindowHandles()
	if err != nil {
		return convert(err)
	}
	if _, err := d.wd.ExecuteScript(`window.open("about:blank", "_blank");`, nil); err != nil {
		return convert(err)
	}
	after, err := d.wd.WindowHandles()
	if err != nil {
		return convert(err)
	}
	for _, h := range after {
		if !slices.Contains(before, h) {
			if err := d.wd.SwitchWindow(h); err != nil {
				return convert(err)
			}
			d.mu.Lock()
			d.closed = false
			d.mu.Unlock()
			return nil
		}
	}
	return errors.New("webdriver: window.open did not create a window")
}

func (d *Driver) Tabs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handles, err := d.wd.WindowHandles()
	return handles, convert(err)
}

func (d *Driver) SwitchTab(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.wd.SwitchWindow(handle); err != nil {
		return convert(err)
	}
	d.mu.Lock()
	d.closed = false
	d.mu.Unlock()
	return nil
}

func (d *Driver) CloseTab(ctx context.Context) error {
	if err := d.check(ctx); err != nil {
		return err
	}
	handle, err := d.wd.CurrentWindowHandle()
	if err != nil {
		return convert(err)
	}
	if err := d.wd.CloseWindow(handle); err != nil {
		return convert(err)
	}
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *Driver) Find(ctx context.Context, selector string) (browser.Element, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}
	el, err := d.wd.FindElement(selenium.ByCSSSelector, selector)
	if err != nil {
		return nil, convert(err)
	}
	return &element{el: el}, nil
}

func (d *Driver) FindAll(ctx context.Context, selector string) ([]browser.Element, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}
	els, err := d.wd.FindElements(selenium.ByCSSSelector, selector)
	if err != nil {
		return nil, convert(err)
	}
	return wrap(els), nil
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := d.check(ctx); err != nil {
		return nil, err
	}
	png, err := d.wd.Screenshot()
	return png, convert(err)
}

// Quit ends the session and stops the chromedriver started for it.
func (d *Driver) Quit() error {
	err := d.wd.Quit()
	if d.service != nil {
		err = errors.Join(err, d.service.Stop())
	}
	d.release()
	return err
}

type element struct {
	el selenium.WebElement
}

func wrap(els []selenium.WebElement) []browser.Element {
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &element{el: el})
	}
	return out
}

func (e *element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return convert(e.el.Click())
}

func (e *element) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return convert(e.el.Clear())
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return convert(e.el.SendKeys(text))
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := e.el.Text()
	return text, convert(err)
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := e.el.GetAttribute(name)
	if err != nil && strings.Contains(err.Error(), "nil return value") {
		// absent attribute
		return "", nil
	}
	return v, convert(err)
}

func (e *element) Find(ctx context.Context, selector string) (browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	el, err := e.el.FindElement(selenium.ByCSSSelector, selector)
	if err != nil {
		return nil, convert(err)
	}
	return &element{el: el}, nil
}

func (e *element) FindAll(ctx context.Context, selector string) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	els, err := e.el.FindElements(selenium.ByCSSSelector, selector)
	if err != nil {
		return nil, convert(err)
	}
	return wrap(els), nil
}

// convert maps W3C error codes onto the browser package errors.
func convert(err error) error {
	var werr *selenium.Error
	if !errors.As(err, &werr) {
		return err
	}
	switch werr.Err {
	case "no such element":
		return fmt.Errorf("%w: %s", browser.ErrNoElement, werr.Message)
	case "stale element reference":
		return fmt.Errorf("%w: %s", browser.ErrStaleElement, werr.Message)
	case "no such window":
		return fmt.Errorf("%w: %s", browser.ErrNoTab, werr.Message)
	}
	return err
}
