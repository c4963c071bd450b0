// Package rod drives Chrome over the DevTools protocol with go-rod. It is
// the default engine.
package rod

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	gorod "github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"github.com/thesyncim/confdrive/pkg/browser"
)

// Launcher starts Chrome processes.
type Launcher struct {
	// Bin is the Chrome binary. Empty looks one up and downloads it if
	// none is installed.
	Bin string
	// Leakless kills Chrome when this process dies. Default: true
	Leakless bool
}

var _ browser.Launcher = (*Launcher)(nil)

// New returns a launcher for the installed Chrome.
func New() *Launcher {
	return &Launcher{Leakless: true}
}

// chrome builds the launch command for opts: media switches, window size
// and headless mode all come from opts.
func (l *Launcher) chrome(opts browser.LaunchOptions) *launcher.Launcher {
	cl := launcher.New().
		HeadlessNew(opts.Headless).
		Leakless(l.Leakless).
		Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", opts.Width, opts.Height))
	if l.Bin != "" {
		cl = cl.Bin(l.Bin)
	}
	for _, f := range opts.Flags {
		if f.Value == "" {
			cl = cl.Set(flags.Flag(f.Name))
		} else {
			cl = cl.Set(flags.Flag(f.Name), f.Value)
		}
	}
	return cl
}

// Launch starts Chrome, connects to it and opens the first tab with camera
// and microphone access granted.
func (l *Launcher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cl := l.chrome(opts)
	u, err := start(ctx, cl)
	if err != nil {
		return nil, fmt.Errorf("failed to launch Chrome: %w", err)
	}

	b := gorod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		cl.Kill()
		return nil, fmt.Errorf("failed to connect to Chrome: %w", err)
	}
	d := &Driver{launcher: cl, browser: b}

	err = proto.BrowserGrantPermissions{
		Permissions: []proto.BrowserPermissionType{
			proto.BrowserPermissionTypeAudioCapture,
			proto.BrowserPermissionTypeVideoCapture,
		},
	}.Call(b)
	if err == nil {
		err = d.NewTab(ctx)
	}
	if err != nil {
		_ = d.Quit()
		return nil, err
	}
	return d, nil
}

// start runs cl until Chrome is up or ctx is done. The launch may first
// download a browser, so it is not bounded otherwise. A Chrome that comes
// up after ctx is done is killed.
func start(ctx context.Context, cl *launcher.Launcher) (string, error) {
	type result struct {
		u   string
		err error
	}
	done := make(chan result, 1)
	go func() {
		u, err := cl.Launch()
		done <- result{u, err}
	}()
	select {
	case r := <-done:
		return r.u, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				cl.Kill()
				cl.Cleanup()
			}
		}()
		return "", ctx.Err()
	}
}

// Driver is a browser.Driver backed by one Chrome process.
type Driver struct {
	launcher *launcher.Launcher
	browser  *gorod.Browser

	mu     sync.Mutex
	pages  []*gorod.Page
	active *gorod.Page
}

var _ browser.Driver = (*Driver)(nil)

func (d *Driver) page(ctx context.Context) (*gorod.Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return nil, browser.ErrNoTab
	}
	return d.active.Context(ctx), nil
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	p, err := d.page(ctx)
	if err != nil {
		return err
	}
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	p, err := d.page(ctx)
	if err != nil {
		return "", err
	}
	info, err := p.Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (d *Driver) URL(ctx context.Context) (string, error) {
	p, err := d.page(ctx)
	if err != nil {
		return "", err
	}
	info, err := p.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (d *Driver) NewTab(ctx context.Context) error {
	p, err := d.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("opening tab: %w", err)
	}
	// Detach the page from ctx; it outlives the call.
	p = p.Context(context.Background())

	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages = append(d.pages, p)
	d.active = p
	return nil
}

func (d *Driver) Tabs(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	handles := make([]string, 0, len(d.pages))
	for _, p := range d.pages {
		handles = append(handles, string(p.TargetID))
	}
	return handles, nil
}

func (d *Driver) SwitchTab(ctx context.Context, handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.pages {
		if string(p.TargetID) == handle {
			if _, err := p.Context(ctx).Activate(); err != nil {
				return err
			}
			d.active = p
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
	p := d.active
	d.active = nil
	for i, other := range d.pages {
		if other == p {
			d.pages = append(d.pages[:i], d.pages[i+1:]...)
			break
		}
	}
	return p.Context(ctx).Close()
}

func (d *Driver) Find(ctx context.Context, selector string) (browser.Element, error) {
	p, err := d.page(ctx)
	if err != nil {
		return nil, err
	}
	has, el, err := p.Has(selector)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, browser.ErrNoElement
	}
	return &element{el: el}, nil
}

func (d *Driver) FindAll(ctx context.Context, selector string) ([]browser.Element, error) {
	p, err := d.page(ctx)
	if err != nil {
		return nil, err
	}
	els, err := p.Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrap(els), nil
}

func (d *Driver) Screenshot(ctx context.Context) ([]byte, error) {
	p, err := d.page(ctx)
	if err != nil {
		return nil, err
	}
	return p.Screenshot(false, nil)
}

// Quit closes Chrome and removes its profile directory.
func (d *Driver) Quit() error {
	d.mu.Lock()
	d.pages = nil
	d.active = nil
	d.mu.Unlock()

	err := d.browser.Close()
	d.launcher.Kill()
	d.launcher.Cleanup()
	return err
}

type element struct {
	el *gorod.Element
}

func wrap(els gorod.Elements) []browser.Element {
	out := make([]browser.Element, 0, len(els))
	for _, el := range els {
		out = append(out, &element{el: el})
	}
	return out
}

func (e *element) Click(ctx context.Context) error {
	return stale(e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1))
}

func (e *element) Clear(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(`() => {
		this.value = "";
		this.dispatchEvent(new Event("input", {bubbles: true}));
	}`)
	return stale(err)
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	return stale(e.el.Context(ctx).Input(text))
}

func (e *element) Text(ctx context.Context) (string, error) {
	text, err := e.el.Context(ctx).Text()
	return text, stale(err)
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil || v == nil {
		return "", stale(err)
	}
	return *v, nil
}

func (e *element) Find(ctx context.Context, selector string) (browser.Element, error) {
	has, el, err := e.el.Context(ctx).Has(selector)
	if err != nil {
		return nil, stale(err)
	}
	if !has {
		return nil, browser.ErrNoElement
	}
	return &element{el: el}, nil
}

func (e *element) FindAll(ctx context.Context, selector string) ([]browser.Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, stale(err)
	}
	return wrap(els), nil
}

// stale maps DevTools errors for detached nodes and destroyed execution
// contexts onto browser.ErrStaleElement.
func stale(err error) error {
	if err == nil {
		return nil
	}
	var cdpErr *cdp.Error
	if errors.As(err, &cdpErr) {
		msg := strings.ToLower(cdpErr.Message)
		if strings.Contains(msg, "node") || strings.Contains(msg, "context") {
			return fmt.Errorf("%w: %v", browser.ErrStaleElement, err)
		}
	}
	if errors.Is(err, &gorod.ObjectNotFoundError{}) {
		return fmt.Errorf("%w: %v", browser.ErrStaleElement, err)
	}
	return err
}
