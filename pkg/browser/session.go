// Package browser wraps a browser engine as a Session bound to one
// simulated conference participant.
//
// A Session owns exactly one Driver. Lookups go through a bounded-wait
// locator that never fails hard: a missing element is logged and reported
// as absent, and the caller decides whether absence is the assertion or an
// error. Launch and navigation failures are returned as typed errors.
package browser

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Session is one browser instance bound to one logical client.
//
// Operations are serialized: calls issued sequentially by one goroutine run
// in issue order. Sessions share nothing with each other.
type Session struct {
	cfg      Config
	launcher Launcher
	log      logr.Logger

	pollInterval time.Duration
	findTimeout  time.Duration

	mu      sync.Mutex
	driver  Driver
	tabs    []string
	active  int
	stopped bool
	onStop  []func(*Session)
}

// NewSession creates a Session for cfg. The engine is not started until
// Open is called.
func NewSession(cfg Config, l Launcher, opts ...Option) (*Session, error) {
	if cfg.URL == "" {
		return nil, ErrURLRequired
	}
	s := &Session{
		cfg:          cfg.withDefaults(),
		launcher:     l,
		log:          logr.Discard(),
		pollInterval: DefaultPollInterval,
		findTimeout:  DefaultFindTimeout,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.log = s.log.WithValues("session", s.cfg.ID)
	if _, forced := s.cfg.headless(); forced {
		s.log.Info("DISPLAY not set, running in headless mode")
	}
	return s, nil
}

// ID returns the logical client id.
func (s *Session) ID() string { return s.cfg.ID }

// URL returns the URL loaded on Open.
func (s *Session) URL() string { return s.cfg.URL }

// Logger returns the session logger.
func (s *Session) Logger() logr.Logger { return s.log }

// LaunchOptions returns the engine configuration used by Open.
func (s *Session) LaunchOptions() LaunchOptions { return s.cfg.launchOptions() }

// Open launches the engine and loads the configured URL. On failure the
// session is stopped before the error is returned, so no engine leaks.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.driver != nil {
		s.mu.Unlock()
		return nil
	}

	s.log.V(1).Info("opening browser", "url", s.cfg.URL)
	d, err := s.launcher.Launch(ctx, s.cfg.launchOptions())
	if err != nil {
		s.mu.Unlock()
		s.log.Error(err, "start error")
		s.Stop()
		return &LaunchError{ID: s.cfg.ID, URL: s.cfg.URL, Err: err}
	}
	s.driver = d
	if err := s.refreshTabsLocked(ctx); err != nil {
		s.log.Error(err, "listing tabs")
	}
	if err := d.Navigate(ctx, s.cfg.URL); err != nil {
		s.mu.Unlock()
		s.log.Error(err, "start error")
		s.Stop()
		return &LaunchError{ID: s.cfg.ID, URL: s.cfg.URL, Err: err}
	}
	s.mu.Unlock()

	s.log.Info("opened", "url", s.cfg.URL)
	return nil
}

// Navigate loads url in the active tab.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.driverLocked()
	if err != nil {
		return &NavigationError{URL: url, Err: err}
	}
	if err := d.Navigate(ctx, url); err != nil {
		return &NavigationError{URL: url, Err: err}
	}
	return nil
}

// OpenTab opens a new tab, refreshes the tab list and makes the new tab
// active. When url is not empty it is loaded in the new tab.
func (s *Session) OpenTab(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.V(1).Info("open new tab")
	d, err := s.driverLocked()
	if err != nil {
		return err
	}
	if err := d.NewTab(ctx); err != nil {
		return fmt.Errorf("opening tab: %w", err)
	}
	if err := s.refreshTabsLocked(ctx); err != nil {
		return fmt.Errorf("listing tabs: %w", err)
	}
	if err := s.switchLocked(ctx, len(s.tabs)-1); err != nil {
		return err
	}
	if url != "" {
		if err := d.Navigate(ctx, url); err != nil {
			return &NavigationError{URL: url, Err: err}
		}
		s.log.V(1).Info("get", "url", url)
	}
	return nil
}

// SwitchTab activates the tab at index in the tracked tab list. Failures
// are logged and reported as false; the active tab is then unchanged.
func (s *Session) SwitchTab(ctx context.Context, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.switchLocked(ctx, index); err != nil {
		s.log.Error(err, "switching tab", "index", index)
		return false
	}
	return true
}

// ActiveTab returns the index of the active tab in the tracked tab list,
// or -1 after Close until another tab is switched to.
func (s *Session) ActiveTab() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Tabs returns a copy of the tracked tab handles.
func (s *Session) Tabs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tabs...)
}

// Title returns the active tab's title. Failures are logged and reported
// as false.
func (s *Session) Title(ctx context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.driverLocked()
	if err == nil {
		var title string
		if title, err = d.Title(ctx); err == nil {
			return title, true
		}
	}
	s.log.Error(err, "getting title")
	return "", false
}

// CurrentURL returns the active tab's URL. Failures are logged and
// reported as false.
func (s *Session) CurrentURL(ctx context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.driverLocked()
	if err == nil {
		var u string
		if u, err = d.URL(ctx); err == nil {
			return u, true
		}
	}
	s.log.Error(err, "getting current url")
	return "", false
}

// Close closes the active window only; the engine keeps running. Failures
// are logged.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.V(1).Info("close browser window")
	if s.driver == nil {
		return
	}
	if err := s.driver.CloseTab(ctx); err != nil {
		s.log.Error(err, "driver close error")
		return
	}
	s.active = -1
	if err := s.refreshTabsLocked(ctx); err != nil {
		s.log.Error(err, "listing tabs")
	}
}

// Screenshot writes a PNG of the active tab to path.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.driverLocked()
	if err != nil {
		return err
	}
	png, err := d.Screenshot(ctx)
	if err != nil {
		return fmt.Errorf("taking screenshot: %w", err)
	}
	return os.WriteFile(path, png, 0o644)
}

// Stop quits the engine and releases it. Stop is idempotent; observers
// registered with OnStop run once, on the first call.
func (s *Session) Stop() {
	s.mu.Lock()
	s.log.V(1).Info("browser stop")
	if s.driver != nil {
		if err := s.driver.Quit(); err != nil {
			s.log.Error(err, "driver quit error")
		}
		s.driver = nil
	}
	s.tabs = nil
	s.active = 0
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	observers := s.onStop
	s.onStop = nil
	s.mu.Unlock()

	for _, fn := range observers {
		fn(s)
	}
}

// Stopped reports whether Stop has been called.
func (s *Session) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Running reports whether the session holds a live engine.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driver != nil
}

func (s *Session) driverLocked() (Driver, error) {
	if s.stopped {
		return nil, ErrStopped
	}
	if s.driver == nil {
		return nil, ErrNotOpen
	}
	return s.driver, nil
}

func (s *Session) refreshTabsLocked(ctx context.Context) error {
	tabs, err := s.driver.Tabs(ctx)
	if err != nil {
		return err
	}
	s.tabs = tabs
	return nil
}

func (s *Session) switchLocked(ctx context.Context, index int) error {
	d, err := s.driverLocked()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(s.tabs) {
		return fmt.Errorf("tab %d of %d: %w", index, len(s.tabs), ErrNoTab)
	}
	if err := d.SwitchTab(ctx, s.tabs[index]); err != nil {
		return fmt.Errorf("switching to tab %d: %w", index, err)
	}
	s.active = index
	return nil
}
