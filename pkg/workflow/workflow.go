// Package workflow encodes the conferencing application's UI use cases as
// operations on a browser session.
//
// Each operation drives the UI in the order a user would, checks the shape
// of what the application renders (titles, attribute values, element
// counts) and records the confirmed media state of the client. A shape
// mismatch is returned as a *ContractError. An element that is only
// sometimes present is looked up softly: its absence is logged and the
// operation carries on.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/thesyncim/confdrive/pkg/browser"
	"github.com/thesyncim/confdrive/pkg/mediastate"
)

// Config configures the clients of one application deployment.
type Config struct {
	// BaseURL is the application origin, e.g. https://localhost.
	BaseURL string
	// PageTitle is the document title every application page carries.
	PageTitle string
	// DismissBanner clicks away the cookie consent banner after opening.
	DismissBanner bool
	// Settle is the pause after UI actions that trigger animations or
	// network round trips. Operations wait between one and four Settle
	// periods. Zero disables pacing.
	Settle time.Duration
	// Wait bounds lookups of elements that appear after an action.
	// Zero uses the session default.
	Wait time.Duration
	// Session is the template for each client's browser session; URL and
	// ID are set per client.
	Session browser.Config
	Logger  logr.Logger
}

// DefaultConfig returns the configuration for the development deployment
// served at baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
		PageTitle: "QuavStreams (dev)",
		Settle:    500 * time.Millisecond,
		Wait:      2 * time.Second,
		Session:   browser.DefaultConfig(""),
		Logger:    logr.Discard(),
	}
}

// Client is one simulated participant: a browser session plus the media
// state the participant is known to publish.
type Client struct {
	*browser.Session

	cfg   Config
	log   logr.Logger
	media mediastate.Tracker
}

// NewClient opens a browser for participant id at url, checks the page
// title and optionally dismisses the cookie banner. The session is stopped
// if any of that fails.
func NewClient(ctx context.Context, cfg Config, l browser.Launcher, id, url string, opts ...browser.Option) (*Client, error) {
	if cfg.Logger.GetSink() == nil {
		cfg.Logger = logr.Discard()
	}
	log := cfg.Logger.WithValues("client", id)

	scfg := cfg.Session
	scfg.URL = url
	scfg.ID = id
	opts = append([]browser.Option{browser.WithLogger(log)}, opts...)
	s, err := browser.NewSession(scfg, l, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.Open(ctx); err != nil {
		return nil, err
	}

	c := &Client{Session: s, cfg: cfg, log: log}
	if err := c.checkTitle(ctx); err != nil {
		s.Stop()
		return nil, err
	}
	c.settle(ctx, 2)

	if cfg.DismissBanner {
		c.Click(ctx, selBanner, c.cfg.Wait)
	}
	return c, nil
}

// Media returns the confirmed media state.
func (c *Client) Media() mediastate.Snapshot { return c.media.Snapshot() }

// Config returns the client configuration.
func (c *Client) Config() Config { return c.cfg }

func (c *Client) checkTitle(ctx context.Context) error {
	title, _ := c.Title(ctx)
	return expectEqual("page title", c.cfg.PageTitle, title)
}

// settle pauses for n Settle periods or until ctx is done.
func (c *Client) settle(ctx context.Context, n int) {
	if c.cfg.Settle <= 0 || n <= 0 {
		return
	}
	t := time.NewTimer(time.Duration(n) * c.cfg.Settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// require finds selector or reports the missing element as a contract
// violation.
func (c *Client) require(ctx context.Context, selector string) (browser.Element, error) {
	el, ok := c.FindOne(ctx, selector, c.cfg.Wait)
	if !ok {
		return nil, missing(selector)
	}
	return el, nil
}

// requireWithin is require scoped to parent.
func (c *Client) requireWithin(ctx context.Context, parent browser.Element, selector string) (browser.Element, error) {
	el, ok := c.FindOneWithin(ctx, parent, selector)
	if !ok {
		return nil, missing(selector)
	}
	return el, nil
}

// fill types text into the input matched by selector.
func (c *Client) fill(ctx context.Context, selector, text string) error {
	el, err := c.require(ctx, selector)
	if err != nil {
		return err
	}
	c.Type(ctx, el, text)
	return nil
}

// titles returns the title attribute of each element.
func (c *Client) titles(ctx context.Context, els []browser.Element) []string {
	out := make([]string, len(els))
	for i, el := range els {
		out[i] = c.Attribute(ctx, el, "title")
	}
	return out
}

// byTitle returns the first element whose title attribute equals title.
func (c *Client) byTitle(ctx context.Context, els []browser.Element, title string) (browser.Element, bool) {
	for _, el := range els {
		if c.Attribute(ctx, el, "title") == title {
			return el, true
		}
	}
	return nil, false
}

// expectButtons checks the number of buttons and the titles of the
// leading ones, in order.
func expectButtons(bar string, got []string, count int, leading ...string) error {
	if err := expectEqual(bar+" button count", count, len(got)); err != nil {
		return err
	}
	for i, want := range leading {
		if err := expectEqual(fmt.Sprintf("%s button %d title", bar, i), want, got[i]); err != nil {
			return err
		}
	}
	return nil
}
