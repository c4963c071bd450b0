package main

import (
	"fmt"
	"net/url"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/thesyncim/confdrive/internal/logging"
	"github.com/thesyncim/confdrive/pkg/browser"
	"github.com/thesyncim/confdrive/pkg/browser/playwright"
	"github.com/thesyncim/confdrive/pkg/browser/rod"
	"github.com/thesyncim/confdrive/pkg/browser/webdriver"
	"github.com/thesyncim/confdrive/pkg/workflow"
)

// globals are the settings shared by every subcommand.
type globals struct {
	driver       string
	webdriverURL string
	chromeDriver string
	chromeBin    string
	install      bool
	headless     bool
	width        int
	height       int
	title        string
	settle       time.Duration
	wait         time.Duration
	videoFile    string
	audioFile    string

	log    logging.Config
	logger logr.Logger
}

func newGlobals() *globals {
	def := workflow.DefaultConfig("")
	return &globals{
		driver:   "rod",
		headless: def.Session.Headless,
		width:    def.Session.Width,
		height:   def.Session.Height,
		title:    def.PageTitle,
		settle:   def.Settle,
		wait:     def.Wait,
		logger:   logr.Discard(),
	}
}

func (g *globals) addFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&g.driver, "driver", g.driver, "Browser engine: rod, webdriver or playwright")
	flags.StringVar(&g.webdriverURL, "webdriver-url", "", "WebDriver remote end, e.g. http://localhost:4444/wd/hub")
	flags.StringVar(&g.chromeDriver, "chromedriver", "", "chromedriver binary started when no WebDriver URL is given")
	flags.StringVar(&g.chromeBin, "chrome", "", "Chrome binary; looked up if empty")
	flags.BoolVar(&g.install, "playwright-install", false, "Install the Playwright driver and Chromium before launching")
	flags.BoolVar(&g.headless, "headless", g.headless, "Run the browser without a window; forced when DISPLAY is unset")
	flags.IntVar(&g.width, "width", g.width, "Browser window width")
	flags.IntVar(&g.height, "height", g.height, "Browser window height")
	flags.StringVar(&g.title, "title", g.title, "Document title every application page carries")
	flags.DurationVar(&g.settle, "settle", g.settle, "Pause after UI actions that animate or hit the network")
	flags.DurationVar(&g.wait, "wait", g.wait, "Bound on waiting for elements that appear after an action")
	flags.StringVar(&g.videoFile, "video-file", "", "y4m or mjpeg file replacing the synthetic camera")
	flags.StringVar(&g.audioFile, "audio-file", "", "wav file replacing the synthetic microphone")
	logging.LoadConfigFromFlags(flags, &g.log)
}

// launcher returns the engine selected with --driver.
func (g *globals) launcher() (browser.Launcher, error) {
	switch g.driver {
	case "rod", "":
		l := rod.New()
		l.Bin = g.chromeBin
		return l, nil
	case "webdriver":
		l := webdriver.New(g.webdriverURL)
		l.ChromeDriver = g.chromeDriver
		l.Chrome = g.chromeBin
		return l, nil
	case "playwright":
		l := playwright.New()
		l.Install = g.install
		return l, nil
	}
	return nil, fmt.Errorf("unknown driver %q: want rod, webdriver or playwright", g.driver)
}

// workflowConfig returns the client configuration for the deployment at
// baseURL.
func (g *globals) workflowConfig(baseURL string) workflow.Config {
	cfg := workflow.DefaultConfig(baseURL)
	cfg.PageTitle = g.title
	cfg.DismissBanner = true
	cfg.Settle = g.settle
	cfg.Wait = g.wait
	cfg.Session.Headless = g.headless
	cfg.Session.Width = g.width
	cfg.Session.Height = g.height
	cfg.Session.FakeVideoFile = g.videoFile
	cfg.Session.FakeAudioFile = g.audioFile
	cfg.Logger = loggerOrDiscard(g.logger)
	return cfg
}

// baseURL returns the origin of an application URL.
func baseURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return u.Scheme + "://" + u.Host, true
}
