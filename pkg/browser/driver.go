package browser

import (
	"context"
	"fmt"
	"strings"
)

// Driver is one live browser engine instance. A Session owns exactly one
// Driver for its whole lifetime; adapters live in the rod, webdriver and
// playwright subpackages.
//
// Find and Element.Find report a missing element with ErrNoElement. FindAll
// never waits and returns an empty slice when nothing matches.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)

	// NewTab opens a blank tab and makes it the active one.
	NewTab(ctx context.Context) error
	// Tabs lists tab handles in the order they were opened.
	Tabs(ctx context.Context) ([]string, error)
	SwitchTab(ctx context.Context, handle string) error
	// CloseTab closes the active tab only.
	CloseTab(ctx context.Context) error

	Find(ctx context.Context, selector string) (Element, error)
	FindAll(ctx context.Context, selector string) ([]Element, error)

	// Screenshot captures the active tab as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// Quit terminates the engine and every tab it owns.
	Quit() error
}

// Element is a handle to a DOM element. Handles are only valid until the
// next navigation of the tab they were found in.
type Element interface {
	Click(ctx context.Context) error
	Clear(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	Text(ctx context.Context) (string, error)
	// Attribute returns "" when the attribute is absent.
	Attribute(ctx context.Context, name string) (string, error)
	Find(ctx context.Context, selector string) (Element, error)
	FindAll(ctx context.Context, selector string) ([]Element, error)
}

// Launcher starts browser engines.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Driver, error)
}

// LauncherFunc adapts a function to the Launcher interface.
type LauncherFunc func(ctx context.Context, opts LaunchOptions) (Driver, error)

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context, opts LaunchOptions) (Driver, error) {
	return f(ctx, opts)
}

// Flag is a single Chrome command line switch. An empty Value renders as a
// bare switch.
type Flag struct {
	Name  string
	Value string
}

// Arg renders the flag as a command line argument.
func (f Flag) Arg() string {
	if f.Value == "" {
		return "--" + f.Name
	}
	return fmt.Sprintf("--%s=%s", f.Name, f.Value)
}

// LaunchOptions is the immutable engine configuration of one Session.
type LaunchOptions struct {
	ID       string
	Headless bool
	Width    int
	Height   int
	// Flags are passed to the browser verbatim, after the window size.
	Flags []Flag
}

// Args renders the flags, including the window size, as command line
// arguments.
func (o LaunchOptions) Args() []string {
	args := make([]string, 0, len(o.Flags)+2)
	if o.Headless {
		args = append(args, "--headless=new")
	}
	args = append(args, o.WindowSize().Arg())
	for _, f := range o.Flags {
		args = append(args, f.Arg())
	}
	return args
}

// WindowSize returns the window-size switch.
func (o LaunchOptions) WindowSize() Flag {
	return Flag{Name: "window-size", Value: fmt.Sprintf("%d,%d", o.Width, o.Height)}
}

// Has reports whether a flag with the given name is set.
func (o LaunchOptions) Has(name string) bool {
	for _, f := range o.Flags {
		if f.Name == strings.TrimLeft(name, "-") {
			return true
		}
	}
	return false
}

// MediaFlags returns the switches every conferencing session runs with:
//   - fake camera/microphone devices and auto-accepted permission prompts
//   - autoplay without a user gesture
//   - application, disk and media caches disabled
//   - incognito, no sandbox, certificate errors ignored
func MediaFlags() []Flag {
	return []Flag{
		{Name: "incognito"},
		{Name: "no-sandbox"},
		{Name: "ignore-certificate-errors"},
		{Name: "no-user-gesture-required"},
		{Name: "autoplay-policy", Value: "no-user-gesture-required"},
		{Name: "disable-application-cache"},
		{Name: "disk-cache-size", Value: "1"},
		{Name: "media-cache-size", Value: "1"},
		{Name: "disable-infobars"},
		{Name: "log-level", Value: "3"},
		{Name: "use-fake-ui-for-media-stream"},
		{Name: "use-fake-device-for-media-stream"},
		{Name: "enable-precise-memory-info"},
		{Name: "ignore-gpu-blocklist"},
	}
}
