package browser

import (
	"os"
	"time"
)

const (
	// DefaultFindTimeout bounds FindOne and Click when no timeout is given.
	// The application under test is expected to react within a few hundred
	// milliseconds; callers that know better pass an explicit timeout.
	DefaultFindTimeout = 300 * time.Millisecond

	// DefaultPollInterval is how often the locator re-queries the DOM.
	DefaultPollInterval = 50 * time.Millisecond
)

// Config configures a Session.
type Config struct {
	URL      string // Required: page loaded on Open
	ID       string // Logical actor id, used in logs
	Width    int    // Window width (default: 1280)
	Height   int    // Window height (default: 720)
	Headless bool   // Forced to true when DISPLAY is unset

	// FakeVideoFile and FakeAudioFile replace the synthetic capture
	// devices with a y4m/mjpeg video or a wav file.
	FakeVideoFile string
	FakeAudioFile string

	// ExtraFlags are appended after the media flags.
	ExtraFlags []Flag
}

// DefaultConfig returns a headless 1280x720 configuration for url.
func DefaultConfig(url string) Config {
	return Config{
		URL:      url,
		Width:    1280,
		Height:   720,
		Headless: true,
	}
}

func (c Config) withDefaults() Config {
	if c.Width <= 0 {
		c.Width = 1280
	}
	if c.Height <= 0 {
		c.Height = 720
	}
	return c
}

// headless reports the effective headless mode and whether it was forced
// because no display is available.
func (c Config) headless() (headless, forced bool) {
	if c.Headless {
		return true, false
	}
	if os.Getenv("DISPLAY") == "" {
		return true, true
	}
	return false, false
}

// launchOptions builds the engine configuration.
func (c Config) launchOptions() LaunchOptions {
	headless, _ := c.headless()
	flags := MediaFlags()
	if c.FakeVideoFile != "" {
		flags = append(flags, Flag{Name: "use-file-for-fake-video-capture", Value: c.FakeVideoFile})
	}
	if c.FakeAudioFile != "" {
		flags = append(flags, Flag{Name: "use-file-for-fake-audio-capture", Value: c.FakeAudioFile})
	}
	flags = append(flags, c.ExtraFlags...)
	return LaunchOptions{
		ID:       c.ID,
		Headless: headless,
		Width:    c.Width,
		Height:   c.Height,
		Flags:    flags,
	}
}
