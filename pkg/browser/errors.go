package browser

import (
	"errors"
	"fmt"
)

var (
	// ErrURLRequired is returned by NewSession when Config.URL is empty.
	ErrURLRequired = errors.New("browser: url is required")
	// ErrNotOpen is returned by operations issued before Open.
	ErrNotOpen = errors.New("browser: session not open")
	// ErrStopped is returned by operations issued after Stop.
	ErrStopped = errors.New("browser: session stopped")
	// ErrNoElement is returned by drivers when a selector matches nothing.
	ErrNoElement = errors.New("browser: no such element")
	// ErrStaleElement is returned by drivers for handles that outlived the
	// document they were found in.
	ErrStaleElement = errors.New("browser: stale element reference")
	// ErrNoTab is returned by drivers when the active tab has been closed
	// or a tab handle is unknown.
	ErrNoTab = errors.New("browser: no such tab")
)

// LaunchError reports a failure to start the engine or to load the initial
// page.
type LaunchError struct {
	ID  string
	URL string
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching browser %q for %s: %v", e.ID, e.URL, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// NavigationError reports a failed page load.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigating to %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }
