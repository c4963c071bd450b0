package browser

import (
	"errors"
	"time"

	"github.com/go-logr/logr"
)

// Option configures a Session.
type Option func(*Session) error

// WithLogger sets the logger. Default: logr.Discard().
func WithLogger(log logr.Logger) Option {
	return func(s *Session) error {
		s.log = log
		return nil
	}
}

// WithPollInterval sets how often FindOne re-queries the DOM.
// Default: 50ms
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		s.pollInterval = d
		return nil
	}
}

// WithFindTimeout sets the wait used when callers pass a zero timeout.
// Default: 300ms
func WithFindTimeout(d time.Duration) Option {
	return func(s *Session) error {
		if d <= 0 {
			return errors.New("find timeout must be positive")
		}
		s.findTimeout = d
		return nil
	}
}

// OnStop registers fn to be called once when the session stops.
func OnStop(fn func(*Session)) Option {
	return func(s *Session) error {
		s.onStop = append(s.onStop, fn)
		return nil
	}
}
