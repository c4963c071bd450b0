package browser

import (
	"context"
	"errors"
	"time"
)

// FindOne polls the active tab until selector matches or timeout elapses,
// and returns the first match. A timeout <= 0 uses the session default.
// On timeout the selector is logged and ok is false; FindOne never fails
// hard.
func (s *Session) FindOne(ctx context.Context, selector string, timeout time.Duration) (el Element, ok bool) {
	el, err := s.poll(ctx, timeout, func(ctx context.Context, d Driver) (Element, error) {
		return d.Find(ctx, selector)
	})
	if err != nil {
		s.log.Error(err, "unable to find selector", "selector", selector)
		return nil, false
	}
	return el, true
}

// FindAll returns every element currently matching selector, without
// waiting. An empty result is valid.
func (s *Session) FindAll(ctx context.Context, selector string) []Element {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.driverLocked()
	if err == nil {
		var els []Element
		if els, err = d.FindAll(ctx, selector); err == nil {
			return els
		}
	}
	s.log.Error(err, "unable to find multiple elements", "selector", selector)
	return nil
}

// FindOneWithin is FindOne scoped to the subtree of parent.
func (s *Session) FindOneWithin(ctx context.Context, parent Element, selector string) (Element, bool) {
	if parent == nil {
		s.log.Error(ErrNoElement, "unable to find element in missing parent", "selector", selector)
		return nil, false
	}
	el, err := s.poll(ctx, 0, func(ctx context.Context, _ Driver) (Element, error) {
		return parent.Find(ctx, selector)
	})
	if err != nil {
		s.log.Error(err, "unable to find element in parent", "selector", selector)
		return nil, false
	}
	return el, true
}

// FindAllWithin is FindAll scoped to the subtree of parent.
func (s *Session) FindAllWithin(ctx context.Context, parent Element, selector string) []Element {
	if parent == nil {
		s.log.Error(ErrNoElement, "unable to find elements in missing parent", "selector", selector)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.driverLocked(); err != nil {
		s.log.Error(err, "unable to find multiple elements in parent", "selector", selector)
		return nil
	}
	els, err := parent.FindAll(ctx, selector)
	if err != nil {
		s.log.Error(err, "unable to find multiple elements in parent", "selector", selector)
		return nil
	}
	return els
}

// Click locates selector with FindOne and clicks it. Failures are logged
// and reported as false.
func (s *Session) Click(ctx context.Context, selector string, timeout time.Duration) bool {
	el, ok := s.FindOne(ctx, selector, timeout)
	if !ok {
		s.log.Error(ErrNoElement, "unable to click selector", "selector", selector)
		return false
	}
	return s.ClickElement(ctx, el)
}

// ClickElement clicks el. Failures are logged and reported as false.
func (s *Session) ClickElement(ctx context.Context, el Element) bool {
	if el == nil {
		s.log.Error(ErrNoElement, "unable to click missing element")
		return false
	}
	if err := s.withElement(func() error { return el.Click(ctx) }); err != nil {
		s.log.Error(err, "click failed")
		return false
	}
	return true
}

// Type clears el and types text into it. Failures are logged and reported
// as false.
func (s *Session) Type(ctx context.Context, el Element, text string) bool {
	if el == nil {
		s.log.Error(ErrNoElement, "unable to type into missing element")
		return false
	}
	err := s.withElement(func() error {
		if err := el.Clear(ctx); err != nil {
			return err
		}
		return el.SendKeys(ctx, text)
	})
	if err != nil {
		s.log.Error(err, "typing failed")
		return false
	}
	return true
}

// Text returns the visible text of el, or "" when it cannot be read.
func (s *Session) Text(ctx context.Context, el Element) string {
	if el == nil {
		return ""
	}
	var text string
	err := s.withElement(func() (err error) {
		text, err = el.Text(ctx)
		return err
	})
	if err != nil {
		s.log.Error(err, "reading text failed")
		return ""
	}
	return text
}

// Attribute returns the named attribute of el, or "" when it is absent or
// cannot be read.
func (s *Session) Attribute(ctx context.Context, el Element, name string) string {
	if el == nil {
		return ""
	}
	var v string
	err := s.withElement(func() (err error) {
		v, err = el.Attribute(ctx, name)
		return err
	})
	if err != nil {
		s.log.Error(err, "reading attribute failed", "attribute", name)
		return ""
	}
	return v
}

func (s *Session) withElement(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.driverLocked(); err != nil {
		return err
	}
	return fn()
}

// poll runs find until it succeeds, returns an error other than
// ErrNoElement, or the timeout elapses.
func (s *Session) poll(ctx context.Context, timeout time.Duration, find func(context.Context, Driver) (Element, error)) (Element, error) {
	if timeout <= 0 {
		timeout = s.findTimeout
	}
	deadline := time.Now().Add(timeout)

	for {
		s.mu.Lock()
		d, err := s.driverLocked()
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		el, err := find(ctx, d)
		s.mu.Unlock()

		switch {
		case err == nil && el != nil:
			return el, nil
		case err != nil && !errors.Is(err, ErrNoElement):
			return nil, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrNoElement
		}
		wait := s.pollInterval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}
