package browser_test

import (
	"context"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/confdrive/pkg/browser"
	"github.com/thesyncim/confdrive/pkg/browser/browsertest"
)

func TestFindOne_Present(t *testing.T) {
	s := openSession(t, newSite())
	ctx := context.Background()

	el, ok := s.FindOne(ctx, "#main > button.go", 0)
	require.True(t, ok)
	assert.Equal(t, "Go", s.Text(ctx, el))
	assert.Equal(t, "Go", s.Attribute(ctx, el, "title"))
	assert.Equal(t, "", s.Attribute(ctx, el, "data-missing"))
}

func TestFindOne_AbsentTimesOut(t *testing.T) {
	s := openSession(t, newSite())

	start := time.Now()
	el, ok := s.FindOne(context.Background(), "#nope", 0)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.Nil(t, el)
	assert.GreaterOrEqual(t, elapsed, browser.DefaultFindTimeout)
	assert.Less(t, elapsed, 2*time.Second, "wait must stay bounded")
}

func TestFindOne_ExplicitTimeout(t *testing.T) {
	s := openSession(t, newSite())

	start := time.Now()
	_, ok := s.FindOne(context.Background(), "#nope", 20*time.Millisecond)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), browser.DefaultFindTimeout)
}

func TestFindOne_WaitsForLateElement(t *testing.T) {
	site := newSite()
	s := openSession(t, site, browser.WithPollInterval(10*time.Millisecond))
	d := site.Drivers()[0]

	go func() {
		time.Sleep(40 * time.Millisecond)
		d.Do(func(tab *browsertest.Tab) {
			tab.AppendHTML("body", `<span id="late">here</span>`)
		})
	}()

	el, ok := s.FindOne(context.Background(), "#late", time.Second)
	require.True(t, ok)
	assert.Equal(t, "here", s.Text(context.Background(), el))
}

func TestFindOne_ContextCancelled(t *testing.T) {
	s := openSession(t, newSite())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, ok := s.FindOne(ctx, "#nope", 5*time.Second)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFindAll(t *testing.T) {
	s := openSession(t, newSite())
	ctx := context.Background()

	assert.Len(t, s.FindAll(ctx, "button, a"), 2)
	assert.Empty(t, s.FindAll(ctx, "video"), "no match is a valid empty result")
}

func TestFindWithin(t *testing.T) {
	s := openSession(t, newSite())
	ctx := context.Background()

	main, ok := s.FindOne(ctx, "#main", 0)
	require.True(t, ok)

	btn, ok := s.FindOneWithin(ctx, main, "button")
	require.True(t, ok)
	assert.Equal(t, "Go", s.Text(ctx, btn))

	assert.Len(t, s.FindAllWithin(ctx, main, "button"), 1)
	assert.Empty(t, s.FindAllWithin(ctx, main, "a"), "link lives outside #main")

	_, ok = s.FindOneWithin(ctx, main, "a")
	assert.False(t, ok)

	_, ok = s.FindOneWithin(ctx, nil, "a")
	assert.False(t, ok)
	assert.Nil(t, s.FindAllWithin(ctx, nil, "a"))
}

func TestClick_RunsHandler(t *testing.T) {
	site := newSite()
	var clicked int
	site.OnClick("button.go", func(tab *browsertest.Tab, el *goquery.Selection) {
		clicked++
		el.SetAttr("title", "Gone")
	})
	s := openSession(t, site)
	ctx := context.Background()

	require.True(t, s.Click(ctx, "button.go", 0))
	assert.Equal(t, 1, clicked)

	el, _ := s.FindOne(ctx, "button.go", 0)
	assert.Equal(t, "Gone", s.Attribute(ctx, el, "title"))
	assert.Equal(t, []string{"button[title=Go]"}, site.Drivers()[0].Clicks())
}

func TestClick_Absent(t *testing.T) {
	s := openSession(t, newSite())
	assert.False(t, s.Click(context.Background(), "#nope", 10*time.Millisecond))
	assert.False(t, s.ClickElement(context.Background(), nil))
}

func TestClick_LinkNavigates(t *testing.T) {
	s := openSession(t, newSite())
	ctx := context.Background()

	require.True(t, s.Click(ctx, "#about", 0))
	u, _ := s.CurrentURL(ctx)
	assert.Equal(t, "https://localhost/about", u)
}

func TestElement_StaleAfterNavigation(t *testing.T) {
	s := openSession(t, newSite())
	ctx := context.Background()

	el, ok := s.FindOne(ctx, "button.go", 0)
	require.True(t, ok)
	require.NoError(t, s.Navigate(ctx, "https://localhost/about"))

	assert.Equal(t, "", s.Text(ctx, el))
	assert.False(t, s.ClickElement(ctx, el))
	_, err := el.Text(ctx)
	assert.ErrorIs(t, err, browser.ErrStaleElement)
}

func TestType(t *testing.T) {
	site := newSite()
	site.Page("https://localhost/form", `<html><body><input id="email" value="old"></body></html>`)
	s := openSession(t, site)
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, "https://localhost/form"))

	el, ok := s.FindOne(ctx, "#email", 0)
	require.True(t, ok)
	require.True(t, s.Type(ctx, el, "user1@example.com"))
	assert.Equal(t, "user1@example.com", s.Attribute(ctx, el, "value"))
	assert.False(t, s.Type(ctx, nil, "x"))
}
