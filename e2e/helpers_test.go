//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/confdrive/cmd/conference-fixture/server"
	"github.com/thesyncim/confdrive/pkg/browser"
	"github.com/thesyncim/confdrive/pkg/browser/rod"
	"github.com/thesyncim/confdrive/pkg/browser/webdriver"
	"github.com/thesyncim/confdrive/pkg/workflow"
)

const (
	ownerEmail    = "owner@example.com"
	ownerPassword = "owner-password"
)

func headless() bool {
	v, err := strconv.ParseBool(os.Getenv("CONFDRIVE_E2E_HEADLESS"))
	return err != nil || v
}

func launcher() browser.Launcher {
	if u := os.Getenv("CONFDRIVE_WEBDRIVER_URL"); u != "" {
		return webdriver.New(u)
	}
	return rod.New()
}

// startFixture serves the conference fixture on a random port until the
// test ends.
func startFixture(t *testing.T) *server.Server {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.Logger = testr.New(t).WithName("fixture")
	srv, err := server.NewServer(cfg)
	require.NoError(t, err)
	_, err = srv.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			t.Errorf("fixture shutdown: %v", err)
		}
	})
	return srv
}

func clientConfig(t *testing.T, srv *server.Server) workflow.Config {
	cfg := workflow.DefaultConfig(srv.URL())
	cfg.DismissBanner = true
	cfg.Settle = 200 * time.Millisecond
	cfg.Session.Headless = headless()
	cfg.Logger = testr.NewWithOptions(t, testr.Options{Verbosity: 1})
	return cfg
}

// newClient opens a participant at url and stops it when the test ends.
func newClient(t *testing.T, srv *server.Server, id, url string) *workflow.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	c, err := workflow.NewClient(ctx, clientConfig(t, srv), launcher(), id, url)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := workflow.StopAll(ctx, c); err != nil {
			t.Errorf("stopping %s: %v", id, err)
		}
	})
	return c
}

type remoteView struct {
	ID      string `json:"id"`
	Visible bool   `json:"visible"`
	Packets uint64 `json:"packets"`
}

// remote returns the publishers a fixture-side observer of room id sees,
// or nil if the fixture could not be asked. It is polled from
// require.Eventually and so must not fail the test itself.
func remote(t *testing.T, srv *server.Server, id, observer string) []remoteView {
	t.Helper()
	resp, err := http.Get(srv.URL() + "/api/rooms/" + id + "/participants?pid=" + observer)
	if err != nil {
		t.Logf("listing participants: %v", err)
		return nil
	}
	defer resp.Body.Close()
	var views []remoteView
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&views) != nil {
		t.Logf("listing participants: status %d", resp.StatusCode)
		return nil
	}
	return views
}
