//go:build e2e

// Package e2e runs the workflows against the conference fixture in a real
// browser.
//
// These tests are isolated from the standard test suite via build tags.
// They require a Chrome browser (auto-downloaded by Rod if not present)
// and are intended for CI pipelines or explicit local testing.
//
// Running E2E tests:
//
//	go test -tags=e2e ./e2e/...
//
// Environment:
//   - CONFDRIVE_E2E_HEADLESS=false shows the browser windows
//   - CONFDRIVE_WEBDRIVER_URL drives a Selenium server or chromedriver
//     instead of Rod
//
// Test isolation:
// Each test starts its own fixture on a random port and launches its own
// browser per participant. Tests can run in parallel.
package e2e
