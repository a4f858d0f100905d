package testutil

import (
	"os"
	"slices"
	"testing"
)

// TestMode selects how far tests are allowed to reach.
type TestMode string

const (
	TestModeMock   TestMode = "mock"   // Use static fixtures
	TestModeReplay TestMode = "replay" // Replay recorded sessions in a real browser
	TestModeLive   TestMode = "live"   // Hit the real portals (dangerous!)
)

// Mode reads SCRAPER_TEST_MODE, defaulting to mock.
func Mode() TestMode {
	mode := os.Getenv("SCRAPER_TEST_MODE")
	if mode == "" {
		return TestModeMock
	}
	return TestMode(mode)
}

// SkipUnlessMode skips the test unless the current mode is one of modes.
func SkipUnlessMode(t *testing.T, modes ...TestMode) {
	t.Helper()
	if !slices.Contains(modes, Mode()) {
		t.Skipf("Skipping: requires SCRAPER_TEST_MODE in %v", modes)
	}
}
