// Package testutil loads the HTML fixtures each bank package keeps under
// its testdata directory.
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// FixturePath resolves a file under <bank>/testdata/fixtures. bankDir is
// the package directory name, e.g. "acb".
func FixturePath(bankDir, file string) string {
	_, filename, _, _ := runtime.Caller(0)
	baseDir := filepath.Dir(filepath.Dir(filename)) // up to bank/

	return filepath.Join(baseDir, bankDir, "testdata", "fixtures", file)
}

// LoadFixture reads an HTML fixture. The .html extension is implied.
func LoadFixture(t *testing.T, bankDir, name string) string {
	t.Helper()

	if !strings.Contains(name, ".") {
		name += ".html"
	}

	data, err := os.ReadFile(FixturePath(bankDir, name))
	if err != nil {
		t.Fatalf("load fixture %s/%s: %v", bankDir, name, err)
	}
	return string(data)
}
