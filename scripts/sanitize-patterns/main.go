// sanitize-patterns reapplies the content rules to committed HTML
// fixtures, e.g. after a rule was added.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grez-lucas/vn-bank-sync/internal/scraper/testutil"
)

func main() {
	bankCode := flag.String("bank", "", "Fixture owner: acb, fbbill")
	dryRun := flag.Bool("dry-run", false, "Show what would be changed without modifying files")
	flag.Parse()

	if *bankCode == "" {
		fmt.Println("Usage: go run ./scripts/sanitize-patterns -bank=acb [-dry-run]")
		os.Exit(1)
	}

	fixturesDir := filepath.Join("internal", "scraper", "bank", *bankCode, "testdata", "fixtures")
	files, err := filepath.Glob(filepath.Join(fixturesDir, "*.html"))
	if err != nil || len(files) == 0 {
		fmt.Printf("No HTML files found in %s\n", fixturesDir)
		os.Exit(1)
	}

	for _, file := range files {
		if err := sanitizeFile(file, *dryRun); err != nil {
			fmt.Printf("%s: %v\n", file, err)
		}
	}
	if *dryRun {
		fmt.Println("\n[DRY RUN] Run without -dry-run to apply changes.")
	}
}

func sanitizeFile(path string, dryRun bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	sanitized, changes := testutil.SanitizeContent(string(content))
	name := filepath.Base(path)
	if len(changes) == 0 {
		fmt.Printf("%s: clean\n", name)
		return nil
	}

	fmt.Printf("%s:\n", name)
	for _, c := range changes {
		fmt.Println("  - " + c)
	}
	if dryRun {
		return nil
	}
	return os.WriteFile(path, []byte(sanitized), 0o644)
}
