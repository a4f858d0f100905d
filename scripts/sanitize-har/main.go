// sanitize-har removes credentials and personal data from HAR recordings
// before they are committed.
//
// Usage:
//
//	go run ./scripts/sanitize-har -bank=vpbank -scenario=fetch_transactions
//	go run ./scripts/sanitize-har -input=recording.har -output=sanitized.har.json
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grez-lucas/vn-bank-sync/internal/scraper/testutil"
)

func main() {
	bankCode := flag.String("bank", "", "Recording owner: vpbank, acb, fbbill")
	scenario := flag.String("scenario", "", "Scenario name (e.g., fetch_transactions)")
	inputPath := flag.String("input", "", "Input HAR file path (DevTools export or simplified)")
	outputPath := flag.String("output", "", "Output HAR file path (defaults to input path)")
	dryRun := flag.Bool("dry-run", false, "Show what would be redacted without modifying")
	flag.Parse()

	var inPath, outPath string
	switch {
	case *bankCode != "" && *scenario != "":
		inPath = filepath.Join("internal", "scraper", "bank", *bankCode, "testdata", "recordings", *scenario+".har.json")
		outPath = inPath
	case *inputPath != "":
		inPath, outPath = *inputPath, *inputPath
		if *outputPath != "" {
			outPath = *outputPath
		}
	default:
		printUsage()
		os.Exit(1)
	}

	har, err := testutil.LoadHAR(inPath)
	if err != nil {
		fmt.Printf("Error loading HAR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d entries from %s\n", len(har.Entries), inPath)

	sanitized := testutil.SanitizeHAR(har)
	report := diff(har, sanitized)
	fmt.Printf("Redacted %d values\n", len(report))

	if *dryRun {
		for _, line := range report {
			fmt.Println("  " + line)
		}
		fmt.Println("\n[DRY RUN] No changes written.")
		return
	}

	if err := testutil.SaveHAR(outPath, sanitized); err != nil {
		fmt.Printf("Error saving HAR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Sanitized HAR saved to %s\n", outPath)
	fmt.Println("Base64 bodies are left as recorded; check them by hand.")
}

func printUsage() {
	fmt.Println("sanitize-har - Remove sensitive data from HAR files before committing")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  go run ./scripts/sanitize-har -bank=vpbank -scenario=fetch_transactions")
	fmt.Println("  go run ./scripts/sanitize-har -input=in.har -output=out.har.json [-dry-run]")
}

// diff describes every value that sanitizing changed.
func diff(original, sanitized *testutil.HARLog) []string {
	var out []string
	for i := range original.Entries {
		orig, san := original.Entries[i], sanitized.Entries[i]
		where := fmt.Sprintf("#%d %s %s", i+1, orig.Request.Method, truncateURL(orig.Request.URL))

		if orig.Request.URL != san.Request.URL {
			out = append(out, where+": query")
		}
		for j, h := range orig.Request.Headers {
			if h.Value != san.Request.Headers[j].Value {
				out = append(out, where+": request header "+h.Name)
			}
		}
		if orig.Request.Body != san.Request.Body {
			out = append(out, where+": request body")
		}
		for j, h := range orig.Response.Headers {
			if h.Value != san.Response.Headers[j].Value {
				out = append(out, where+": response header "+h.Name)
			}
		}
		if orig.Response.Content.Text != san.Response.Content.Text {
			out = append(out, where+": response body")
		}
	}
	return out
}

func truncateURL(url string) string {
	if len(url) > 80 {
		return url[:77] + "..."
	}
	return url
}
