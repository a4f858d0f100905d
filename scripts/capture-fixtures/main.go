// Command capture-fixtures walks a person through the portal pages a
// parser needs and saves each one, sanitized, as an HTML fixture.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank/acb"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank/fbbill"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/browser"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/testutil"
)

type PageCapture struct {
	Name         string
	Instructions string
}

type target struct {
	startURL string
	pages    []PageCapture
}

var targets = map[string]target{
	"acb": {
		startURL: acb.DefaultLoginURL,
		pages: []PageCapture{
			{Name: "login", Instructions: "Wait for the login form with its captcha (don't login yet)"},
			{Name: "login_error", Instructions: "Submit a WRONG captcha and wait for the error"},
			{Name: "account_list", Instructions: "Login with VALID credentials and open the account list"},
			{Name: "detail_with_data", Instructions: "Open an account and filter a day WITH transactions"},
			{Name: "detail_no_data", Instructions: "Filter a day WITHOUT transactions (or skip)"},
		},
	},
	"fbbill": {
		startURL: fbbill.DefaultBillingURL,
		pages: []PageCapture{
			{Name: "activity", Instructions: "Login and wait for the payment activity list"},
			{Name: "result", Instructions: "Search one reference number and wait for 'Kết quả cho'"},
			{Name: "no_results", Instructions: "Search a reference that does not exist (or skip)"},
		},
	},
}

func main() {
	bankCode := flag.String("bank", "", "Target: acb, fbbill")
	outputDir := flag.String("output", "", "Output directory (default: internal/scraper/bank/{bank}/testdata/fixtures)")
	bin := flag.String("bin", "", "Chrome binary (default: rod's managed browser)")
	profile := flag.String("profile", "", "Chrome user data dir, to reuse a logged in Facebook profile")
	flag.Parse()

	tgt, ok := targets[*bankCode]
	if !ok {
		fmt.Println("Usage: go run ./scripts/capture-fixtures -bank=acb|fbbill")
		os.Exit(1)
	}

	outDir := *outputDir
	if outDir == "" {
		outDir = filepath.Join("internal", "scraper", "bank", *bankCode, "testdata", "fixtures")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Printf("Error creating directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Capturing %s fixtures into %s\n\n", strings.ToUpper(*bankCode), outDir)

	ctx := context.Background()
	opts := []browser.Option{browser.Headless(false), browser.WithTimeout(2 * time.Minute)}
	if *bin != "" {
		opts = append(opts, browser.WithBin(*bin))
	}
	if *profile != "" {
		opts = append(opts, browser.WithUserDataDir(*profile))
	}

	b, err := browser.New(ctx, opts...)
	if err != nil {
		fmt.Printf("Error launching browser: %v\n", err)
		os.Exit(1)
	}
	defer b.Close()

	tab, err := b.OpenTab(ctx, tgt.startURL)
	if err != nil {
		fmt.Printf("Error opening %s: %v\n", tgt.startURL, err)
		os.Exit(1)
	}
	page := tab.Rod()

	reader := bufio.NewReader(os.Stdin)
	fmt.Println("Follow the prompts in the opened window. ENTER captures, 'skip' skips, 'quit' exits.")
	fmt.Println()

	for _, capture := range tgt.pages {
		fmt.Printf("[%s] %s\n", capture.Name, capture.Instructions)
		fmt.Print("   ENTER when ready (or 'skip'/'quit'): ")

		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(strings.ToLower(input))
		if input == "quit" {
			break
		}
		if input == "skip" {
			continue
		}

		if err := browser.WaitForIFrames(page); err != nil {
			fmt.Printf("   DOM did not settle: %v\n", err)
		}

		html, frames, err := inlineIframesAndCapture(page)
		if err != nil {
			fmt.Printf("   Error capturing HTML: %v\n\n", err)
			continue
		}
		if frames > 0 {
			fmt.Printf("   Inlined %d iframe(s)\n", frames)
		}

		html, changes := testutil.SanitizeContent(html)
		for _, c := range changes {
			fmt.Printf("   sanitized %s\n", c)
		}

		htmlPath := filepath.Join(outDir, capture.Name+".html")
		if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
			fmt.Printf("   Error saving HTML: %v\n\n", err)
			continue
		}
		fmt.Printf("   Saved %s\n\n", htmlPath)
	}

	fmt.Println("Done. Review the fixtures for names and numbers the rules missed before committing.")
}

// inlineIframesAndCapture replaces every same-origin iframe in the live
// DOM with a div holding its body, so the fixture parses as one document.
// ACB renders the statement inside frames.
func inlineIframesAndCapture(page *rod.Page) (string, int, error) {
	iframes, err := page.Elements("iframe")
	if err != nil {
		return "", 0, fmt.Errorf("list iframes: %w", err)
	}
	if len(iframes) == 0 {
		html, err := page.HTML()
		return html, 0, err
	}

	if _, err := page.Eval(inlineIframesJS); err != nil {
		fmt.Printf("   Could not inline iframes (cross-origin?): %v\n", err)
		html, err := page.HTML()
		return html, 0, err
	}

	html, err := page.HTML()
	if err != nil {
		return "", 0, err
	}
	return html, len(iframes), nil
}

const inlineIframesJS = `() => {
	function inline(root) {
		root.querySelectorAll('iframe').forEach((iframe) => {
			const box = root.createElement('div');
			box.setAttribute('data-captured-iframe', 'true');
			box.setAttribute('data-iframe-name', iframe.name || '');
			try {
				const doc = iframe.contentDocument || iframe.contentWindow.document;
				if (!doc || !doc.body) return;
				inline(doc);
				box.innerHTML = doc.body.innerHTML;
			} catch (e) {
				box.setAttribute('data-iframe-error', e.message);
			}
			iframe.parentNode.replaceChild(box, iframe);
		});
	}
	inline(document);
}`
