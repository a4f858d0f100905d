package acb

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank"
	"golang.org/x/text/unicode/norm"
)

// Page is the identity of the document currently rendered in the tab.
type Page string

const (
	PageLogin          Page = "LOGIN"
	PageAccountList    Page = "ACCOUNT_LIST"
	PageDetailWithData Page = "ACCOUNT_DETAIL_WITH_DATA"
	PageDetailNoData   Page = "ACCOUNT_DETAIL_NO_DATA"
	PageUnknown        Page = "UNKNOWN"
)

// DetectPage fingerprints an HTML snapshot. Checks run in a fixed order:
// a password field wins over everything else.
func DetectPage(html string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return PageUnknown, fmt.Errorf("%w: %v", bank.ErrParsingFailed, err)
	}
	return detectPage(doc), nil
}

func detectPage(doc *goquery.Document) Page {
	if doc.Find(SelectorPasswordInput).Length() > 0 {
		return PageLogin
	}

	if doc.Find(SelectorAccountTable).Length() > 0 &&
		doc.Find(SelectorAccountLink).Length() > 0 &&
		hasHeading(doc, HeadingAccountInfo) {
		return PageAccountList
	}

	if doc.Find(SelectorFromDate).Length() > 0 {
		if doc.Find(SelectorTransactionTable).Length() > 0 {
			return PageDetailWithData
		}
		return PageDetailNoData
	}

	return PageUnknown
}

// hasHeading reports whether an h4 reads exactly text once NFC-normalized
// and whitespace-collapsed.
func hasHeading(doc *goquery.Document, text string) bool {
	found := false
	doc.Find(SelectorHeading).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = collapseSpaces(norm.NFC.String(s.Text())) == text
		return !found
	})
	return found
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}
