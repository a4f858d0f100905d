package fbbill

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Status of one reference lookup.
type Status string

const (
	StatusFound     Status = "found"
	StatusNoResults Status = "no_results"
	StatusError     Status = "error"
)

// Bill is what the billing page shows for one reference code. Values are
// kept as displayed.
type Bill struct {
	Status    Status `json:"status"`
	Date      string `json:"date,omitempty"`
	Amount    string `json:"amount,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// ParseResult reads the "Kết quả cho …" panel. ok is false while the
// panel is not rendered yet.
func ParseResult(html string) (bill Bill, ok bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Bill{}, false
	}

	var container *goquery.Selection
	doc.Find(SelResultHeading).EachWithBreak(func(_ int, h *goquery.Selection) bool {
		if !strings.HasPrefix(strings.TrimSpace(h.Text()), TextResultsFor) {
			return true
		}
		c := h.Closest(SelResultContainer)
		if c.Length() > 0 && c.Find(SelResultItem).Length() > 0 {
			container = c
			return false
		}
		return true
	})
	if container == nil {
		return Bill{}, false
	}

	bill = Bill{Status: StatusNoResults}
	container.Find(SelResultItem).Each(func(_ int, item *goquery.Selection) {
		label := strings.TrimSpace(item.Find("span").First().Text())
		value := strings.TrimSpace(item.Find(SelItemValue).First().Text())
		if label == "" || value == "" {
			return
		}

		switch {
		case strings.Contains(label, LabelDate):
			bill.Date = value
		case strings.Contains(label, LabelAmount):
			bill.Amount = value
		case strings.Contains(label, LabelReference):
			bill.Reference = value
		}
	})

	if bill.Date != "" || bill.Amount != "" || bill.Reference != "" {
		bill.Status = StatusFound
	}
	return bill, true
}
