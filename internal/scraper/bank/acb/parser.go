package acb

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

const (
	ACBDateLayout     = "02/01/2006"
	ACBDateTimeLayout = "02/01/2006 15:04:05"
	ISOLayout         = "2006-01-02T15:04:05-07:00"
)

// Epsilon is the largest difference tolerated between computed and
// displayed totals.
var Epsilon = decimal.RequireFromString("0.01")

// vnZone is the fixed +07:00 offset used for every ACB timestamp.
var vnZone = time.FixedZone("ICT", 7*60*60)

var (
	endBalanceRe  = regexp.MustCompile(regexp.QuoteMeta(LabelEndBalance) + `[\s\x{00a0}]*([\d.,]+)`)
	totalDebitRe  = regexp.MustCompile(regexp.QuoteMeta(LabelTotalDebit) + `[\s\x{00a0}]*([\d.,]+)`)
	totalCreditRe = regexp.MustCompile(regexp.QuoteMeta(LabelTotalCredit) + `[\s\x{00a0}]*([\d.,]+)`)

	fbCardRe       = regexp.MustCompile(`\d{4}XX(\d{4})`)
	fbCodeRe       = regexp.MustCompile(`FACEBK\s*\*\s*([A-Z0-9]+)`)
	packedStampRe  = regexp.MustCompile(`(\d{2}/\d{2}/\d{4})(\d{2})(\d{2})(\d{2})`)
	packedStampFix = regexp.MustCompile(`^` + packedStampRe.String() + `$`)
)

// Transaction is one row of the ACB statement table.
type Transaction struct {
	EffectiveDate     string          `json:"effectiveDate"`
	TransactionDate   string          `json:"transactionDate"`
	TransactionNumber string          `json:"transactionNumber"`
	Debit             decimal.Decimal `json:"debit"`
	Credit            decimal.Decimal `json:"credit"`
	Balance           decimal.Decimal `json:"balance"`
	Description       string          `json:"description"`

	// Set only for card payments to Facebook.
	CardLastDigits       *string `json:"cardLastDigits"`
	FBTransactionCode    *string `json:"fbTransactionCode"`
	FBTransactionLast3   *string `json:"fbTransactionLast3"`
	IsFBTransaction      string  `json:"isFbTransaction"`
	ExactTransactionTime *string `json:"exactTransactionTime"`
}

// Extraction is the parsed table plus its cross-check against the totals
// the page displays. Valid is advisory: Transactions is always complete.
type Extraction struct {
	Transactions []Transaction `json:"transactions"`
	Valid        bool          `json:"valid"`
	Errors       []string      `json:"errors,omitempty"`

	EndBalance  *decimal.Decimal `json:"endBalance,omitempty"`
	TotalDebit  *decimal.Decimal `json:"totalDebit,omitempty"`
	TotalCredit *decimal.Decimal `json:"totalCredit,omitempty"`

	CalculatedDebit  decimal.Decimal `json:"calculatedDebit"`
	CalculatedCredit decimal.Decimal `json:"calculatedCredit"`
}

// --- PUBLIC API ---

// Extract parses a full account detail page.
func Extract(html string) (*Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bank.ErrParsingFailed, err)
	}

	table := doc.Find(SelectorTransactionTable).First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: table not found with selector: %s", bank.ErrParsingFailed, SelectorTransactionTable)
	}

	return extract(table, doc.Find("body").Text()), nil
}

// ExtractTransactions parses the outer HTML of the transactions table and
// validates it against pageText, the visible text of the whole page.
func ExtractTransactions(tableHTML, pageText string) (*Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(tableHTML))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bank.ErrParsingFailed, err)
	}

	table := doc.Find(SelectorTransactionTable).First()
	if table.Length() == 0 {
		table = doc.Find("table").First()
	}
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: no table in fragment", bank.ErrParsingFailed)
	}

	return extract(table, pageText), nil
}

// ParseAmount converts an ACB amount ("1.234.567,89") to a decimal.
// Blank, "&nbsp;" and unparsable input yield zero.
func ParseAmount(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" || s == "&nbsp;" {
		return decimal.Zero
	}

	cleaned := stripSpaces(s)
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// SplitPackedTimestamp splits "11/10/2025153000" into "11/10/2025" and
// "15:30:00".
func SplitPackedTimestamp(s string) (date, clock string, ok bool) {
	m := packedStampFix.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2] + ":" + m[3] + ":" + m[4], true
}

// ToISO converts "dd/mm/yyyy" or "dd/mm/yyyy HH:MM:SS" to ISO-8601 with the
// +07:00 offset. Input that does not parse is returned trimmed but
// otherwise unchanged.
func ToISO(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	layout := ACBDateLayout
	if strings.Contains(s, " ") {
		s = collapseSpaces(s)
		layout = ACBDateTimeLayout
	}

	t, err := time.ParseInLocation(layout, s, vnZone)
	if err != nil {
		return s
	}
	return t.Format(ISOLayout)
}

// --- PRIVATE DOMAIN LOGIC ---

func extract(table *goquery.Selection, pageText string) *Extraction {
	ex := &Extraction{
		Transactions:     []Transaction{},
		Valid:            true,
		CalculatedDebit:  decimal.Zero,
		CalculatedCredit: decimal.Zero,
	}

	pageText = norm.NFC.String(pageText)
	ex.EndBalance = findLabeledAmount(endBalanceRe, pageText)
	ex.TotalDebit = findLabeledAmount(totalDebitRe, pageText)
	ex.TotalCredit = findLabeledAmount(totalCreditRe, pageText)

	rows := table.Find("tr")

	// Row 0 is the header.
	for i := 1; i < rows.Length(); i++ {
		cells := rows.Eq(i).Find("td")
		if cells.Length() != 6 {
			continue
		}

		cell := func(n int) string {
			return strings.TrimSpace(cells.Eq(n).Text())
		}
		effectiveDate := cell(0)
		transactionDate := cell(1)
		transactionNumber := cell(2)
		debitText := cell(3)
		creditText := cell(4)
		balanceText := cell(5)

		// A following description row belongs to this transaction.
		var description string
		if i+1 < rows.Length() {
			next := rows.Eq(i + 1)
			if desc := next.Find(SelectorDescriptionCell); next.Find("td").Length() > 0 && desc.Length() > 0 {
				description = strings.TrimSpace(desc.First().Text())
				i++
			}
		}

		// TrimSpace also drops the &nbsp; ACB puts in empty amount cells.
		if effectiveDate == "" || (debitText == "" && creditText == "") {
			continue
		}

		txn := Transaction{
			EffectiveDate:     ToISO(effectiveDate),
			TransactionDate:   ToISO(transactionDate),
			TransactionNumber: transactionNumber,
			Debit:             ParseAmount(debitText),
			Credit:            ParseAmount(creditText),
			Balance:           ParseAmount(balanceText),
			Description:       description,
			IsFBTransaction:   "0",
		}
		enrichFacebook(&txn)

		ex.CalculatedDebit = ex.CalculatedDebit.Add(txn.Debit)
		ex.CalculatedCredit = ex.CalculatedCredit.Add(txn.Credit)
		ex.Transactions = append(ex.Transactions, txn)
	}

	validate(ex)
	return ex
}

func findLabeledAmount(re *regexp.Regexp, text string) *decimal.Decimal {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	d := ParseAmount(m[1])
	return &d
}

// enrichFacebook fills the derived fields of a Facebook card payment.
func enrichFacebook(txn *Transaction) {
	desc := txn.Description
	if !strings.Contains(desc, FacebookMarker) {
		return
	}

	if m := fbCardRe.FindStringSubmatch(desc); m != nil {
		txn.CardLastDigits = &m[1]
	}

	if m := fbCodeRe.FindStringSubmatch(desc); m != nil {
		code := m[1]
		last3 := code
		if len(code) > 3 {
			last3 = code[len(code)-3:]
		}
		txn.FBTransactionCode = &code
		txn.FBTransactionLast3 = &last3
		txn.IsFBTransaction = "1"
	}

	if m := packedStampRe.FindStringSubmatch(desc); m != nil {
		exact := ToISO(m[1] + " " + m[2] + ":" + m[3] + ":" + m[4])
		txn.ExactTransactionTime = &exact
	}
}

func validate(ex *Extraction) {
	check := func(label string, calculated decimal.Decimal, shown *decimal.Decimal) {
		if shown == nil {
			return
		}
		diff := calculated.Sub(*shown).Abs()
		if diff.GreaterThan(Epsilon) {
			ex.Errors = append(ex.Errors, fmt.Sprintf("%s mismatch: Calculated %s, HTML shows %s, Diff: %s",
				label, calculated.StringFixed(2), shown.StringFixed(2), diff.StringFixed(2)))
			ex.Valid = false
		}
	}

	check("Total Debit", ex.CalculatedDebit, ex.TotalDebit)
	check("Total Credit", ex.CalculatedCredit, ex.TotalCredit)

	if ex.EndBalance != nil && len(ex.Transactions) > 0 {
		last := ex.Transactions[len(ex.Transactions)-1].Balance
		diff := last.Sub(*ex.EndBalance).Abs()
		if diff.GreaterThan(Epsilon) {
			ex.Errors = append(ex.Errors, fmt.Sprintf("End Balance mismatch: Last transaction balance %s, HTML shows %s, Diff: %s",
				last.StringFixed(2), ex.EndBalance.StringFixed(2), diff.StringFixed(2)))
			ex.Valid = false
		}
	}
}
