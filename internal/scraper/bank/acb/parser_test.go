package acb

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank"
	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestExtract_Fixture(t *testing.T) {
	html := testutil.LoadFixture(t, "acb", "detail_with_data")

	ex, err := Extract(html)
	require.NoError(t, err)

	require.Len(t, ex.Transactions, 3)
	assert.True(t, ex.Valid)
	assert.Empty(t, ex.Errors)

	first := ex.Transactions[0]
	assert.Equal(t, "2025-10-10T00:00:00+07:00", first.EffectiveDate)
	assert.Equal(t, "1001", first.TransactionNumber)
	assert.True(t, first.Debit.Equal(dec("500000")))
	assert.True(t, first.Credit.IsZero())
	assert.True(t, first.Balance.Equal(dec("9500000")))
	assert.Equal(t, "CK DEN NGUYEN VAN A", first.Description)
	assert.Equal(t, "0", first.IsFBTransaction)
	assert.Nil(t, first.FBTransactionCode)

	fb := ex.Transactions[1]
	assert.True(t, fb.Debit.Equal(dec("1234567.89")))
	assert.Equal(t, "1", fb.IsFBTransaction)
	require.NotNil(t, fb.CardLastDigits)
	assert.Equal(t, "5678", *fb.CardLastDigits)
	require.NotNil(t, fb.FBTransactionCode)
	assert.Equal(t, "ABCD1234", *fb.FBTransactionCode)
	require.NotNil(t, fb.FBTransactionLast3)
	assert.Equal(t, "234", *fb.FBTransactionLast3)
	require.NotNil(t, fb.ExactTransactionTime)
	assert.Equal(t, "2025-10-11T15:30:00+07:00", *fb.ExactTransactionTime)

	last := ex.Transactions[2]
	assert.True(t, last.Credit.Equal(dec("2000000")))
	assert.Equal(t, "NOP TIEN MAT", last.Description)

	require.NotNil(t, ex.TotalDebit)
	assert.True(t, ex.TotalDebit.Equal(dec("1734567.89")))
	require.NotNil(t, ex.TotalCredit)
	assert.True(t, ex.TotalCredit.Equal(dec("2000000")))
	require.NotNil(t, ex.EndBalance)
	assert.True(t, ex.EndBalance.Equal(dec("10265432.11")))
	assert.True(t, ex.CalculatedDebit.Equal(dec("1734567.89")))
}

func TestExtract_Idempotent(t *testing.T) {
	html := testutil.LoadFixture(t, "acb", "detail_with_data")

	a, err := Extract(html)
	require.NoError(t, err)
	b, err := Extract(html)
	require.NoError(t, err)

	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, string(ja), string(jb))
}

func TestExtract_MissingTable(t *testing.T) {
	html := testutil.LoadFixture(t, "acb", "detail_no_data")

	_, err := Extract(html)

	assert.ErrorIs(t, err, bank.ErrParsingFailed)
}

func TestExtract_DebitMismatchIsAdvisory(t *testing.T) {
	html := testutil.LoadFixture(t, "acb", "detail_with_data")
	html = strings.Replace(html, "<td>1.734.567,89</td>", "<td>1.734.567,91</td>", 1)

	ex, err := Extract(html)
	require.NoError(t, err)

	assert.False(t, ex.Valid)
	assert.Len(t, ex.Transactions, 3)
	require.Len(t, ex.Errors, 1)
	assert.Equal(t, "Total Debit mismatch: Calculated 1734567.89, HTML shows 1734567.91, Diff: 0.02", ex.Errors[0])
}

func TestExtract_EndBalanceMismatch(t *testing.T) {
	html := testutil.LoadFixture(t, "acb", "detail_with_data")
	html = strings.Replace(html, "<td>10.265.432,11</td></tr>", "<td>10.265.000</td></tr>", 1)

	ex, err := Extract(html)
	require.NoError(t, err)

	assert.False(t, ex.Valid)
	require.Len(t, ex.Errors, 1)
	assert.Contains(t, ex.Errors[0], "End Balance mismatch")
	assert.Contains(t, ex.Errors[0], "Diff: 432.11")
}

func TestExtractTransactions_Totals(t *testing.T) {
	table := `<table id="table1">
		<tr><th>a</th><th>b</th><th>c</th><th>d</th><th>e</th><th>f</th></tr>
		<tr><td>01/10/2025</td><td>01/10/2025</td><td>1</td><td>600,00</td><td></td><td>400,00</td></tr>
		<tr><td>02/10/2025</td><td>02/10/2025</td><td>2</td><td>400,00</td><td></td><td>0,00</td></tr>
	</table>`

	tests := []struct {
		name      string
		pageText  string
		wantValid bool
	}{
		{name: "exact", pageText: "Tổng rút ra: 1.000,00", wantValid: true},
		{name: "within epsilon", pageText: "Tổng rút ra: 1.000,01", wantValid: true},
		{name: "off by two cents", pageText: "Tổng rút ra: 1.000,02", wantValid: false},
		{name: "no summary", pageText: "", wantValid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, err := ExtractTransactions(table, tt.pageText)
			require.NoError(t, err)

			assert.Equal(t, tt.wantValid, ex.Valid)
			assert.Len(t, ex.Transactions, 2)
			assert.True(t, ex.CalculatedDebit.Equal(dec("1000")))
		})
	}
}

func TestExtractTransactions_FacebookWithoutCode(t *testing.T) {
	table := `<table id="table1">
		<tr><th>a</th><th>b</th><th>c</th><th>d</th><th>e</th><th>f</th></tr>
		<tr><td>01/10/2025</td><td>01/10/2025</td><td>1</td><td>100.000</td><td></td><td>0</td></tr>
		<tr><td class="acctSum">GD TAI FACEBK * thanh toan 4221XX9999</td></tr>
	</table>`

	ex, err := ExtractTransactions(table, "")
	require.NoError(t, err)
	require.Len(t, ex.Transactions, 1)

	txn := ex.Transactions[0]
	assert.Equal(t, "0", txn.IsFBTransaction)
	assert.Nil(t, txn.FBTransactionCode)
	require.NotNil(t, txn.CardLastDigits)
	assert.Equal(t, "9999", *txn.CardLastDigits)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.234.567,89", "1234567.89"},
		{"500.000", "500000"},
		{" 2.000.000 ", "2000000"},
		{"1 234,5", "1234.5"},
		{"1.000 ", "1000"},
		{"", "0"},
		{"&nbsp;", "0"},
		{" ", "0"},
		{"abc", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseAmount(tt.in)
			assert.True(t, got.Equal(dec(tt.want)), "got %s", got)
		})
	}
}

func TestSplitPackedTimestamp(t *testing.T) {
	date, clock, ok := SplitPackedTimestamp("11/10/2025153000")
	require.True(t, ok)
	assert.Equal(t, "11/10/2025", date)
	assert.Equal(t, "15:30:00", clock)

	_, _, ok = SplitPackedTimestamp("11/10/2025 15:30:00")
	assert.False(t, ok)
}

func TestToISO(t *testing.T) {
	assert.Equal(t, "2025-10-11T00:00:00+07:00", ToISO("11/10/2025"))
	assert.Equal(t, "2025-10-11T15:30:00+07:00", ToISO("11/10/2025 15:30:00"))
	assert.Equal(t, "", ToISO("  "))
	assert.Equal(t, "hôm nay", ToISO("hôm nay"))
}
