package acb

// CSS Selectors for ACB Online
const (
	// Login page
	SelectorUserInput     = `input[name="UserName"]`
	SelectorPasswordInput = `input[name="PassWord"]`
	SelectorCaptchaInput  = `input[name="SecurityCode"]`
	SelectorCaptchaImage  = `img[src*="Captcha.jpg"]`

	// Account list
	SelectorAccountTable = "#table, .table-style"
	SelectorAccountLink  = `a[href*="AccountNbr"]`
	SelectorAccountLinks = "#table a, .table-style a, table a"
	SelectorHeading      = "h4"

	// Account detail
	SelectorFromDate         = `input[name="FromDate"]`
	SelectorToDate           = `input[name="ToDate"]`
	SelectorFilterButtons    = `input[type="button"]`
	SelectorTransactionTable = "#table1"
	SelectorDescriptionCell  = "td.acctSum"
)

// SubmitSelectors are tried in order; the first one present is clicked.
var SubmitSelectors = []string{
	"a.acbone-submit-button",
	`a[onclick*="submitFormLogin"]`,
	".button-blue.acbone-submit-button",
}

// Page text
const (
	HeadingAccountInfo = "Thông tin tài khoản"
	FilterButtonValue  = "Xem"

	LabelEndBalance  = "Số dư cuối:"
	LabelTotalDebit  = "Tổng rút ra:"
	LabelTotalCredit = "Tổng gửi vào:"

	FacebookMarker = "GD TAI FACEBK *"
)

// FlowStateKey is the sessionStorage entry holding the pending flow.
const FlowStateKey = "acb_flow_state"

// DefaultLoginURL is the ACB Online entry page.
const DefaultLoginURL = "https://online.acb.com.vn/acbib/Request"
