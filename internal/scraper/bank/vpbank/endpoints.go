package vpbank

import (
	"fmt"
	"strconv"
	"time"

	"github.com/grez-lucas/vn-bank-sync/internal/scraper/bank/odata"
)

// VPBank NEO portal
const (
	DefaultBaseURL = "https://neo.vpbank.com.vn"
	CookieDomain   = "neo.vpbank.com.vn"
	RefererPath    = "/main.html"

	LoginPath              = "/cb/odata/ns/authenticationservice/SecureUsers?action=init"
	AccountServiceBatch    = "/cb/odata/services/accountservice/$batch"
	TransferServiceBatch   = "/cb/odata/services/transferservice/$batch"
	DepositAccountsSet     = "DepositAccounts"
	TransfersSet           = "Transfers"
	AccountTransactionsNav = "DepositAccountTransactions"

	// DeviceIDKey is the localStorage entry the portal's own scripts create.
	DeviceIDKey = "deviceId"
)

// Pre-encoded legacy Transfers parameters, sent byte for byte.
const (
	transfersSelect = "FromAccount%2fId%2cFromAccount%2fNickName%2cFromAccount%2fNumber%2cFromAccount%2fNumberMasked%2cFromAccount%2fCurrencyCode%2cToAccount%2fId%2cToAccount%2fNickName%2cToAccount%2fNumber%2cToAccount%2fNumberMasked%2cToAccount%2fCurrencyCode%2cTrackingID%2cFromAccountName%2cToAccountName%2cAmount%2cAmountCurrency%2cDate%2cId%2cRecId%2cCanDelete%2cCanEdit%2cStatus%2cStatusCode%2cTransferType%2cUserAssignedAmount%2cToAmount%2cTransferDestination%2cMemo%2cTransferFlowType%2cFrequencyDisplayName%2cOCBSTATUS"
	transfersExpand = "FromAccount%2cToAccount"
)

// loginPayload is the body of SecureUsers?action=init.
type loginPayload struct {
	ID          string     `json:"Id"`
	UserName    string     `json:"UserName"`
	AppType     string     `json:"AppType"`
	ChannelType string     `json:"ChannelType"`
	Password    string     `json:"Password"`
	UserLocale  userLocale `json:"UserLocale"`
}

type userLocale struct {
	Country  string `json:"Country"`
	Language string `json:"Language"`
}

func newLoginPayload(username, password string) loginPayload {
	return loginPayload{
		ID:          "",
		UserName:    username,
		AppType:     "Consumers",
		ChannelType: "Web",
		Password:    password,
		UserLocale:  userLocale{Country: "VN", Language: "vi"},
	}
}

// depositAccountsRequest lists the user's deposit accounts.
func depositAccountsRequest(top int) odata.Request {
	return odata.Request{
		Method: "GET",
		Path:   DepositAccountsSet,
		Query: odata.Query{
			{Key: "$skip", Value: "0"},
			{Key: "$top", Value: strconv.Itoa(top)},
			{Key: "$inlinecount", Value: "allpages"},
		},
	}
}

// accountTransactionsRequest is the current, path-templated transactions read.
func accountTransactionsRequest(accountID string, from, to time.Time) odata.Request {
	return odata.Request{
		Method: "GET",
		Path:   fmt.Sprintf("%s('%s')", DepositAccountsSet, accountID),
		Query: odata.Query{
			{Key: "$expand", Value: AccountTransactionsNav},
			{Key: "fromDate", Value: odata.Datetime(from)},
			{Key: "toDate", Value: odata.Datetime(to)},
		},
	}
}

// transfersRequest is the legacy $filter read over the transfer list.
func transfersRequest(skip, top int, from, to time.Time) odata.Request {
	filter := "Status%20eq%20%27COMPLETED%27%20and%20" + odata.FilterDateRange("Date", from, to)

	return odata.Request{
		Method: "GET",
		Path:   TransfersSet,
		Query: odata.Query{
			{Key: "$skip", Value: strconv.Itoa(skip)},
			{Key: "$top", Value: strconv.Itoa(top)},
			{Key: "$orderby", Value: "Date%20desc"},
			{Key: "$filter", Value: filter},
			{Key: "$expand", Value: transfersExpand},
			{Key: "$select", Value: transfersSelect},
			{Key: "$inlinecount", Value: "allpages"},
		},
	}
}

// dayRange widens from/to to whole days in loc: 00:00:00 to 23:59:59.
func dayRange(from, to time.Time, loc *time.Location) (time.Time, time.Time) {
	from = from.In(loc)
	to = to.In(loc)
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	end := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, loc)
	return start, end
}
