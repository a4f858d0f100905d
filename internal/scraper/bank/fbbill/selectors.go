package fbbill

// Facebook Ads billing activity page. Class names are Facebook's generated
// atomic CSS and change without notice; the texts are the Vietnamese UI.
const (
	DefaultBillingURL = "https://business.facebook.com/billing_hub/payment_activity"

	SelReferenceFilter = `div[role="button"] span`
	SelReferenceInput  = `input[placeholder="Nhập số tham chiếu…"]`
	SelDialogButton    = `div[role="dialog"] div[role="button"]:not([aria-disabled="true"])`
	SelBackButton      = `div[role="dialog"] div[role="button"][aria-busy="false"]`

	SelResultHeading   = `div[role="heading"][aria-level="4"]`
	SelResultContainer = `div.x1iyjqo2`
	SelResultItem      = `div.x78zum5.xdt5ytf`
	SelItemValue       = `div[role="heading"]`
)

const (
	TextReferenceFilter = "Số tham chiếu"
	TextSearch          = "Tìm kiếm"
	TextBack            = "Quay lại"
	TextResultsFor      = "Kết quả cho"

	LabelDate      = "Ngày"
	LabelAmount    = "Số tiền"
	LabelReference = "Số tham chiếu"
)
