package portal

import "fmt"

// LoginSelectors locate the controls of the login flow.
type LoginSelectors struct {
	RollNo         string
	Password       string
	QuestionPrompt string
	Question       string
	Answer         string
	RequestOTP     string
	OTP            string
	Submit         string

	// Error matches the portal's error indicators after a submission.
	Error string
}

// DefaultLoginSelectors match the portal's SSO login page.
func DefaultLoginSelectors() LoginSelectors {
	return LoginSelectors{
		RollNo:         `input[name="user_id"]`,
		Password:       `input[name="password"]`,
		QuestionPrompt: `#answer_div:not(.hidden)`,
		Question:       `#question`,
		Answer:         `#answer`,
		RequestOTP:     `#getotp`,
		OTP:            `#email_otp1`,
		Submit:         `#loginFormSubmitButton`,
		Error:          `.error, .alert-danger, [class*="error"]`,
	}
}

// ListingSelectors locate the notice grid, its cells and the detail view.
// Cell selectors are relative to a row.
type ListingSelectors struct {
	Grid string
	Row  string

	RowNum    string
	ID        string
	Type      string
	Category  string
	Company   string
	NoticeAt  string
	NoticedBy string

	// Summary is the element whose SummaryAttr holds the truncated body.
	Summary     string
	SummaryAttr string

	// DetailTrigger, relative to the row, opens the detail view.
	DetailTrigger string
	DetailContent string
	DetailClose   string
}

// DefaultGridID is the jqGrid id of the portal's notice table.
const DefaultGridID = "grid54"

// GridSelectors builds the listing selectors for a jqGrid table with the
// given id, whose cells are tagged aria-describedby="<id>_<column>".
func GridSelectors(gridID string) ListingSelectors {
	cell := func(col string) string {
		return fmt.Sprintf(`[aria-describedby="%s_%s"]`, gridID, col)
	}
	return ListingSelectors{
		Grid:          "#" + gridID,
		Row:           fmt.Sprintf("#%s tr.jqgrow", gridID),
		RowNum:        cell("rn"),
		ID:            cell("id"),
		Type:          cell("type"),
		Category:      cell("category"),
		Company:       cell("company"),
		NoticeAt:      cell("noticeat"),
		NoticedBy:     cell("noticeby"),
		Summary:       cell("notice") + " a",
		SummaryAttr:   "title",
		DetailTrigger: cell("notice") + " a",
		DetailContent: `.ui-dialog:not([style*="display: none"]) .ui-dialog-content`,
		DetailClose:   `.ui-dialog:not([style*="display: none"]) .ui-dialog-titlebar-close`,
	}
}
