package models

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Notice is a single row harvested from the portal's notice listing.
// It is created by the extractor and never modified afterwards.
type Notice struct {
	// RowNum is the display ordinal of the row. It is not stable across sessions.
	RowNum int `json:"rowNum"`

	// ID uniquely identifies the notice on the portal.
	ID int `json:"id"`

	Type     string `json:"type"`
	Category string `json:"category"`
	Company  string `json:"company"`

	// NoticeAt is the portal-local timestamp string, "DD-MM-YYYY HH:MM".
	NoticeAt string `json:"noticeAt"`

	NoticedBy int `json:"noticedBy"`

	// NoticeText is the full body from the detail view, or the truncated
	// listing summary when the detail view could not be read.
	NoticeText string `json:"noticeText"`
}

// rollNoPattern is two digits, two letters, five digits (e.g. 23XX10012).
var rollNoPattern = regexp.MustCompile(`^\d{2}[A-Za-z]{2}\d{5}$`)

// SecurityAnswerCount is the number of question/answer pairs the portal
// rotates through.
const SecurityAnswerCount = 3

// Credentials are the login secrets for one portal account.
type Credentials struct {
	RollNo   string `json:"rollNo"`
	Password string `json:"password"`

	// SecurityAnswers maps the exact security question text to its answer.
	SecurityAnswers map[string]string `json:"securityAnswers"`
}

// Validate checks the roll number format, the answer map size, and that
// no answer is blank.
func (c *Credentials) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RollNo,
			validation.Required,
			validation.Match(rollNoPattern).Error("must be in format DDLLDDDDD (e.g. 23XX10012)"),
		),
		validation.Field(&c.Password, validation.Required),
		validation.Field(&c.SecurityAnswers,
			validation.Required,
			validation.Length(SecurityAnswerCount, SecurityAnswerCount).
				Error("must have exactly 3 entries"),
			validation.Each(validation.Required),
		),
	)
}
