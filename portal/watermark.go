package portal

import (
	"fmt"
	"strings"
	"time"

	"github.com/use-agent/noticesync/models"
)

// NoticeTimeLayout is the portal's "DD-MM-YYYY HH:MM" timestamp format.
const NoticeTimeLayout = "02-01-2006 15:04"

// zonedLayouts are interpreted in the portal's time zone.
var zonedLayouts = []string{
	NoticeTimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseNoticeTime parses a listing timestamp in the portal's zone.
func ParseNoticeTime(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(NoticeTimeLayout, strings.TrimSpace(s), loc)
}

// ParseWatermark accepts the portal format, RFC 3339, or a few ISO-8601
// variants without offset (taken as portal-local). An empty string is the
// zero time, which every notice is newer than.
func ParseWatermark(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range zonedLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, models.NewSyncError(
		models.ErrKindInvalidInput,
		fmt.Sprintf("watermark %q is neither %q nor ISO-8601", s, NoticeTimeLayout),
		nil,
	)
}
