package selector

import (
	"regexp"
	"time"
)

// dateLayouts are tried in order against date-looking tokens in a filename.
var dateLayouts = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`(?:^|\D)(\d{4}-\d{2}-\d{2})(?:\D|$)`), "2006-01-02"},
	{regexp.MustCompile(`(?:^|\D)(\d{4}_\d{2}_\d{2})(?:\D|$)`), "2006_01_02"},
	{regexp.MustCompile(`(?:^|\D)(\d{8})(?:\D|$)`), "20060102"},
	{regexp.MustCompile(`(?:^|\D)(\d{2}-\d{2}-\d{2})(?:\D|$)`), "06-01-02"},
	{regexp.MustCompile(`(?:^|\D)(\d{6})(?:\D|$)`), "060102"},
}

// FilenameDate extracts a calendar date embedded in a file name, such as
// messages-20250107 or pacemaker.log-2025-01-07.gz. The result is midnight UTC.
func FilenameDate(name string) (time.Time, bool) {
	for _, dl := range dateLayouts {
		for _, m := range dl.re.FindAllStringSubmatch(name, -1) {
			t, err := time.Parse(dl.layout, m[1])
			if err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
