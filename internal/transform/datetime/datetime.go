// Package datetime canonicalizes source datetime strings to ISO 8601, per
// spec.md §4.3 and §8 invariant 11, grounded on original_source's
// date_format::format_to_iso8601.
package datetime

import "time"

// acceptedLayouts is the fixed ordered list of formats the Replacer tries,
// per spec.md §4.3: RFC3339, dd-MM-yyyy HH:mm:ss, yyyy-MM-dd HH:mm:ss,
// dd/MM/yyyy HH:mm:ss, yyyy/MM/dd HH:mm:ss.
var acceptedLayouts = []string{
	time.RFC3339,
	"02-01-2006 15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
	"2006/01/02 15:04:05",
}

// canonicalLayout is the emitted ISO 8601 form, yyyy-MM-ddTHH:mm:ss.
const canonicalLayout = "2006-01-02T15:04:05"

// ToISO8601 parses s using the accepted formats in order and returns the
// canonical ISO 8601 rendering. Unparseable input is returned unchanged,
// with ok=false.
func ToISO8601(s string) (string, bool) {
	for _, layout := range acceptedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(canonicalLayout), true
		}
	}
	return s, false
}
