package rent

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/warp/rent-ledger/generic"
)

// =============================================================================
// PERIOD LABELS - Parsing and formatting the Month column
// =============================================================================

// Accepted shapes:
//   "Aug-2025", "August 2025", "aug 2025"  textual
//   "2025-08", "2025/8"                    numeric year first
//   "08-2025", "8/2025"                    numeric month first
var (
	textualMonthRe = regexp.MustCompile(`^([A-Za-z]{3,9})([- ])(\d{4})$`)
	yearFirstRe    = regexp.MustCompile(`^(\d{4})([-/])(\d{1,2})$`)
	monthFirstRe   = regexp.MustCompile(`^(\d{1,2})([-/])(\d{4})$`)
)

// ParseMonthLabel parses a Month cell into a billing month.
func ParseMonthLabel(s string) (generic.Month, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return generic.Month{}, false
	}

	if m := textualMonthRe.FindStringSubmatch(s); m != nil {
		month, ok := monthByName(m[1])
		if !ok {
			return generic.Month{}, false
		}
		year, _ := strconv.Atoi(m[3])
		return generic.NewMonth(year, month), true
	}
	if m := yearFirstRe.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[3])
		return validMonth(year, month)
	}
	if m := monthFirstRe.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[3])
		return validMonth(year, month)
	}
	return generic.Month{}, false
}

func validMonth(year, month int) (generic.Month, bool) {
	m := generic.NewMonth(year, time.Month(month))
	return m, m.Valid()
}

func monthByName(name string) (time.Month, bool) {
	n := strings.ToLower(name)
	for m := time.January; m <= time.December; m++ {
		full := strings.ToLower(m.String())
		if n == full || (len(n) == 3 && n == full[:3]) {
			return m, true
		}
	}
	// "Sept" is common enough in hand-typed ledgers.
	if n == "sept" {
		return time.September, true
	}
	return 0, false
}

// =============================================================================
// LABEL STYLE - Matching the convention already in the sheet
// =============================================================================

type labelKind int

const (
	labelTextual labelKind = iota
	labelYearFirst
	labelMonthFirst
)

// LabelStyle is how a sheet writes its Month cells.
type LabelStyle struct {
	kind     labelKind
	delim    string
	longName bool
}

// DefaultLabelStyle is "Mon-YYYY".
var DefaultLabelStyle = LabelStyle{kind: labelTextual, delim: "-"}

// InferLabelStyle returns the style of the first sample in a known shape.
func InferLabelStyle(samples []string) LabelStyle {
	for _, raw := range samples {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if m := yearFirstRe.FindStringSubmatch(s); m != nil {
			return LabelStyle{kind: labelYearFirst, delim: m[2]}
		}
		if m := textualMonthRe.FindStringSubmatch(s); m != nil {
			if _, ok := monthByName(m[1]); ok {
				return LabelStyle{kind: labelTextual, delim: m[2], longName: len(m[1]) > 3}
			}
		}
		if m := monthFirstRe.FindStringSubmatch(s); m != nil {
			return LabelStyle{kind: labelMonthFirst, delim: m[2]}
		}
	}
	return DefaultLabelStyle
}

// Format renders a month in this style.
func (st LabelStyle) Format(m generic.Month) string {
	switch st.kind {
	case labelYearFirst:
		return strconv.Itoa(m.Year) + st.delim + twoDigits(int(m.Month))
	case labelMonthFirst:
		return twoDigits(int(m.Month)) + st.delim + strconv.Itoa(m.Year)
	default:
		name := m.Month.String()
		if !st.longName {
			name = name[:3]
		}
		return name + st.delim + strconv.Itoa(m.Year)
	}
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
