package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	clock24Re = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)
	clock12Re = regexp.MustCompile(`^(\d{1,2})(?:[:.](\d{2}))?\s*([ap])\.?\s*m\.?$`)
	clockHMRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// ValidTime reports whether s is a zero-padded 24-hour HH:MM time
func ValidTime(s string) bool {
	return clock24Re.MatchString(s)
}

// ParseClock converts clock text into zero-padded 24-hour HH:MM. It accepts 12-hour
// times with a meridiem ("3pm", "9:30 a.m."), 24-hour "H:MM"/"HH:MM", "noon" and
// "midnight". Empty or unrecognized text returns false.
func ParseClock(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return "", false
	case "noon", "midday":
		return "12:00", true
	case "midnight":
		return "00:00", true
	}

	if m := clock12Re.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 || minute > 59 {
			return "", false
		}
		hour %= 12
		if m[3] == "p" {
			hour += 12
		}
		return fmt.Sprintf("%02d:%02d", hour, minute), true
	}

	if m := clockHMRe.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return "", false
		}
		return fmt.Sprintf("%02d:%02d", hour, minute), true
	}

	return "", false
}
