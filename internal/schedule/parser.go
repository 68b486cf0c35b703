package schedule

import (
	"strconv"
	"strings"
)

// Frequency is the number of daily doses a legacy record expands into
type Frequency int

const (
	FrequencyUnknown Frequency = 0
	FrequencyOnce    Frequency = 1
	FrequencyTwice   Frequency = 2
	FrequencyThrice  Frequency = 3
)

var frequencyKeywords = []struct {
	freq     Frequency
	keywords []string
}{
	// checked in order; "three" must win over "once" in "three times at once"
	{FrequencyThrice, []string{"three", "thrice", "3 times", "3x"}},
	{FrequencyTwice, []string{"twice", "two times", "2 times", "2x"}},
	{FrequencyOnce, []string{"once", "one time", "1 time", "1x"}},
}

// ParseFrequency reads free-text frequency such as "Three times daily"
func ParseFrequency(text string) Frequency {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return FrequencyUnknown
	}
	for _, entry := range frequencyKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.freq
			}
		}
	}
	return FrequencyUnknown
}

// ParseClock parses "HH:MM" with an optional AM/PM period, either inline
// ("8:30 pm") or passed separately. It returns ok=false when the value cannot
// be resolved to a clock time.
func ParseClock(value, period string) (hour, minute int, ok bool) {
	value = strings.ToUpper(strings.TrimSpace(value))
	period = strings.ToUpper(strings.TrimSpace(period))

	for _, suffix := range []string{"AM", "PM"} {
		if strings.HasSuffix(value, suffix) {
			period = suffix
			value = strings.TrimSpace(strings.TrimSuffix(value, suffix))
		}
	}
	if value == "" {
		return 0, 0, false
	}

	parts := strings.SplitN(value, ":", 3)
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	m := 0
	if len(parts) > 1 {
		if m, err = strconv.Atoi(parts[1]); err != nil {
			return 0, 0, false
		}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}

	// 24h values ignore the period
	if h >= 1 && h <= 12 {
		switch period {
		case "PM":
			if h < 12 {
				h += 12
			}
		case "AM":
			if h == 12 {
				h = 0
			}
		}
	}
	return h, m, true
}

// daypartFromText picks the first daypart named in free text like
// "morning, night"
func daypartFromText(text string) (Daypart, bool) {
	lower := strings.ToLower(text)
	for _, d := range Dayparts {
		if strings.Contains(lower, string(d)) {
			return d, true
		}
	}
	return "", false
}
