package parse

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrNoDate indicates the text did not contain a recognizable future date.
var ErrNoDate = errors.New("parse: no date found")

// ErrNoClock indicates the text did not contain a recognizable time of day.
var ErrNoClock = errors.New("parse: no time found")

var monthNames = map[string]time.Month{
	"janeiro": time.January, "jan": time.January,
	"fevereiro": time.February, "fev": time.February,
	"marco": time.March, "mar": time.March,
	"abril": time.April, "abr": time.April,
	"maio": time.May, "mai": time.May,
	"junho": time.June, "jun": time.June,
	"julho": time.July, "jul": time.July,
	"agosto": time.August, "ago": time.August,
	"setembro": time.September, "set": time.September,
	"outubro": time.October, "out": time.October,
	"novembro": time.November, "nov": time.November,
	"dezembro": time.December, "dez": time.December,
}

var weekdayNames = map[string]time.Weekday{
	"domingo": time.Sunday,
	"segunda": time.Monday, "segunda-feira": time.Monday,
	"terca": time.Tuesday, "terca-feira": time.Tuesday,
	"quarta": time.Wednesday, "quarta-feira": time.Wednesday,
	"quinta": time.Thursday, "quinta-feira": time.Thursday,
	"sexta": time.Friday, "sexta-feira": time.Friday,
	"sabado": time.Saturday,
}

var (
	numericDateRe = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})\b`)
	dayOfMonthRe  = regexp.MustCompile(`\b(\d{1,2})\b`)
	monthDayRe    = regexp.MustCompile(`\b([a-z-]+)\s+(\d{1,2})\b`)
	dayMonthRe    = regexp.MustCompile(`\b(\d{1,2})\s+de\s+([a-z-]+)\b`)
	clockRe       = regexp.MustCompile(`\b(\d{1,2})(?:[:h](\d{2}))?\b`)
)

// Date parses a date expression relative to today (in the tenant's timezone),
// trying numeric dd/mm, "<dia> de <mês>", "<mês> <dia>", weekday names and a
// bare day-of-month, in that order. Dates strictly before today fail; so do
// impossible calendar values (month 13, Feb 30).
func Date(text string, today time.Time) (time.Time, error) {
	text = Normalize(text)
	today = midnight(today)

	if m := numericDateRe.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		return buildDate(today, today.Year(), time.Month(month), day)
	}
	if m := dayMonthRe.FindStringSubmatch(text); m != nil {
		if month, ok := monthNames[m[2]]; ok {
			day, _ := strconv.Atoi(m[1])
			return buildDate(today, today.Year(), month, day)
		}
	}
	if m := monthDayRe.FindStringSubmatch(text); m != nil {
		if month, ok := monthNames[m[1]]; ok {
			day, _ := strconv.Atoi(m[2])
			return buildDate(today, today.Year(), month, day)
		}
	}
	for name, weekday := range weekdayNames {
		if containsWord(text, name) {
			return nextWeekdayInMonth(today, weekday)
		}
	}
	if m := dayOfMonthRe.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		return buildDate(today, today.Year(), today.Month(), day)
	}
	return time.Time{}, ErrNoDate
}

// buildDate validates the candidate and rejects past dates. Construction via
// time.Date normalizes overflow (Feb 30 becomes Mar 2), so a round-trip
// mismatch means the input was not a real calendar date.
func buildDate(today time.Time, year int, month time.Month, day int) (time.Time, error) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, ErrNoDate
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, today.Location())
	if d.Day() != day || d.Month() != month {
		return time.Time{}, ErrNoDate
	}
	if d.Before(today) {
		return time.Time{}, ErrNoDate
	}
	return d, nil
}

// nextWeekdayInMonth finds the earliest date on/after today matching the
// weekday, searching only to the end of the current month.
func nextWeekdayInMonth(today time.Time, weekday time.Weekday) (time.Time, error) {
	for d := today; d.Month() == today.Month(); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == weekday {
			return d, nil
		}
	}
	return time.Time{}, ErrNoDate
}

// Clock parses H, HH, H:MM, HH:MM and HhMM time forms, returning a
// zero-padded "HH:MM" string.
func Clock(text string) (string, error) {
	m := clockRe.FindStringSubmatch(Normalize(text))
	if m == nil {
		return "", ErrNoClock
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if hour > 23 || minute > 59 {
		return "", ErrNoClock
	}
	var b strings.Builder
	if hour < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.Itoa(hour))
	b.WriteByte(':')
	if minute < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.Itoa(minute))
	return b.String(), nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
