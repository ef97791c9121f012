package ics

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	dateOnlyPattern = regexp.MustCompile(`^\d{8}$`)
	dateTimePattern = regexp.MustCompile(`^\d{8}T\d{6}$`)
)

// item is one VEVENT reduced to the fields the calendar cares about.
type item struct {
	Title string
	At    time.Time
	URL   string
}

// unfold splits the feed into logical lines per RFC 5545: a line beginning
// with a space or tab continues the previous one.
func unfold(body []byte) []string {
	raw := strings.Split(strings.ReplaceAll(string(body), "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && len(lines) > 0 {
			lines[len(lines)-1] += strings.TrimSpace(line)
			continue
		}
		lines = append(lines, strings.TrimSpace(line))
	}
	return lines
}

// splitProperty breaks "NAME;PARAM=V:value" into its parts. Property and
// parameter names are uppercased; the value keeps its case.
func splitProperty(line string) (name string, params map[string]string, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", nil, "", false
	}
	left, value := line[:idx], strings.TrimSpace(line[idx+1:])
	if sep := strings.Index(left, ";"); sep >= 0 {
		params = make(map[string]string)
		for _, param := range strings.Split(left[sep+1:], ";") {
			if eq := strings.Index(param, "="); eq >= 0 {
				params[strings.ToUpper(param[:eq])] = param[eq+1:]
			}
		}
		left = left[:sep]
	}
	return strings.ToUpper(left), params, value, true
}

// parseTimestamp handles the three DTSTART shapes the feeds use: a trailing Z
// (UTC), a bare date (given the source's default release time), and a
// floating local datetime. A TZID parameter wins over the source timezone
// when it names a loadable location.
func parseTimestamp(value string, params map[string]string, loc *time.Location, defaultHour, defaultMinute int) (time.Time, error) {
	if strings.HasSuffix(value, "Z") {
		return time.ParseInLocation("20060102T150405", strings.TrimSuffix(value, "Z"), time.UTC)
	}

	zone := loc
	if tzid := params["TZID"]; tzid != "" {
		if named, err := time.LoadLocation(tzid); err == nil {
			zone = named
		}
	}

	if dateOnlyPattern.MatchString(value) {
		day, err := time.ParseInLocation("20060102", value, zone)
		if err != nil {
			return time.Time{}, err
		}
		return time.Date(day.Year(), day.Month(), day.Day(), defaultHour, defaultMinute, 0, 0, zone), nil
	}

	if dateTimePattern.MatchString(value) {
		return time.ParseInLocation("20060102T150405", value, zone)
	}

	return time.Time{}, fmt.Errorf("unrecognized DTSTART %q", value)
}

// parseCalendar walks the unfolded feed and collects every VEVENT that
// carries a parseable DTSTART. Titles fall back from SUMMARY to DESCRIPTION
// to "Untitled"; links fall back from URL to UID. Repeated properties keep
// the last value seen.
func parseCalendar(body []byte, loc *time.Location, defaultHour, defaultMinute int) []item {
	var (
		items    []item
		props    map[string]string
		dtParams map[string]string
		inEvent  bool
	)

	flush := func() {
		raw := props["DTSTART"]
		if raw == "" {
			return
		}
		at, err := parseTimestamp(raw, dtParams, loc, defaultHour, defaultMinute)
		if err != nil {
			return
		}
		title := props["SUMMARY"]
		if title == "" {
			title = props["DESCRIPTION"]
		}
		if title == "" {
			title = "Untitled"
		}
		href := props["URL"]
		if href == "" {
			href = props["UID"]
		}
		items = append(items, item{Title: strings.TrimSpace(title), At: at, URL: href})
	}

	for _, line := range unfold(body) {
		switch line {
		case "BEGIN:VEVENT":
			inEvent = true
			props = make(map[string]string)
			dtParams = nil
			continue
		case "END:VEVENT":
			if inEvent {
				flush()
			}
			inEvent = false
			continue
		}
		if !inEvent {
			continue
		}
		name, params, value, ok := splitProperty(line)
		if !ok {
			continue
		}
		props[name] = value
		if name == "DTSTART" && len(params) > 0 {
			dtParams = params
		}
	}
	return items
}
