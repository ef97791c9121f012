package ics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
)

type fakeSession struct {
	responses map[string]calendar.Response
	errs      map[string]error
	captures  []calendar.SchemaCapture
	rawTotals []int
}

func (s *fakeSession) Get(_ context.Context, url string) (calendar.Response, error) {
	if err, ok := s.errs[url]; ok {
		return calendar.Response{}, err
	}
	resp, ok := s.responses[url]
	if !ok {
		return calendar.Response{StatusCode: 404, URL: url}, nil
	}
	resp.URL = url
	return resp, nil
}

func (s *fakeSession) GetRendered(ctx context.Context, url string) (calendar.Response, error) {
	return s.Get(ctx, url)
}

func (s *fakeSession) CaptureSchema(_ context.Context, capture calendar.SchemaCapture) {
	s.captures = append(s.captures, capture)
}

func (s *fakeSession) ReportDiscovery(_ calendar.DiscoveryPath, rawTotal int) {
	s.rawTotals = append(s.rawTotals, rawTotal)
}

func (s *fakeSession) Logger() *zap.Logger { return zap.NewNop() }

const feedURL = "https://www.bls.gov/schedule/news_release/bls.ics"

const sampleFeed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//BLS//Schedule//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:cpi-june\r\n" +
	"DTSTART:20260615T123000Z\r\n" +
	"SUMMARY:Consumer Pri\r\n" +
	" ce Index\r\n" +
	"URL:https://www.bls.gov/news.release/cpi.htm\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"DTSTART;VALUE=DATE:20260605\r\n" +
	"SUMMARY:Employment Situation\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:ppi-far-future\r\n" +
	"DTSTART:20261215T123000Z\r\n" +
	"SUMMARY:Producer Price Index\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func blsSource() Source {
	return Source{
		Key:              "BLS",
		URL:              feedURL,
		Country:          "US",
		Agency:           "BLS",
		Timezone:         "America/New_York",
		DefaultHour:      8,
		DefaultMinute:    30,
		ReleaseTimeLocal: "08:30",
	}
}

func juneWindow() calendar.Window {
	return calendar.Window{
		Since: time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFetchParsesFeed(t *testing.T) {
	t.Parallel()

	cal, err := New(blsSource())
	require.NoError(t, err)

	ses := &fakeSession{responses: map[string]calendar.Response{
		feedURL: {StatusCode: 200, Body: []byte(sampleFeed)},
	}}

	events, err := cal.Fetch(context.Background(), ses, juneWindow())
	require.NoError(t, err)
	require.Len(t, events, 2, "the December release is outside the window")

	cpi := events[0]
	require.Equal(t, "Consumer Price Index", cpi.Title, "folded summary lines are rejoined")
	require.Equal(t, "https://www.bls.gov/news.release/cpi.htm", cpi.URL)
	require.Equal(t, time.Date(2026, time.June, 15, 12, 30, 0, 0, time.UTC), cpi.DateTimeUTC)
	require.Equal(t, calendar.EventID("US", "BLS", "Consumer Price Index", cpi.DateTimeUTC), cpi.ID)
	require.Equal(t, "08:30", cpi.Extras["release_time_local"])

	// Raw total counts every parsed VEVENT before window filtering.
	require.Equal(t, []int{3}, ses.rawTotals)
	require.Len(t, ses.captures, 1)
	require.Equal(t, 3, ses.captures[0].ParsedCount)
	require.Equal(t, "", ses.captures[0].Variant)
}

func TestFetchDateOnlyUsesReleaseTime(t *testing.T) {
	t.Parallel()

	cal, err := New(blsSource())
	require.NoError(t, err)

	ses := &fakeSession{responses: map[string]calendar.Response{
		feedURL: {StatusCode: 200, Body: []byte(sampleFeed)},
	}}

	events, err := cal.Fetch(context.Background(), ses, juneWindow())
	require.NoError(t, err)

	var empsit *calendar.Event
	for i := range events {
		if events[i].Title == "Employment Situation" {
			empsit = &events[i]
		}
	}
	require.NotNil(t, empsit)
	// 08:30 America/New_York is 12:30 UTC in June.
	require.Equal(t, time.Date(2026, time.June, 5, 12, 30, 0, 0, time.UTC), empsit.DateTimeUTC)
	require.Equal(t, feedURL, empsit.URL, "events without URL or UID point at the feed")
}

func TestFetchTriesAlternateURL(t *testing.T) {
	t.Parallel()

	src := blsSource()
	src.AltURLs = []string{"https://www.bls.gov/schedule/alternate.ics"}
	cal, err := New(src)
	require.NoError(t, err)

	ses := &fakeSession{responses: map[string]calendar.Response{
		feedURL:        {StatusCode: 503},
		src.AltURLs[0]: {StatusCode: 200, Body: []byte(sampleFeed)},
	}}

	events, err := cal.Fetch(context.Background(), ses, juneWindow())
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Len(t, ses.captures, 1)
	require.Equal(t, "alt1", ses.captures[0].Variant,
		"alternate endpoints keep their own schema fingerprint")
}

func TestFetchSurfacesTransportErrorWhenNothingFetched(t *testing.T) {
	t.Parallel()

	cal, err := New(blsSource())
	require.NoError(t, err)

	wantErr := errors.New("connection refused")
	ses := &fakeSession{errs: map[string]error{feedURL: wantErr}}

	_, err = cal.Fetch(context.Background(), ses, juneWindow())
	require.ErrorIs(t, err, wantErr)
}

func TestFetchCapturesDriftedPage(t *testing.T) {
	t.Parallel()

	cal, err := New(blsSource())
	require.NoError(t, err)

	ses := &fakeSession{responses: map[string]calendar.Response{
		feedURL: {StatusCode: 200, Body: []byte("<html><body>Access denied</body></html>")},
	}}

	events, err := cal.Fetch(context.Background(), ses, juneWindow())
	require.NoError(t, err, "a non-calendar body is a parse result, not a transport failure")
	require.Empty(t, events)
	require.Len(t, ses.captures, 1)
	require.Equal(t, 0, ses.captures[0].ParsedCount,
		"the sentinel sees the zero parse so it can flag drift")
	require.Equal(t, []int{0}, ses.rawTotals)
}

func TestNewValidatesSource(t *testing.T) {
	t.Parallel()

	_, err := New(Source{URL: feedURL, Timezone: "UTC"})
	require.Error(t, err)

	_, err = New(Source{Key: "BLS", Timezone: "UTC"})
	require.Error(t, err)

	_, err = New(Source{Key: "BLS", URL: feedURL, Timezone: "Mars/Olympus"})
	require.Error(t, err)
}

func TestParseTimestampForms(t *testing.T) {
	t.Parallel()

	brussels, err := time.LoadLocation("Europe/Brussels")
	require.NoError(t, err)

	cases := []struct {
		name   string
		value  string
		params map[string]string
		want   time.Time
		fails  bool
	}{
		{
			name:  "utc suffix",
			value: "20260615T110000Z",
			want:  time.Date(2026, time.June, 15, 11, 0, 0, 0, time.UTC),
		},
		{
			name:  "date only gets default release time",
			value: "20260605",
			want:  time.Date(2026, time.June, 5, 11, 0, 0, 0, brussels),
		},
		{
			name:  "floating datetime in home zone",
			value: "20260620T090000",
			want:  time.Date(2026, time.June, 20, 9, 0, 0, 0, brussels),
		},
		{
			name:   "tzid overrides home zone",
			value:  "20260620T083000",
			params: map[string]string{"TZID": "America/New_York"},
			want:   time.Date(2026, time.June, 20, 12, 30, 0, 0, time.UTC),
		},
		{
			name:   "unknown tzid falls back to home zone",
			value:  "20260620T090000",
			params: map[string]string{"TZID": "Nowhere/Special"},
			want:   time.Date(2026, time.June, 20, 9, 0, 0, 0, brussels),
		},
		{name: "garbage", value: "June 5th 2026", fails: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseTimestamp(tc.value, tc.params, brussels, 11, 0)
			if tc.fails {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.True(t, got.Equal(tc.want), "got %s want %s", got, tc.want)
		})
	}
}

func TestParseCalendarFallbacks(t *testing.T) {
	t.Parallel()

	feed := "BEGIN:VCALENDAR\n" +
		"BEGIN:VEVENT\n" +
		"DTSTART:20260615T110000Z\n" +
		"DESCRIPTION:Described only\n" +
		"UID:uid-as-link\n" +
		"END:VEVENT\n" +
		"BEGIN:VEVENT\n" +
		"DTSTART:20260616T110000Z\n" +
		"END:VEVENT\n" +
		"BEGIN:VEVENT\n" +
		"SUMMARY:No start time\n" +
		"END:VEVENT\n" +
		"END:VCALENDAR\n"

	items := parseCalendar([]byte(feed), time.UTC, 10, 0)
	require.Len(t, items, 2, "events without DTSTART are dropped")
	require.Equal(t, "Described only", items[0].Title)
	require.Equal(t, "uid-as-link", items[0].URL)
	require.Equal(t, "Untitled", items[1].Title)
	require.Equal(t, "", items[1].URL)
}
