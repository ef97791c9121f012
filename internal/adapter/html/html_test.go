package html

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/IntelliTrade-io/IntelliTrade/internal/calendar"
	"github.com/IntelliTrade-io/IntelliTrade/internal/headless/detector"
)

type fakeSession struct {
	responses     map[string]calendar.Response
	rendered      map[string]calendar.Response
	errs          map[string]error
	renderErr     error
	renderedCalls int
	captures      []calendar.SchemaCapture
	rawTotals     []int
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

func (s *fakeSession) GetRendered(_ context.Context, url string) (calendar.Response, error) {
	s.renderedCalls++
	if s.renderErr != nil {
		return calendar.Response{}, s.renderErr
	}
	resp, ok := s.rendered[url]
	if !ok {
		return calendar.Response{StatusCode: 404, URL: url}, nil
	}
	resp.URL = url
	resp.Rendered = true
	return resp, nil
}

func (s *fakeSession) CaptureSchema(_ context.Context, capture calendar.SchemaCapture) {
	s.captures = append(s.captures, capture)
}

func (s *fakeSession) ReportDiscovery(_ calendar.DiscoveryPath, rawTotal int) {
	s.rawTotals = append(s.rawTotals, rawTotal)
}

func (s *fakeSession) Logger() *zap.Logger { return zap.NewNop() }

const onsURL = "https://www.ons.gov.uk/releasecalendar"

const onsPage = `<html><body><main>
<ul>
<li class="release"><time datetime="2026-06-10T09:30:00+01:00">10 June</time>
<h3><a href="/releases/retail-sales">Retail  Sales, May 2026</a></h3></li>
<li class="release"><time datetime="2026-06-17T07:00:00+01:00">17 June</time>
<h3><a href="/releases/labour-market">Labour Market Overview</a></h3></li>
<li class="release"><time datetime="2026-09-10T09:30:00+01:00">10 September</time>
<h3><a href="/releases/autumn">Autumn Release</a></h3></li>
</ul>
</main></body></html>`

func onsSource() Source {
	return Source{
		Key:         "ONS",
		Country:     "GB",
		Agency:      "ONS",
		Timezone:    "Europe/London",
		URLs:        []string{onsURL},
		RowSelector: "li.release",
		DefaultHour: 7,
	}
}

func juneWindow() calendar.Window {
	return calendar.Window{
		Since: time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC),
		Until: time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFetchParsesReleaseRows(t *testing.T) {
	t.Parallel()

	scraper, err := New(onsSource(), nil)
	require.NoError(t, err)

	ses := &fakeSession{responses: map[string]calendar.Response{
		onsURL: {StatusCode: 200, Body: []byte(onsPage)},
	}}

	events, err := scraper.Fetch(context.Background(), ses, juneWindow())
	require.NoError(t, err)
	require.Len(t, events, 2, "the September release is outside the window")

	retail := events[0]
	require.Equal(t, "Retail Sales, May 2026", retail.Title, "whitespace is collapsed")
	require.Equal(t, "https://www.ons.gov.uk/releases/retail-sales", retail.URL,
		"relative links resolve against the page")
	require.Equal(t, time.Date(2026, time.June, 10, 8, 30, 0, 0, time.UTC), retail.DateTimeUTC)

	require.Equal(t, []int{3}, ses.rawTotals, "raw total counts rows before window filtering")
	require.Len(t, ses.captures, 1)
	require.Equal(t, 3, ses.captures[0].ParsedCount)
}

func TestFetchFixedTitleSchedule(t *testing.T) {
	t.Parallel()

	const rbnzURL = "https://www.rbnz.govt.nz/monetary-policy"
	page := `<html><body><main><table>
<tr><td><time datetime="2026-06-24">24 June</time></td></tr>
<tr><td><time datetime="2026-08-12">12 August</time></td></tr>
</table></main></body></html>`

	scraper, err := New(Source{
		Key:         "RBNZ",
		Country:     "NZ",
		Agency:      "RBNZ",
		Timezone:    "Pacific/Auckland",
		URLs:        []string{rbnzURL},
		FixedTitle:  "OCR Decision",
		DefaultHour: 14,
	}, nil)
	require.NoError(t, err)

	ses := &fakeSession{responses: map[string]calendar.Response{
		rbnzURL: {StatusCode: 200, Body: []byte(page)},
	}}

	events, err := scraper.Fetch(context.Background(), ses, juneWindow())
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "OCR Decision", events[0].Title)
	require.Equal(t, rbnzURL, events[0].URL)
	// 14:00 in Auckland is 02:00 UTC during June.
	require.Equal(t, time.Date(2026, time.June, 24, 2, 0, 0, 0, time.UTC), events[0].DateTimeUTC)
}

func TestFetchPromotesScriptShell(t *testing.T) {
	t.Parallel()

	shell := `<html><body><div id="root"></div><script src="/app.js"></script></body></html>`

	scraper, err := New(onsSource(), detector.NewHeuristic(0))
	require.NoError(t, err)

	ses := &fakeSession{
		responses: map[string]calendar.Response{
			onsURL: {StatusCode: 200, Body: []byte(shell)},
		},
		rendered: map[string]calendar.Response{
			onsURL: {StatusCode: 200, Body: []byte(onsPage)},
		},
	}

	events, err := scraper.Fetch(context.Background(), ses, juneWindow())
	require.NoError(t, err)
	require.Len(t, events, 2, "events come from the rendered DOM")
	require.Equal(t, 1, ses.renderedCalls)
}

func TestFetchKeepsStaticBodyWhenRenderFails(t *testing.T) {
	t.Parallel()

	shell := `<html><body><div id="root"></div><script src="/app.js"></script></body></html>`

	scraper, err := New(onsSource(), detector.NewHeuristic(0))
	require.NoError(t, err)

	ses := &fakeSession{
		responses: map[string]calendar.Response{
			onsURL: {StatusCode: 200, Body: []byte(shell)},
		},
		renderErr: errors.New("render budget exhausted"),
	}

	events, err := scraper.Fetch(context.Background(), ses, juneWindow())
	require.NoError(t, err, "render exhaustion degrades to the static body")
	require.Empty(t, events)
	require.Equal(t, []int{0}, ses.rawTotals)
}

func TestFetchFiltersByValidPaths(t *testing.T) {
	t.Parallel()

	const absURL = "https://www.abs.gov.au/release-calendar"
	page := `<html><body>
<li class="row"><time datetime="2026-06-03T11:30:00+10:00">3 June</time>
<a href="/statistics/labour-force">Labour Force</a></li>
<li class="row"><time datetime="2026-06-04T11:30:00+10:00">4 June</time>
<a href="/about/careers">Careers Day</a></li>
</body></html>`

	scraper, err := New(Source{
		Key:         "ABS",
		Country:     "AU",
		Agency:      "ABS",
		Timezone:    "Australia/Sydney",
		URLs:        []string{absURL},
		RowSelector: "li.row",
		ValidPaths:  []string{"/statistics/", "/media-releases/"},
	}, nil)
	require.NoError(t, err)

	ses := &fakeSession{responses: map[string]calendar.Response{
		absURL: {StatusCode: 200, Body: []byte(page)},
	}}

	events, err := scraper.Fetch(context.Background(), ses, juneWindow())
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "Labour Force", events[0].Title)
}

func TestFetchDeduplicatesAcrossPages(t *testing.T) {
	t.Parallel()

	src := onsSource()
	src.URLs = []string{onsURL, onsURL + "?page=2"}
	scraper, err := New(src, nil)
	require.NoError(t, err)

	ses := &fakeSession{responses: map[string]calendar.Response{
		src.URLs[0]: {StatusCode: 200, Body: []byte(onsPage)},
		src.URLs[1]: {StatusCode: 200, Body: []byte(onsPage)},
	}}

	events, err := scraper.Fetch(context.Background(), ses, juneWindow())
	require.NoError(t, err)
	require.Len(t, events, 2, "identical rows on both pages collapse")
	require.Equal(t, []int{6}, ses.rawTotals, "raw total still counts every row seen")
	require.Len(t, ses.captures, 2)
	require.Equal(t, "p0", ses.captures[0].Variant)
	require.Equal(t, "p1", ses.captures[1].Variant)
}

func TestFetchSurfacesTransportErrorWhenNothingFetched(t *testing.T) {
	t.Parallel()

	scraper, err := New(onsSource(), nil)
	require.NoError(t, err)

	wantErr := errors.New("dial timeout")
	ses := &fakeSession{errs: map[string]error{onsURL: wantErr}}

	_, err = scraper.Fetch(context.Background(), ses, juneWindow())
	require.ErrorIs(t, err, wantErr)
}

func TestNewValidatesSource(t *testing.T) {
	t.Parallel()

	_, err := New(Source{Key: "X", Timezone: "UTC"}, nil)
	require.Error(t, err, "urls are required")

	_, err = New(Source{Key: "X", URLs: []string{"https://example.com"}, Timezone: "UTC"}, nil)
	require.Error(t, err, "a row selector or fixed title is required")

	_, err = New(Source{
		Key: "X", URLs: []string{"https://example.com"},
		RowSelector: "li", Timezone: "Atlantis/Sunken",
	}, nil)
	require.Error(t, err)
}

func TestParseWhenLayouts(t *testing.T) {
	t.Parallel()

	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	cases := []struct {
		name  string
		stamp string
		want  time.Time
		fails bool
	}{
		{
			name:  "rfc3339 with offset",
			stamp: "2026-06-10T09:30:00+01:00",
			want:  time.Date(2026, time.June, 10, 8, 30, 0, 0, time.UTC),
		},
		{
			name:  "local datetime",
			stamp: "2026-06-10T09:30",
			want:  time.Date(2026, time.June, 10, 9, 30, 0, 0, london),
		},
		{
			name:  "date only gets default release time",
			stamp: "2026-06-10",
			want:  time.Date(2026, time.June, 10, 7, 0, 0, 0, london),
		},
		{
			name:  "long form date",
			stamp: "10 June 2026",
			want:  time.Date(2026, time.June, 10, 7, 0, 0, 0, london),
		},
		{name: "garbage", stamp: "next Tuesday-ish", fails: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseWhen(tc.stamp, london, 7, 0)
			if tc.fails {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.True(t, got.Equal(tc.want), "got %s want %s", got, tc.want)
		})
	}
}
