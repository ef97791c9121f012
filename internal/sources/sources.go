// Package sources is the calibration table for every tracked agency: which
// adapter reads it, how many releases a 60-day window should carry, how long
// a stale snapshot stays trustworthy, and how politely its host must be
// crawled.
package sources

import (
	"fmt"
	"time"

	"github.com/IntelliTrade-io/IntelliTrade/internal/adapter/html"
	"github.com/IntelliTrade-io/IntelliTrade/internal/adapter/ics"
	"github.com/IntelliTrade-io/IntelliTrade/internal/adapter/static"
	"github.com/IntelliTrade-io/IntelliTrade/internal/collector"
	"github.com/IntelliTrade-io/IntelliTrade/internal/headless/detector"
)

// HostIntervals is the minimum spacing between requests to agencies that
// throttle aggressively. Hosts not listed here fall back to the configured
// default interval.
func HostIntervals() map[string]time.Duration {
	return map[string]time.Duration{
		"abs.gov.au":    2 * time.Second,
		"ons.gov.uk":    1500 * time.Millisecond,
		"bls.gov":       time.Second,
		"stats.govt.nz": time.Second,
	}
}

// Default builds the standard registry: the statistical agencies on their
// machine feeds, the release-calendar pages behind goquery selectors, and
// the central banks. The detector gates headless promotion for the HTML
// sources and may be nil.
func Default(det *detector.Heuristic) ([]collector.Registration, error) {
	bls, err := ics.New(ics.Source{
		Key:              "BLS",
		URL:              "https://www.bls.gov/schedule/news_release/bls.ics",
		Country:          "US",
		Agency:           "BLS",
		Timezone:         "America/New_York",
		DefaultHour:      8,
		DefaultMinute:    30,
		ReleaseTimeLocal: "08:30",
	})
	if err != nil {
		return nil, fmt.Errorf("build BLS adapter: %w", err)
	}

	eurostat, err := ics.New(ics.Source{
		Key:              "EUROSTAT",
		URL:              "https://ec.europa.eu/eurostat/cache/RELEASE_CALENDAR/calendar_EN.ics",
		Country:          "EU",
		Agency:           "EUROSTAT",
		Timezone:         "Europe/Brussels",
		DefaultHour:      11,
		ReleaseTimeLocal: "11:00",
	})
	if err != nil {
		return nil, fmt.Errorf("build EUROSTAT adapter: %w", err)
	}

	statsnz, err := ics.New(ics.Source{
		Key:              "STATSNZ",
		URL:              "https://www.stats.govt.nz/assets/Uploads/release-calendar.ics",
		AltURLs:          []string{"https://www.stats.govt.nz/release-calendar/calendar-export"},
		Country:          "NZ",
		Agency:           "STATSNZ",
		Timezone:         "Pacific/Auckland",
		DefaultHour:      10,
		DefaultMinute:    45,
		ReleaseTimeLocal: "10:45",
	})
	if err != nil {
		return nil, fmt.Errorf("build STATSNZ adapter: %w", err)
	}

	ons, err := html.New(html.Source{
		Key:         "ONS",
		Country:     "GB",
		Agency:      "ONS",
		Timezone:    "Europe/London",
		URLs:        []string{"https://www.ons.gov.uk/releasecalendar?release-type=type-upcoming&sort=date-newest"},
		RowSelector: "li",
		MaxRows:     40,
		DefaultHour: 7,
	}, det)
	if err != nil {
		return nil, fmt.Errorf("build ONS adapter: %w", err)
	}

	abs, err := html.New(html.Source{
		Key:           "ABS",
		Country:       "AU",
		Agency:        "ABS",
		Timezone:      "Australia/Sydney",
		URLs:          []string{"https://www.abs.gov.au/release-calendar/future-releases"},
		RowSelector:   "li, article",
		ValidPaths:    []string{"/statistics/", "/media-releases/", "/articles/"},
		DefaultHour:   11,
		DefaultMinute: 30,
	}, det)
	if err != nil {
		return nil, fmt.Errorf("build ABS adapter: %w", err)
	}

	statscan, err := html.New(html.Source{
		Key:           "STATSCAN",
		Country:       "CA",
		Agency:        "STATCAN",
		Timezone:      "America/Toronto",
		URLs:          []string{"https://www150.statcan.gc.ca/n1/dai-quo/cal2-eng.htm"},
		RowSelector:   "li, tr",
		DefaultHour:   8,
		DefaultMinute: 30,
	}, det)
	if err != nil {
		return nil, fmt.Errorf("build STATSCAN adapter: %w", err)
	}

	// The Daily's index page lists the same releases when the upcoming
	// calendar is reshuffled.
	statscanDaily, err := html.New(html.Source{
		Key:           "STATSCAN",
		Country:       "CA",
		Agency:        "STATCAN",
		Timezone:      "America/Toronto",
		URLs:          []string{"https://www150.statcan.gc.ca/n1/dai-quo/index-eng.htm"},
		RowSelector:   "li, article",
		DefaultHour:   8,
		DefaultMinute: 30,
	}, det)
	if err != nil {
		return nil, fmt.Errorf("build STATSCAN fallback adapter: %w", err)
	}

	ecb, err := html.New(html.Source{
		Key:           "ECB",
		Country:       "EU",
		Agency:        "ECB",
		Timezone:      "Europe/Berlin",
		URLs:          []string{"https://www.ecb.europa.eu/press/calendars/mgcgc/html/index.en.html"},
		FixedTitle:    "ECB Governing Council Meeting",
		TimeSelector:  "td",
		MaxRows:       200,
		DefaultHour:   13,
		DefaultMinute: 45,
	}, det)
	if err != nil {
		return nil, fmt.Errorf("build ECB adapter: %w", err)
	}

	rbnz, err := html.New(html.Source{
		Key:      "RBNZ",
		Country:  "NZ",
		Agency:   "RBNZ",
		Timezone: "Pacific/Auckland",
		URLs: []string{
			"https://www.rbnz.govt.nz/monetary-policy",
			"https://rbnz.govt.nz/monetary-policy",
		},
		FixedTitle:  "OCR Decision",
		DefaultHour: 14,
	}, det)
	if err != nil {
		return nil, fmt.Errorf("build RBNZ adapter: %w", err)
	}

	nbs, err := html.New(html.Source{
		Key:      "NBS",
		Country:  "CN",
		Agency:   "NBS",
		Timezone: "Asia/Shanghai",
		URLs: []string{
			"https://www.stats.gov.cn/english/PressRelease/",
			"https://www.stats.gov.cn/sj/",
		},
		RowSelector: "li, td",
		DefaultHour: 10,
	}, det)
	if err != nil {
		return nil, fmt.Errorf("build NBS adapter: %w", err)
	}

	esri, err := html.New(html.Source{
		Key:      "ESRI",
		Country:  "JP",
		Agency:   "ESRI",
		Timezone: "Asia/Tokyo",
		URLs: []string{
			"https://www.esri.cao.go.jp/en/stat/shouhi/releaseschedule.html",
			"https://www.esri.cao.go.jp/en/stat/shouhi/shouhi-e.html",
		},
		RowSelector: "li, tr",
		DefaultHour: 14,
	}, det)
	if err != nil {
		return nil, fmt.Errorf("build ESRI adapter: %w", err)
	}

	seco, err := html.New(html.Source{
		Key:          "SECO",
		Country:      "CH",
		Agency:       "SECO",
		Timezone:     "Europe/Zurich",
		URLs:         []string{"https://www.seco.admin.ch/seco/en/home/wirtschaftslage---wirtschaftspolitik/Wirtschaftslage/konjunkturprognosen.html"},
		FixedTitle:   "SECO Economic Forecast",
		TimeSelector: "p, li, td",
		MaxRows:      200,
		DefaultHour:  9,
	}, det)
	if err != nil {
		return nil, fmt.Errorf("build SECO adapter: %w", err)
	}

	secoEstimator, err := static.New(static.Config{
		Key:      "SECO",
		Country:  "CH",
		Agency:   "SECO",
		Timezone: "Europe/Zurich",
		URL:      "https://www.seco.admin.ch/seco/en/home/wirtschaftslage---wirtschaftspolitik/Wirtschaftslage/konjunkturprognosen.html",
		Entries: []static.Entry{
			{Month: time.March, Day: 15, Hour: 9, Title: "SECO Spring Economic Forecast"},
			{Month: time.June, Day: 15, Hour: 9, Title: "SECO Summer Economic Forecast"},
			{Month: time.September, Day: 15, Hour: 9, Title: "SECO Autumn Economic Forecast"},
			{Month: time.December, Day: 15, Hour: 9, Title: "SECO Winter Economic Forecast"},
		},
		Extras: map[string]string{
			"announcement_time_local": "09:00",
			"frequency":               "Quarterly",
			"estimated_date":          "true",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build SECO estimator: %w", err)
	}

	return []collector.Registration{
		{
			Key: "BLS", Country: "US", Agency: "BLS",
			Adapter:            bls.Fetch,
			BaseFloor:          150,
			BigFeederThreshold: 100,
		},
		{
			Key: "EUROSTAT", Country: "EU", Agency: "EUROSTAT",
			Adapter:            eurostat.Fetch,
			Fallback:           eurostat.Fetch,
			DegradeOnShortfall: true,
			BaseFloor:          400,
			BigFeederThreshold: 200,
		},
		{
			Key: "STATSNZ", Country: "NZ", Agency: "STATSNZ",
			Adapter:            statsnz.Fetch,
			Fallback:           statsnz.Fetch,
			DegradeOnShortfall: true,
			BaseFloor:          120,
			BigFeederThreshold: 100,
		},
		{
			Key: "ONS", Country: "GB", Agency: "ONS",
			Adapter:   ons.Fetch,
			BaseFloor: 5,
		},
		{
			Key: "ABS", Country: "AU", Agency: "ABS",
			Adapter:   abs.Fetch,
			BaseFloor: 10,
		},
		{
			Key: "STATSCAN", Country: "CA", Agency: "STATCAN",
			Adapter:   statscan.Fetch,
			Fallback:  statscanDaily.Fetch,
			BaseFloor: 10,
			Aliases:   []string{"STATCAN", "STATCAN_ATOM"},
		},
		{
			Key: "ECB", Country: "EU", Agency: "ECB",
			Adapter:    ecb.Fetch,
			BaseFloor:  1,
			LKGTTLDays: 14,
		},
		{
			Key: "RBNZ", Country: "NZ", Agency: "RBNZ",
			Adapter:    rbnz.Fetch,
			BaseFloor:  1,
			LKGTTLDays: 30,
		},
		{
			Key: "NBS", Country: "CN", Agency: "NBS",
			Adapter:   nbs.Fetch,
			BaseFloor: 1,
		},
		{
			Key: "ESRI", Country: "JP", Agency: "ESRI",
			Adapter:    esri.Fetch,
			BaseFloor:  0,
			LKGTTLDays: 30,
		},
		{
			Key: "SECO", Country: "CH", Agency: "SECO",
			Adapter:    seco.Fetch,
			Fallback:   secoEstimator.Fetch,
			BaseFloor:  0,
			LKGTTLDays: 90,
			Aliases:    []string{"SECO_EST"},
		},
	}, nil
}
