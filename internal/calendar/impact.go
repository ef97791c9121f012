package calendar

import "strings"

// Impact levels.
const (
	ImpactHigh   = "High"
	ImpactMedium = "Medium"
	ImpactLow    = "Low"
)

var highImpactKeywords = []string{
	"CPI",
	"INFLATION",
	"GDP",
	"PAYROLL",
	"NONFARM",
	"RATE DECISION",
	"INTEREST RATE",
	"MONETARY POLICY",
	"FOMC",
	"OCR",
	"CASH RATE",
}

var mediumImpactKeywords = []string{
	"EMPLOYMENT",
	"UNEMPLOYMENT",
	"LABOUR",
	"LABOR",
	"PPI",
	"PRODUCER PRICE",
	"RETAIL",
	"TRADE BALANCE",
	"HOUSING",
	"CONFIDENCE",
	"SENTIMENT",
}

// ClassifyImpact maps a release title to a market-impact bucket by keyword.
func ClassifyImpact(title string) string {
	upper := strings.ToUpper(title)
	for _, kw := range highImpactKeywords {
		if strings.Contains(upper, kw) {
			return ImpactHigh
		}
	}
	for _, kw := range mediumImpactKeywords {
		if strings.Contains(upper, kw) {
			return ImpactMedium
		}
	}
	return ImpactLow
}
