package rules

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// DecimalStyle names the locale convention of numeric cells.
type DecimalStyle int

const (
	// StyleDot is 1,234.56 (period decimal, comma thousands).
	StyleDot DecimalStyle = iota
	// StyleComma is 1.234,56 (comma decimal, period thousands).
	StyleComma
)

var (
	commaDecimalRe = regexp.MustCompile(`\d,\d{1,3}(\D|$)`)
	dotDecimalRe   = regexp.MustCompile(`\d\.\d{1,3}(\D|$)`)
)

// DetectDecimalStyle samples lines and counts comma-decimal vs
// dot-decimal occurrences. Ties and absence default to StyleDot.
// German-language documents overwhelmingly use comma decimals, which
// is what the frequency count picks up.
func DetectDecimalStyle(samples []string) DecimalStyle {
	var commas, dots int
	for _, line := range samples {
		commas += len(commaDecimalRe.FindAllString(line, -1))
		dots += len(dotDecimalRe.FindAllString(line, -1))
	}
	if commas > dots {
		return StyleComma
	}
	return StyleDot
}

// ParseNumber parses a raw cell under the given style, stripping
// currency symbols, spaces, and thousands separators. Returns false
// when nothing numeric remains.
func ParseNumber(raw string, style DecimalStyle) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, false
	}

	// Strip everything that is not digit, sign, comma, or period.
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '-', r == '+', r == ',', r == '.':
			b.WriteRune(r)
		}
	}
	s = b.String()
	if s == "" || s == "-" || s == "+" {
		return decimal.Zero, false
	}

	switch style {
	case StyleComma:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	default:
		s = strings.ReplaceAll(s, ",", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

var currencyCodeRe = regexp.MustCompile(`\b(EUR|USD|GBP|CHF|SEK|NOK|DKK|PLN|CZK|JPY|CNY)\b`)

var currencySymbols = map[string]string{
	"€": "EUR",
	"$": "USD",
	"£": "GBP",
}

// DetectCurrency finds an ISO-4217 code or well-known symbol in text.
func DetectCurrency(text string) string {
	if m := currencyCodeRe.FindString(strings.ToUpper(text)); m != "" {
		return m
	}
	for sym, code := range currencySymbols {
		if strings.Contains(text, sym) {
			return code
		}
	}
	return ""
}

var datePatterns = []struct {
	re     *regexp.Regexp
	layout string
}{
	{regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`), "ymd"},
	{regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`), "dmy"},
	{regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`), "dmy"},
}

// ParseDateISO extracts the first recognizable date from raw and
// renders it ISO-8601 (YYYY-MM-DD). European day-first order is
// assumed for dotted and slashed forms.
func ParseDateISO(raw string) string {
	for _, p := range datePatterns {
		m := p.re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		var y, mo, d string
		if p.layout == "ymd" {
			y, mo, d = m[1], m[2], m[3]
		} else {
			d, mo, y = m[1], m[2], m[3]
		}
		if len(d) == 1 {
			d = "0" + d
		}
		if len(mo) == 1 {
			mo = "0" + mo
		}
		if monthOK(mo) && dayOK(d) {
			return y + "-" + mo + "-" + d
		}
	}
	return ""
}

func monthOK(mo string) bool {
	return mo >= "01" && mo <= "12"
}

func dayOK(d string) bool {
	return d >= "01" && d <= "31"
}
