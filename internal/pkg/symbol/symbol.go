// Package symbol normalizes raw symbols into the exchange's legal form.
package symbol

import (
	"regexp"
	"strings"
)

// DefaultQuoteAsset is appended when a raw symbol carries no recognized
// quote asset.
const DefaultQuoteAsset = "USDT"

// quoteAssets are the quote currencies the exchange trades against,
// ordered longest-first so suffix matching is unambiguous.
var quoteAssets = []string{"USDT", "USDC", "BTC", "ETH"}

var legalPattern = regexp.MustCompile(`^[A-Z0-9]{1,20}$`)

// Normalize upper-cases a raw symbol, strips separators, and appends the
// default quote asset when none of the recognized quote assets is already
// present. The result is the form submitted to the exchange.
func Normalize(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	for _, sep := range []string{"/", "-", "_", ":", " "} {
		s = strings.ReplaceAll(s, sep, "")
	}
	if s == "" {
		return ""
	}
	if !hasQuoteSuffix(s) {
		s += DefaultQuoteAsset
	}
	return s
}

// Valid reports whether a normalized symbol matches the exchange's legal
// symbol pattern.
func Valid(s string) bool {
	return legalPattern.MatchString(s) && hasQuoteSuffix(s)
}

// Base returns the base asset of a normalized symbol, or the input when
// no recognized quote suffix is found.
func Base(s string) string {
	for _, quote := range quoteAssets {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return strings.TrimSuffix(s, quote)
		}
	}
	return s
}

// Quote returns the quote asset of a normalized symbol, defaulting to
// DefaultQuoteAsset.
func Quote(s string) string {
	for _, quote := range quoteAssets {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return quote
		}
	}
	return DefaultQuoteAsset
}

func hasQuoteSuffix(s string) bool {
	for _, quote := range quoteAssets {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return true
		}
	}
	return false
}
