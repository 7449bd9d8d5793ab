// Package deal recognizes deal announcements in chat text and derives the
// market dimension from channel names.
//
// A deal is announced by mentioning a package size anywhere in a message:
// "2G sold!", "0.5gig too easy", "500mb for the corner store". Sizes are
// normalized to GB. Quantities outside [MinSizeGB, MaxSizeGB] are rejected
// so phone numbers and other stray numerics never register as deals.
package deal

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Accepted package-size range in GB, inclusive.
var (
	MinSizeGB = decimal.RequireFromString("0.1")
	MaxSizeGB = decimal.NewFromInt(10)
)

// sizeToken matches one package-size mention. The MB branch comes first so
// "200m" is read as megabytes before the GB branch can claim the digits.
// The leading group stands in for a word boundary that also refuses a
// preceding dot, so "1.5.2g" is not read as 5.2 and ".5g" keeps its point.
var sizeToken = regexp.MustCompile(`(?i)(?:^|[^\w.])(?:(200|500)\s*(?:mbps|mb|m)|(\d+(?:\.\d+)?|\.\d+)\s*(?:gbps|gig|gps|gb|g))s?\b`)

// Deal is one recognized deal announcement.
type Deal struct {
	Count  int
	SizeGB decimal.Decimal
}

// Parser turns free text into a Deal.
type Parser struct {
	// MultiCount counts every valid size token in a message instead of only
	// the first. Off by default: one message is one deal.
	MultiCount bool
}

// Parse returns the deal announced in text, or false when text is not a deal.
// Only the first size token decides unless MultiCount is set.
func (p Parser) Parse(text string) (Deal, bool) {
	matches := sizeToken.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return Deal{}, false
	}
	if !p.MultiCount {
		size, ok := sizeFromMatch(matches[0])
		if !ok {
			return Deal{}, false
		}
		return Deal{Count: 1, SizeGB: size}, true
	}

	var d Deal
	for _, m := range matches {
		size, ok := sizeFromMatch(m)
		if !ok {
			continue
		}
		d.Count++
		d.SizeGB = d.SizeGB.Add(size)
	}
	if d.Count == 0 {
		return Deal{}, false
	}
	return d, true
}

// ParseSize parses a standalone size token such as "2g" or "500mb". The
// whole input must be the token; surrounding text is rejected.
func ParseSize(token string) (decimal.Decimal, bool) {
	token = strings.TrimSpace(token)
	loc := sizeToken.FindStringSubmatchIndex(token)
	if loc == nil || loc[1] != len(token) {
		return decimal.Decimal{}, false
	}
	start := loc[2]
	if start < 0 {
		start = loc[4]
	}
	if start != 0 {
		return decimal.Decimal{}, false
	}
	return sizeFromMatch(sizeToken.FindStringSubmatch(token))
}

func sizeFromMatch(m []string) (decimal.Decimal, bool) {
	if m[1] != "" {
		mb, err := decimal.NewFromString(m[1])
		if err != nil {
			return decimal.Decimal{}, false
		}
		return mb.Shift(-3), true
	}
	raw := m[2]
	if strings.HasPrefix(raw, ".") {
		raw = "0" + raw
	}
	gb, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if gb.LessThan(MinSizeGB) || gb.GreaterThan(MaxSizeGB) {
		return decimal.Decimal{}, false
	}
	return gb, true
}
