package deal

import "strings"

// UnknownMarket is the market assigned to channels outside the naming convention.
const UnknownMarket = "unknown"

// ChannelRule is the channel naming convention: "<prefix>-<market>[-...]".
//
// Market extraction uses the two-segment rule: the market is the second
// hyphen-separated segment whenever the first equals Prefix.
//
// Eligibility depends on Suffix. With a Suffix the channel must look like
// "<prefix>-<market>-<suffix>" (e.g. blitz-socal-deals). Without one the
// channel must be exactly "<prefix>-<market>" with no further hyphens.
type ChannelRule struct {
	Prefix string
	Suffix string
}

// DefaultChannelRule matches channels such as "blitz-socal-deals".
var DefaultChannelRule = ChannelRule{Prefix: "blitz", Suffix: "deals"}

// Market derives the market from a channel name, or UnknownMarket.
func (r ChannelRule) Market(channelName string) string {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(channelName)), "-")
	if len(parts) < 2 || parts[0] != strings.ToLower(r.Prefix) || parts[1] == "" {
		return UnknownMarket
	}
	return parts[1]
}

// Eligible reports whether deals posted in the channel are logged.
func (r ChannelRule) Eligible(channelName string) bool {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(channelName)), "-")
	if len(parts) < 2 || parts[0] != strings.ToLower(r.Prefix) {
		return false
	}
	for _, p := range parts[1:] {
		if p == "" {
			return false
		}
	}
	if r.Suffix == "" {
		return len(parts) == 2
	}
	return len(parts) >= 3 && parts[len(parts)-1] == strings.ToLower(r.Suffix)
}
