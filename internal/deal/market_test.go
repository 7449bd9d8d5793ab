package deal

import "testing"

func TestChannelRule_Market(t *testing.T) {
	r := DefaultChannelRule
	tests := map[string]string{
		"blitz-socal-deals": "socal",
		"Blitz-NorCal-Deals": "norcal",
		"blitz-phoenix":      "phoenix",
		"random-channel":     UnknownMarket,
		"blitz":              UnknownMarket,
		"blitz-":             UnknownMarket,
		"":                   UnknownMarket,
	}
	for name, want := range tests {
		if got := r.Market(name); got != want {
			t.Errorf("Market(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestChannelRule_Eligible_WithSuffix(t *testing.T) {
	r := ChannelRule{Prefix: "blitz", Suffix: "deals"}
	tests := map[string]bool{
		"blitz-socal-deals":       true,
		"blitz-socal-west-deals":  true,
		"BLITZ-SOCAL-DEALS":       true,
		"blitz-socal":             false,
		"blitz-socal-chat":        false,
		"blitz-deals":             false,
		"general":                 false,
		"team-blitz-socal-deals":  false,
		"blitz--deals":            false,
	}
	for name, want := range tests {
		if got := r.Eligible(name); got != want {
			t.Errorf("Eligible(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestChannelRule_Eligible_PrefixOnly(t *testing.T) {
	r := ChannelRule{Prefix: "blitz"}
	tests := map[string]bool{
		"blitz-socal":       true,
		"blitz-socal-deals": false,
		"blitz":             false,
		"other-socal":       false,
	}
	for name, want := range tests {
		if got := r.Eligible(name); got != want {
			t.Errorf("Eligible(%q) = %v, want %v", name, got, want)
		}
	}
}
