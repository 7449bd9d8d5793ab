package deal

import (
	"testing"

	"github.com/shopspring/decimal"
)

func gb(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParser_Parse_Accepts(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"2G sold!", "2"},
		{"0.5gbps", "0.5"},
		{"0.5gig too easy", "0.5"},
		{".5g", "0.5"},
		{"closed .75 gig", "0.75"},
		{"just closed a 1 GB plan", "1"},
		{"10gigs baby", "10"},
		{"1.5 Gbps for the bakery", "1.5"},
		{"0.1g", "0.1"},
		{"3gps", "3"},
		{"2gbs", "2"},
		{"(2g) sold", "2"},
		{"500mb to the corner store", "0.5"},
		{"200 Mbps", "0.2"},
		{"200m", "0.2"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			d, ok := Parser{}.Parse(tt.text)
			if !ok {
				t.Fatalf("Parse(%q) = not a deal, want %s GB", tt.text, tt.want)
			}
			if d.Count != 1 {
				t.Errorf("Count = %d, want 1", d.Count)
			}
			if !d.SizeGB.Equal(gb(tt.want)) {
				t.Errorf("SizeGB = %s, want %s", d.SizeGB, tt.want)
			}
		})
	}
}

func TestParser_Parse_Rejects(t *testing.T) {
	tests := []string{
		"15g",
		"0.05gb",
		"call me at 555 1234",
		"leaderboard",
		"300mb",
		"1200mb",
		"500 miles away",
		"2gbx",
		"1.5.2g",
		"v.5g",
		"x2g",
		"",
	}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			if d, ok := (Parser{}).Parse(text); ok {
				t.Errorf("Parse(%q) = %+v, want not a deal", text, d)
			}
		})
	}
}

func TestParser_Parse_FirstTokenOnly(t *testing.T) {
	d, ok := Parser{}.Parse("2g and another 1g")
	if !ok {
		t.Fatal("expected a deal")
	}
	if d.Count != 1 || !d.SizeGB.Equal(gb("2")) {
		t.Errorf("got %+v, want count=1 size=2", d)
	}

	// An out-of-range first token decides the message.
	if _, ok := (Parser{}).Parse("20g then 1g"); ok {
		t.Error("expected out-of-range first token to reject the message")
	}
}

func TestParser_Parse_MultiCount(t *testing.T) {
	p := Parser{MultiCount: true}
	d, ok := p.Parse("2g, 1g and 500mb")
	if !ok {
		t.Fatal("expected a deal")
	}
	if d.Count != 3 {
		t.Errorf("Count = %d, want 3", d.Count)
	}
	if !d.SizeGB.Equal(gb("3.5")) {
		t.Errorf("SizeGB = %s, want 3.5", d.SizeGB)
	}

	d, ok = p.Parse("20g then 1g")
	if !ok || d.Count != 1 || !d.SizeGB.Equal(gb("1")) {
		t.Errorf("got %+v ok=%v, want one 1GB deal", d, ok)
	}

	// Sums stay exact.
	d, _ = p.Parse("0.1g 0.2g")
	if d.SizeGB.String() != "0.3" {
		t.Errorf("0.1g + 0.2g = %s, want 0.3", d.SizeGB)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		token string
		want  string
		ok    bool
	}{
		{"2g", "2", true},
		{" 1.5GB ", "1.5", true},
		{"500mb", "0.5", true},
		{"2 gig", "2", true},
		{".5g", "0.5", true},
		{"11g", "0", false},
		{"-2g", "0", false},
		{"2g please", "0", false},
		{"last deal", "0", false},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, ok := ParseSize(tt.token)
			if ok != tt.ok || !got.Equal(gb(tt.want)) {
				t.Errorf("ParseSize(%q) = %s, %v; want %s, %v", tt.token, got, ok, tt.want, tt.ok)
			}
		})
	}
}
