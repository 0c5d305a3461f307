package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseTokens(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"£99", "99"},
		{"€120", "120"},
		{"$342.93", "342.93"},
		{"1.234", "1234"},
		{"1,234.56", "1234.56"},
		{"1.234,56", "1234.56"},
		{"From £ 45 per person", "45"},
		{"-12.50", "-12.5"},
		{"USD 1,999", "1999"},
		{"2.5", "2.5"},
		{"0.99", "0.99"},
	}

	for _, tc := range cases {
		got, ok := Parse(tc.in)
		if !ok {
			t.Fatalf("Parse(%q) failed, want %s", tc.in, tc.want)
		}
		want := decimal.RequireFromString(tc.want)
		if !got.Equal(want) {
			t.Fatalf("Parse(%q) = %s, want %s", tc.in, got, want)
		}
	}
}

func TestParseRejectsNonNumeric(t *testing.T) {
	for _, in := range []string{"", "   ", "not a price", "£", "Sold out"} {
		if _, ok := Parse(in); ok {
			t.Fatalf("Parse(%q) should fail", in)
		}
	}
}

func TestPickLowest(t *testing.T) {
	if _, ok := PickLowest(nil); ok {
		t.Fatal("PickLowest(nil) should report no value")
	}

	value, ok := PickLowest([]string{"€120", "£99", "not a price"})
	if !ok {
		t.Fatal("PickLowest should find a value")
	}
	if !value.Equal(decimal.NewFromInt(99)) {
		t.Fatalf("PickLowest = %s, want 99", value)
	}
}

func TestPickLowestCandidateKeepsRaw(t *testing.T) {
	candidate, ok := PickLowestCandidate([]string{"£150", "£89.99", "£210"})
	if !ok {
		t.Fatal("expected a candidate")
	}
	if candidate.Raw != "£89.99" {
		t.Fatalf("raw text = %q, want £89.99", candidate.Raw)
	}
}

func TestGuessCurrency(t *testing.T) {
	cases := map[string]string{
		"£99":        "GBP",
		"$120":       "USD",
		"€45.50":     "EUR",
		"USD 342.93": "USD",
		"99":         "",
	}
	for in, want := range cases {
		if got := GuessCurrency(in); got != want {
			t.Fatalf("GuessCurrency(%q) = %q, want %q", in, got, want)
		}
	}
}
