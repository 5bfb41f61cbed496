package ingest

import "testing"

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"U$S 1.234,56", "1234.56"},
		{"$45.000,00", "45000"},
		{"$ 1.200,50", "1200.5"},
		{"USD 99,99", "99.99"},
		{"AR$ 300,00", "300"},
		{"ARS$ 15.000,25", "15000.25"},
		{"1.000.000,00", "1000000"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAmount(tt.raw)
			if err != nil {
				t.Fatalf("ParseAmount(%q) error: %v", tt.raw, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseAmountNoResidualSymbol(t *testing.T) {
	// "U$S" must be stripped before "$", otherwise a partial strip leaves
	// "U S" or a stray "$" behind.
	got, err := ParseAmount("U$S 1.234,56")
	if err != nil {
		t.Fatalf("ParseAmount error: %v", err)
	}
	if got.String() != "1234.56" {
		t.Errorf("got %s, want 1234.56", got)
	}
}

func TestParseAmountInvalid(t *testing.T) {
	for _, raw := range []string{"", "sin monto", "$$"} {
		if _, err := ParseAmount(raw); err == nil {
			t.Errorf("ParseAmount(%q) expected error", raw)
		}
	}
}

func TestDetectCurrency(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"U$S 1.234,56", "USD"},
		{"$45.000,00", "ARS"},
		{"1.234,56", ""},
	}
	for _, tt := range tests {
		if got := DetectCurrency(tt.raw); got != tt.want {
			t.Errorf("DetectCurrency(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
