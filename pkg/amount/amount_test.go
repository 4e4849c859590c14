package amount

import (
	"errors"
	"math/big"
	"testing"
)

func TestParseBalance(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"123000", "123000"},
		{"1.23e+5", "123000"},
		{"1.23E5", "123000"},
		{"4e21", "4000000000000000000000"},
		{"1.234567890123456789e+18", "1234567890123456789"},
		{"  42 ", "42"},
		{"100.000", "100"},
	}
	for _, tt := range tests {
		got, err := ParseBalance(tt.in)
		if err != nil {
			t.Fatalf("ParseBalance(%q): %v", tt.in, err)
		}
		want, _ := new(big.Int).SetString(tt.want, 10)
		if got.Cmp(want) != 0 {
			t.Errorf("ParseBalance(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseBalance_Rejects(t *testing.T) {
	if _, err := ParseBalance("1.5"); !errors.Is(err, ErrNotInteger) {
		t.Errorf("fractional: err = %v, want ErrNotInteger", err)
	}
	if _, err := ParseBalance("1e-3"); !errors.Is(err, ErrNotInteger) {
		t.Errorf("negative exponent: err = %v, want ErrNotInteger", err)
	}
	if _, err := ParseBalance("-5"); !errors.Is(err, ErrNegative) {
		t.Errorf("negative: err = %v, want ErrNegative", err)
	}
	if _, err := ParseBalance(""); err == nil {
		t.Error("empty value should fail")
	}
	if _, err := ParseBalance("abc"); err == nil {
		t.Error("garbage should fail")
	}
}

func TestFormatUnits(t *testing.T) {
	v, _ := new(big.Int).SetString("1500000000000000000", 10)
	if got := FormatUnits(v, 18); got != "1.5" {
		t.Errorf("FormatUnits = %q, want 1.5", got)
	}
	if got := FormatUnits(big.NewInt(42), 0); got != "42" {
		t.Errorf("FormatUnits = %q, want 42", got)
	}
	if got := FormatUnits(nil, 18); got != "0" {
		t.Errorf("FormatUnits(nil) = %q, want 0", got)
	}
}
