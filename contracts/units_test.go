package contracts

import (
	"math/big"
	"testing"
)

func TestParseUnits(t *testing.T) {
	cases := []struct {
		value    string
		decimals uint8
		want     string
	}{
		{"1000000", 18, "1000000000000000000000000"},
		{"2", 8, "200000000"},
		{"2", 26, "200000000000000000000000000"},
		{"0.5", 1, "5"},
		{" 1.25 ", 2, "125"},
		{"0", 18, "0"},
	}
	for _, tc := range cases {
		got, err := ParseUnits(tc.value, tc.decimals)
		if err != nil {
			t.Fatalf("ParseUnits(%q, %d): %v", tc.value, tc.decimals, err)
		}
		if got.String() != tc.want {
			t.Fatalf("ParseUnits(%q, %d) = %s, want %s", tc.value, tc.decimals, got, tc.want)
		}
	}
}

func TestParseUnitsRejects(t *testing.T) {
	for _, value := range []string{"", "abc", "-1", "0.123", "1e100", "1e6", "2E3"} {
		if _, err := ParseUnits(value, 2); err == nil {
			t.Fatalf("expected ParseUnits(%q) to fail", value)
		}
	}
}

func TestFormatUnits(t *testing.T) {
	cases := []struct {
		value    *big.Int
		decimals uint8
		want     string
	}{
		{MustParseUnits("1000000", 18), 18, "1000000.0"},
		{MustParseUnits("3000000", 18), 18, "3000000.0"},
		{big.NewInt(200000000), 18, "0.0000000002"},
		{big.NewInt(0), 18, "0.0"},
		{nil, 8, "0.0"},
	}
	for _, tc := range cases {
		if got := FormatUnits(tc.value, tc.decimals); got != tc.want {
			t.Fatalf("FormatUnits(%v, %d) = %q, want %q", tc.value, tc.decimals, got, tc.want)
		}
	}
}

func TestMaxUint256(t *testing.T) {
	want := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if MaxUint256().Cmp(want) != 0 {
		t.Fatalf("unexpected max uint256 %s", MaxUint256())
	}
}
