package tron

import (
	"strings"
	"testing"
)

const (
	usdtBase58 = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	usdtRawHex = "41a614f803b6fd780986a42c78ec9c7f77e6ded13c"
)

func TestFromRawHex(t *testing.T) {
	got, err := FromRawHex(usdtRawHex)
	if err != nil {
		t.Fatalf("FromRawHex failed: %v", err)
	}
	if got != usdtBase58 {
		t.Fatalf("expected %s, got %s", usdtBase58, got)
	}
}

func TestFromRawHexRejectsWrongPrefix(t *testing.T) {
	if _, err := FromRawHex("00a614f803b6fd780986a42c78ec9c7f77e6ded13c"); err == nil {
		t.Fatal("expected error for non-41 prefix")
	}
	if _, err := FromRawHex("41a614"); err == nil {
		t.Fatal("expected error for truncated payload")
	}
	if _, err := FromRawHex("not-hex"); err == nil {
		t.Fatal("expected error for invalid hex")
	}
}

func TestFromEVMHex(t *testing.T) {
	got, err := FromEVMHex("0xa614f803b6fd780986a42c78ec9c7f77e6ded13c")
	if err != nil {
		t.Fatalf("FromEVMHex failed: %v", err)
	}
	if got != usdtBase58 {
		t.Fatalf("expected %s, got %s", usdtBase58, got)
	}
}

func TestToRawHexRoundTrip(t *testing.T) {
	raw, err := ToRawHex(usdtBase58)
	if err != nil {
		t.Fatalf("ToRawHex failed: %v", err)
	}
	if raw != usdtRawHex {
		t.Fatalf("expected %s, got %s", usdtRawHex, raw)
	}

	back, err := FromRawHex(raw)
	if err != nil {
		t.Fatalf("FromRawHex failed on round trip: %v", err)
	}
	if back != usdtBase58 {
		t.Fatalf("round trip mismatch: %s", back)
	}
}

func TestCanonical(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{usdtBase58, usdtBase58},
		{usdtRawHex, usdtBase58},
		{strings.ToUpper(usdtRawHex), usdtBase58},
		{"0xa614f803b6fd780986a42c78ec9c7f77e6ded13c", usdtBase58},
		{"", ""},
		{"garbage", "garbage"},
	}
	for _, tc := range cases {
		if got := Canonical(tc.in); got != tc.want {
			t.Fatalf("Canonical(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
