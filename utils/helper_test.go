package utils

import (
	"reflect"
	"testing"
)

func TestUniqueSlicePreservesFirstOccurrence(t *testing.T) {
	got := UniqueSlice([]string{"b", "a", "b", "c", "a"})
	want := []string{"b", "a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("UniqueSlice = %v, want %v", got, want)
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"+16502530000", true},
		{"12", false},
		{"not a number", false},
	}
	for _, tc := range cases {
		err := ValidatePhoneNumber(tc.in, CountryCode)
		if (err == nil) != tc.ok {
			t.Fatalf("ValidatePhoneNumber(%q) error = %v, want ok=%v", tc.in, err, tc.ok)
		}
	}
}

func TestParseDecimal(t *testing.T) {
	d, err := ParseDecimal(" 12.50 ")
	if err != nil {
		t.Fatalf("ParseDecimal error: %v", err)
	}
	if d.String() != "12.5" {
		t.Fatalf("ParseDecimal = %s, want 12.5", d.String())
	}
	if _, err := ParseDecimal(""); err == nil {
		t.Fatalf("expected error on empty input")
	}
}
