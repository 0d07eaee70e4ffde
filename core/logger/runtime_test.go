package logger

import "testing"

func TestMaskDigits(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"hello", "hello"},
		{"2125550199", "******0199"},
		{"+1 (212) 555-0199", "+1 (212) 555-0199"}, // no run longer than four
		{"call 12125550199 now", "call *******0199 now"},
		{"pin 1234", "pin 1234"},
	}
	for _, tc := range cases {
		if got := MaskDigits(tc.in); got != tc.want {
			t.Errorf("MaskDigits(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCompactRID(t *testing.T) {
	if got := CompactRID("100:200:300"); got == "" || got == "100:200:300" {
		t.Errorf("CompactRID should shorten segments, got %q", got)
	}
	if got := CompactRID(""); got != "" {
		t.Errorf("empty rid should stay empty, got %q", got)
	}
}
