package phone

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+1 (212) 555-0199", "2125550199"},
		{"1-212-555-0199", "2125550199"},
		{"212 555 0199", "2125550199"},
		{"12125550199", "2125550199"},
		{"2125550199", "2125550199"},
		// 11 digits without a leading "1" keep all digits
		{"22125550199", "22125550199"},
		// international numbers longer than 11 digits are untouched
		{"+44 20 7946 0958", "442079460958"},
		{"abc", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDigits(t *testing.T) {
	if !Digits("0123456789") {
		t.Error("expected all-digit string to pass")
	}
	if Digits("") || Digits("123a") || Digits(" 123") {
		t.Error("expected non-digit input to fail")
	}
}

func TestMask(t *testing.T) {
	if got := Mask("2125550199"); got != "******0199" {
		t.Errorf("Mask = %q", got)
	}
	if got := Mask("199"); got != "199" {
		t.Errorf("short Mask = %q", got)
	}
	if got := Last4("2125550199"); got != "0199" {
		t.Errorf("Last4 = %q", got)
	}
}
