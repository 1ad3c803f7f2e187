package utils

import "testing"

func TestNormalizers(t *testing.T) {
	cases := []struct {
		name string
		fn   func(string) string
		in   string
		want string
	}{
		{"name", NormalizeName, "  Asha   K  Rao ", "Asha K Rao"},
		{"email", NormalizeEmail, " Asha@Example.COM ", "asha@example.com"},
		{"phone", NormalizePhone, "+91 98765-43210", "+919876543210"},
		{"phone no plus", NormalizePhone, "(080) 1234 567", "0801234567"},
		{"register", NormalizeRegisterNumber, " 21bce 1001 ", "21BCE1001"},
	}
	for _, c := range cases {
		if got := c.fn(c.in); got != c.want {
			t.Errorf("%s: got %q want %q", c.name, got, c.want)
		}
	}
}

func TestValidators(t *testing.T) {
	for _, e := range []string{"a@b.co", "first.last@campus.edu"} {
		if !IsValidEmail(e) {
			t.Errorf("%q should be valid", e)
		}
	}
	for _, e := range []string{"", "nope", "a@b", "a@@b.com", "a@.com", "a b@c.com"} {
		if IsValidEmail(e) {
			t.Errorf("%q should be invalid", e)
		}
	}
	if !IsValidPhone("+91 98765 43210") || IsValidPhone("12345") {
		t.Error("phone validation mismatch")
	}
}
