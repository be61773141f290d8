package validator

import "testing"

func TestNormalizeAccountID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{" zer-1234 5678 90123 ", "ZER1234567890123"},
		{"abc", "ABC"},
		{"zer1234567890123", "ZER1234567890123"},
		{"a1b2-c3d4.e5f6_g7h8i9j0k1", "A1B2C3D4E5F6G7H8I9"}, // capped at 18
	}
	for _, c := range cases {
		if got := NormalizeAccountID(c.in); got != c.want {
			t.Errorf("NormalizeAccountID(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestValidateAccountID(t *testing.T) {
	cases := []struct {
		name   string
		broker string
		raw    string
		valid  bool
	}{
		{"zerodha ok", "zerodha", "ZER1234567890123", true},
		{"zerodha lowercase ok", "Zerodha", "zer1234567890123", true},
		{"zerodha too short", "zerodha", "ZER12", false},
		{"zerodha all digits rejected", "zerodha", "1234567890123", false},
		{"groww ok", "groww", "123456789012", true},
		{"groww letters rejected", "groww", "12345678901A", false},
		{"upstox ok", "upstox", "AB12345678", true},
		{"unknown broker falls back to length bound", "newbroker", "ABCDEFG12345", true},
		{"unknown broker too short", "newbroker", "ABC123", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res := ValidateAccountID(c.broker, c.raw)
			if res.IsValid != c.valid {
				t.Fatalf("ValidateAccountID(%q, %q) valid = %v, want %v (msg: %s)", c.broker, c.raw, res.IsValid, c.valid, res.Message)
			}
			if !res.IsValid && res.Message == "" {
				t.Error("invalid result must carry a message")
			}
		})
	}
}

func TestRiskScoreClampedAndAdjusted(t *testing.T) {
	cases := []struct {
		experience string
		income     string
		want       int
	}{
		{"novice", "low", 80},
		{"novice", "mid", 65},
		{"intermediate", "mid", 50},
		{"advanced", "high", 20},
		{"advanced", "mid", 35},
		{"", "", 50},
		{"NOVICE", "LOW", 80}, // case-insensitive
	}
	for _, c := range cases {
		if got := RiskScore(c.experience, c.income); got != c.want {
			t.Errorf("RiskScore(%q, %q) = %d, want %d", c.experience, c.income, got, c.want)
		}
	}
}

func TestRiskScoreBounds(t *testing.T) {
	for _, exp := range []string{"novice", "intermediate", "advanced", "x"} {
		for _, inc := range []string{"low", "mid", "high", "y"} {
			got := RiskScore(exp, inc)
			if got < 0 || got > 100 {
				t.Fatalf("RiskScore(%q, %q) = %d out of [0,100]", exp, inc, got)
			}
		}
	}
}
