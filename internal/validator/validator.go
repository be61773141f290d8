package validator

import (
	"fmt"
	"regexp"
	"strings"
)

// Result is what account-ID validation reports back to the caller. Failures
// are carried in Message, never returned as errors: a malformed account ID
// is an expected condition.
type Result struct {
	IsValid    bool   `json:"is_valid"`
	Normalized string `json:"normalized_value"`
	Message    string `json:"message,omitempty"`
}

const (
	minAccountIDLen = 10
	maxAccountIDLen = 18
)

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]`)

type brokerFormat struct {
	pattern *regexp.Regexp
	hint    string
}

// Broker-specific formats. Anything not listed falls back to the universal
// 10-18 alphanumeric bound.
var brokerFormats = map[string]brokerFormat{
	"zerodha":  {regexp.MustCompile(`^[A-Z]{2,3}[A-Z0-9]{10,15}$`), "2-3 letters followed by 10-15 alphanumerics"},
	"groww":    {regexp.MustCompile(`^[0-9]{12,14}$`), "12-14 digits"},
	"upstox":   {regexp.MustCompile(`^[A-Z0-9]{10,12}$`), "10-12 alphanumerics"},
	"angelone": {regexp.MustCompile(`^[A-Z][A-Z0-9]{9,15}$`), "letter followed by 9-15 alphanumerics"},
}

// NormalizeAccountID trims, uppercases, strips non-alphanumerics and caps
// length. The normalized form is the canonical linkage key.
func NormalizeAccountID(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = nonAlnum.ReplaceAllString(s, "")
	if len(s) > maxAccountIDLen {
		s = s[:maxAccountIDLen]
	}
	return s
}

// ValidateAccountID normalizes the raw ID and checks it against the broker's
// format plus the universal length bound.
func ValidateAccountID(broker, raw string) Result {
	normalized := NormalizeAccountID(raw)
	if len(normalized) < minAccountIDLen {
		return Result{
			Normalized: normalized,
			Message:    fmt.Sprintf("account id must be at least %d characters after normalization", minAccountIDLen),
		}
	}
	key := strings.ToLower(strings.TrimSpace(broker))
	if f, ok := brokerFormats[key]; ok && !f.pattern.MatchString(normalized) {
		return Result{
			Normalized: normalized,
			Message:    fmt.Sprintf("account id does not match %s format (%s)", key, f.hint),
		}
	}
	return Result{IsValid: true, Normalized: normalized}
}

// Self-reported bands used for risk scoring.
const (
	ExperienceNovice       = "novice"
	ExperienceIntermediate = "intermediate"
	ExperienceAdvanced     = "advanced"

	IncomeLow  = "low"
	IncomeMid  = "mid"
	IncomeHigh = "high"
)

const riskScoreBase = 50

// RiskScore computes the submission risk score: base 50 adjusted by
// self-reported trading experience and income band, clamped to [0,100].
// Higher means riskier.
func RiskScore(experience, income string) int {
	score := riskScoreBase
	switch strings.ToLower(strings.TrimSpace(experience)) {
	case ExperienceNovice:
		score += 15
	case ExperienceAdvanced:
		score -= 15
	}
	switch strings.ToLower(strings.TrimSpace(income)) {
	case IncomeLow:
		score += 15
	case IncomeHigh:
		score -= 15
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
