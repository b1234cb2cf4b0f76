// Package extract derives discrete, trackable test names from the free-text
// notes a bill request carries. It is a pure heuristic kept for backward
// compatibility with legacy notes; structured test selection is the primary
// input path and bypasses it entirely.
package extract

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/medhaven/clinicflow/internal/domain/labtest"
)

type ExtractedTest struct {
	Name string
	Type labtest.TestType
}

var (
	reConsultationFee = regexp.MustCompile(`(?i)consultation\s+fee:[^,]*,?\s*`)
	reCurrency        = regexp.MustCompile(`₹\d+`)

	// Labeled sections, tried in order; the first match wins.
	reLabeled = []*regexp.Regexp{
		regexp.MustCompile(`(?i)tests?:\s*([^.]+)`),
		regexp.MustCompile(`(?i)test\s+names?:?\s*([^.]+)`),
		regexp.MustCompile(`(?i)laboratory\s+tests?:?\s*([^.]+)`),
		regexp.MustCompile(`(?i)lab\s+tests?:?\s*([^.]+)`),
		regexp.MustCompile(`(?i)blood\s+tests?:?\s*([^.]+)`),
		regexp.MustCompile(`(?i)urine\s+tests?:?\s*([^.]+)`),
		regexp.MustCompile(`(?i)imaging\s+tests?:?\s*([^.]+)`),
		regexp.MustCompile(`(?i)diagnostic\s+tests?:?\s*([^.]+)`),
	}

	reSeparator  = regexp.MustCompile(`[,;|&]`)
	reConnective = regexp.MustCompile(`(?i)^(and|or|with|for)$`)
	reTestPrefix = regexp.MustCompile(`(?i)^tests?\s*`)
	reFeeWord    = regexp.MustCompile(`(?i)^(₹|rupee|dollar|amount|fee)`)
	reStopWord   = regexp.MustCompile(`(?i)^(patient|doctor|amount|consultation|fee|tests?|blood|urine|imaging|₹|rupee|dollar)$`)
)

const fallbackTokenCap = 5

// Extract parses notes into discrete tests with inferred types. It never
// fails: malformed input degrades to a capitalized-token heuristic and
// irrelevant input yields nil. Idempotent on already-clean input.
func Extract(notes string) []ExtractedTest {
	names := Names(notes)
	if len(names) == 0 {
		return nil
	}
	tests := make([]ExtractedTest, 0, len(names))
	for _, name := range names {
		tests = append(tests, ExtractedTest{Name: name, Type: DetectType(name)})
	}
	return tests
}

// Names returns the raw extracted test names without type inference.
func Names(notes string) []string {
	if strings.TrimSpace(notes) == "" {
		return nil
	}

	clean := reConsultationFee.ReplaceAllString(notes, "")
	clean = reCurrency.ReplaceAllString(clean, "")
	clean = strings.TrimSpace(clean)

	for _, re := range reLabeled {
		m := re.FindStringSubmatch(clean)
		if m == nil || strings.TrimSpace(m[1]) == "" {
			continue
		}
		if tests := splitSection(m[1]); len(tests) > 0 {
			return tests
		}
	}

	return fallbackTokens(clean)
}

// splitSection breaks a labeled section on common separators and filters out
// connectives, fee words, and fragments too short to be test names.
func splitSection(section string) []string {
	var tests []string
	for _, raw := range reSeparator.Split(section, -1) {
		t := strings.TrimSpace(raw)
		if t == "" || reConnective.MatchString(t) {
			continue
		}
		t = strings.TrimSpace(reTestPrefix.ReplaceAllString(t, ""))
		if len(t) <= 2 || reFeeWord.MatchString(t) {
			continue
		}
		tests = append(tests, t)
	}
	return tests
}

// fallbackTokens picks capitalized words from unlabeled text, skipping
// structural vocabulary, capped so noisy notes don't fan out into dozens of
// bogus test requests.
func fallbackTokens(clean string) []string {
	var tokens []string
	for _, word := range strings.Fields(clean) {
		if len(tokens) == fallbackTokenCap {
			break
		}
		if len(word) <= 3 || !startsUpper(word) || reStopWord.MatchString(word) {
			continue
		}
		tokens = append(tokens, word)
	}
	return tokens
}

func startsUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

var bloodKeywords = []string{
	"blood", "cbc", "sugar", "malaria", "dengue", "typhoid",
	"liver", "kidney", "ecg", "hemoglobin",
}

var imagingKeywords = []string{"x-ray", "ct", "mri", "ultrasound", "scan"}

// DetectType infers the lab category from a test name.
func DetectType(testName string) labtest.TestType {
	name := strings.ToLower(testName)

	for _, kw := range bloodKeywords {
		if strings.Contains(name, kw) {
			return labtest.TypeBlood
		}
	}

	if strings.Contains(name, "urine") {
		return labtest.TypeUrine
	}

	for _, kw := range imagingKeywords {
		if strings.Contains(name, kw) {
			return labtest.TypeImaging
		}
	}

	return labtest.TypeOther
}
