package fetch

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// The counter is rendered with thousands separators and K/M/B suffixes
// ("1,200 videos", "31.5M videos"). Patterns are tried in order; the
// first parseable match wins.
var countPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)([\d,]+(?:\.\d+)?\s*[KMB]?)\s*videos?`),
	regexp.MustCompile(`([\d,]+(?:\.\d+)?\s*[KMB]?)`),
}

// parseCount converts a rendered counter like "31.5M" or "1,200" into an
// integer.
func parseCount(raw string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, ",", "")

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1_000
		s = strings.TrimSpace(strings.TrimSuffix(s, "K"))
	case strings.HasSuffix(s, "M"):
		multiplier = 1_000_000
		s = strings.TrimSpace(strings.TrimSuffix(s, "M"))
	case strings.HasSuffix(s, "B"):
		multiplier = 1_000_000_000
		s = strings.TrimSpace(strings.TrimSuffix(s, "B"))
	}

	base, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", raw, err)
	}

	return int64(base * float64(multiplier)), nil
}

// extractCount finds the counter inside arbitrary surrounding text.
func extractCount(text string) (int64, bool) {
	for _, pattern := range countPatterns {
		match := pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		count, err := parseCount(match[1])
		if err != nil {
			continue
		}
		return count, true
	}
	return 0, false
}
