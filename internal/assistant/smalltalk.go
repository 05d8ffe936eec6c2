package assistant

import (
	"strings"

	"bankbot/internal/domain"
)

// MatchSmalltalk returns the response of the first rule whose pattern,
// stripped of % and * wildcards, occurs in the normalized text. Rules are
// tried in the order given.
func MatchSmalltalk(rules []domain.SmalltalkRule, normalized string) (string, bool) {
	for _, rule := range rules {
		needle := stripWildcards(rule.Pattern)
		if needle == "" {
			continue
		}
		if strings.Contains(normalized, needle) {
			return rule.Response, true
		}
	}
	return "", false
}

func stripWildcards(pattern string) string {
	p := strings.NewReplacer("%", "", "*", "").Replace(pattern)
	return strings.ToLower(strings.TrimSpace(p))
}
