package services

import (
	"regexp"
	"strings"

	"github.com/gravitycar/lorekeeper/internal/core/domain"
	"github.com/gravitycar/lorekeeper/internal/logger"
)

// comparisonPatterns detect comparison intent in a query. Each pattern
// captures exactly two entity names.
var comparisonPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)compare\s+(?:the\s+)?(.+?)\s+(?:and|with|to)\s+(?:the\s+)?(.+?)(?:\.|\?|$)`),
	regexp.MustCompile(`(?i)(.+?)\s+vs\.?\s+(.+?)(?:\.|\?|$)`),
	regexp.MustCompile(`(?i)(.+?)\s+versus\s+(.+?)(?:\.|\?|$)`),
	regexp.MustCompile(`(?i)differences?\s+between\s+(?:the\s+)?(.+?)\s+and\s+(?:the\s+)?(.+?)(?:\.|\?|$)`),
	regexp.MustCompile(`(?i)(?:the\s+)?(.+?)\s+and\s+(?:the\s+)?(.+?)\s+differ`),
}

// entityTrailerPattern strips instruction phrases that leak into the
// second capture, e.g. "red dragons and white dragons summarize their
// stats".
var entityTrailerPattern = regexp.MustCompile(`(?i)\s+(summarize|summarise|what are|how do|explain).*$`)

// detectComparison inspects a query for a comparison pattern ("X vs
// Y", "compare X and Y", ...) and extracts the two compared entity
// names, best effort. Returns ok=false when no pattern matches or the
// extracted entities are ambiguous (empty or identical); the caller
// degrades to ordinary ranking.
func detectComparison(query string) (first, second string, ok bool) {
	for _, pattern := range comparisonPatterns {
		m := pattern.FindStringSubmatch(query)
		if m == nil {
			continue
		}

		first = strings.TrimSpace(m[1])
		second = strings.TrimSpace(entityTrailerPattern.ReplaceAllString(m[2], ""))

		if first == "" || second == "" {
			logger.Warn("Comparison pattern matched but entities are ambiguous: %q", query)
			return "", "", false
		}
		if strings.EqualFold(first, second) {
			logger.Warn("Comparison entities are identical (%q), using ordinary ranking", first)
			return "", "", false
		}

		logger.Debug("Comparison detected: %q vs %q", first, second)
		return first, second, true
	}
	return "", "", false
}

// matchesEntity reports whether a candidate references the entity by
// title or text. Titles are also compared with any parenthetical
// suffix stripped, so "Dragon, Red (Adult)" matches "dragon, red".
func matchesEntity(c domain.Candidate, entity string) bool {
	entity = strings.ToLower(strings.TrimSpace(entity))
	if entity == "" {
		return false
	}

	title := strings.ToLower(c.Title)
	if strings.Contains(title, entity) {
		return true
	}
	if base, _, found := strings.Cut(title, "("); found {
		if strings.TrimSpace(base) == entity {
			return true
		}
	}
	return strings.Contains(strings.ToLower(c.Text), entity)
}

// reorderForComparison moves candidates matching either compared
// entity to the front of the pool, first entity's group before the
// second's, preserving relative distance order within each group.
func reorderForComparison(pool []domain.Candidate, first, second string) []domain.Candidate {
	if len(pool) < 2 {
		return pool
	}

	var firstGroup, secondGroup, rest []domain.Candidate
	for _, c := range pool {
		switch {
		case matchesEntity(c, first):
			firstGroup = append(firstGroup, c)
		case matchesEntity(c, second):
			secondGroup = append(secondGroup, c)
		default:
			rest = append(rest, c)
		}
	}

	if len(firstGroup) == 0 && len(secondGroup) == 0 {
		return pool
	}

	reordered := make([]domain.Candidate, 0, len(pool))
	reordered = append(reordered, firstGroup...)
	reordered = append(reordered, secondGroup...)
	reordered = append(reordered, rest...)

	logger.Debug("Comparison reorder: %d + %d entity matches moved to front",
		len(firstGroup), len(secondGroup))
	return reordered
}

// poolHasEntity reports whether any candidate in the pool references
// the entity.
func poolHasEntity(pool []domain.Candidate, entity string) bool {
	for _, c := range pool {
		if matchesEntity(c, entity) {
			return true
		}
	}
	return false
}
