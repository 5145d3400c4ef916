package analyzer

import (
	"fmt"
	"regexp"
)

// Harm category labels shared across signal sources.
const (
	CategoryHate       = "hate"
	CategoryHarassment = "harassment"
	CategorySelfHarm   = "self-harm"
	CategorySexual     = "sexual"
	CategoryViolence   = "violence"
	CategoryMisleading = "misleading"
)

// DefaultCategories returns the standard set of harm categories, in the
// order they are evaluated.
func DefaultCategories() []string {
	return []string{
		CategoryHate,
		CategoryHarassment,
		CategorySelfHarm,
		CategorySexual,
		CategoryViolence,
		CategoryMisleading,
	}
}

// perMatchScore is the score contributed by each pattern match. Five or
// more matches of a single pattern saturate the category at 1.0.
const perMatchScore = 0.2

// DefaultPatterns returns the built-in per-category pattern lists.
// Patterns are case-insensitive regular expressions.
func DefaultPatterns() map[string][]string {
	return map[string][]string{
		CategoryHate: {
			`(?i)\b(hate|hateful|hating)\b.*\b(group|race|gender|religion|orientation)\b`,
			`(?i)\b(inferior|subhuman)\b.*\b(race|ethnicity|people)\b`,
		},
		CategoryHarassment: {
			`(?i)\b(harass|bully|intimidate|threaten|attack)\b.*\b(person|individual|you)\b`,
			`(?i)\b(doxx?|expose)\b.*\b(address|identity|workplace)\b`,
		},
		CategorySelfHarm: {
			`(?i)\b(suicide|self-harm|hurt (yourself|myself|themselves))\b`,
			`(?i)\b(methods|ways)\b.*\b(end (my|your) life)\b`,
		},
		CategorySexual: {
			`(?i)\b(explicit|graphic)\b.*\b(sexual|content)\b`,
		},
		CategoryViolence: {
			`(?i)\b(kill|murder|attack|hurt|harm)\b.*\b(people|person|group)\b`,
			`(?i)\b(make|build|construct)\b.*\b(bomb|explosive|weapon)\b`,
		},
		CategoryMisleading: {
			`(?i)\b(fake news|propaganda|conspiracy|hoax)\b`,
			`(?i)\b(fabricated|doctored)\b.*\b(evidence|footage|quote)\b`,
		},
	}
}

// PatternSource scores text by counting regex matches per category.
// It is the cheap, deterministic first layer of the cascade and never fails
// after construction.
type PatternSource struct {
	patterns map[string][]*regexp.Regexp
}

// NewPatternSource compiles the given per-category pattern lists.
func NewPatternSource(patterns map[string][]string) (*PatternSource, error) {
	compiled := make(map[string][]*regexp.Regexp, len(patterns))
	for category, exprs := range patterns {
		for _, expr := range exprs {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("NewPatternSource: category %q pattern %q: %w", category, expr, err)
			}
			compiled[category] = append(compiled[category], re)
		}
	}
	return &PatternSource{patterns: compiled}, nil
}

func (p *PatternSource) Name() string {
	return "patterns"
}

// CategoryScore returns the pattern score for one category: each pattern
// contributes min(1.0, matches*0.2), and the category takes the maximum
// across its patterns.
func (p *PatternSource) CategoryScore(category, text string) float64 {
	var best float64
	for _, re := range p.patterns[category] {
		n := len(re.FindAllStringIndex(text, -1))
		if n == 0 {
			continue
		}
		score := float64(n) * perMatchScore
		if score > 1.0 {
			score = 1.0
		}
		if score > best {
			best = score
		}
	}
	return best
}
