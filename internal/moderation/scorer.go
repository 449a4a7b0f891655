package moderation

import (
	"fmt"
	"regexp"
	"sort"
)

// Violation categories.
const (
	CategoryHarassment   = "harassment"
	CategoryHate         = "hate"
	CategoryViolence     = "violence"
	CategorySelfHarm     = "self_harm"
	CategoryDangerousAct = "dangerous_activity"
)

type lexiconRule struct {
	pattern  *regexp.Regexp
	category string
	weight   float64
}

// Scorer assigns a toxicity score in [0,1] to response text using a weighted
// pattern lexicon. Scores sum across distinct matches and clamp at 1.
type Scorer struct {
	rules []lexiconRule
}

type ruleSpec struct {
	Pattern  string
	Category string
	Weight   float64
}

// defaultLexicon is intentionally coarse: the stage is a last-resort output
// filter, not a classifier. An upstream policy engine can swap in its own
// rules via NewScorerWithRules.
var defaultLexicon = []ruleSpec{
	{`(?:kill|hurt|harm)\s+(?:yourself|himself|herself|themselves)`, CategorySelfHarm, 0.9},
	{`how\s+to\s+(?:make|build)\s+(?:a\s+)?(?:bomb|explosive|weapon)`, CategoryDangerousAct, 0.9},
	{`i\s+(?:will|am\s+going\s+to)\s+(?:kill|murder|hurt)\s+you`, CategoryViolence, 0.8},
	{`(?:synthesize|produce)\s+(?:methamphetamine|fentanyl|nerve\s+agent)`, CategoryDangerousAct, 0.8},
	{`you\s+(?:stupid|worthless|pathetic)\s+(?:idiot|moron|piece\s+of)`, CategoryHarassment, 0.5},
	{`(?:all|every)\s+\w+\s+(?:people\s+)?(?:are|is)\s+(?:subhuman|vermin|scum)`, CategoryHate, 0.7},
	{`(?:shoot|stab|strangle)\s+(?:him|her|them|everyone)`, CategoryViolence, 0.7},
}

// NewScorer builds a scorer over the default lexicon.
func NewScorer() *Scorer {
	s, err := NewScorerWithRules(defaultLexicon)
	if err != nil {
		// Default patterns are compile-checked by tests.
		panic(err)
	}
	return s
}

// NewScorerWithRules builds a scorer from custom rules.
func NewScorerWithRules(specs []ruleSpec) (*Scorer, error) {
	rules := make([]lexiconRule, 0, len(specs))
	for _, spec := range specs {
		re, err := regexp.Compile(`(?i)` + spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile moderation pattern %q: %w", spec.Pattern, err)
		}
		rules = append(rules, lexiconRule{pattern: re, category: spec.Category, weight: spec.Weight})
	}
	return &Scorer{rules: rules}, nil
}

// Score returns the toxicity score and the distinct violation categories,
// sorted for stable output.
func (s *Scorer) Score(text string) (float64, []string) {
	if text == "" {
		return 0, nil
	}

	score := 0.0
	seen := make(map[string]bool)
	for _, rule := range s.rules {
		if rule.pattern.MatchString(text) {
			score += rule.weight
			seen[rule.category] = true
		}
	}
	if score > 1 {
		score = 1
	}

	if len(seen) == 0 {
		return score, nil
	}
	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return score, categories
}

// Redact replaces every lexicon match in text with a placeholder.
func (s *Scorer) Redact(text string) string {
	for _, rule := range s.rules {
		text = rule.pattern.ReplaceAllString(text, "[REDACTED]")
	}
	return text
}
