package firewall

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Rule declares a detection rule for the scanner.
type Rule struct {
	Name     string
	Pattern  string
	Category string
	// Weight contributes to the aggregate risk score; a weight >= 1.0 forces
	// a block regardless of the thresholds.
	Weight float64
}

// Finding is a single detection produced by the scanner.
type Finding struct {
	Rule     string
	Category string
	Match    string
	Start    int
	End      int
	Weight   float64
}

// Report summarises findings over one text.
type Report struct {
	Findings []Finding

	// RiskScore is the saturating sum of finding weights, clamped to [0,1].
	RiskScore float64

	// TopCategory is the category contributing the highest total weight.
	TopCategory string

	// Confidence reflects how decisively the rules matched.
	Confidence float64

	// ForceBlock is set when any matched rule carries weight >= 1.0.
	ForceBlock bool
}

// Scanner evaluates text for threats. The built-in implementation is the
// regex RuleScanner; an external classification engine can be plugged in
// behind the same interface.
type Scanner interface {
	Scan(ctx context.Context, text string) (Report, error)
}

// RuleScanner evaluates text against a compiled rule set.
type RuleScanner struct {
	rules []compiledRule
}

type compiledRule struct {
	name     string
	expr     *regexp.Regexp
	category string
	weight   float64
}

// NewRuleScanner compiles the provided rules. Patterns are case-insensitive.
func NewRuleScanner(rules []Rule) (*RuleScanner, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		name := strings.TrimSpace(rule.Name)
		if name == "" {
			return nil, fmt.Errorf("firewall: rule name is required")
		}
		pattern := strings.TrimSpace(rule.Pattern)
		if pattern == "" {
			return nil, fmt.Errorf("firewall: pattern is required for rule %s", name)
		}
		expr, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("firewall: invalid pattern for rule %s: %w", name, err)
		}
		weight := rule.Weight
		if weight <= 0 {
			weight = 0.3
		}
		category := rule.Category
		if category == "" {
			category = CategoryPromptInjection
		}
		compiled = append(compiled, compiledRule{
			name:     name,
			expr:     expr,
			category: category,
			weight:   weight,
		})
	}
	return &RuleScanner{rules: compiled}, nil
}

// Scan inspects the text and returns the aggregate report.
func (s *RuleScanner) Scan(ctx context.Context, text string) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	if len(s.rules) == 0 || text == "" {
		return Report{}, nil
	}

	var findings []Finding
	categoryWeight := make(map[string]float64)
	total := 0.0
	forceBlock := false

	for _, rule := range s.rules {
		indices := rule.expr.FindAllStringIndex(text, -1)
		for _, idx := range indices {
			findings = append(findings, Finding{
				Rule:     rule.name,
				Category: rule.category,
				Match:    text[idx[0]:idx[1]],
				Start:    idx[0],
				End:      idx[1],
				Weight:   rule.weight,
			})
			categoryWeight[rule.category] += rule.weight
			total += rule.weight
			if rule.weight >= 1.0 {
				forceBlock = true
			}
		}
	}

	if len(findings) == 0 {
		return Report{}, nil
	}

	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Start == findings[j].Start {
			return findings[i].End < findings[j].End
		}
		return findings[i].Start < findings[j].Start
	})

	top := ""
	topWeight := 0.0
	for cat, w := range categoryWeight {
		if w > topWeight || (w == topWeight && cat < top) {
			top = cat
			topWeight = w
		}
	}

	risk := total
	if risk > 1 {
		risk = 1
	}

	// More independent matches -> higher confidence, saturating at 0.99.
	confidence := 0.5 + 0.1*float64(len(findings))
	if confidence > 0.99 {
		confidence = 0.99
	}

	return Report{
		Findings:    findings,
		RiskScore:   risk,
		TopCategory: top,
		Confidence:  confidence,
		ForceBlock:  forceBlock,
	}, nil
}
