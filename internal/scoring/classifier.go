// Package scoring turns step outcomes into the bounded quality signal the
// plan evaluation aggregates. Failure text is classified by a pluggable
// strategy so the heuristic table can be replaced or tested on its own.
package scoring

import (
	"regexp"
	"strings"
)

// Category is the failure class a classifier recognizes in tool output.
type Category int

const (
	// CategoryUnknown means the failure signature was not recognized.
	// Deliberately mapped to the neutral score: guessing would poison the
	// learning signal with false positives.
	CategoryUnknown Category = iota

	// CategoryStructural marks format violations in the step itself, such
	// as a refactor step missing its patch delimiters.
	CategoryStructural

	// CategoryArchitecture marks explicit architecture-violation signals.
	CategoryArchitecture

	// CategoryRuntime marks recognized tooling failures: lint, test, type,
	// permission, dependency, or version-control errors.
	CategoryRuntime
)

func (c Category) String() string {
	switch c {
	case CategoryStructural:
		return "structural"
	case CategoryArchitecture:
		return "architecture"
	case CategoryRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

// Classifier recognizes a failure category in combined step output.
type Classifier interface {
	Classify(output string) Category
}

// patternClassifier is the default regex/keyword heuristic table.
type patternClassifier struct {
	structural   []*regexp.Regexp
	architecture []*regexp.Regexp
	runtime      []*regexp.Regexp
}

// NewPatternClassifier returns the default heuristic classifier.
func NewPatternClassifier() Classifier {
	return &patternClassifier{
		structural: compileAll(
			`(?i)missing\s+(?:<<<)?(?:FIND|REPLACE)(?:>>>)?.*marker`,
			`(?i)patch\s+(?:is\s+)?missing`,
			`(?i)malformed\s+(?:step|patch|plan)`,
			`(?i)invalid\s+step\s+format`,
		),
		architecture: compileAll(
			`(?i)layer\s+violation`,
			`(?i)architecture\s+violation`,
			`(?i)forbidden\s+import`,
			`(?i)clean\s+architecture`,
		),
		runtime: compileAll(
			`(?i)\blint(?:ing)?\s+(?:failed|error)`,
			`(?i)\beslint\b`,
			`(?i)\btest(?:s)?\s+(?:failed|failing)`,
			`(?i)\d+\s+(?:failing|failed)`,
			`(?i)type\s*error`,
			`(?i)\bTS\d{4,5}\b`,
			`(?i)permission\s+denied`,
			`(?i)\bEACCES\b|\bEPERM\b`,
			`(?i)cannot\s+find\s+module`,
			`(?i)module\s+not\s+found`,
			`(?i)unsupported\s+engine|version\s+mismatch`,
			`(?i)\bgit\b.*(?:failed|error|cannot)`,
			`(?i)index\.lock|unable\s+to\s+commit`,
			`(?i)command\s+(?:not\s+found|failed)`,
			`(?i)timed?\s*out`,
		),
	}
}

// Classify applies the tables in severity order: structural beats
// architecture beats runtime, so a step that is both malformed and failing
// its tests scores as catastrophic, not merely broken.
func (c *patternClassifier) Classify(output string) Category {
	if matchAny(c.structural, output) {
		return CategoryStructural
	}
	if matchAny(c.architecture, output) {
		return CategoryArchitecture
	}
	if matchAny(c.runtime, output) {
		return CategoryRuntime
	}
	return CategoryUnknown
}

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

func matchAny(patterns []*regexp.Regexp, output string) bool {
	if strings.TrimSpace(output) == "" {
		return false
	}
	for _, p := range patterns {
		if p.MatchString(output) {
			return true
		}
	}
	return false
}
