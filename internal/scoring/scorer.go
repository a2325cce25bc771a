package scoring

import (
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/planexec/internal/layer"
)

// Score values, bounded to {-2..2}.
const (
	ScoreCatastrophic  = -2 // structural format or architecture violations
	ScoreRuntimeError  = -1 // recognized tooling failures
	ScoreLowConfidence = 0  // unrecognized failure signature
	ScoreComplete      = 1  // success, few best-practice markers
	ScoreExemplary     = 2  // success, multiple domain-modeling markers
)

// exemplaryMarkers are the best-practice signals counted in successful step
// content: explicit contracts, layer-appropriate naming, value objects.
var exemplaryMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*export\s+interface\s+\w+`),
	regexp.MustCompile(`(?m)^\s*export\s+(?:abstract\s+)?class\s+\w+\s+implements\s+\w+`),
	regexp.MustCompile(`\b\w+(?:UseCase|Repository|Gateway|Presenter|Factory)\b`),
	regexp.MustCompile(`(?m)^\s*(?:export\s+)?type\s+\w+\s*=`),
	regexp.MustCompile(`\breadonly\s+\w+`),
	regexp.MustCompile(`\bnamespace\s+\w+`),
}

// exemplaryThreshold is how many distinct markers a successful step needs
// for the top score.
const exemplaryThreshold = 2

// Outcome is what the scorer knows about a finished step.
type Outcome struct {
	// Succeeded is true when the step's mutation and checks all passed.
	Succeeded bool

	// Content is the generated content of the step, scanned for markers.
	Content string

	// FailureOutput is the combined error/tool output of a failed step.
	FailureOutput string
}

// Scorer classifies outcomes into bounded integer scores and keeps the
// running aggregate for the plan. Not safe for concurrent use; the engine
// scores steps strictly sequentially.
type Scorer struct {
	classifier Classifier
	total      int
	count      int
	histogram  map[int]int
}

// NewScorer creates a scorer with the given classifier. A nil classifier
// falls back to the default pattern table.
func NewScorer(classifier Classifier) *Scorer {
	if classifier == nil {
		classifier = NewPatternClassifier()
	}
	return &Scorer{
		classifier: classifier,
		histogram:  make(map[int]int),
	}
}

// Score classifies one outcome, records it, and returns the bounded score.
func (s *Scorer) Score(o Outcome) int {
	score := s.classify(o)
	s.total += score
	s.count++
	s.histogram[score]++
	return score
}

func (s *Scorer) classify(o Outcome) int {
	if !o.Succeeded {
		switch s.classifier.Classify(o.FailureOutput) {
		case CategoryStructural, CategoryArchitecture:
			return ScoreCatastrophic
		case CategoryRuntime:
			return ScoreRuntimeError
		default:
			return ScoreLowConfidence
		}
	}

	if countMarkers(o.Content) >= exemplaryThreshold {
		return ScoreExemplary
	}
	return ScoreComplete
}

// Amend replaces a previously recorded score when a later check demotes the
// step. The count is unchanged; only the aggregate moves.
func (s *Scorer) Amend(old, updated int) {
	s.total += updated - old
	if s.histogram[old] > 0 {
		s.histogram[old]--
	}
	s.histogram[updated]++
}

// Histogram returns a copy of the per-score counts.
func (s *Scorer) Histogram() map[int]int {
	out := make(map[int]int, len(s.histogram))
	for k, v := range s.histogram {
		out[k] = v
	}
	return out
}

// Count returns how many steps have been scored.
func (s *Scorer) Count() int {
	return s.count
}

// Final aggregates the plan score: the mean of per-step scores, adjusted for
// the layer's bar (+0.5 for strict layers, +1.0 otherwise), clamped to
// [0, 2]. Strict layers get the smaller lift because domain and main carry
// a higher standard than the outer layers.
func (s *Scorer) Final(l layer.Layer) float64 {
	if s.count == 0 {
		return 0
	}

	mean := float64(s.total) / float64(s.count)
	if l.Strict() {
		mean += 0.5
	} else {
		mean += 1.0
	}

	if mean < 0 {
		return 0
	}
	if mean > 2 {
		return 2
	}
	return mean
}

func countMarkers(content string) int {
	if strings.TrimSpace(content) == "" {
		return 0
	}
	count := 0
	for _, m := range exemplaryMarkers {
		if m.MatchString(content) {
			count++
		}
	}
	return count
}
