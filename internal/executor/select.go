package executor

import (
	"strings"
	"unicode/utf8"

	"github.com/Iron-Ham/phasekit/internal/plan"
)

// DefaultAutoThreshold is the description length, in characters, above which
// the auto strategy picks the heavy class.
const DefaultAutoThreshold = 1000

// buildVerbStems are matched as case-insensitive substrings of a title, so
// inflections and prefixed forms ("Rewrite", "Rebuild") count too.
var buildVerbStems = []string{"implement", "creat", "build", "built", "writ", "wrote", "add"}

// Selector picks resource classes. The zero value uses DefaultAutoThreshold.
type Selector struct {
	// AutoThreshold is the description length (in runes) above which the
	// auto strategy selects ClassHeavy. Zero or less means
	// DefaultAutoThreshold.
	AutoThreshold int
}

// Select returns the resource class for step under the given strategy.
// It is deterministic and has no side effects. Unknown strategies behave like
// plan.StrategyAuto.
func (s Selector) Select(strategy plan.Strategy, step *plan.Step) ResourceClass {
	switch strategy {
	case plan.StrategyHeavy:
		return ClassHeavy
	case plan.StrategyLight:
		return ClassLight
	case plan.StrategyHeavyForBuild:
		if IsBuildTitle(step.Title) {
			return ClassHeavy
		}
		return ClassLight
	default:
		threshold := s.AutoThreshold
		if threshold <= 0 {
			threshold = DefaultAutoThreshold
		}
		if utf8.RuneCountInString(step.Description) > threshold {
			return ClassHeavy
		}
		return ClassLight
	}
}

// SelectResourceClass is Selector{}.Select with the default threshold.
func SelectResourceClass(strategy plan.Strategy, step *plan.Step) ResourceClass {
	return Selector{}.Select(strategy, step)
}

// IsBuildTitle reports whether a step title reads like implementation work.
func IsBuildTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, stem := range buildVerbStems {
		if strings.Contains(lower, stem) {
			return true
		}
	}
	return false
}
