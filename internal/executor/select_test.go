package executor

import (
	"strings"
	"testing"

	"github.com/Iron-Ham/phasekit/internal/plan"
)

func TestSelectResourceClass(t *testing.T) {
	long := strings.Repeat("x", DefaultAutoThreshold+1)
	exact := strings.Repeat("x", DefaultAutoThreshold)

	tests := []struct {
		name     string
		strategy plan.Strategy
		title    string
		desc     string
		want     ResourceClass
	}{
		{"heavy always heavy", plan.StrategyHeavy, "Review docs", "", ClassHeavy},
		{"light always light", plan.StrategyLight, "Implement everything", long, ClassLight},
		{"build verb implement", plan.StrategyHeavyForBuild, "Implement pagination", "", ClassHeavy},
		{"build verb review", plan.StrategyHeavyForBuild, "Review pagination docs", "", ClassLight},
		{"build verb case insensitive", plan.StrategyHeavyForBuild, "CREATE the table", "", ClassHeavy},
		{"build verb inflection", plan.StrategyHeavyForBuild, "Adding retries", "", ClassHeavy},
		{"build verb past tense", plan.StrategyHeavyForBuild, "Verify what was built", "", ClassHeavy},
		{"build verb writes", plan.StrategyHeavyForBuild, "Write migration", "", ClassHeavy},
		{"build verb rewrite", plan.StrategyHeavyForBuild, "Rewrite the parser", "", ClassHeavy},
		{"build verb rebuild", plan.StrategyHeavyForBuild, "Rebuild the index", "", ClassHeavy},
		{"build verb recreate", plan.StrategyHeavyForBuild, "Recreate fixtures", "", ClassHeavy},
		{"build verb reimplement", plan.StrategyHeavyForBuild, "Reimplement caching", "", ClassHeavy},
		{"build verb written", plan.StrategyHeavyForBuild, "Check the written docs", "", ClassHeavy},
		{"no build verb", plan.StrategyHeavyForBuild, "Verify the migration", "", ClassLight},
		{"auto long description", plan.StrategyAuto, "Anything", long, ClassHeavy},
		{"auto at threshold", plan.StrategyAuto, "Anything", exact, ClassLight},
		{"auto short description", plan.StrategyAuto, "Implement everything", "short", ClassLight},
		{"unknown strategy acts as auto", plan.Strategy("bogus"), "x", long, ClassHeavy},
		{"empty strategy acts as auto", plan.Strategy(""), "x", "short", ClassLight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := &plan.Step{ID: "A.1", Title: tt.title, Description: tt.desc}
			if got := SelectResourceClass(tt.strategy, step); got != tt.want {
				t.Errorf("SelectResourceClass(%q, %q) = %q, want %q", tt.strategy, tt.title, got, tt.want)
			}
		})
	}
}

func TestSelector_CustomThreshold(t *testing.T) {
	step := &plan.Step{Description: "twelve chars"}
	if got := (Selector{AutoThreshold: 5}).Select(plan.StrategyAuto, step); got != ClassHeavy {
		t.Errorf("threshold 5: got %q, want heavy", got)
	}
	if got := (Selector{AutoThreshold: 50}).Select(plan.StrategyAuto, step); got != ClassLight {
		t.Errorf("threshold 50: got %q, want light", got)
	}
}

func TestSelector_CountsRunes(t *testing.T) {
	// 600 two-byte runes is 1200 bytes but only 600 characters.
	step := &plan.Step{Description: strings.Repeat("é", 600)}
	if got := SelectResourceClass(plan.StrategyAuto, step); got != ClassLight {
		t.Errorf("got %q, want light", got)
	}
}

func TestSelector_Deterministic(t *testing.T) {
	step := &plan.Step{Title: "Build the index", Description: "d"}
	first := SelectResourceClass(plan.StrategyHeavyForBuild, step)
	for i := 0; i < 10; i++ {
		if got := SelectResourceClass(plan.StrategyHeavyForBuild, step); got != first {
			t.Fatalf("call %d returned %q, first returned %q", i, got, first)
		}
	}
	if step.Status != "" {
		t.Error("selection must not touch the step")
	}
}
