package plan

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// LegacyGroupID is the id of the synthetic group built from a flat plan.
	LegacyGroupID = "A"

	// LegacyGroupTitle is the title of the synthetic group.
	LegacyGroupTitle = "Implementation"
)

var (
	// legacyHeaderRe matches numbered headings such as "## 1. Title" or
	// "### Step 2: Title".
	legacyHeaderRe = regexp.MustCompile(`(?i)^#{1,4}\s*(?:step\s+)?(\d+)\s*[.:)\-]\s*(\S.*?)\s*$`)

	// trailingSectionRe matches a heading or bold label that opens a
	// plan-level section (validation, notes, ...) rather than step work.
	trailingSectionRe = regexp.MustCompile(`(?i)^\s*(?:#{1,6}\s*(?:validation|verification|notes?|testing|tests|acceptance(?:\s+criteria)?)\b.*|\*\*\s*(?:validation|verification|notes?|testing|tests|acceptance(?:\s+criteria)?)\b[^*]*\*\*.*|(?:validation|verification|notes?|testing|acceptance(?:\s+criteria)?)\s*:\s*)$`)
)

// scanLegacy implements the flat numbered-heading grammar. All steps go into
// one sequential group with id LegacyGroupID.
func scanLegacy(lines []string) ([]*Group, []string) {
	var (
		warnings []string
		steps    []*Step
		step     *Step
		body     []string
		inFence  bool
		seen     = make(map[string]bool)
	)

	flush := func() {
		if step != nil {
			step.Description = stripTrailingSections(joinDescription(body))
			steps = append(steps, step)
		}
		step = nil
		body = nil
	}

	for i, line := range lines {
		if fenceRe.MatchString(line) {
			inFence = !inFence
		} else if !inFence {
			if m := legacyHeaderRe.FindStringSubmatch(line); m != nil {
				flush()
				id := LegacyGroupID + "." + strings.TrimLeft(m[1], "0")
				if strings.TrimLeft(m[1], "0") == "" {
					id = LegacyGroupID + ".0"
				}
				if seen[id] {
					warnings = append(warnings, fmt.Sprintf("line %d: duplicate step number %s; dropped", i+1, m[1]))
					continue
				}
				seen[id] = true
				step = &Step{
					ID:      id,
					GroupID: LegacyGroupID,
					Title:   m[2],
					Status:  StatusPending,
				}
				continue
			}
		}
		if step != nil {
			body = append(body, line)
		}
	}
	flush()

	if len(steps) == 0 {
		return nil, warnings
	}

	return []*Group{{
		ID:        LegacyGroupID,
		Title:     LegacyGroupTitle,
		Parallel:  false,
		DependsOn: []string{},
		Strategy:  StrategyAuto,
		Steps:     steps,
	}}, warnings
}

// stripTrailingSections cuts a description at the first line that opens a
// plan-level section such as "## Validation" or "**Notes**".
func stripTrailingSections(desc string) string {
	lines := strings.Split(desc, "\n")
	inFence := false
	for i, line := range lines {
		if fenceRe.MatchString(line) {
			inFence = !inFence
			continue
		}
		if !inFence && trailingSectionRe.MatchString(line) {
			return strings.TrimRight(strings.Join(lines[:i], "\n"), " \t\r\n")
		}
	}
	return desc
}
