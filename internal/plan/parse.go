package plan

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/Iron-Ham/phasekit/internal/logging"
)

var (
	// groupHeaderRe matches "## Group A: Title [options]".
	groupHeaderRe = regexp.MustCompile(`(?i)^#{1,4}\s*group\s+([A-Za-z][A-Za-z0-9_-]*)\s*[:\-]\s*(.*?)\s*$`)

	// bareGroupHeaderRe matches an untitled header such as "## Group A" or
	// "## Group A [parallel: true]". The id must be upper case so prose
	// headings like "## Group work" are not taken for groups.
	bareGroupHeaderRe = regexp.MustCompile(`^#{1,4}\s*(?i:group)\s+([A-Z][A-Z0-9_-]*)(\s+[\[(].*?)?\s*$`)

	// stepHeaderRe matches "### Step A.1: Title", "### A.1 Title" and an
	// untitled "### A.1".
	stepHeaderRe = regexp.MustCompile(`(?i)^#{1,4}\s*(?:step\s+)?([A-Za-z][A-Za-z0-9_-]*)\.(\d+)\s*[:.)\-]?(?:\s+(\S.*?))?\s*$`)

	// fenceRe matches the opening or closing line of a fenced code block.
	fenceRe = regexp.MustCompile("^\\s*(```|~~~)")
)

// Parser converts plan text into a Plan. It tries the group-structured
// format first and falls back to the legacy flat format only when the first
// pass finds no groups.
type Parser struct {
	logger *logging.Logger
}

// NewParser creates a Parser that reports warnings to the given logger.
// A nil logger discards them.
func NewParser(logger *logging.Logger) *Parser {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Parser{logger: logger}
}

// Parse parses plan text with a discarding logger. See Parser.Parse.
func Parse(text, sourceID string) *Plan {
	return NewParser(nil).Parse(text, sourceID)
}

// ParseFile reads and parses the plan at path, using the path as source id.
// It only fails when the file cannot be read.
func ParseFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return Parse(string(data), path), nil
}

// Parse converts text into a Plan. It never fails: text that neither grammar
// recognizes yields a Plan with zero groups and a warning. Parsing the same
// text twice yields structurally identical plans.
func (p *Parser) Parse(text, sourceID string) *Plan {
	lines := splitLines(text)
	logger := p.logger.With("source_id", sourceID)

	groups, warnings := scanGroups(lines)
	format := "grouped"
	if len(groups) == 0 {
		var legacyWarnings []string
		groups, legacyWarnings = scanLegacy(lines)
		warnings = append(warnings, legacyWarnings...)
		format = "legacy"
	}

	if len(groups) == 0 {
		warnings = append(warnings, "no groups or numbered steps found in plan text")
		format = "none"
	}

	for _, w := range warnings {
		logger.Warn("plan parse warning", "warning", w)
	}

	plan := &Plan{
		SourceID: sourceID,
		Groups:   groups,
		Warnings: warnings,
	}
	logger.Debug("plan parsed",
		"format", format,
		"groups", plan.GroupCount(),
		"steps", plan.TotalSteps(),
	)
	return plan
}

// splitLines normalizes line endings and splits text into lines.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

// -----------------------------------------------------------------------------
// Group-structured scanner
// -----------------------------------------------------------------------------

// scanGroups implements the group-structured grammar. Step headers whose
// group id does not match the enclosing group are dropped together with
// their body.
func scanGroups(lines []string) ([]*Group, []string) {
	var (
		groups   []*Group
		warnings []string
		current  *Group
		step     *Step
		body     []string
		dropping bool
		inFence  bool
	)

	flush := func() {
		if step != nil {
			step.Description = joinDescription(body)
			current.Steps = append(current.Steps, step)
		}
		step = nil
		body = nil
	}

	for i, line := range lines {
		if fenceRe.MatchString(line) {
			inFence = !inFence
		} else if !inFence {
			m := groupHeaderRe.FindStringSubmatch(line)
			if m == nil {
				m = bareGroupHeaderRe.FindStringSubmatch(line)
			}
			if m != nil {
				flush()
				dropping = false
				g, w := newGroup(m[1], m[2], i+1)
				warnings = append(warnings, w...)
				groups = append(groups, g)
				current = g
				continue
			}
			if m := stepHeaderRe.FindStringSubmatch(line); m != nil {
				flush()
				switch {
				case current == nil:
					warnings = append(warnings, fmt.Sprintf("line %d: step %s.%s appears before any group header; dropped", i+1, m[1], m[2]))
					dropping = true
				case m[1] != current.ID:
					warnings = append(warnings, fmt.Sprintf("line %d: step %s.%s does not belong to group %s; dropped", i+1, m[1], m[2], current.ID))
					dropping = true
				default:
					dropping = false
					if m[3] == "" {
						warnings = append(warnings, fmt.Sprintf("line %d: step %s.%s has no title", i+1, m[1], m[2]))
					}
					step = &Step{
						ID:      m[1] + "." + m[2],
						GroupID: current.ID,
						Title:   m[3],
						Status:  StatusPending,
					}
				}
				continue
			}
		}
		if step != nil && !dropping {
			body = append(body, line)
		}
	}
	flush()

	for _, g := range groups {
		if len(g.Steps) == 0 {
			warnings = append(warnings, fmt.Sprintf("group %s has no steps", g.ID))
		}
	}
	return groups, warnings
}

// newGroup builds a group from a header's id and title text, splitting off
// a trailing options clause.
func newGroup(id, rest string, lineNo int) (*Group, []string) {
	title, clause, hasClause := splitOptionsClause(rest)
	g := &Group{
		ID:        id,
		Title:     title,
		DependsOn: []string{},
		Strategy:  StrategyAuto,
	}
	var warnings []string
	if title == "" {
		warnings = append(warnings, fmt.Sprintf("line %d: group %s has no title", lineNo, id))
	}
	if !hasClause {
		return g, warnings
	}

	opts, optWarnings := parseOptions(clause)
	g.Parallel = opts.parallel
	g.DependsOn = opts.dependsOn
	if opts.strategy != "" {
		g.Strategy = opts.strategy
	}
	for _, w := range optWarnings {
		warnings = append(warnings, fmt.Sprintf("line %d: group %s: %s", lineNo, id, w))
	}
	return g, warnings
}

// splitOptionsClause separates "Title [opts]" into its parts. A trailing
// parenthesized clause only counts as options if it looks like one, so
// titles such as "API (v2)" are left intact.
func splitOptionsClause(rest string) (title, clause string, ok bool) {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", "", false
	}

	var open byte
	switch rest[len(rest)-1] {
	case ']':
		open = '['
	case ')':
		open = '('
	default:
		return rest, "", false
	}

	idx := strings.LastIndexByte(rest, open)
	if idx < 0 {
		return rest, "", false
	}
	clause = rest[idx+1 : len(rest)-1]
	if open == '(' && !looksLikeOptions(clause) {
		return rest, "", false
	}
	return strings.TrimSpace(rest[:idx]), clause, true
}

func looksLikeOptions(clause string) bool {
	if strings.Contains(clause, ":") {
		return true
	}
	for _, tok := range strings.Split(clause, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if Strategy(tok).IsValid() || tok == "parallel" || tok == "sequential" {
			return true
		}
	}
	return false
}

type groupOptions struct {
	parallel  bool
	dependsOn []string
	strategy  Strategy
}

// parseOptions parses a comma-separated options clause. Bare tokens after a
// "depends:" key extend the dependency list unless they name a strategy.
func parseOptions(clause string) (groupOptions, []string) {
	opts := groupOptions{dependsOn: []string{}}
	var warnings []string
	inDepends := false

	addDeps := func(v string) {
		for _, dep := range strings.FieldsFunc(v, func(r rune) bool { return r == ' ' || r == '\t' || r == ',' }) {
			if isNoneToken(dep) || containsString(opts.dependsOn, dep) {
				continue
			}
			opts.dependsOn = append(opts.dependsOn, dep)
		}
	}

	for _, raw := range strings.Split(clause, ",") {
		tok := strings.TrimSpace(raw)
		if tok == "" {
			continue
		}

		if key, value, found := strings.Cut(tok, ":"); found {
			key = strings.ToLower(strings.TrimSpace(key))
			value = strings.TrimSpace(value)
			inDepends = false

			switch key {
			case "parallel":
				b, ok := parseBool(value)
				if !ok {
					warnings = append(warnings, fmt.Sprintf("invalid parallel value %q, using false", value))
				}
				opts.parallel = b
			case "depends", "depends_on", "depends-on", "deps", "after":
				inDepends = true
				addDeps(value)
			case "model", "strategy", "resources":
				s := Strategy(strings.ToLower(value))
				if !s.IsValid() {
					warnings = append(warnings, fmt.Sprintf("unknown strategy %q, using %s", value, StrategyAuto))
					continue
				}
				opts.strategy = s
			default:
				warnings = append(warnings, fmt.Sprintf("unknown option %q ignored", key))
			}
			continue
		}

		lower := strings.ToLower(tok)
		switch {
		case Strategy(lower).IsValid():
			opts.strategy = Strategy(lower)
			inDepends = false
		case lower == "parallel":
			opts.parallel = true
			inDepends = false
		case lower == "sequential":
			opts.parallel = false
			inDepends = false
		case inDepends:
			addDeps(tok)
		default:
			warnings = append(warnings, fmt.Sprintf("unknown option %q ignored", tok))
		}
	}
	return opts, warnings
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "y", "on", "1":
		return true, true
	case "false", "no", "n", "off", "0":
		return false, true
	default:
		return false, false
	}
}

func isNoneToken(s string) bool {
	switch strings.ToLower(s) {
	case "", "-", "none", "n/a", "nothing":
		return true
	default:
		return false
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// joinDescription joins body lines verbatim, dropping only trailing
// whitespace.
func joinDescription(body []string) string {
	return strings.TrimRight(strings.Join(body, "\n"), " \t\r\n")
}
