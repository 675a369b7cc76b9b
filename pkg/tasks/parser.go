package tasks

import (
	"regexp"
	"strings"
)

// taskLineRe matches a checkbox task line: `- [ ] T001: description` with
// an optional `| File: path` suffix. Completed checkboxes (`[x]`) are
// accepted too; parsed tasks always start out pending.
var taskLineRe = regexp.MustCompile(`^-\s*\[[ xX]\]\s*(T\d{3}):\s*(.+?)(?:\s*\|\s*File:\s*(.+))?$`)

// ParseTasksFromSpec extracts the ordered task list from plan text.
//
// Primary path: the single fenced block tagged "tasks". Inside it a
// trimmed line starting with "##" opens a phase applying to subsequent
// tasks until the next header; checkbox lines matching the T### pattern
// become tasks. Fallback path: no tasks fence means the whole content is
// scanned for checkbox+ID lines, with no phase tracking.
//
// Malformed checkbox lines (no T### prefix) are dropped silently; plan
// text is model-generated and not guaranteed well-formed. An empty
// result means "no tasks" and is the caller's problem.
func ParseTasksFromSpec(specContent string) []ParsedTask {
	if block, ok := extractTasksBlock(specContent); ok {
		return parseTaskLines(block, true)
	}
	return parseTaskLines(specContent, false)
}

// extractTasksBlock returns the body of the first ```tasks fenced block.
func extractTasksBlock(content string) (string, bool) {
	lines := strings.Split(content, "\n")
	var body []string
	inBlock := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !inBlock {
			if trimmed == "```tasks" {
				inBlock = true
			}
			continue
		}
		if trimmed == "```" {
			return strings.Join(body, "\n"), true
		}
		body = append(body, line)
	}

	// An unterminated fence still counts; the model forgot to close it.
	if inBlock {
		return strings.Join(body, "\n"), true
	}
	return "", false
}

// parseTaskLines scans lines for checkbox tasks, tracking "##" phase
// headers when trackPhases is set.
func parseTaskLines(content string, trackPhases bool) []ParsedTask {
	var parsed []ParsedTask
	phase := ""

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if trackPhases && strings.HasPrefix(trimmed, "##") {
			phase = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			continue
		}

		m := taskLineRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}

		task := ParsedTask{
			ID:          m[1],
			Description: strings.TrimSpace(m[2]),
			FilePath:    strings.TrimSpace(m[3]),
			Status:      StatusPending,
		}
		if trackPhases {
			task.Phase = phase
		}
		parsed = append(parsed, task)
	}
	return parsed
}
