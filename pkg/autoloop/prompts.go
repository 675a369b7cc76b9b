package autoloop

import (
	"fmt"
	"strings"
)

// planningPromptTemplate asks the model for a reviewable plan whose task
// list the parser can extract. The fenced tasks block format matches
// tasks.ParseTasksFromSpec.
const planningPromptTemplate = `You are planning a feature implementation. Produce a concise
implementation plan for the feature described below.

Requirements for the plan:
- Explain the approach in a few short sections.
- End with a single fenced code block tagged "tasks" containing the
  ordered task list. Use "## Phase name" headers to group tasks and one
  checkbox line per task in the form:
  - [ ] T001: short task description | File: path/to/primary/file
  The "| File: ..." suffix is optional. Number tasks T001, T002, ...
  in execution order.
- Do not implement anything yet; only plan.

Feature request:

%s`

// BuildPlanningPrompt renders the planning prompt, appending reviewer
// feedback when the plan is being regenerated after a revision request.
func BuildPlanningPrompt(featurePrompt, feedback string) string {
	prompt := fmt.Sprintf(planningPromptTemplate, strings.TrimSpace(featurePrompt))
	if feedback != "" {
		prompt += fmt.Sprintf("\n\nThe previous plan was rejected with this feedback; address it:\n\n%s", feedback)
	}
	return prompt
}
