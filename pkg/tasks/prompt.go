package tasks

import (
	"fmt"
	"strings"

	"github.com/ahmedshikashaker/automaker/pkg/utils"
)

// upcomingPreviewLimit bounds how many not-yet-started tasks the prompt
// previews; the rest collapse into a count.
const upcomingPreviewLimit = 3

// planContextTokenLimit bounds the plan reference section of a task
// prompt. Oversized plans get truncated rather than blowing the budget.
const planContextTokenLimit = 16000

// BuildTaskPrompt assembles the focused prompt for one task: the target
// task, the already-completed tasks for context, a bounded preview of
// upcoming tasks, optional user feedback, and the full plan as reference.
func BuildTaskPrompt(all []ParsedTask, index int, planContent, feedback string) string {
	task := all[index]

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Implement the following task (%d of %d):\n\n", index+1, len(all)))
	b.WriteString(fmt.Sprintf("%s: %s\n", task.ID, task.Description))
	if task.FilePath != "" {
		b.WriteString(fmt.Sprintf("Primary file: %s\n", task.FilePath))
	}
	if task.Phase != "" {
		b.WriteString(fmt.Sprintf("Phase: %s\n", task.Phase))
	}

	if index > 0 {
		b.WriteString("\nAlready completed:\n")
		for _, done := range all[:index] {
			b.WriteString(fmt.Sprintf("- %s: %s\n", done.ID, done.Description))
		}
	}

	upcoming := all[index+1:]
	if len(upcoming) > 0 {
		b.WriteString("\nUpcoming (do NOT implement yet):\n")
		preview := upcoming
		if len(preview) > upcomingPreviewLimit {
			preview = preview[:upcomingPreviewLimit]
		}
		for _, next := range preview {
			b.WriteString(fmt.Sprintf("- %s: %s\n", next.ID, next.Description))
		}
		if rest := len(upcoming) - len(preview); rest > 0 {
			b.WriteString(fmt.Sprintf("...and %d more\n", rest))
		}
	}

	if feedback != "" {
		b.WriteString("\nUser feedback to honor:\n")
		b.WriteString(feedback)
		b.WriteString("\n")
	}

	b.WriteString("\nFull plan for reference:\n\n")
	b.WriteString(planContent)
	b.WriteString("\n\nImplement only the target task. Stop when it is complete.")

	return b.String()
}

// PromptTokens reports the token count of a prompt for logging and budget
// checks. A nil counter estimates at 4 chars per token.
func PromptTokens(tc *utils.TokenCounter, prompt string) int {
	if tc == nil {
		return len(prompt) / 4
	}
	return tc.CountTokens(prompt)
}
