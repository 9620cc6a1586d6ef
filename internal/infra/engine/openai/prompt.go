package openai

import (
	"fmt"
	"strings"

	domain "github.com/bryanwahyu/essay-coach-gateway/internal/domain/grading"
)

// systemPrompt fixes the markdown report layout so the fallback extractor
// can read the scores back.
const systemPrompt = `You are an experienced writing lecturer grading a student essay. Respond with a markdown report only (no code fences).

Requirements:
- Start with a short overall comment.
- Include exactly one markdown table with the header "| Criterion | Score |" and these rows, each scored as a fraction:
  | Topic Focus | n/25 |
  | Evidence & Support | n/25 |
  | Organization & Flow | n/25 |
  | Language & Mechanics | n/25 |
  | **TOTAL** | **n/100** |
- TOTAL must equal the sum of the four rows.
- After the table, list concrete revision suggestions, quoting the student's text where relevant.
- Write the report in the requested language.`

func userPrompt(req domain.SubmitRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n", req.Language)
	if req.RubricID != nil {
		fmt.Fprintf(&b, "Rubric: #%d\n", *req.RubricID)
	}
	fmt.Fprintf(&b, "\nEssay question:\n%s\n", req.EssayQuestion)
	fmt.Fprintf(&b, "\nEssay:\n%s\n", req.EssayContent)
	return b.String()
}
