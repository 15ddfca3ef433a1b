// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package solve

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/scoresummit/exam-engine/pkg/types"
)

// readingPromptTmpl instructs a backend to answer a reading/writing
// question with quoted evidence and elimination notes for the choices it
// rejects.
var readingPromptTmpl = template.Must(template.New("reading").Parse(`You are an expert exam tutor answering a reading/writing question.

{{if .HasFigure}}A referenced figure is not included; account for that in your confidence.

{{end}}Question:
{{.Prompt}}

Choices:
{{.Choices}}

Respond with only a JSON object:
{"answer": "<choice letter>", "confidence": <0.0-1.0>, "evidence": ["<short quote from the text supporting your answer>"], "eliminations": {"<letter>": "<why this choice is wrong>"}}

Quote evidence verbatim from the question text. Include an elimination entry for every choice you did not pick. Do not include any text outside the JSON object.`))

// mathPromptTmpl instructs a backend to answer a math question and
// supply machine-executable verification code.
var mathPromptTmpl = template.Must(template.New("math").Parse(`You are an expert exam tutor answering a math question.

{{if .HasFigure}}A referenced figure is not included; account for that in your confidence.

{{end}}Question:
{{.Prompt}}
{{if .Choices}}
Choices:
{{.Choices}}
{{end}}
Respond with only a JSON object:
{"answer": "{{.AnswerShape}}", "confidence": <0.0-1.0>, "verification_code": "<python that recomputes the answer and assigns it to a variable named result>", "substitution_check": "<optional note on substituting the answer back>"}

The verification code must be self-contained (math, sympy, and Fraction are available) and must not read input. Do not include any text outside the JSON object.`))

// promptData feeds both templates.
type promptData struct {
	Prompt      string
	Choices     string
	HasFigure   bool
	AnswerShape string
}

func newPromptData(cq types.ClassifiedQuestion) promptData {
	var choices strings.Builder
	for i, c := range cq.Choices {
		fmt.Fprintf(&choices, "%s) %s\n", cq.ChoiceLetter(i), c)
	}
	shape := "<numeric answer>"
	if !cq.IsFillIn() {
		shape = "<choice letter>"
	}
	return promptData{
		Prompt:      cq.Prompt,
		Choices:     strings.TrimRight(choices.String(), "\n"),
		HasFigure:   cq.HasFigure,
		AnswerShape: shape,
	}
}

func renderPrompt(tmpl *template.Template, cq types.ClassifiedQuestion) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, newPromptData(cq)); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// sectionPrompt picks the prompt template for a classified question.
func sectionPrompt(cq types.ClassifiedQuestion) (string, error) {
	if cq.Section == types.SectionMath {
		return renderPrompt(mathPromptTmpl, cq)
	}
	return renderPrompt(readingPromptTmpl, cq)
}
