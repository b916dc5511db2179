package ai

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnparseableEvaluation indicates the evaluator response did not
// contain a score line.
var ErrUnparseableEvaluation = errors.New("evaluation response has no score")

// GenerationPrompt builds the prompt for the initial shader generation.
func GenerationPrompt(prompt string) string {
	return fmt.Sprintf(`Write a GLSL fragment shader that renders: %s

The shader receives "uniform float iTime" (seconds) and "uniform vec2 iResolution".
Respond with the complete shader source in a single code block and nothing else.`, prompt)
}

// EvaluationPrompt asks for a score and feedback for rendered frames.
func EvaluationPrompt(prompt, code string) string {
	return fmt.Sprintf(`The attached images are frames of an animated shader that should render: %s

Shader source:
%s

Rate how well the frames match the description on a scale of 0-100 and
explain what to improve. Respond in exactly this format:
SCORE: <number>
FEEDBACK: <free text>`, prompt, code)
}

// ImprovementPrompt asks for a revised shader given feedback.
func ImprovementPrompt(prompt, code, feedback string) string {
	return fmt.Sprintf(`This shader should render: %s

Current source:
%s

Reviewer feedback:
%s

Improve the shader to address the feedback. Respond with the complete
revised source in a single code block and nothing else.`, prompt, code, feedback)
}

// FixPrompt asks for a compiling version of broken shader code.
func FixPrompt(prompt, code, errorMessage, errorDetail string) string {
	detail := ""
	if errorDetail != "" {
		detail = "\nDetails:\n" + errorDetail
	}

	return fmt.Sprintf(`This shader should render: %s

The source below fails to compile:
%s

Compiler error: %s%s

Fix the error. Respond with the complete corrected source in a single
code block and nothing else.`, prompt, code, errorMessage, detail)
}

var codeBlockRe = regexp.MustCompile("(?s)```(?:glsl|c)?\\s*\\n(.*?)```")

// ExtractCode pulls shader source out of a model response. Responses
// wrapped in a fenced code block yield the block body; bare responses
// are returned trimmed.
func ExtractCode(text string) string {
	if match := codeBlockRe.FindStringSubmatch(text); match != nil {
		return strings.TrimSpace(match[1])
	}

	return strings.TrimSpace(text)
}

var scoreRe = regexp.MustCompile(`(?mi)^\s*SCORE:\s*([0-9]+(?:\.[0-9]+)?)`)
var feedbackRe = regexp.MustCompile(`(?msi)^\s*FEEDBACK:\s*(.*)\z`)

// ParseEvaluation extracts the score and feedback from an evaluator
// response. The score is returned as-is; the caller clamps it.
func ParseEvaluation(text string) (float64, string, error) {
	match := scoreRe.FindStringSubmatch(text)
	if match == nil {
		return 0, "", fmt.Errorf("%w: %q", ErrUnparseableEvaluation, firstLine(text))
	}

	score, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %q", ErrUnparseableEvaluation, match[1])
	}

	feedback := ""
	if fb := feedbackRe.FindStringSubmatch(text); fb != nil {
		feedback = strings.TrimSpace(fb[1])
	}

	return score, feedback, nil
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}

	return text
}
