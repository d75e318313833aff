package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// AnswerResult is the structured grading a model returns for one question.
type AnswerResult struct {
	CorrectAnswers []string `json:"correctAnswers"`
	Explanation    string   `json:"explanation"`
}

const multiAnswerPromptFmt = `You are an AWS Cloud Practitioner expert. Analyze the question and provide EXACTLY %d correct answers.
IMPORTANT: You MUST select exactly %d answers, no more, no less.
Respond ONLY in JSON format: {"correctAnswers": ["A", "B"], "explanation": "detailed explanation"}`

const singleAnswerPrompt = `You are an AWS Cloud Practitioner expert. Analyze the question and provide the ONE correct answer.
IMPORTANT: This is a SINGLE choice question. You MUST select exactly ONE answer.
Respond ONLY in JSON format: {"correctAnswers": ["A"], "explanation": "detailed explanation"}`

// AnswerQuestion asks the model to grade a multiple-choice question and
// parses the JSON reply. Models occasionally wrap the JSON in prose or
// code fences, so a regexp salvage path recovers the fields when direct
// decoding fails.
func (c *Client) AnswerQuestion(ctx context.Context, questionText string, options []string, isMultiple bool, selectCount int) (AnswerResult, error) {
	system := singleAnswerPrompt
	if isMultiple {
		system = fmt.Sprintf(multiAnswerPromptFmt, selectCount, selectCount)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Question: %s\n\nOptions:\n%s\n\n", questionText, strings.Join(options, "\n"))
	if isMultiple {
		fmt.Fprintf(&sb, "IMPORTANT: This is a MULTIPLE choice question. Select EXACTLY %d correct answers.", selectCount)
	} else {
		sb.WriteString("IMPORTANT: This is a SINGLE choice question. Select ONLY ONE answer.")
	}

	reply, err := c.Complete(ctx, []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: sb.String()},
	}, 0.3)
	if err != nil {
		return AnswerResult{}, err
	}

	return parseAnswerReply(reply), nil
}

var (
	answersPattern     = regexp.MustCompile(`correctAnswers["\s:]+\[([^\]]+)\]`)
	explanationPattern = regexp.MustCompile(`(?s)explanation["\s:]+["'](.*?)["']\s*}`)
)

func parseAnswerReply(reply string) AnswerResult {
	var out AnswerResult
	if err := json.Unmarshal([]byte(extractJSONObject(reply)), &out); err == nil && len(out.CorrectAnswers) > 0 {
		return out
	}

	out = AnswerResult{Explanation: reply}
	if m := answersPattern.FindStringSubmatch(reply); m != nil {
		for _, part := range strings.Split(m[1], ",") {
			letter := strings.Trim(strings.TrimSpace(part), `"'`)
			if letter != "" {
				out.CorrectAnswers = append(out.CorrectAnswers, letter)
			}
		}
	}
	if m := explanationPattern.FindStringSubmatch(reply); m != nil {
		out.Explanation = m[1]
	}
	return out
}

// extractJSONObject trims code fences and surrounding prose down to the
// outermost {...} so the common "```json ... ```" replies still decode.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
