package ai

import "context"

// TextKind selects the translation system prompt.
type TextKind string

const (
	KindQuestion    TextKind = "question"
	KindExplanation TextKind = "explanation"
)

const explanationTranslatePrompt = "You are a translator. Translate the following AWS technical explanation to Russian. Keep technical terms in English where appropriate. Respond with ONLY the translation."

const questionTranslatePrompt = "You are a translator. Translate the following AWS exam question/options to Russian. Keep AWS service names in English. Respond with ONLY the translation."

// Translate renders text into Russian. kind picks the prompt tuned for
// explanations vs question/option text.
func (c *Client) Translate(ctx context.Context, text string, kind TextKind) (string, error) {
	system := questionTranslatePrompt
	if kind == KindExplanation {
		system = explanationTranslatePrompt
	}
	return c.Complete(ctx, []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: text},
	}, 0.3)
}
