package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/sbk2k1/sbk-assistant/internal/model"
)

const condensePrompt = `Given the following conversation and a follow up question, rephrase the follow up question to be a standalone question, in its original language.
- Output ONLY the standalone question.

CHAT HISTORY:
%s
FOLLOW UP INPUT: %s
STANDALONE QUESTION:`

// CondenseQuestion rewrites question into a standalone question using the
// user and assistant turns of history. It returns question unchanged when
// there is no history.
func CondenseQuestion(ctx context.Context, gen IGenerator, history []model.Message, question string) (string, error) {
	var sb strings.Builder
	for _, msg := range history {
		switch msg.Role {
		case model.RoleUser:
			sb.WriteString("Human: ")
		case model.RoleAssistant:
			sb.WriteString("Assistant: ")
		default:
			continue
		}
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	if sb.Len() == 0 {
		return question, nil
	}
	if gen == nil {
		return "", fmt.Errorf("generator not configured")
	}
	resp, err := gen.Generate(ctx, fmt.Sprintf(condensePrompt, sb.String(), question))
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
