package service

import (
	"github.com/sbk2k1/sbk-assistant/internal/model"
)

// Memory is the conversation buffer of one chat session. The system prompt is
// always the first message, followed by user/assistant pairs.
type Memory struct {
	messages []model.Message
}

func NewMemory(systemPrompt string) *Memory {
	return &Memory{messages: []model.Message{{Role: model.RoleSystem, Content: systemPrompt}}}
}

func (m *Memory) AddTurn(question, answer string) {
	m.messages = append(m.messages,
		model.Message{Role: model.RoleUser, Content: question},
		model.Message{Role: model.RoleAssistant, Content: answer},
	)
}

func (m *Memory) Messages() []model.Message {
	out := make([]model.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Turns returns the exchanged messages without the system prompt.
func (m *Memory) Turns() []model.Message {
	return m.Messages()[1:]
}

func (m *Memory) SystemPrompt() string {
	return m.messages[0].Content
}
