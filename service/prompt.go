package service

import "streamrelay/model"

// PromptMessage is one {role, content} entry of the prompt sent to the
// chat-completions backend.
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// BuildPrompt assembles the bounded conversation context: the system
// prompt first, then the history entries in their original order, then
// the new user query last. History entries with an unknown role or
// empty content are dropped; a malformed entry never fails the build.
func BuildPrompt(query string, history []model.Message, systemPrompt string) []PromptMessage {
	prompt := make([]PromptMessage, 0, len(history)+2)
	prompt = append(prompt, PromptMessage{Role: model.RoleSystem, Content: systemPrompt})

	for _, msg := range history {
		if !model.ValidRole(msg.Role) || msg.Content == "" {
			continue
		}
		prompt = append(prompt, PromptMessage{Role: msg.Role, Content: msg.Content})
	}

	prompt = append(prompt, PromptMessage{Role: model.RoleUser, Content: query})
	return prompt
}
