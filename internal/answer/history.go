package answer

import (
	"errors"
	"fmt"
	"strings"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrInvalidRole is returned for history messages that are neither user nor
// assistant turns. Clients may not inject system prompts.
var ErrInvalidRole = errors.New("invalid message role")

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation validates the client history, keeps its last turns entries,
// and appends question as the final user turn. Blank messages are dropped,
// and so are assistant turns at the start of the kept window since the
// conversation must open with a user turn.
func Conversation(history []Message, turns int, question string) ([]Message, error) {
	for i, m := range history {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return nil, fmt.Errorf("message %d: %w %q", i, ErrInvalidRole, m.Role)
		}
	}

	kept := history
	if turns <= 0 {
		kept = nil
	} else if len(kept) > turns {
		kept = kept[len(kept)-turns:]
	}

	out := make([]Message, 0, len(kept)+1)
	for _, m := range kept {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if len(out) == 0 && m.Role == RoleAssistant {
			continue
		}
		out = append(out, m)
	}
	return append(out, Message{Role: RoleUser, Content: question}), nil
}
