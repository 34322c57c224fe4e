package llm

import (
	"context"
	"sync"
)

// Session is a stateful multi-turn conversation on top of a provider.
type Session struct {
	provider Provider
	system   string

	mu       sync.Mutex
	history  []Message
	maxTurns int
}

func NewSession(p Provider, system string) *Session {
	return &Session{provider: p, system: system}
}

// Send appends prompt to the conversation and returns the reply. With
// endChat the history is cleared afterwards. A failed turn is dropped from
// the history.
func (s *Session) Send(ctx context.Context, prompt string, endChat bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]Message, 0, len(s.history)+2)
	if s.system != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: s.system})
	}
	messages = append(messages, s.history...)
	messages = append(messages, Message{Role: RoleUser, Content: prompt})

	reply, err := s.provider.Chat(ctx, messages)
	if err != nil {
		return "", err
	}

	if endChat {
		s.history = nil
	} else {
		s.history = append(s.history,
			Message{Role: RoleUser, Content: prompt},
			Message{Role: RoleAssistant, Content: reply},
		)
		if s.maxTurns > 0 && len(s.history) > 2*s.maxTurns {
			s.history = s.history[len(s.history)-2*s.maxTurns:]
		}
	}
	return reply, nil
}

// SetMaxTurns bounds the remembered history to the last n exchanges.
// Zero keeps everything.
func (s *Session) SetMaxTurns(n int) {
	s.mu.Lock()
	s.maxTurns = n
	s.mu.Unlock()
}

// End forgets the conversation.
func (s *Session) End() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}

func (s *Session) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history) / 2
}
