package store

import (
	"strings"
	"time"

	"campus-assistant-be/internal/constant"
)

// Turn is one line of conversation.
type Turn struct {
	Speaker string `json:"speaker"` // "User" | "Assistant"
	Text    string `json:"text"`
}

// Session is the rolling conversation kept for one session id.
// Turns are strictly in insertion order.
type Session struct {
	ID         string    `json:"id"`
	Turns      []Turn    `json:"turns"`
	LastAccess time.Time `json:"last_access"`

	transient bool
}

// NewTransientSession returns an entry that is never stored in the keyed map.
func NewTransientSession(now time.Time) *Session {
	return &Session{LastAccess: now, transient: true}
}

func (s *Session) Transient() bool { return s.transient }

// Render formats the turns as "Speaker: text" lines joined by newlines.
func (s *Session) Render() string {
	if len(s.Turns) == 0 {
		return ""
	}
	lines := make([]string, 0, len(s.Turns))
	for _, t := range s.Turns {
		lines = append(lines, t.Speaker+": "+t.Text)
	}
	return strings.Join(lines, "\n")
}

// AppendExchange adds one user line then one assistant line. The caller owns
// synchronisation; see memory.SessionRepository.
func (s *Session) AppendExchange(user, assistant string, now time.Time) {
	s.Turns = append(s.Turns,
		Turn{Speaker: constant.SpeakerUser, Text: user},
		Turn{Speaker: constant.SpeakerAssistant, Text: assistant},
	)
	s.LastAccess = now
}
