package models

// Role identifies the author of a conversation message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Message is a single conversation turn
type Message struct {
	Role    Role   `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

// Transcript is an ordered conversation. At most one system message is
// allowed and, when present, it sits at index 0.
type Transcript []Message

// HasSystem reports whether the transcript starts with a system message
func (t Transcript) HasSystem() bool {
	return len(t) > 0 && t[0].Role == RoleSystem
}

// Valid checks the system message placement rule
func (t Transcript) Valid() bool {
	for i, m := range t {
		if !m.Role.Valid() {
			return false
		}
		if m.Role == RoleSystem && i != 0 {
			return false
		}
	}
	return true
}

// Clone returns a copy that can be modified without affecting t
func (t Transcript) Clone() Transcript {
	if t == nil {
		return nil
	}
	out := make(Transcript, len(t))
	copy(out, t)
	return out
}

// System message constructor
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User message constructor
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant message constructor
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }
