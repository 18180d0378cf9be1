package domain

import "github.com/google/uuid"

const (
	MessageKindUser   = "user"
	MessageKindSystem = "system"

	ActionJoin  = "join"
	ActionLeave = "leave"
)

// Message is one chat history entry. System messages additionally
// carry the subject's display name and an action tag so clients can
// render join/leave lines without parsing the text.
type Message struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Text      string `json:"text"`
	Username  string `json:"username,omitempty"`
	Action    string `json:"action,omitempty"`
	Timestamp int64  `json:"timestamp"` // unix millis
	Kind      string `json:"type"`
}

func NewUserMessage(author, text string, at int64) Message {
	return Message{
		ID:        uuid.NewString(),
		Author:    author,
		Text:      text,
		Timestamp: at,
		Kind:      MessageKindUser,
	}
}

func NewSystemMessage(text, username, action string, at int64) Message {
	return Message{
		ID:        "sys-" + uuid.NewString(),
		Author:    "system",
		Text:      text,
		Username:  username,
		Action:    action,
		Timestamp: at,
		Kind:      MessageKindSystem,
	}
}
