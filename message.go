package squid

import "github.com/squidcloud/squid-go/pkg/client"

// MessageType tells who wrote a chat message.
type MessageType string

const (
	MessageAI   MessageType = "ai"
	MessageUser MessageType = "user"
)

// ChatMessage is an entry of an AIChat history: a *UserMessage or an
// *AIMessage.
type ChatMessage interface {
	MessageID() string
	Type() MessageType
	Text() string
	// Job returns the id of the job the message belongs to, if any.
	Job() string

	chatMessage()
}

// UserMessage is a prompt sent by the user.
type UserMessage struct {
	ID      string
	Message string
	JobID   string
	// VoiceFile is the recording a transcribed prompt came from.
	VoiceFile *client.File
}

func (m *UserMessage) MessageID() string { return m.ID }
func (m *UserMessage) Type() MessageType { return MessageUser }
func (m *UserMessage) Text() string      { return m.Message }
func (m *UserMessage) Job() string       { return m.JobID }
func (*UserMessage) chatMessage()        {}

// AIMessage is an answer. While an answer streams in, the same message is
// replaced with longer text.
type AIMessage struct {
	ID      string
	Message string
	JobID   string
	// VoiceFile holds a spoken rendition of the answer when one was produced.
	VoiceFile *client.File
}

func (m *AIMessage) MessageID() string { return m.ID }
func (m *AIMessage) Type() MessageType { return MessageAI }
func (m *AIMessage) Text() string      { return m.Message }
func (m *AIMessage) Job() string       { return m.JobID }
func (*AIMessage) chatMessage()        {}

func historyMessage(item client.HistoryItem) ChatMessage {
	if MessageType(item.Source) == MessageUser {
		return &UserMessage{ID: item.ID, Message: item.Message}
	}
	return &AIMessage{ID: item.ID, Message: item.Message}
}
