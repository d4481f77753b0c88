package models

import "time"

type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	Avatar string `json:"avatar,omitempty"`
}

type Conversation struct {
	ID              string        `json:"id"`
	Participants    []Participant `json:"participants"`
	LastMessage     string        `json:"last_message"`
	LastMessageTime time.Time     `json:"last_message_time"`
	UnreadCount     int           `json:"unread_count"`
	RelatedID       string        `json:"related_id,omitempty"`
	ActiveCall      bool          `json:"active_call"`
	CallType        string        `json:"call_type,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID string) (Participant, bool) {
	for _, p := range c.Participants {
		if p.ID != userID {
			return p, true
		}
	}
	return Participant{}, false
}

// Has reports whether userID takes part in the conversation.
func (c *Conversation) Has(userID string) bool {
	for _, p := range c.Participants {
		if p.ID == userID {
			return true
		}
	}
	return false
}

type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageFile     MessageType = "file"
	MessageLocation MessageType = "location"
	MessageAudio    MessageType = "audio"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageFile, MessageLocation, MessageAudio:
		return true
	}
	return false
}

// MessageMetadata holds the type-specific payload of a message.
type MessageMetadata struct {
	FileURL   string   `json:"file_url,omitempty"`
	FileName  string   `json:"file_name,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Duration  int      `json:"duration,omitempty"`
}

type Message struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	SenderID       string           `json:"sender_id"`
	SenderName     string           `json:"sender_name"`
	ReceiverID     string           `json:"receiver_id"`
	Text           string           `json:"text"`
	Type           MessageType      `json:"type"`
	Timestamp      time.Time        `json:"timestamp"`
	Read           bool             `json:"read"`
	Metadata       *MessageMetadata `json:"metadata,omitempty"`
}
