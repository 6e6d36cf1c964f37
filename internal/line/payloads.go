package line

import (
	"encoding/json"
	"fmt"
)

const (
	EventTypeMessage  = "message"
	EventTypeFollow   = "follow"
	EventTypeUnfollow = "unfollow"
	EventTypeJoin     = "join"

	MessageTypeText    = "text"
	MessageTypeSticker = "sticker"
	MessageTypeImage   = "image"

	SourceTypeUser  = "user"
	SourceTypeGroup = "group"
	SourceTypeRoom  = "room"
)

// CallbackRequest is the body LINE posts to the webhook endpoint.
type CallbackRequest struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// Event is one webhook event. Only the fields the relay needs are decoded.
type Event struct {
	Type            string          `json:"type"`
	Mode            string          `json:"mode,omitempty"`
	Timestamp       int64           `json:"timestamp"`
	Source          Source          `json:"source"`
	WebhookEventID  string          `json:"webhookEventId"`
	DeliveryContext DeliveryContext `json:"deliveryContext"`
	ReplyToken      string          `json:"replyToken,omitempty"`
	Message         *Message        `json:"message,omitempty"`
}

// Source identifies who sent the event.
type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// DeliveryContext tells whether LINE is redelivering an event.
type DeliveryContext struct {
	IsRedelivery bool `json:"isRedelivery"`
}

// Message is the message object of a message event.
type Message struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// IsTextMessage reports whether the event is a user text message.
func (e Event) IsTextMessage() bool {
	return e.Type == EventTypeMessage && e.Message != nil && e.Message.Type == MessageTypeText
}

// Kind is a short label for logs and metrics, e.g. "message.text" or "follow".
func (e Event) Kind() string {
	if e.Type == EventTypeMessage && e.Message != nil && e.Message.Type != "" {
		return e.Type + "." + e.Message.Type
	}
	if e.Type == "" {
		return "unknown"
	}
	return e.Type
}

// ParseCallback decodes a webhook body.
func ParseCallback(body []byte) (*CallbackRequest, error) {
	var req CallbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("line: decode webhook body: %w", err)
	}
	if req.Events == nil {
		return nil, fmt.Errorf("line: webhook body has no events field")
	}
	return &req, nil
}

// TextMessage is an outbound text message.
type TextMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []TextMessage `json:"messages"`
}

type apiError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message,omitempty"`
	Details    []struct {
		Message  string `json:"message"`
		Property string `json:"property"`
	} `json:"details,omitempty"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		if len(e.Details) > 0 {
			return fmt.Sprintf("line: %s: %s (status=%d)", e.Message, e.Details[0].Message, e.StatusCode)
		}
		return fmt.Sprintf("line: %s (status=%d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("line: http status %d", e.StatusCode)
}

func decodeAPIError(status int, body []byte) error {
	var parsed apiError
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &apiError{StatusCode: status, Message: string(body)}
	}
	parsed.StatusCode = status
	return &parsed
}
