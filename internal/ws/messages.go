package ws

import (
	"strings"

	"filmstrip/internal/queue"
)

// Outbound message types routed on by the browser.
const (
	TypeConnection = "connection"
	TypeProgress   = "progress"
	TypeComplete   = "complete"
	TypeError      = "error"
	TypePong       = "pong"
)

// Inbound message types routed on by the hub.
const (
	typeProcess   = "process"
	typeSubscribe = "subscribe"
	typePing      = "ping"
)

// Message is the JSON envelope exchanged with browsers. The Type field
// discriminates; the remaining fields are populated per type.
type Message struct {
	Type     string  `json:"type"`
	Status   string  `json:"status,omitempty"`
	Token    string  `json:"token,omitempty"`
	Filename string  `json:"filename,omitempty"`
	Stage    string  `json:"stage,omitempty"`
	Percent  float64 `json:"percent,omitempty"`
	Message  string  `json:"message,omitempty"`
	VideoURL string  `json:"video_url,omitempty"`
	Error    string  `json:"error,omitempty"`
}

type inbound struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

// ConnectionMessage is the handshake confirmation sent on connect. The
// browser treats the connection as unusable until it arrives.
func ConnectionMessage(status string) Message {
	return Message{Type: TypeConnection, Status: status}
}

// ItemMessage converts a queue item snapshot into the outbound message the
// browser expects for its current state.
func ItemMessage(item *queue.Item) Message {
	switch item.Status {
	case queue.StatusCompleted:
		return Message{
			Type:     TypeComplete,
			Token:    item.Token,
			Filename: item.Filename,
			Stage:    item.ProgressStage,
			Percent:  100,
			Message:  item.ProgressMessage,
			VideoURL: item.VideoURL,
		}
	case queue.StatusFailed:
		reason := strings.TrimSpace(item.ErrorMessage)
		if reason == "" {
			reason = "processing failed"
		}
		return Message{
			Type:     TypeError,
			Token:    item.Token,
			Filename: item.Filename,
			Stage:    item.ProgressStage,
			Error:    reason,
		}
	default:
		return Message{
			Type:     TypeProgress,
			Token:    item.Token,
			Filename: item.Filename,
			Stage:    item.ProgressStage,
			Percent:  item.ProgressPercent,
			Message:  item.ProgressMessage,
		}
	}
}
