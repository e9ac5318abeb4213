package models

import "encoding/json"

// Inbound actions sent by content scripts and injected frames
const (
	ActionTrackEvent      = "track-event"
	ActionIsReviewFrame   = "is-review-frame"
	ActionIsDonated       = "is-donated"
	ActionGetDonationData = "get-donation-data"
	ActionDonate          = "donate"
)

// Outbound actions sent to tabs
const (
	ActionDestroy       = "destroy-re:view"
	ActionDonateSuccess = "donate-success"
	ActionDonateFailed  = "donate-failed"
)

// Message is the {action, data?} shape exchanged with content scripts
type Message struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// NewMessage builds a message, marshalling data when present
func NewMessage(action string, data any) Message {
	msg := Message{Action: action}
	if data == nil {
		return msg
	}
	if raw, ok := data.(json.RawMessage); ok {
		msg.Data = raw
		return msg
	}
	if b, err := json.Marshal(data); err == nil {
		msg.Data = b
	}
	return msg
}

// Sender identifies where an inbound message came from
type Sender struct {
	Tab     *Tab `json:"tab,omitempty"`
	FrameID int  `json:"frameId"`
}

// TabID returns the sending tab id, or -1 when the sender has no tab
func (s Sender) TabID() int {
	if s.Tab == nil {
		return -1
	}
	return s.Tab.ID
}

// TrackEvent is the payload of a track-event message
type TrackEvent struct {
	Category string `json:"category"`
	Action   string `json:"action"`
	Label    string `json:"label,omitempty"`
}

// SendOptions scopes an outbound message to a single frame
type SendOptions struct {
	FrameID *int `json:"frameId,omitempty"`
}

// Reply is the body of an asynchronous message response
type Reply struct {
	Data  any `json:"data,omitempty"`
	Error any `json:"error,omitempty"`
}
