package bridge

import (
	"encoding/json"

	"github.com/shehryarbajwa/review-background/pkg/models"
)

// Event types sent by the extension shim
const (
	TypeActionClicked     = "action.clicked"
	TypeTabRemoved        = "tabs.removed"
	TypeTabUpdated        = "tabs.updated"
	TypeTabReplaced       = "tabs.replaced"
	TypeBeforeRequest     = "webRequest.beforeRequest"
	TypeBeforeSendHeaders = "webRequest.beforeSendHeaders"
	TypeHeadersReceived   = "webRequest.headersReceived"
	TypeRuntimeMessage    = "runtime.message"
)

// Envelope types sent back to the shim
const (
	TypeReply   = "reply"
	TypeNoReply = "noreply"

	TypeSendMessage   = "tabs.sendMessage"
	TypeInsertCSS     = "tabs.insertCSS"
	TypeExecuteScript = "tabs.executeScript"
	TypeSetIcon       = "browserAction.setIcon"
)

// Envelope frames every message on the bridge socket.
// Replies carry the id of the event they answer.
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type clickedEvent struct {
	Tab models.Tab `json:"tab"`
}

type tabEvent struct {
	TabID      int              `json:"tabId"`
	ChangeInfo models.TabChange `json:"changeInfo"`
}

type replacedEvent struct {
	AddedTabID   int `json:"addedTabId"`
	RemovedTabID int `json:"removedTabId"`
}

type messageEvent struct {
	Message models.Message `json:"message"`
	Sender  models.Sender  `json:"sender"`
}

type sendMessageCommand struct {
	TabID   int            `json:"tabId"`
	FrameID *int           `json:"frameId,omitempty"`
	Message models.Message `json:"message"`
}

type fileCommand struct {
	TabID int    `json:"tabId"`
	File  string `json:"file"`
}

type iconCommand struct {
	TabID int    `json:"tabId"`
	Path  string `json:"path"`
}
