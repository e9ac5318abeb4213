package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTabChangeNavigated(t *testing.T) {
	assert.True(t, TabChange{URL: "https://example.com"}.Navigated())
	assert.True(t, TabChange{Status: TabStatusLoading}.Navigated())
	assert.False(t, TabChange{Status: "complete"}.Navigated())
	assert.False(t, TabChange{}.Navigated())
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage(ActionDonateFailed, map[string]string{"errorType": "PURCHASE_CANCELED"})
	assert.JSONEq(t, `{"errorType":"PURCHASE_CANCELED"}`, string(msg.Data))

	raw := NewMessage(ActionDonateFailed, json.RawMessage(`{"a":1}`))
	assert.Equal(t, json.RawMessage(`{"a":1}`), raw.Data)

	bare := NewMessage(ActionDonateSuccess, nil)
	b, err := json.Marshal(bare)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"action":"donate-success"}`, string(b))
}

func TestSenderTabID(t *testing.T) {
	assert.Equal(t, -1, Sender{}.TabID())
	assert.Equal(t, 3, Sender{Tab: &Tab{ID: 3}}.TabID())
}

func TestRequestDetailsTime(t *testing.T) {
	assert.True(t, RequestDetails{}.Time().IsZero())

	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	assert.True(t, at.Equal(RequestDetails{TimeStamp: float64(at.UnixMilli())}.Time()))
}

func TestBlockingResponseEmpty(t *testing.T) {
	assert.True(t, BlockingResponse{}.Empty())
	assert.False(t, BlockingResponse{RedirectURL: "https://example.com"}.Empty())
	assert.False(t, BlockingResponse{ResponseHeaders: []Header{}}.Empty())
}
