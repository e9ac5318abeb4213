package messaging

import (
	"go.uber.org/zap"

	"github.com/shehryarbajwa/review-background/internal/logging"
	"github.com/shehryarbajwa/review-background/pkg/models"
)

// MessageSender delivers a message to a tab's content scripts
type MessageSender interface {
	SendMessage(tabID int, msg models.Message, opts models.SendOptions) error
}

// ActiveTabLister enumerates tabs with an active overlay
type ActiveTabLister interface {
	ActiveTabs() []int
}

// Broadcaster sends a message to every frame of every tab with an active session
type Broadcaster struct {
	tabs   ActiveTabLister
	sender MessageSender
	log    *zap.Logger
}

// NewBroadcaster creates a broadcaster
func NewBroadcaster(tabs ActiveTabLister, sender MessageSender, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		tabs:   tabs,
		sender: sender,
		log:    logging.OrNop(logger),
	}
}

// Broadcast implements billing.Notifier
func (b *Broadcaster) Broadcast(msg models.Message) {
	for _, tabID := range b.tabs.ActiveTabs() {
		if err := b.sender.SendMessage(tabID, msg, models.SendOptions{}); err != nil {
			b.log.Warn("broadcast failed",
				zap.Int("tab_id", tabID),
				zap.String("action", msg.Action),
				zap.Error(err))
		}
	}
}
