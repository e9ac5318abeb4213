// Package action toggles the overlay when the toolbar icon is clicked and
// tears sessions down when their tab goes away.
package action

import (
	"go.uber.org/zap"

	"github.com/shehryarbajwa/review-background/internal/analytics"
	"github.com/shehryarbajwa/review-background/internal/logging"
	"github.com/shehryarbajwa/review-background/internal/session"
	"github.com/shehryarbajwa/review-background/pkg/models"
)

// Extension resources injected into or shown for a tab
const (
	StylePath    = "style/main.css"
	ScriptPath   = "scripts/re-view.js"
	DefaultIcon  = "icons/browser-action.png"
	ActiveIcon   = "icons/browser-action-active.png"
	PageviewPath = "/chrome-extension"
)

// Host is the browser API surface the controller drives
type Host interface {
	SendMessage(tabID int, msg models.Message, opts models.SendOptions) error
	InsertCSS(tabID int, file string) error
	ExecuteScript(tabID int, file string) error
	SetIcon(tabID int, path string) error
}

// Controller is the per-tab inactive/active state machine
type Controller struct {
	sessions     *session.Manager
	host         Host
	tracker      analytics.Tracker
	log          *zap.Logger
	onDeactivate []func(tabID int)
}

// NewController creates a new action controller
func NewController(sessions *session.Manager, host Host, tracker analytics.Tracker, logger *zap.Logger) *Controller {
	return &Controller{
		sessions: sessions,
		host:     host,
		tracker:  tracker,
		log:      logging.OrNop(logger),
	}
}

// OnDeactivate registers fn to run whenever a tab leaves the active state
func (c *Controller) OnDeactivate(fn func(tabID int)) {
	c.onDeactivate = append(c.onDeactivate, fn)
}

// OnClicked toggles the overlay for the clicked tab
func (c *Controller) OnClicked(tab models.Tab) {
	if c.sessions.IsActive(tab.ID) {
		c.deactivate(tab.ID)
		return
	}
	c.activate(tab)
}

// OnTabRemoved drops the session of a closed tab
func (c *Controller) OnTabRemoved(tabID int) {
	c.forget(tabID, "tab closed")
}

// OnTabUpdated drops the session when the tab's top-level document is replaced
func (c *Controller) OnTabUpdated(tabID int, change models.TabChange) {
	if !change.Navigated() {
		return
	}
	c.forget(tabID, "tab navigated")
}

// OnTabReplaced drops the session of a tab swapped out by prerender or instant navigation
func (c *Controller) OnTabReplaced(addedTabID, removedTabID int) {
	c.forget(removedTabID, "tab replaced")
}

func (c *Controller) activate(tab models.Tab) {
	c.sessions.Activate(tab.ID, tab.URL)
	c.log.Info("overlay activated", zap.Int("tab_id", tab.ID), zap.String("url", tab.URL))

	if c.tracker != nil {
		c.tracker.Pageview(PageviewPath)
	}
	c.check(tab.ID, "insert style", c.host.InsertCSS(tab.ID, StylePath))
	c.check(tab.ID, "execute script", c.host.ExecuteScript(tab.ID, ScriptPath))
	c.check(tab.ID, "set icon", c.host.SetIcon(tab.ID, ActiveIcon))
}

func (c *Controller) deactivate(tabID int) {
	c.check(tabID, "send teardown", c.host.SendMessage(tabID, models.Message{Action: models.ActionDestroy}, models.SendOptions{}))
	c.sessions.Deactivate(tabID)
	c.log.Info("overlay deactivated", zap.Int("tab_id", tabID))
	c.check(tabID, "reset icon", c.host.SetIcon(tabID, DefaultIcon))
	c.notify(tabID)
}

// forget removes the session without messaging the tab; its document is already gone
func (c *Controller) forget(tabID int, reason string) {
	if !c.sessions.Deactivate(tabID) {
		return
	}
	c.log.Info("overlay session dropped", zap.Int("tab_id", tabID), zap.String("reason", reason))
	c.notify(tabID)
}

func (c *Controller) notify(tabID int) {
	for _, fn := range c.onDeactivate {
		fn(tabID)
	}
}

func (c *Controller) check(tabID int, op string, err error) {
	if err != nil {
		c.log.Warn("host command failed", zap.Int("tab_id", tabID), zap.String("op", op), zap.Error(err))
	}
}
