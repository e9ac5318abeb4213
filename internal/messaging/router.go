package messaging

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/review-background/internal/analytics"
	"github.com/shehryarbajwa/review-background/internal/billing"
	"github.com/shehryarbajwa/review-background/internal/logging"
	"github.com/shehryarbajwa/review-background/internal/ratelimit"
	"github.com/shehryarbajwa/review-background/pkg/models"
)

// Billing is the donation surface exposed to content scripts
type Billing interface {
	CheckDonated(ctx context.Context) bool
	FetchProduct(ctx context.Context) (*models.Product, error)
	Purchase(ctx context.Context) (*models.PurchaseResult, error)
}

// SessionChecker reports whether a tab has the overlay active
type SessionChecker interface {
	IsActive(tabID int) bool
}

// Responder delivers the response to an inbound message
type Responder func(v any)

// Router dispatches inbound extension messages by action tag
type Router struct {
	base     context.Context
	sessions SessionChecker
	tracker  analytics.Tracker
	billing  Billing
	limiter  *ratelimit.Limiter
	log      *zap.Logger
	wg       sync.WaitGroup
}

// NewRouter creates a message router. Billing calls started by the router run
// detached from base's cancellation so a started purchase always resolves.
func NewRouter(base context.Context, sessions SessionChecker, tracker analytics.Tracker, billing Billing, limiter *ratelimit.Limiter, logger *zap.Logger) *Router {
	return &Router{
		base:     context.WithoutCancel(base),
		sessions: sessions,
		tracker:  tracker,
		billing:  billing,
		limiter:  limiter,
		log:      logging.OrNop(logger),
	}
}

// Dispatch handles one message. respond is invoked at most once.
// The return value is true when the response will arrive asynchronously
// and the channel must be kept open.
func (r *Router) Dispatch(msg models.Message, sender models.Sender, respond Responder) bool {
	respond = once(respond)

	switch msg.Action {
	case models.ActionTrackEvent:
		r.trackEvent(msg.Data, sender)
		return false

	case models.ActionIsReviewFrame:
		respond(r.sessions.IsActive(sender.TabID()) && sender.FrameID != 0)
		return false

	case models.ActionIsDonated:
		r.async(func(ctx context.Context) {
			respond(models.Reply{Data: r.billing.CheckDonated(ctx)})
		})
		return true

	case models.ActionGetDonationData:
		r.async(func(ctx context.Context) {
			product, err := r.billing.FetchProduct(ctx)
			if err != nil {
				respond(models.Reply{Error: billing.ErrorPayload(err)})
				return
			}
			respond(models.Reply{Data: product})
		})
		return true

	case models.ActionDonate:
		r.async(func(ctx context.Context) {
			result, err := r.billing.Purchase(ctx)
			if err != nil {
				respond(models.Reply{Error: billing.ErrorPayload(err)})
				return
			}
			respond(models.Reply{Data: result})
		})
		return true

	default:
		r.log.Debug("ignoring message", zap.String("action", msg.Action))
		return false
	}
}

// ForgetTab releases per-tab throttling state
func (r *Router) ForgetTab(tabID int) {
	if r.limiter != nil {
		r.limiter.Forget(tabKey(tabID))
	}
}

// Wait blocks until all asynchronous responses have been delivered
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) trackEvent(data json.RawMessage, sender models.Sender) {
	if r.tracker == nil {
		return
	}

	var ev models.TrackEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		r.log.Debug("malformed track-event payload", zap.Error(err))
		return
	}

	if r.limiter != nil && !r.limiter.Allow(tabKey(sender.TabID())) {
		r.log.Debug("track-event throttled", zap.Int("tab_id", sender.TabID()))
		return
	}
	r.tracker.Event(ev)
}

func (r *Router) async(fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn(r.base)
	}()
}

func tabKey(tabID int) string {
	return "tab:" + strconv.Itoa(tabID)
}

func once(respond Responder) Responder {
	if respond == nil {
		return func(any) {}
	}
	var o sync.Once
	return func(v any) {
		o.Do(func() { respond(v) })
	}
}
