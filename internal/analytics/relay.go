// Package analytics forwards pageviews and events to a Measurement Protocol
// endpoint. Submissions are fire-and-forget: failures are logged, never returned.
package analytics

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/shehryarbajwa/review-background/internal/logging"
	"github.com/shehryarbajwa/review-background/pkg/models"
)

const submitTimeout = 10 * time.Second

// Tracker receives analytics hits
type Tracker interface {
	Pageview(path string)
	Event(ev models.TrackEvent)
}

// Config configures the relay
type Config struct {
	Endpoint    string
	TrackingID  string
	MaxInFlight int64
}

// Relay submits hits asynchronously with a bound on concurrent submissions
type Relay struct {
	client     *resty.Client
	endpoint   string
	trackingID string
	clientID   string
	inflight   *semaphore.Weighted
	wg         sync.WaitGroup
	log        *zap.Logger
}

// NewRelay creates a relay. An empty tracking id disables submission.
func NewRelay(cfg Config, logger *zap.Logger) *Relay {
	if cfg.MaxInFlight < 1 {
		cfg.MaxInFlight = 1
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	client := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(submitTimeout).
		SetHeader("User-Agent", "Review-Background/1.0")

	return &Relay{
		client:     client,
		endpoint:   cfg.Endpoint,
		trackingID: cfg.TrackingID,
		clientID:   uuid.NewString(),
		inflight:   semaphore.NewWeighted(cfg.MaxInFlight),
		log:        logging.OrNop(logger),
	}
}

// ClientID returns the anonymous client id sent with every hit
func (r *Relay) ClientID() string {
	return r.clientID
}

// Pageview records a page view for path
func (r *Relay) Pageview(path string) {
	r.submit(map[string]string{
		"t":  "pageview",
		"dp": path,
	})
}

// Event records a user interaction event
func (r *Relay) Event(ev models.TrackEvent) {
	hit := map[string]string{
		"t":  "event",
		"ec": ev.Category,
		"ea": ev.Action,
	}
	if ev.Label != "" {
		hit["el"] = ev.Label
	}
	r.submit(hit)
}

// Wait blocks until every in-flight submission has finished
func (r *Relay) Wait() {
	r.wg.Wait()
}

func (r *Relay) submit(hit map[string]string) {
	if r.trackingID == "" || r.endpoint == "" {
		return
	}

	if !r.inflight.TryAcquire(1) {
		r.log.Debug("analytics hit dropped, too many in flight", zap.String("type", hit["t"]))
		return
	}

	hit["v"] = "1"
	hit["tid"] = r.trackingID
	hit["cid"] = r.clientID
	hit["z"] = strconv.FormatInt(time.Now().UnixNano(), 36)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.inflight.Release(1)

		ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
		defer cancel()

		resp, err := r.client.R().
			SetContext(ctx).
			SetFormData(hit).
			Post(r.endpoint)
		if err != nil {
			r.log.Debug("analytics submission failed", zap.String("type", hit["t"]), zap.Error(err))
			return
		}
		if resp.IsError() {
			r.log.Debug("analytics endpoint rejected hit",
				zap.String("type", hit["t"]),
				zap.Int("status", resp.StatusCode()))
		}
	}()
}
