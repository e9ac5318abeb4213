package billing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/shehryarbajwa/review-background/internal/logging"
	"github.com/shehryarbajwa/review-background/pkg/models"
)

// Notifier delivers a message to every tab with an active overlay
type Notifier interface {
	Broadcast(msg models.Message)
}

// Options parameterizes the facade
type Options struct {
	Environment string
	SKU         string
}

// Facade wraps the payments provider for the single donation product
// and caches whether the user has donated for the process lifetime.
type Facade struct {
	provider Provider
	env      string
	sku      string
	notifier Notifier
	log      *zap.Logger

	mu    sync.RWMutex
	state DonationState
	group singleflight.Group
}

// NewFacade creates a billing facade
func NewFacade(provider Provider, opts Options, notifier Notifier, logger *zap.Logger) *Facade {
	return &Facade{
		provider: provider,
		env:      opts.Environment,
		sku:      opts.SKU,
		notifier: notifier,
		log:      logging.OrNop(logger),
	}
}

// SKU returns the donation product identifier
func (f *Facade) SKU() string {
	return f.sku
}

// State returns the cached donation state without querying the provider
func (f *Facade) State() DonationState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// FetchProduct returns the active donation product from the catalog
func (f *Facade) FetchProduct(ctx context.Context) (*models.Product, error) {
	products, err := f.provider.GetSkuDetails(ctx, f.env)
	if err != nil {
		return nil, &NotFoundError{SKU: f.sku, Err: err}
	}

	for i := range products {
		if products[i].SKU == f.sku && products[i].State == models.ProductStateActive {
			product := products[i]
			return &product, nil
		}
	}
	return nil, &NotFoundError{SKU: f.sku}
}

// FetchPurchases returns the current user's purchase history
func (f *Facade) FetchPurchases(ctx context.Context) ([]models.Purchase, error) {
	purchases, err := f.provider.GetPurchases(ctx, f.env)
	if err != nil {
		return nil, asProviderError("getPurchases", err)
	}
	return purchases, nil
}

// CheckDonated reports whether the user owns the donation product.
// The first answer is cached; history fetch failures count as "not donated".
func (f *Facade) CheckDonated(ctx context.Context) bool {
	if state := f.State(); state.Known() {
		return state.Bool()
	}

	v, _, _ := f.group.Do("donated", func() (any, error) {
		if state := f.State(); state.Known() {
			return state, nil
		}

		state := NotDonated
		purchases, err := f.FetchPurchases(ctx)
		if err != nil {
			f.log.Warn("purchase history unavailable, assuming not donated", zap.Error(err))
		} else {
			for _, p := range purchases {
				if p.SKU == f.sku {
					state = Donated
					break
				}
			}
		}
		return f.settle(state), nil
	})
	return v.(DonationState).Bool()
}

// Purchase runs the buy flow for the donation product and broadcasts the outcome
// to every active overlay
func (f *Facade) Purchase(ctx context.Context) (*models.PurchaseResult, error) {
	result, err := f.provider.Buy(ctx, f.env, f.sku)
	if err != nil {
		perr := asProviderError("buy", err)
		f.log.Info("donation purchase failed", zap.Error(perr))
		f.broadcast(models.NewMessage(models.ActionDonateFailed, ErrorPayload(perr)))
		return nil, perr
	}
	if result == nil {
		result = &models.PurchaseResult{}
	}

	f.mu.Lock()
	f.state = Donated
	f.mu.Unlock()

	f.log.Info("donation purchase completed", zap.String("order_id", result.OrderID))
	f.broadcast(models.Message{Action: models.ActionDonateSuccess})
	return result, nil
}

// settle stores state unless a purchase already marked the user as donated
func (f *Facade) settle(state DonationState) DonationState {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Donated {
		f.state = state
	}
	return f.state
}

func (f *Facade) broadcast(msg models.Message) {
	if f.notifier != nil {
		f.notifier.Broadcast(msg)
	}
}

func asProviderError(op string, err error) error {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	payload, _ := json.Marshal(err.Error())
	return &ProviderError{Op: op, Payload: payload}
}
