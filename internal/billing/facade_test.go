package billing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/review-background/pkg/models"
)

type fakeProvider struct {
	products     []models.Product
	purchases    []models.Purchase
	skuErr       error
	purchasesErr error
	buyResult    *models.PurchaseResult
	buyErr       error

	purchaseCalls atomic.Int32
	buyCalls      atomic.Int32
	gate          chan struct{}
}

func (p *fakeProvider) GetSkuDetails(ctx context.Context, env string) ([]models.Product, error) {
	return p.products, p.skuErr
}

func (p *fakeProvider) GetPurchases(ctx context.Context, env string) ([]models.Purchase, error) {
	p.purchaseCalls.Add(1)
	if p.gate != nil {
		<-p.gate
	}
	return p.purchases, p.purchasesErr
}

func (p *fakeProvider) Buy(ctx context.Context, env, sku string) (*models.PurchaseResult, error) {
	p.buyCalls.Add(1)
	return p.buyResult, p.buyErr
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (n *recordingNotifier) Broadcast(msg models.Message) {
	n.mu.Lock()
	n.msgs = append(n.msgs, msg)
	n.mu.Unlock()
}

func (n *recordingNotifier) messages() []models.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.Message(nil), n.msgs...)
}

var testOpts = Options{Environment: "prod", SKU: "re_view"}

func TestFetchProduct(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
		wantErr  bool
	}{
		{
			name: "active product found",
			provider: &fakeProvider{products: []models.Product{
				{SKU: "other", State: models.ProductStateActive},
				{SKU: "re_view", State: models.ProductStateActive, Title: "Donate"},
			}},
		},
		{
			name:     "inactive product",
			provider: &fakeProvider{products: []models.Product{{SKU: "re_view", State: "INACTIVE"}}},
			wantErr:  true,
		},
		{
			name:     "empty catalog",
			provider: &fakeProvider{},
			wantErr:  true,
		},
		{
			name:     "provider failure",
			provider: &fakeProvider{skuErr: &ProviderError{Op: "getSkuDetails", Payload: json.RawMessage(`{"errorType":"INTERNAL"}`)}},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFacade(tt.provider, testOpts, nil, nil)
			product, err := f.FetchProduct(context.Background())

			if tt.wantErr {
				var nf *NotFoundError
				require.ErrorAs(t, err, &nf)
				assert.Equal(t, "re_view", nf.SKU)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Donate", product.Title)
		})
	}
}

func TestFetchPurchasesSurfacesProviderError(t *testing.T) {
	f := NewFacade(&fakeProvider{purchasesErr: errors.New("offline")}, testOpts, nil, nil)

	_, err := f.FetchPurchases(context.Background())
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "getPurchases", pe.Op)
}

func TestCheckDonatedCachesResult(t *testing.T) {
	provider := &fakeProvider{purchases: []models.Purchase{{SKU: "re_view"}}}
	f := NewFacade(provider, testOpts, nil, nil)

	assert.Equal(t, Unknown, f.State())
	assert.True(t, f.CheckDonated(context.Background()))
	assert.True(t, f.CheckDonated(context.Background()))
	assert.Equal(t, int32(1), provider.purchaseCalls.Load())
	assert.Equal(t, Donated, f.State())
}

func TestCheckDonatedCachesNegativeResult(t *testing.T) {
	provider := &fakeProvider{purchases: []models.Purchase{{SKU: "something_else"}}}
	f := NewFacade(provider, testOpts, nil, nil)

	assert.False(t, f.CheckDonated(context.Background()))
	assert.False(t, f.CheckDonated(context.Background()))
	assert.Equal(t, int32(1), provider.purchaseCalls.Load())
	assert.Equal(t, NotDonated, f.State())
}

func TestCheckDonatedSwallowsFailure(t *testing.T) {
	provider := &fakeProvider{purchasesErr: &ProviderError{Op: "getPurchases"}}
	f := NewFacade(provider, testOpts, nil, nil)

	assert.False(t, f.CheckDonated(context.Background()))
	assert.Equal(t, NotDonated, f.State())
}

func TestCheckDonatedCollapsesConcurrentCalls(t *testing.T) {
	provider := &fakeProvider{purchases: []models.Purchase{{SKU: "re_view"}}, gate: make(chan struct{})}
	f := NewFacade(provider, testOpts, nil, nil)

	var wg sync.WaitGroup
	results := make([]bool, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.CheckDonated(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return provider.purchaseCalls.Load() >= 1 }, time.Second, time.Millisecond)
	close(provider.gate)
	wg.Wait()

	for _, r := range results {
		assert.True(t, r)
	}
	assert.Equal(t, int32(1), provider.purchaseCalls.Load())
}

func TestPurchaseSuccessBroadcastsAndMarksDonated(t *testing.T) {
	provider := &fakeProvider{buyResult: &models.PurchaseResult{OrderID: "order-1"}}
	notifier := &recordingNotifier{}
	f := NewFacade(provider, testOpts, notifier, nil)

	result, err := f.Purchase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "order-1", result.OrderID)
	assert.Equal(t, Donated, f.State())

	msgs := notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.ActionDonateSuccess, msgs[0].Action)

	assert.True(t, f.CheckDonated(context.Background()))
	assert.Equal(t, int32(0), provider.purchaseCalls.Load())
}

func TestPurchaseFailureBroadcastsPayload(t *testing.T) {
	payload := json.RawMessage(`{"errorType":"PURCHASE_CANCELED"}`)
	provider := &fakeProvider{buyErr: &ProviderError{Op: "buy", Payload: payload}}
	notifier := &recordingNotifier{}
	f := NewFacade(provider, testOpts, notifier, nil)

	_, err := f.Purchase(context.Background())
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.JSONEq(t, string(payload), string(pe.Payload))

	msgs := notifier.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.ActionDonateFailed, msgs[0].Action)
	assert.JSONEq(t, string(payload), string(msgs[0].Data))
	assert.Equal(t, Unknown, f.State())
}

func TestSettleKeepsDonated(t *testing.T) {
	f := NewFacade(&fakeProvider{}, testOpts, nil, nil)
	f.state = Donated

	assert.Equal(t, Donated, f.settle(NotDonated))
}

func TestDonationStateString(t *testing.T) {
	assert.Equal(t, "unknown", Unknown.String())
	assert.Equal(t, "donated", Donated.String())
	assert.Equal(t, "not_donated", NotDonated.String())
	assert.False(t, Unknown.Known())
	assert.False(t, Unknown.Bool())
}
