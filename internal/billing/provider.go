package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/shehryarbajwa/review-background/pkg/models"
)

// Provider is the platform in-app payments API.
// Each call resolves exactly once; callers get no retry and no cancellation
// beyond the context deadline.
type Provider interface {
	GetSkuDetails(ctx context.Context, env string) ([]models.Product, error)
	GetPurchases(ctx context.Context, env string) ([]models.Purchase, error)
	Buy(ctx context.Context, env, sku string) (*models.PurchaseResult, error)
}

// envelope mirrors the payments API callback shape: {response: ...}
type envelope struct {
	Response json.RawMessage `json:"response"`
}

// HTTPProvider talks to a payments gateway over HTTP
type HTTPProvider struct {
	client *resty.Client
}

// NewHTTPProvider creates a provider rooted at baseURL
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	return &HTTPProvider{client: client}
}

// GetSkuDetails lists the in-app catalog
func (p *HTTPProvider) GetSkuDetails(ctx context.Context, env string) ([]models.Product, error) {
	var details struct {
		Details struct {
			InAppProducts []models.Product `json:"inAppProducts"`
		} `json:"details"`
	}
	if err := p.call(ctx, "getSkuDetails", http.MethodGet, "/v1/inapp/skus", env, nil, &details); err != nil {
		return nil, err
	}
	return details.Details.InAppProducts, nil
}

// GetPurchases lists the current user's licenses
func (p *HTTPProvider) GetPurchases(ctx context.Context, env string) ([]models.Purchase, error) {
	var details struct {
		Details []models.Purchase `json:"details"`
	}
	if err := p.call(ctx, "getPurchases", http.MethodGet, "/v1/inapp/purchases", env, nil, &details); err != nil {
		return nil, err
	}
	return details.Details, nil
}

// Buy starts the purchase flow for sku and waits for its outcome
func (p *HTTPProvider) Buy(ctx context.Context, env, sku string) (*models.PurchaseResult, error) {
	var raw json.RawMessage
	body := map[string]string{"sku": sku}
	if err := p.call(ctx, "buy", http.MethodPost, "/v1/inapp/buy", env, body, &raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &ProviderError{Op: "buy", Payload: jsonString("purchase result is not an object")}
	}

	result := &models.PurchaseResult{}
	if err := json.Unmarshal(raw, result); err != nil {
		return nil, &ProviderError{Op: "buy", Payload: jsonString(err.Error())}
	}
	result.Raw = raw
	return result, nil
}

func (p *HTTPProvider) call(ctx context.Context, op, method, path, env string, body any, out any) error {
	req := p.client.R().
		SetContext(ctx).
		SetQueryParam("env", env)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return &ProviderError{Op: op, Payload: jsonString(err.Error())}
	}

	var reply envelope
	if err := json.Unmarshal(resp.Body(), &reply); err != nil {
		reply.Response = nil
	}

	if resp.IsError() {
		return &ProviderError{Op: op, Status: resp.StatusCode(), Payload: reply.Response}
	}
	if len(reply.Response) == 0 {
		return &ProviderError{Op: op, Status: resp.StatusCode(), Payload: jsonString("empty response")}
	}
	if err := json.Unmarshal(reply.Response, out); err != nil {
		return &ProviderError{Op: op, Status: resp.StatusCode(), Payload: jsonString(err.Error())}
	}
	return nil
}

func jsonString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
