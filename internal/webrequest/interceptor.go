package webrequest

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/review-background/internal/logging"
	"github.com/shehryarbajwa/review-background/pkg/models"
)

// Query parameters understood on the proxy path
const (
	ParamURL       = "url"
	ParamUserAgent = "userAgent"
)

// OverrideStore records and resolves per-frame User-Agent overrides
type OverrideStore interface {
	Record(frameID int, userAgent string, at time.Time)
	UserAgentFor(frameID int) (string, bool)
}

// SessionChecker reports whether a tab has the overlay active
type SessionChecker interface {
	IsActive(tabID int) bool
}

// Interceptor holds the three blocking webRequest listeners.
// None of them perform I/O; each returns its verdict immediately.
type Interceptor struct {
	proxyPrefix string
	overrides   OverrideStore
	sessions    SessionChecker
	log         *zap.Logger
}

// NewInterceptor creates an interceptor for requests under proxyPrefix
func NewInterceptor(proxyPrefix string, overrides OverrideStore, sessions SessionChecker, logger *zap.Logger) *Interceptor {
	return &Interceptor{
		proxyPrefix: proxyPrefix,
		overrides:   overrides,
		sessions:    sessions,
		log:         logging.OrNop(logger),
	}
}

// IsProxyRequest reports whether the request targets the reserved proxy path from a sub-frame
func (i *Interceptor) IsProxyRequest(d models.RequestDetails) bool {
	return d.Type == models.ResourceSubFrame && strings.HasPrefix(d.URL, i.proxyPrefix)
}

// OnBeforeRequest handles the initial proxy request of an overlay sub-frame:
// it records the requested User-Agent for the frame and redirects to the target URL.
func (i *Interceptor) OnBeforeRequest(d models.RequestDetails) models.BlockingResponse {
	if !i.IsProxyRequest(d) {
		return models.BlockingResponse{}
	}

	_, query, found := strings.Cut(d.URL, "?")
	if !found || query == "" {
		return models.BlockingResponse{}
	}

	params, err := ParseQuery(query)
	if err != nil {
		i.log.Debug("ignoring malformed proxy request",
			zap.Int("frame_id", d.FrameID),
			zap.Error(err))
		return models.BlockingResponse{}
	}

	if ua := params[ParamUserAgent]; ua != "" {
		i.overrides.Record(d.FrameID, ua, d.Time())
		i.log.Debug("recorded user-agent override",
			zap.Int("frame_id", d.FrameID),
			zap.String("user_agent", ua))
	}

	if target := params[ParamURL]; target != "" {
		i.log.Debug("redirecting proxy request",
			zap.Int("tab_id", d.TabID),
			zap.Int("frame_id", d.FrameID),
			zap.String("target", target))
		return models.BlockingResponse{RedirectURL: target}
	}

	return models.BlockingResponse{}
}

// OnBeforeSendHeaders swaps the User-Agent header for frames with a recorded override
func (i *Interceptor) OnBeforeSendHeaders(d models.RequestDetails) models.BlockingResponse {
	ua, ok := i.overrides.UserAgentFor(d.FrameID)
	if !ok {
		return models.BlockingResponse{}
	}

	headers := make([]models.Header, len(d.RequestHeaders))
	for idx, h := range d.RequestHeaders {
		if strings.EqualFold(h.Name, "User-Agent") {
			h = models.Header{Name: h.Name, Value: ua}
		}
		headers[idx] = h
	}
	return models.BlockingResponse{RequestHeaders: headers}
}

// OnHeadersReceived strips X-Frame-Options from sub-frame responses of tabs
// with an active session so the page can render inside the overlay.
func (i *Interceptor) OnHeadersReceived(d models.RequestDetails) models.BlockingResponse {
	if d.Type != models.ResourceSubFrame || d.FrameID == 0 || !i.sessions.IsActive(d.TabID) {
		return models.BlockingResponse{}
	}

	headers := make([]models.Header, 0, len(d.ResponseHeaders))
	for _, h := range d.ResponseHeaders {
		if strings.EqualFold(h.Name, "X-Frame-Options") {
			continue
		}
		headers = append(headers, h)
	}
	return models.BlockingResponse{ResponseHeaders: headers}
}

// ParseQuery splits a raw query on '&' and '=' and percent-decodes both sides.
// Later keys win. Any component that is not a valid escape sequence, or that
// decodes to invalid UTF-8, fails the whole query.
func ParseQuery(query string) (map[string]string, error) {
	params := make(map[string]string)
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := decodeComponent(rawKey)
		if err != nil {
			return nil, err
		}
		value, err := decodeComponent(rawValue)
		if err != nil {
			return nil, err
		}
		params[key] = value
	}
	return params, nil
}

func decodeComponent(s string) (string, error) {
	v, err := url.PathUnescape(s)
	if err != nil {
		return "", fmt.Errorf("failed to decode query component: %w", err)
	}
	if !utf8.ValidString(v) {
		return "", fmt.Errorf("query component %q is not valid UTF-8", s)
	}
	return v, nil
}
