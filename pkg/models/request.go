package models

import "time"

// ResourceType is the webRequest resource type of an intercepted request
type ResourceType string

const (
	ResourceMainFrame ResourceType = "main_frame"
	ResourceSubFrame  ResourceType = "sub_frame"
)

// Header is a single HTTP header as delivered by the webRequest API
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// RequestDetails describes an intercepted network request
type RequestDetails struct {
	RequestID       string       `json:"requestId,omitempty"`
	URL             string       `json:"url"`
	Method          string       `json:"method,omitempty"`
	FrameID         int          `json:"frameId"`
	TabID           int          `json:"tabId"`
	Type            ResourceType `json:"type"`
	TimeStamp       float64      `json:"timeStamp,omitempty"`
	RequestHeaders  []Header     `json:"requestHeaders,omitempty"`
	ResponseHeaders []Header     `json:"responseHeaders,omitempty"`
}

// Time converts the millisecond epoch timestamp; zero stays zero
func (d RequestDetails) Time() time.Time {
	if d.TimeStamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(d.TimeStamp))
}

// BlockingResponse is the verdict returned to a blocking webRequest listener.
// The zero value lets the request proceed unmodified.
type BlockingResponse struct {
	RedirectURL     string   `json:"redirectUrl,omitempty"`
	RequestHeaders  []Header `json:"requestHeaders,omitempty"`
	ResponseHeaders []Header `json:"responseHeaders,omitempty"`
}

// Empty reports whether the response carries no modification
func (r BlockingResponse) Empty() bool {
	return r.RedirectURL == "" && r.RequestHeaders == nil && r.ResponseHeaders == nil
}
