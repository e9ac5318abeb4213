package models

import "time"

// Session records that a tab currently has the overlay active
type Session struct {
	TabID       int       `json:"tabId"`
	URL         string    `json:"url"`
	ActivatedAt time.Time `json:"activatedAt"`
}

// Tab is the subset of browser tab metadata the service needs
type Tab struct {
	ID  int    `json:"id"`
	URL string `json:"url,omitempty"`
}

// TabStatusLoading is reported while a tab's top-level document is being replaced
const TabStatusLoading = "loading"

// TabChange describes a tab update event
type TabChange struct {
	Status string `json:"status,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Navigated reports whether the change replaces the top-level document
func (c TabChange) Navigated() bool {
	return c.URL != "" || c.Status == TabStatusLoading
}
