package tracking

import "time"

type EventType string

const (
	EventOpen  EventType = "opened"
	EventClick EventType = "clicked"
)

// Event is one observed open or click, published for the analytics layer.
type Event struct {
	EventType  EventType `json:"event_type"`
	CampaignID string    `json:"campaign_id,omitempty"`
	LogID      string    `json:"log_id,omitempty"`
	LinkURL    string    `json:"link_url,omitempty"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent"`
	Timestamp  time.Time `json:"timestamp"`
}
