package model

import "time"

// Campaign holds the pipeline-facing configuration of a lead-capture
// campaign. CRUD for the rest of the campaign record lives elsewhere; the
// pipeline only reads these fields.
type Campaign struct {
	ID              int64
	UserID          int64
	Name            string
	AccountID       string // social account acting for this campaign
	PostID          string // monitored post
	TriggerWords    []string
	MessageTemplate string
	LeadMagnetName  string
	LeadMagnetURL   string
	WebhookURL      string
	WebhookSecret   string
	ClientID        string // forwarded as X-Client-ID on deliveries
	Timezone        string // IANA name, empty means server-local
	DailyDMLimit    int    // 0 means use the configured default
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
