package model

import "time"

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// WebhookDelivery is owned exclusively by the webhook subsystem. It is
// created on the first attempt and mutated in place across retries;
// terminal on success or attempt >= max attempts.
type WebhookDelivery struct {
	ID          int64
	LeadID      int64 // id of the dm_sent activity row identifying the lead
	CampaignID  int64
	WebhookURL  string
	Secret      string
	ClientID    string
	Payload     []byte // canonical JSON body; the signature covers these exact bytes
	Attempt     int
	MaxAttempts int
	Status      DeliveryStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DeliveryLog is one immutable row per attempt, success or failure.
type DeliveryLog struct {
	ID             int64
	DeliveryID     int64
	Attempt        int
	StatusCode     int
	ResponseBody   string // truncated before persisting
	Error          string
	RetryScheduled bool
	CreatedAt      time.Time
}
