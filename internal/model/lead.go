package model

import "time"

type LeadStatus string

// Lead lifecycle. Each status is caused by exactly one component; the
// current state of a lead is the latest activity row for
// (campaign_id, recipient_id), not a mutable column.
const (
	StatusCommentDetected LeadStatus = "comment_detected"
	StatusDMSent          LeadStatus = "dm_sent"
	StatusDMReplied       LeadStatus = "dm_replied"
	StatusEmailCaptured   LeadStatus = "email_captured"
	StatusWebhookSent     LeadStatus = "webhook_sent"
	StatusBackupSent      LeadStatus = "backup_sent"
	StatusCompleted       LeadStatus = "completed"
	StatusFailed          LeadStatus = "failed"
)

// LeadActivity is one append-only audit row. Rows are written on success
// and on failure so every attempt is reconstructable.
type LeadActivity struct {
	ID            int64
	CampaignID    int64
	RecipientID   string // provider id of the commenter
	RecipientName string
	Status        LeadStatus
	Success       bool
	CommentID     string
	PostID        string
	MessageID     string // provider message id for sent DMs
	ParentID      *int64 // links email_captured rows to their dm_sent parent
	Email         string
	Error         string
	CreatedAt     time.Time
}
