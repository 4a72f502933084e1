package store

import (
	"context"
	"time"

	"revos.app/pipeline/internal/model"
)

type CampaignStore interface {
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
}

type ActivityStore interface {
	// Append writes one audit row and returns it with its generated id.
	Append(ctx context.Context, activity *model.LeadActivity) (*model.LeadActivity, error)
	// ReserveDailySlot atomically consumes one send slot for the account's
	// UTC day, returning false when the daily limit is already reached.
	ReserveDailySlot(ctx context.Context, accountID string, day time.Time, limit int) (bool, error)
	// ReleaseDailySlot returns a reserved slot after a send that never
	// went out, so failed attempts do not burn the day's budget.
	ReleaseDailySlot(ctx context.Context, accountID string, day time.Time) error
	// ListAwaitingReply returns successful dm_sent rows that have no
	// successful email_captured child yet.
	ListAwaitingReply(ctx context.Context) ([]model.LeadActivity, error)
	// GetByID fetches one activity row.
	GetByID(ctx context.Context, id int64) (*model.LeadActivity, error)
	// HasChild reports whether the lead already has a child row with the
	// given status.
	HasChild(ctx context.Context, parentID int64, status model.LeadStatus) (bool, error)
}

type ProcessedStore interface {
	// MarkComment records (campaignID, commentID); false means it was
	// already present. Single writer: the comment poller.
	MarkComment(ctx context.Context, campaignID int64, commentID string) (bool, error)
	// MarkMessage records an inbound message id; false means it was
	// already present. Single writer: the reply monitor.
	MarkMessage(ctx context.Context, messageID string, leadID int64, email string) (bool, error)
	// IsMessageProcessed checks the reply-monitor dedup set.
	IsMessageProcessed(ctx context.Context, messageID string) (bool, error)
	// MarkSeenPost records a pod post with a retention expiry; false means
	// already present. Single writer: the pod poller.
	MarkSeenPost(ctx context.Context, podID int64, postID string, expiresAt time.Time) (bool, error)
	// PurgeExpiredSeenPosts drops seen-post rows past retention.
	PurgeExpiredSeenPosts(ctx context.Context) (int64, error)
}

type DeliveryStore interface {
	Create(ctx context.Context, delivery *model.WebhookDelivery) (*model.WebhookDelivery, error)
	GetByID(ctx context.Context, id int64) (*model.WebhookDelivery, error)
	// UpdateAttempt persists the attempt counter and status after a try.
	UpdateAttempt(ctx context.Context, id int64, attempt int, status model.DeliveryStatus) error
	AppendLog(ctx context.Context, log *model.DeliveryLog) error
}

type PodStore interface {
	GetByID(ctx context.Context, id int64) (*model.Pod, error)
	ListMembers(ctx context.Context, podID int64) ([]model.PodMember, error)
}
