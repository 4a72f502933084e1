package worker

import (
	"context"
	"fmt"
	"time"

	"revos.app/pipeline/internal/model"
	"revos.app/pipeline/internal/queue"
	"revos.app/pipeline/internal/social"
)

type mockCampaignStore struct {
	getByIDFn func(ctx context.Context, id int64) (*model.Campaign, error)
}

func (m *mockCampaignStore) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

type mockActivityStore struct {
	appendFn          func(ctx context.Context, a *model.LeadActivity) (*model.LeadActivity, error)
	reserveFn         func(ctx context.Context, accountID string, day time.Time, limit int) (bool, error)
	releaseFn         func(ctx context.Context, accountID string, day time.Time) error
	listAwaitingFn    func(ctx context.Context) ([]model.LeadActivity, error)
	getActivityByIDFn func(ctx context.Context, id int64) (*model.LeadActivity, error)
	hasChildFn        func(ctx context.Context, parentID int64, status model.LeadStatus) (bool, error)

	released []string
}

func (m *mockActivityStore) Append(ctx context.Context, a *model.LeadActivity) (*model.LeadActivity, error) {
	if m.appendFn != nil {
		return m.appendFn(ctx, a)
	}
	out := *a
	if out.ID == 0 {
		out.ID = 1
	}
	return &out, nil
}

func (m *mockActivityStore) ReserveDailySlot(ctx context.Context, accountID string, day time.Time, limit int) (bool, error) {
	if m.reserveFn != nil {
		return m.reserveFn(ctx, accountID, day, limit)
	}
	return true, nil
}

func (m *mockActivityStore) ReleaseDailySlot(ctx context.Context, accountID string, day time.Time) error {
	m.released = append(m.released, accountID)
	if m.releaseFn != nil {
		return m.releaseFn(ctx, accountID, day)
	}
	return nil
}

func (m *mockActivityStore) HasChild(ctx context.Context, parentID int64, status model.LeadStatus) (bool, error) {
	if m.hasChildFn != nil {
		return m.hasChildFn(ctx, parentID, status)
	}
	return false, nil
}

func (m *mockActivityStore) ListAwaitingReply(ctx context.Context) ([]model.LeadActivity, error) {
	if m.listAwaitingFn != nil {
		return m.listAwaitingFn(ctx)
	}
	return nil, nil
}

func (m *mockActivityStore) GetByID(ctx context.Context, id int64) (*model.LeadActivity, error) {
	if m.getActivityByIDFn != nil {
		return m.getActivityByIDFn(ctx, id)
	}
	return &model.LeadActivity{ID: id}, nil
}

type mockProcessedStore struct {
	markCommentFn func(ctx context.Context, campaignID int64, commentID string) (bool, error)
	markMessageFn func(ctx context.Context, messageID string, leadID int64, email string) (bool, error)
	isProcessedFn func(ctx context.Context, messageID string) (bool, error)
	markSeenFn    func(ctx context.Context, podID int64, postID string, expiresAt time.Time) (bool, error)
	purgeFn       func(ctx context.Context) (int64, error)

	seenPosts map[string]bool
}

func (m *mockProcessedStore) MarkComment(ctx context.Context, campaignID int64, commentID string) (bool, error) {
	if m.markCommentFn != nil {
		return m.markCommentFn(ctx, campaignID, commentID)
	}
	return true, nil
}

func (m *mockProcessedStore) MarkMessage(ctx context.Context, messageID string, leadID int64, email string) (bool, error) {
	if m.markMessageFn != nil {
		return m.markMessageFn(ctx, messageID, leadID, email)
	}
	return true, nil
}

func (m *mockProcessedStore) IsMessageProcessed(ctx context.Context, messageID string) (bool, error) {
	if m.isProcessedFn != nil {
		return m.isProcessedFn(ctx, messageID)
	}
	return false, nil
}

func (m *mockProcessedStore) MarkSeenPost(ctx context.Context, podID int64, postID string, expiresAt time.Time) (bool, error) {
	if m.markSeenFn != nil {
		return m.markSeenFn(ctx, podID, postID, expiresAt)
	}
	// Mirror the store's dedup contract: only the first mark for a
	// (pod, post) pair reports an insert.
	key := fmt.Sprintf("%d:%s", podID, postID)
	if m.seenPosts[key] {
		return false, nil
	}
	if m.seenPosts == nil {
		m.seenPosts = make(map[string]bool)
	}
	m.seenPosts[key] = true
	return true, nil
}

func (m *mockProcessedStore) PurgeExpiredSeenPosts(ctx context.Context) (int64, error) {
	if m.purgeFn != nil {
		return m.purgeFn(ctx)
	}
	return 0, nil
}

type mockDeliveryStore struct {
	createFn        func(ctx context.Context, d *model.WebhookDelivery) (*model.WebhookDelivery, error)
	getDeliveryFn   func(ctx context.Context, id int64) (*model.WebhookDelivery, error)
	updateAttemptFn func(ctx context.Context, id int64, attempt int, status model.DeliveryStatus) error
	appendLogFn     func(ctx context.Context, log *model.DeliveryLog) error
}

func (m *mockDeliveryStore) Create(ctx context.Context, d *model.WebhookDelivery) (*model.WebhookDelivery, error) {
	if m.createFn != nil {
		return m.createFn(ctx, d)
	}
	out := *d
	if out.ID == 0 {
		out.ID = 1
	}
	return &out, nil
}

func (m *mockDeliveryStore) GetByID(ctx context.Context, id int64) (*model.WebhookDelivery, error) {
	if m.getDeliveryFn != nil {
		return m.getDeliveryFn(ctx, id)
	}
	return nil, nil
}

func (m *mockDeliveryStore) UpdateAttempt(ctx context.Context, id int64, attempt int, status model.DeliveryStatus) error {
	if m.updateAttemptFn != nil {
		return m.updateAttemptFn(ctx, id, attempt, status)
	}
	return nil
}

func (m *mockDeliveryStore) AppendLog(ctx context.Context, log *model.DeliveryLog) error {
	if m.appendLogFn != nil {
		return m.appendLogFn(ctx, log)
	}
	return nil
}

type mockPodStore struct {
	getPodFn      func(ctx context.Context, id int64) (*model.Pod, error)
	listMembersFn func(ctx context.Context, podID int64) ([]model.PodMember, error)
}

func (m *mockPodStore) GetByID(ctx context.Context, id int64) (*model.Pod, error) {
	if m.getPodFn != nil {
		return m.getPodFn(ctx, id)
	}
	return nil, nil
}

func (m *mockPodStore) ListMembers(ctx context.Context, podID int64) ([]model.PodMember, error) {
	if m.listMembersFn != nil {
		return m.listMembersFn(ctx, podID)
	}
	return nil, nil
}

type mockSocialClient struct {
	fetchCommentsFn     func(ctx context.Context, accountID, postID string) ([]social.Comment, error)
	fetchConversationFn func(ctx context.Context, accountID, recipientID string, since time.Time) ([]social.Message, error)
	sendMessageFn       func(ctx context.Context, accountID, recipientID, text string) (string, error)
	fetchLatestPostsFn  func(ctx context.Context, accountID, userID string, limit int) ([]social.Post, error)
	repostFn            func(ctx context.Context, accountID, postID string) error
}

func (m *mockSocialClient) FetchComments(ctx context.Context, accountID, postID string) ([]social.Comment, error) {
	if m.fetchCommentsFn != nil {
		return m.fetchCommentsFn(ctx, accountID, postID)
	}
	return nil, nil
}

func (m *mockSocialClient) FetchConversation(ctx context.Context, accountID, recipientID string, since time.Time) ([]social.Message, error) {
	if m.fetchConversationFn != nil {
		return m.fetchConversationFn(ctx, accountID, recipientID, since)
	}
	return nil, nil
}

func (m *mockSocialClient) SendMessage(ctx context.Context, accountID, recipientID, text string) (string, error) {
	if m.sendMessageFn != nil {
		return m.sendMessageFn(ctx, accountID, recipientID, text)
	}
	return "msg-1", nil
}

func (m *mockSocialClient) FetchLatestPosts(ctx context.Context, accountID, userID string, limit int) ([]social.Post, error) {
	if m.fetchLatestPostsFn != nil {
		return m.fetchLatestPostsFn(ctx, accountID, userID, limit)
	}
	return nil, nil
}

func (m *mockSocialClient) Repost(ctx context.Context, accountID, postID string) error {
	if m.repostFn != nil {
		return m.repostFn(ctx, accountID, postID)
	}
	return nil
}

// enqueued records one producer call for assertions.
type enqueued struct {
	Stream string
	Task   queue.Task
	Delay  time.Duration
}

type mockProducer struct {
	enqueueFn        func(ctx context.Context, stream string, task queue.Task) error
	enqueueDelayedFn func(ctx context.Context, stream string, task queue.Task, delay time.Duration) error
	isScheduledFn    func(ctx context.Context, jobID string) (bool, error)

	calls []enqueued
}

func (m *mockProducer) Enqueue(ctx context.Context, stream string, task queue.Task) error {
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, stream, task)
	}
	m.calls = append(m.calls, enqueued{Stream: stream, Task: task})
	return nil
}

func (m *mockProducer) EnqueueDelayed(ctx context.Context, stream string, task queue.Task, delay time.Duration) error {
	if m.enqueueDelayedFn != nil {
		return m.enqueueDelayedFn(ctx, stream, task, delay)
	}
	m.calls = append(m.calls, enqueued{Stream: stream, Task: task, Delay: delay})
	return nil
}

func (m *mockProducer) IsScheduled(ctx context.Context, jobID string) (bool, error) {
	if m.isScheduledFn != nil {
		return m.isScheduledFn(ctx, jobID)
	}
	return false, nil
}

func (m *mockProducer) CancelCampaign(ctx context.Context, campaignID int64) (int, error) {
	return 0, nil
}

func (m *mockProducer) Close() error { return nil }

type mockExtractor struct {
	extractFn func(ctx context.Context, message string) (string, bool, error)
}

func (m *mockExtractor) ExtractEmail(ctx context.Context, message string) (string, bool, error) {
	if m.extractFn != nil {
		return m.extractFn(ctx, message)
	}
	return "", false, nil
}
