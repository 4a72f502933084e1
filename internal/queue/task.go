package queue

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

type TaskType string

const (
	TaskTypePollComments   TaskType = "poll_comments"
	TaskTypeSendDM         TaskType = "send_dm"
	TaskTypeDeliverWebhook TaskType = "deliver_webhook"
	TaskTypePodPoll        TaskType = "pod_poll"
	TaskTypePodRepost      TaskType = "pod_repost"
)

// PollChainJobID is the job id a campaign's parked poll successor is keyed
// by. Deterministic so the broker can hold at most one parked cycle per
// campaign.
func PollChainJobID(campaignID int64) string {
	return fmt.Sprintf("poll-%d-next", campaignID)
}

// PodChainJobID is the pod-poll counterpart of PollChainJobID.
func PodChainJobID(podID int64) string {
	return fmt.Sprintf("podpoll-%d-next", podID)
}

// Task is the flat job payload carried on the streams. Only the fields
// relevant to a task's type are populated; ParseMessage validates the
// required set per type.
type Task struct {
	Type  TaskType
	JobID string // dedup key for self-rescheduling jobs, e.g. poll-{campaign}-next

	CampaignID int64
	UserID     int64
	AccountID  string
	PostID     string
	Triggers   []string
	Timezone   string

	RecipientID   string
	RecipientName string
	CommentID     string

	DeliveryID int64
	LeadID     int64

	PodID int64

	Attempt int
	TraceID string
}

// Message is a Task as read off a stream, carrying broker metadata.
type Message struct {
	ID   string
	Task Task
	Raw  redis.XMessage
}

// Values serializes the task to stream fields. Zero-valued fields are
// omitted so the map stays small on the wire.
func (t Task) Values() map[string]any {
	attempt := t.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	values := map[string]any{
		"task_type": string(t.Type),
		"attempt":   attempt,
	}

	if t.JobID != "" {
		values["job_id"] = t.JobID
	}
	if t.CampaignID != 0 {
		values["campaign_id"] = t.CampaignID
	}
	if t.UserID != 0 {
		values["user_id"] = t.UserID
	}
	if t.AccountID != "" {
		values["account_id"] = t.AccountID
	}
	if t.PostID != "" {
		values["post_id"] = t.PostID
	}
	if len(t.Triggers) > 0 {
		values["triggers"] = strings.Join(t.Triggers, "\x1f")
	}
	if t.Timezone != "" {
		values["timezone"] = t.Timezone
	}
	if t.RecipientID != "" {
		values["recipient_id"] = t.RecipientID
	}
	if t.RecipientName != "" {
		values["recipient_name"] = t.RecipientName
	}
	if t.CommentID != "" {
		values["comment_id"] = t.CommentID
	}
	if t.DeliveryID != 0 {
		values["delivery_id"] = t.DeliveryID
	}
	if t.LeadID != 0 {
		values["lead_id"] = t.LeadID
	}
	if t.PodID != 0 {
		values["pod_id"] = t.PodID
	}
	if t.TraceID != "" {
		values["trace_id"] = t.TraceID
	}

	return values
}

// ParseMessage decodes and validates a stream entry.
func ParseMessage(msg redis.XMessage) (Message, error) {
	task := Task{
		Type:          TaskType(optString(msg.Values, "task_type")),
		JobID:         optString(msg.Values, "job_id"),
		AccountID:     optString(msg.Values, "account_id"),
		PostID:        optString(msg.Values, "post_id"),
		Timezone:      optString(msg.Values, "timezone"),
		RecipientID:   optString(msg.Values, "recipient_id"),
		RecipientName: optString(msg.Values, "recipient_name"),
		CommentID:     optString(msg.Values, "comment_id"),
		TraceID:       optString(msg.Values, "trace_id"),
	}

	var err error
	if task.CampaignID, err = optInt64(msg.Values, "campaign_id"); err != nil {
		return Message{}, err
	}
	if task.UserID, err = optInt64(msg.Values, "user_id"); err != nil {
		return Message{}, err
	}
	if task.DeliveryID, err = optInt64(msg.Values, "delivery_id"); err != nil {
		return Message{}, err
	}
	if task.LeadID, err = optInt64(msg.Values, "lead_id"); err != nil {
		return Message{}, err
	}
	if task.PodID, err = optInt64(msg.Values, "pod_id"); err != nil {
		return Message{}, err
	}

	attempt, err := optInt64(msg.Values, "attempt")
	if err != nil {
		return Message{}, err
	}
	task.Attempt = int(attempt)
	if task.Attempt == 0 {
		task.Attempt = 1
	}

	if raw := optString(msg.Values, "triggers"); raw != "" {
		task.Triggers = strings.Split(raw, "\x1f")
	}

	switch task.Type {
	case TaskTypePollComments:
		if task.CampaignID == 0 || task.AccountID == "" || task.PostID == "" {
			return Message{}, fmt.Errorf("poll task missing campaign_id, account_id, or post_id")
		}
	case TaskTypeSendDM:
		if task.CampaignID == 0 || task.AccountID == "" || task.RecipientID == "" {
			return Message{}, fmt.Errorf("dm task missing campaign_id, account_id, or recipient_id")
		}
	case TaskTypeDeliverWebhook:
		if task.DeliveryID == 0 {
			return Message{}, fmt.Errorf("webhook task missing delivery_id")
		}
	case TaskTypePodPoll:
		if task.PodID == 0 {
			return Message{}, fmt.Errorf("pod poll task missing pod_id")
		}
	case TaskTypePodRepost:
		if task.PodID == 0 || task.AccountID == "" || task.PostID == "" {
			return Message{}, fmt.Errorf("repost task missing pod_id, account_id, or post_id")
		}
	default:
		return Message{}, fmt.Errorf("unknown task_type %q", task.Type)
	}

	return Message{
		ID:   msg.ID,
		Task: task,
		Raw:  msg,
	}, nil
}

func optString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}

func optInt64(values map[string]any, key string) (int64, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.ParseInt(fmt.Sprint(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}
