package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment so pipeline identifiers (campaign_id,
// lead_id, delivery_id, ...) show up on every log line without being threaded
// through each call site.
type LogFields struct {
	CampaignID *int64  // campaign driving this piece of work
	AccountID  *string // social account acting on behalf of the campaign
	LeadID     *int64  // lead being processed
	CommentID  *string // provider comment id
	DeliveryID *int64  // webhook delivery id
	PodID      *int64  // engagement pod id
	MessageID  *string // queue message id
	TaskType   *string // queue task type
	Component  string  // component name, e.g. "pipeline.worker.poller"
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.CampaignID != nil {
		result.CampaignID = next.CampaignID
	}
	if next.AccountID != nil {
		result.AccountID = next.AccountID
	}
	if next.LeadID != nil {
		result.LeadID = next.LeadID
	}
	if next.CommentID != nil {
		result.CommentID = next.CommentID
	}
	if next.DeliveryID != nil {
		result.DeliveryID = next.DeliveryID
	}
	if next.PodID != nil {
		result.PodID = next.PodID
	}
	if next.MessageID != nil {
		result.MessageID = next.MessageID
	}
	if next.TaskType != nil {
		result.TaskType = next.TaskType
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}
