package social

import (
	"context"
	"errors"
	"time"
)

// ErrRateLimited is returned when the provider rejects a call for rate
// reasons. Callers special-case it instead of treating it as transient.
var ErrRateLimited = errors.New("social api rate limited")

// Client is the pipeline's only window into the social network. The wire
// protocol behind it is a black box; implementations wrap whichever
// provider fronts the account.
type Client interface {
	FetchComments(ctx context.Context, accountID, postID string) ([]Comment, error)
	FetchConversation(ctx context.Context, accountID, recipientID string, since time.Time) ([]Message, error)
	SendMessage(ctx context.Context, accountID, recipientID, text string) (string, error)
	FetchLatestPosts(ctx context.Context, accountID, userID string, limit int) ([]Post, error)
	Repost(ctx context.Context, accountID, postID string) error
}
