package social

import "time"

// Author is the public profile attached to a comment. Headline and
// ConnectionsCount are optional; the provider omits them for some accounts.
type Author struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Headline         string `json:"headline,omitempty"`
	ConnectionsCount *int   `json:"connections_count,omitempty"`
}

// Comment is sourced from the provider and never mutated by the pipeline.
type Comment struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Author    Author    `json:"author"`
}

// Message is one entry in a DM conversation.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	SenderID  string    `json:"sender_id"`
	Inbound   bool      `json:"inbound"` // true when sent by the lead, not us
	CreatedAt time.Time `json:"created_at"`
}

// Post is a feed post, used by pod engagement.
type Post struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
