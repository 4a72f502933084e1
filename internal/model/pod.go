package model

import "time"

// Pod is a group of accounts that amplify each other's posts.
type Pod struct {
	ID        int64
	Name      string
	Active    bool
	CreatedAt time.Time
}

// PodMember is one account participating in a pod. UserID is the provider
// user whose posts the other members repost.
type PodMember struct {
	PodID     int64
	AccountID string
	UserID    string
	CreatedAt time.Time
}
