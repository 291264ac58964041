// Package domain holds the persisted entities of a GIF search session.
package domain

import "time"

// RequestStatus is the lifecycle status of a search request.
type RequestStatus string

const (
	RequestSelecting RequestStatus = "SELECTING"
	RequestCancelled RequestStatus = "CANCELLED"
	RequestPosted    RequestStatus = "POSTED"
)

// Terminal reports whether no further transitions are possible.
func (s RequestStatus) Terminal() bool {
	return s == RequestCancelled || s == RequestPosted
}

// Request is one user-initiated search, stored in slack_request.
type Request struct {
	ID             int64
	Timestamp      time.Time
	UserID         string
	ConversationID string
	// Token is the opaque identifier carried by the selector buttons (column block_uid).
	Token        string
	SearchString string
	Status       RequestStatus
}
