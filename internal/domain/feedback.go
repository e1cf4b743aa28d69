package domain

import "time"

const (
	FeedbackUp   = "up"
	FeedbackDown = "down"
)

type Feedback struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Variant   string    `json:"variant"`
	Locale    string    `json:"locale"`
	Rating    string    `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
