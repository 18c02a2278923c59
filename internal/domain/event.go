package domain

import "time"

// Event is a venue market normalized into the shape shared by both venues.
// Identity is (Venue, ExternalID); title, close time and active flag change
// across catalog refreshes.
type Event struct {
	ID         string     `json:"id"`
	Venue      Venue      `json:"venue"`
	ExternalID string     `json:"external_id"`
	Title      string     `json:"title"`
	URL        string     `json:"url"`
	CloseTime  *time.Time `json:"close_time"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// VerifiedPair links a venue-A event to its venue-B equivalent after human
// approval. EventA and EventB are populated by store reads.
type VerifiedPair struct {
	ID         string    `json:"id"`
	EventAID   string    `json:"event_a_id"`
	EventBID   string    `json:"event_b_id"`
	ApprovedBy string    `json:"approved_by"`
	ApprovedAt time.Time `json:"approved_at"`
	Active     bool      `json:"active"`
	Notes      string    `json:"notes"`

	EventA Event `json:"event_a"`
	EventB Event `json:"event_b"`
}

// MatchCandidate is a proposed cross-venue pairing awaiting review.
type MatchCandidate struct {
	EventA       Event
	EventB       Event
	Similarity   int
	CloseTimeGap *time.Duration
}

// RejectedCandidate records an operator decision not to pair two events.
type RejectedCandidate struct {
	EventAID   string
	EventBID   string
	RejectedBy string
	RejectedAt time.Time
}
