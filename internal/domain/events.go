package domain

import "time"

// Event types published on the message bus.
const (
	EventTypePublicationsReconciled = "publications.reconciled"
	EventTypeRosterUpdated          = "authors.roster_updated"
)

// ReconciledEvent summarises one completed author reconciliation.
type ReconciledEvent struct {
	EventType  string    `json:"event_type"`
	AuthorID   int64     `json:"author_id"`
	Since      string    `json:"since"`
	Fetched    int       `json:"fetched"`
	Created    int       `json:"created"`
	Existing   int       `json:"existing"`
	Linked     int       `json:"linked"`
	Failed     int       `json:"failed"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RosterUpdatedEvent is emitted by the roster ingestion adapter once a roster
// upload has been applied. Since is optional (YYYY-MM-DD).
type RosterUpdatedEvent struct {
	EventType string `json:"event_type"`
	Since     string `json:"since,omitempty"`
	Authors   int    `json:"authors,omitempty"`
}
