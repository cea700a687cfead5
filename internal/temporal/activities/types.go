// Package activities provides Temporal activity implementations for the
// reconciliation jobs.
//
// Activity inputs and outputs are defined as serializable structs that cross the
// Temporal serialization boundary. Each activity receives an input struct and
// returns an output struct (or error). All fields must be exported for JSON
// serialization by the Temporal SDK's default data converter.
package activities

import (
	"time"

	"github.com/yohaboy/research-tracker/internal/domain"
)

// ReconcileAuthorInput contains the parameters for the ReconcileAuthor activity.
type ReconcileAuthorInput struct {
	// AuthorID is the author to reconcile.
	AuthorID int64

	// Since excludes publications dated on or before this date.
	Since time.Time
}

// ReconcileAuthorOutput contains the outcome of one author reconciliation.
type ReconcileAuthorOutput struct {
	// AuthorID is the reconciled author.
	AuthorID int64

	// Fetched is the number of normalized records per source tag.
	Fetched map[domain.SourceTag]int

	// Deduplicated is the number of records left after deduplication.
	Deduplicated int

	// Created is the number of publications inserted.
	Created int

	// Existing is the number of records that matched a stored publication.
	Existing int

	// Linked is the number of new author links.
	Linked int

	// Failed is the number of records whose commit failed.
	Failed int
}

// FanOutInput contains the parameters for the FanOut activity.
type FanOutInput struct {
	// Since is passed to every submitted author job.
	Since time.Time
}

// FanOutOutput lists the author jobs submitted by the FanOut activity.
type FanOutOutput struct {
	// JobIDs are the IDs of the accepted author jobs.
	JobIDs []string
}
