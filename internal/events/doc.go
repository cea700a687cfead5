// Package events connects reconciliation to the Kafka message bus.
//
// A Publisher writes one publications.reconciled event per finished author
// reconciliation, keyed by author ID so that events for the same author stay
// ordered on a partition. A RosterListener consumes roster-updated events
// emitted once a roster upload has been applied and submits a reconcile-all
// job for each.
//
// When Kafka is disabled the worker uses NopPublisher and starts no listener.
package events
