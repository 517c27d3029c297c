// Package store persists identities, tracking sessions, and
// unavailability intervals in SQLite.
//
// The store owns the system's central invariant: at most one interval
// per identity may be open (end_time IS NULL) at any time. Every
// reconciliation decision is made against the database rather than
// in-process state, so a restart mid-session cannot corrupt interval
// accounting beyond the single in-flight sample.
package store
