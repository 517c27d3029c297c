package store

import "time"

// Identity is a tracked individual. ID and ContactAddress are immutable
// once created; DisplayName and Title are refreshed on directory sync.
type Identity struct {
	ID             string
	ContactAddress string
	DisplayName    string
	Title          string
}

// Session is one bounded tracking run. EndTime is nil while the session
// is open and is stamped exactly once.
type Session struct {
	ID        int64
	StartTime time.Time
	EndTime   *time.Time
}

// Interval is one continuous unavailability span for an identity within a
// session. EndTime nil means the interval is still open. DurationSeconds
// is populated when the interval closes and is 0 while open.
type Interval struct {
	ID              int64
	SessionID       int64
	IdentityID      string
	StartTime       time.Time
	EndTime         *time.Time
	DurationSeconds int64
}

// Open reports whether the interval has not been closed yet.
func (i *Interval) Open() bool {
	return i != nil && i.EndTime == nil
}

// UnavailabilityTotal is one row of the availability aggregate: an
// identity and its summed unavailability over a query window.
type UnavailabilityTotal struct {
	Identity     Identity
	TotalSeconds int64
}

// IntervalAggregate summarizes an identity's intervals over a reporting
// window: how often they went unavailable and for how long in total.
type IntervalAggregate struct {
	Identity     Identity
	Count        int64
	TotalSeconds int64
}
