// Package report aggregates stored sessions and intervals into the
// availability report and per-session timelines.
package report
