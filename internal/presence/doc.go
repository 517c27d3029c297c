// Package presence turns availability snapshots into stored
// unavailability intervals and availability events.
package presence
