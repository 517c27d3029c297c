// Package tracker owns the tracking session lifecycle: scheduled start,
// the polling loop, and unconditional cleanup with crash recovery.
package tracker
