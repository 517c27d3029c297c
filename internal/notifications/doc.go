// Package notifications pushes tracking events to Gotify and gates
// per-identity pushes by configured severity.
package notifications
