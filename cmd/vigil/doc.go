// Command vigil tracks a roster's presence during a scheduled daily
// window and reports on recorded unavailability.
package main
