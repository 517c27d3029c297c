// Package directory resolves the tracked-identity roster against the
// remote directory, caching results in the store.
package directory
