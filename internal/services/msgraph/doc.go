// Package msgraph implements the presence source boundary: directory
// lookups and batched availability snapshots against a Microsoft Graph
// style API.
package msgraph
