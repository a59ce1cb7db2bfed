// Package alert defines Herald's alert entity and its persistence boundary.
// An alert row is created the first time a fingerprint is seen, mutated as the
// alert resolves or re-fires and as the event loop attaches chart and Slack
// message references, and never deleted.
package alert
