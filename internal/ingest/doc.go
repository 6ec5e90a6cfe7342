// Package ingest consumes delivery notifications from the email provider
// and folds them into delivery records and the event log. Notifications
// arrive at-least-once and possibly out of order; the package keeps status
// transitions monotonic and event appends idempotent per status change.
package ingest
