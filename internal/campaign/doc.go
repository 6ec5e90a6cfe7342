// Package campaign orchestrates campaign dispatch: audience resolution,
// per-recipient delivery records, content rendering and tracking, and
// handoff to the delivery queue. It also owns the campaign state machine
// (schedule, pause, delete) and the stats read model.
package campaign
