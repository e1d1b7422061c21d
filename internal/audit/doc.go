// Package audit provides scribe's audit-event delivery path: the Batcher
// (size- and interval-triggered batching), the Spool (durable retry queue for
// undeliverable entries), and the Pipeline tying them to a Submitter and the
// connectivity monitor.
package audit
