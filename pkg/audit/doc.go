// Package audit records who did what to which resource, per tenant.
//
// Recording is fire-and-forget: services hand events to a Recorder and move
// on. The async recorder queues events on a bounded queue drained by a
// background worker; a full queue drops the oldest event rather than
// blocking the request path, and sink failures are logged, never propagated.
// Known-sensitive fields (passwords, tokens) are redacted before an event
// leaves the process boundary.
package audit
