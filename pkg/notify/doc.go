// Package notify delivers task workflow events (assigned, submitted,
// approved, rejected) to an external webhook.
//
// Delivery happens after the database transaction commits, on a bounded
// worker pool, with exponential-backoff retries for network errors and 5xx
// or 429 responses. Failures are logged and counted and never reach the
// request that produced the event. Receivers verify X-Taskflow-Signature
// with VerifySignature.
package notify
