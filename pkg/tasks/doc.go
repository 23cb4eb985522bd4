// Package tasks implements the task workflow: the task store, the state
// machine and the /tasks HTTP handlers.
//
// # State machine
//
//	to_do --start--> in_progress --submit--> under_review --approve--> completed
//	                      ^                        |
//	                      +--------reject----------+
//
// Each transition is a compare-and-set update (WHERE status = <from>) inside
// a transaction, so two concurrent transitions of the same task cannot both
// apply. A transition from the wrong state fails with PreconditionFailed.
//
// # Visibility
//
// Callers holding view_all_tasks see every task of their organization.
// Everyone else sees the tasks they created or are assigned to; other tasks
// read as not found.
//
// # Side effects
//
// Activity entries and webhook notifications are emitted after commit and
// never fail the operation. Attachment blobs are deleted after the metadata
// rows are gone; a blob that cannot be deleted is logged and left behind.
package tasks
