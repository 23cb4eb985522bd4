// Package audit keeps the per-organization activity log.
//
// Services record an Entry after a mutation commits:
//
//	recorder.Record(ctx, audit.Entry{
//		OrgID:      identity.OrgID,
//		UserID:     audit.UserRef(identity.UserID),
//		Action:     audit.ActionTaskApproved,
//		EntityType: audit.EntityTask,
//		EntityID:   task.TaskID,
//		Details:    map[string]interface{}{"notes": notes},
//	})
//
// Recording never fails the caller. DBRecorder logs insert errors and moves on.
//
// # Reading the log
//
// GET /activity lists entries newest first and accepts action, entity_type,
// entity_id, user_id, since (RFC 3339), limit and offset. With format=csv,
// ndjson or json the entries are streamed as a download instead of the
// usual envelope.
//
// # Retention
//
// The janitor calls DBRecorder.Purge on a schedule to drop entries older
// than the configured retention.
package audit
