package main

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/platinummonkey/taskflow/pkg/audit"
	"github.com/platinummonkey/taskflow/pkg/directory"
	"github.com/platinummonkey/taskflow/pkg/observability"
)

// janitor runs the periodic maintenance jobs
type janitor struct {
	activity  *audit.DBRecorder
	users     *directory.Store
	retention time.Duration
	logger    *observability.Logger
	now       func() time.Time
}

func newJanitor(db *sql.DB, retention time.Duration, logger *observability.Logger) *janitor {
	return &janitor{
		activity:  audit.NewDBRecorder(db, nil, logger),
		users:     directory.NewStore(db),
		retention: retention,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// purgeActivity deletes activity older than the retention window. A zero
// retention keeps everything.
func (j *janitor) purgeActivity(ctx context.Context) error {
	if j.retention <= 0 {
		return nil
	}
	cutoff := j.now().Add(-j.retention)
	n, err := j.activity.Purge(ctx, cutoff)
	if err != nil {
		j.logger.WithError(err).Error("Activity purge failed")
		return err
	}
	j.logger.WithFields(map[string]interface{}{
		"deleted": n,
		"cutoff":  cutoff.Format(time.RFC3339),
	}).Info("Purged old activity")
	return nil
}

// clearLockouts resets users whose login lockout has expired
func (j *janitor) clearLockouts(ctx context.Context) error {
	n, err := j.users.ClearExpiredLockouts(ctx, j.now())
	if err != nil {
		j.logger.WithError(err).Error("Lockout cleanup failed")
		return err
	}
	if n > 0 {
		j.logger.WithField("cleared", n).Info("Cleared expired lockouts")
	}
	return nil
}

func (j *janitor) runAll(ctx context.Context) error {
	return errors.Join(j.purgeActivity(ctx), j.clearLockouts(ctx))
}

// cronLogger adapts the structured logger to cron's logger interface
type cronLogger struct {
	logger *observability.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kv(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(kv(keysAndValues)).Error(msg)
}

func kv(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	return fields
}
