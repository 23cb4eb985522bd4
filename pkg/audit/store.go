package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/taskflow/pkg/contextkeys"
	"github.com/platinummonkey/taskflow/pkg/observability"
)

// DefaultWriteTimeout bounds a single activity insert made by Record
const DefaultWriteTimeout = 5 * time.Second

// DBRecorder stores activity in the activity_logs table
type DBRecorder struct {
	db           *sql.DB
	reader       *sql.DB
	logger       *observability.Logger
	now          func() time.Time
	writeTimeout time.Duration
}

// NewDBRecorder creates a recorder writing to db. Listing reads from reader,
// which may be a replica; pass nil to read from db.
func NewDBRecorder(db, reader *sql.DB, logger *observability.Logger) *DBRecorder {
	if reader == nil {
		reader = db
	}
	return &DBRecorder{
		db:     db,
		reader: reader,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },

		writeTimeout: DefaultWriteTimeout,
	}
}

// Record inserts entry. The request ID is taken from ctx when the entry has none.
// The write outlives cancellation of ctx but not the recorder's write timeout.
// Failures are logged and swallowed.
func (r *DBRecorder) Record(ctx context.Context, entry Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
	defer cancel()

	if err := r.Insert(ctx, entry); err != nil {
		r.logger.WithError(err).WithFields(map[string]interface{}{
			"org_id": entry.OrgID,
			"action": string(entry.Action),
		}).Warn("failed to record activity")
	}
}

// Insert writes entry and reports failures
func (r *DBRecorder) Insert(ctx context.Context, entry Entry) error {
	if entry.RequestID == "" {
		entry.RequestID = contextkeys.GetRequestID(ctx)
	}

	var details interface{}
	if len(entry.Details) > 0 {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to encode activity details: %w", err)
		}
		details = string(b)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_logs (org_id, user_id, action, entity_type, entity_id, details, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.OrgID, entry.UserID, string(entry.Action), string(entry.EntityType), entry.EntityID, details, entry.RequestID, r.now())
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

// List returns an organization's activity, newest first
func (r *DBRecorder) List(ctx context.Context, orgID int64, filter Filter) ([]*Entry, error) {
	conditions := []string{"a.org_id = $1"}
	args := []interface{}{orgID}

	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}
	if filter.Action != "" {
		add("a.action = $%d", string(filter.Action))
	}
	if filter.EntityType != "" {
		add("a.entity_type = $%d", string(filter.EntityType))
	}
	if filter.EntityID != "" {
		add("a.entity_id = $%d", filter.EntityID)
	}
	if filter.UserID != nil {
		add("a.user_id = $%d", *filter.UserID)
	}
	if filter.Since != nil {
		add("a.created_at >= $%d", filter.Since.UTC())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	query := fmt.Sprintf(`
		SELECT a.id, a.org_id, a.user_id, COALESCE(u.email, ''), a.action, a.entity_type,
			a.entity_id, a.details, a.request_id, a.created_at
		FROM activity_logs a
		LEFT JOIN users u ON u.id = a.user_id
		WHERE %s
		ORDER BY a.created_at DESC, a.id DESC
		LIMIT $%d OFFSET $%d
	`, strings.Join(conditions, " AND "), len(args)-1, len(args))

	rows, err := r.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		var (
			e       Entry
			userID  sql.NullInt64
			action  string
			entity  string
			details sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.OrgID, &userID, &e.UserEmail, &action, &entity,
			&e.EntityID, &details, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		e.Action = Action(action)
		e.EntityType = EntityType(entity)
		if userID.Valid {
			e.UserID = UserRef(userID.Int64)
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("failed to decode activity details: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Purge deletes entries created before cutoff and returns how many were removed
func (r *DBRecorder) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM activity_logs WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge activity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged activity: %w", err)
	}
	return n, nil
}
