package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"cinelog/internal/types"
)

// NotificationRepository provides data access for the notifications table.
// The scheduled jobs use Create and Exists; the remaining methods back the
// user-facing inbox (list, unread count, read marks, delete).
type NotificationRepository struct {
	db    DBTX
	clock types.Clock
}

// NewNotificationRepository creates a new NotificationRepository backed by
// the given database connection (pool or transaction). A nil clock defaults
// to the wall clock; tests inject a fixed one to pin the dedup age window.
func NewNotificationRepository(db DBTX, clock types.Clock) *NotificationRepository {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &NotificationRepository{db: db, clock: clock}
}

// Create inserts a new notification record. If the ID is empty a prefixed
// UUID is generated. CreatedAt falls back to the database clock when zero.
func (r *NotificationRepository) Create(ctx context.Context, n *types.Notification) error {
	if n.ID == "" {
		n.ID = "notif_" + uuid.NewString()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO notifications
		 (id, user_id, title, message, type, movie_id, movie_ids, tmdb_id,
		  is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()))`,
		n.ID,
		n.UserID,
		n.Title,
		n.Message,
		string(n.Type),
		nilIfEmpty(n.MovieID),
		n.MovieIDs,
		n.TMDBID,
		n.IsRead,
		nilIfZeroTime(n.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create notification", err)
	}
	return nil
}

// Exists reports whether a notification matching the duplicate filter is
// already present. The filter's reference criteria (movie id, movie id in
// list, catalog id, title substring) are combined with OR; scope criteria
// (user, type, unread-only, age window) are combined with AND.
//
// Query shape:
//
//	SELECT EXISTS (
//	  SELECT 1 FROM notifications
//	  WHERE user_id = $1 AND type = $2
//	    AND (movie_id = $3 OR message ILIKE '%' || $4 || '%')
//	    AND is_read = FALSE
//	    AND created_at > $5
//	)
func (r *NotificationRepository) Exists(ctx context.Context, f types.DuplicateFilter) (bool, error) {
	if f.UserID == "" || f.Type == "" {
		return false, types.NewAppError(types.ErrCodeValidationMissingField,
			"duplicate filter requires user id and notification type", nil)
	}
	if !f.HasReference() {
		return false, types.NewAppError(types.ErrCodeValidationMissingField,
			"duplicate filter requires at least one reference criterion", nil)
	}

	conditions := []string{"user_id = $1", "type = $2"}
	args := []any{f.UserID, string(f.Type)}
	argIdx := 3

	var refs []string
	if f.MovieID != "" {
		refs = append(refs, fmt.Sprintf("movie_id = $%d", argIdx))
		args = append(args, f.MovieID)
		argIdx++
	}
	if f.MovieIDInList != "" {
		refs = append(refs, fmt.Sprintf("$%d = ANY(movie_ids)", argIdx))
		args = append(args, f.MovieIDInList)
		argIdx++
	}
	if f.TMDBID > 0 {
		refs = append(refs, fmt.Sprintf("tmdb_id = $%d", argIdx))
		args = append(args, f.TMDBID)
		argIdx++
	}
	if f.TitleSubstring != "" {
		refs = append(refs, fmt.Sprintf("message ILIKE '%%' || $%d || '%%'", argIdx))
		args = append(args, f.TitleSubstring)
		argIdx++
	}
	conditions = append(conditions, "("+strings.Join(refs, " OR ")+")")

	if f.UnreadOnly {
		conditions = append(conditions, "is_read = FALSE")
	}
	if f.MaxAge > 0 {
		// Compute the cutoff as a concrete timestamp rather than using
		// interval arithmetic in SQL. Go duration strings (e.g. "168h0m0s")
		// are not valid PostgreSQL intervals.
		cutoff := r.clock.Now().UTC().Add(-f.MaxAge)
		conditions = append(conditions, fmt.Sprintf("created_at > $%d", argIdx))
		args = append(args, cutoff)
		argIdx++
	}

	query := `SELECT EXISTS (SELECT 1 FROM notifications WHERE ` +
		strings.Join(conditions, " AND ") + `)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check for duplicate notification", err)
	}
	return exists, nil
}

// ListForUser retrieves the user's notifications, newest first. A limit of
// zero or less defaults to 50; limits above 100 are clamped.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]*types.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, title, message, type, movie_id, movie_ids,
		        tmdb_id, is_read, created_at
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id
		 LIMIT $2`,
		userID,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list notifications", err)
	}
	defer rows.Close()

	var results []*types.Notification
	for rows.Next() {
		n, scanErr := scanNotificationFromRows(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification row", scanErr)
		}
		results = append(results, n)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating notification rows", err)
	}

	return results, nil
}

// CountUnread returns the number of unread notifications for the user.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = FALSE`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count unread notifications", err)
	}
	return count, nil
}

// MarkRead marks a single notification as read. The update is scoped to the
// owning user so one user cannot mark another's notifications.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, notificationID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE
		 WHERE id = $1 AND user_id = $2`,
		notificationID,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark notification read", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	return nil
}

// MarkAllRead marks every unread notification for the user as read and
// returns the number of rows updated.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE
		 WHERE user_id = $1 AND is_read = FALSE`,
		userID,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to mark notifications read", err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes a single notification, scoped to the owning user.
func (r *NotificationRepository) Delete(ctx context.Context, userID, notificationID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notifications WHERE id = $1 AND user_id = $2`,
		notificationID,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete notification", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundNotification, "notification not found", nil)
	}
	return nil
}

// scanNotificationFromRows scans a single notifications row. Handles the
// nullable movie_id column using a pointer type.
func scanNotificationFromRows(rows pgx.Rows) (*types.Notification, error) {
	var (
		n       types.Notification
		movieID *string
	)

	err := rows.Scan(
		&n.ID,
		&n.UserID,
		&n.Title,
		&n.Message,
		&n.Type,
		&movieID,
		&n.MovieIDs,
		&n.TMDBID,
		&n.IsRead,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if movieID != nil {
		n.MovieID = *movieID
	}

	return &n, nil
}
