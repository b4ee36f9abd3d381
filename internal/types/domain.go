// Package types defines the shared domain model for the CineLog notification
// scheduler: users, catalogued movies, notifications, and the filter shapes
// the repositories accept. Types here carry no behavior beyond small helpers;
// all persistence lives in internal/db and all decision logic in
// internal/scheduler.
package types

import (
	"time"
)

// MovieStatus describes where a movie sits in a user's collection.
type MovieStatus string

const (
	StatusWatched    MovieStatus = "watched"
	StatusWatchLater MovieStatus = "watchLater"
	StatusNone       MovieStatus = "none"
)

// NotificationType tags the origin of a notification so the UI can render it
// and the duplicate checker can scope its queries.
type NotificationType string

const (
	NotifStreamingAvailable NotificationType = "streaming_available"
	NotifWatchReminder      NotificationType = "watch_reminder"
	NotifDirectorRelease    NotificationType = "director_release"
)

// User is an account holder. The scheduler only ever reads users; account
// lifecycle is owned by the CRUD/auth layer.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Movie is a single entry in a user's collection. The pair (UserID, TMDBID)
// is unique: a user cannot catalogue the same movie twice. WatchProviders is
// the only field the scheduler mutates; it is refreshed by the
// streaming-availability job whenever the metadata provider reports
// subscription availability.
type Movie struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Title       string      `json:"title"`
	TMDBID      int64       `json:"tmdb_id"` // catalog id in the metadata provider; 0 means unknown
	Director    string      `json:"director"`
	ReleaseYear int         `json:"release_year"`
	Status      MovieStatus `json:"status"`
	// UserRating is 0-5 in half-star steps. Only meaningful when Status is
	// watched.
	UserRating     float64   `json:"user_rating"`
	WatchProviders []string  `json:"watch_providers,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasCatalogID reports whether the movie is linked to the external metadata
// catalog. Movies without a catalog id are invisible to the streaming job.
func (m *Movie) HasCatalogID() bool { return m.TMDBID > 0 }

// Notification is a message generated for a user. Notifications are created
// by the scheduler jobs (or by user actions outside this service) and are
// never updated in place by the jobs: a job either creates a new row or
// suppresses creation.
//
// MovieID references a single stored movie (streaming availability).
// MovieIDs references several stored movies (batched watch reminders).
// TMDBID references a movie that may not be catalogued yet (an unreleased
// film from a favorite director).
type Notification struct {
	ID      string           `json:"id"`
	UserID  string           `json:"user_id"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	Type    NotificationType `json:"type"`

	MovieID  string   `json:"movie_id,omitempty"`
	MovieIDs []string `json:"movie_ids,omitempty"`
	TMDBID   int64    `json:"tmdb_id,omitempty"`

	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// DuplicateFilter describes an existing-notification probe. A notification
// matches when it belongs to UserID, has the given Type, satisfies at least
// one of the reference criteria, and passes the read/age bounds.
//
// Reference criteria (OR-combined; zero values are skipped):
//   - MovieID:        the notification references this movie directly.
//   - MovieIDInList:  the notification's movie list contains this movie.
//   - TMDBID:         the notification carries this catalog id.
//   - TitleSubstring: the notification message contains this text,
//     case-insensitively. Kept for compatibility with historical rows that
//     predate reference fields; see the duplicate checker for caveats.
type DuplicateFilter struct {
	UserID         string
	Type           NotificationType
	MovieID        string
	MovieIDInList  string
	TMDBID         int64
	TitleSubstring string

	// UnreadOnly restricts the probe to notifications the user has not read.
	UnreadOnly bool
	// MaxAge bounds the probe to notifications created within this window.
	// Zero means unbounded.
	MaxAge time.Duration
}

// HasReference reports whether at least one reference criterion is set.
// A filter without references would match any notification of the type,
// which is never what a job wants.
func (f DuplicateFilter) HasReference() bool {
	return f.MovieID != "" || f.MovieIDInList != "" || f.TMDBID > 0 || f.TitleSubstring != ""
}

// DirectorStat is one row of the favorite-director aggregation: a director
// name with the count and average rating of the user's qualifying watched
// movies.
type DirectorStat struct {
	Name       string  `json:"name"`
	MovieCount int     `json:"movie_count"`
	AvgRating  float64 `json:"avg_rating"`
}
