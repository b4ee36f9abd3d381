package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cinelog/internal/types"
)

// Reminder job defaults. The wait threshold reflects the product copy of
// "about a month on your watchlist"; the batch size caps how many titles a
// single reminder mentions.
const (
	DefaultReminderMinWait   = 30 * 24 * time.Hour
	DefaultReminderBatchSize = 3
)

// UserStore abstracts the user reads the per-user jobs need.
type UserStore interface {
	// List returns all users.
	List(ctx context.Context) ([]*types.User, error)
}

// ReminderMovieStore abstracts the movie reads the reminder job needs.
type ReminderMovieStore interface {
	// ListStaleWatchLater returns the user's watch-later movies added
	// before the cutoff, oldest first, capped at limit.
	ListStaleWatchLater(ctx context.Context, userID string, cutoff time.Time, limit int) ([]*types.Movie, error)
}

// ReminderJob nudges each user about the oldest movies sitting unwatched on
// their watchlist. At most one notification per user per run, covering only
// the movies not already mentioned in an unread reminder.
type ReminderJob struct {
	users         UserStore
	movies        ReminderMovieStore
	notifications NotificationStore
	dedup         *DuplicateChecker

	minWait   time.Duration
	batchSize int
	clock     types.Clock
	logger    *slog.Logger
}

// ReminderJobConfig holds the configuration for creating a ReminderJob.
type ReminderJobConfig struct {
	Users         UserStore
	Movies        ReminderMovieStore
	Notifications NotificationStore

	// MinWait is how long a movie must sit on the watchlist before it
	// qualifies for a reminder; zero means the default.
	MinWait time.Duration
	// BatchSize caps the movies per reminder; zero means the default.
	BatchSize int
	Clock     types.Clock
	Logger    *slog.Logger
}

// NewReminderJob creates a new ReminderJob with the given configuration.
func NewReminderJob(cfg ReminderJobConfig) *ReminderJob {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	minWait := cfg.MinWait
	if minWait <= 0 {
		minWait = DefaultReminderMinWait
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultReminderBatchSize
	}
	return &ReminderJob{
		users:         cfg.Users,
		movies:        cfg.Movies,
		notifications: cfg.Notifications,
		dedup:         NewDuplicateChecker(cfg.Notifications),
		minWait:       minWait,
		batchSize:     batchSize,
		clock:         clock,
		logger:        logger,
	}
}

// Run executes one watch-reminder pass over all users and returns the
// number of notifications created.
//
// Per user: fetch the oldest watch-later movies added before now minus the
// wait threshold, drop any already mentioned in an unread reminder, and
// create a single batched notification for what remains. A user with no
// qualifying movies, or whose candidates are all duplicates, gets nothing.
func (j *ReminderJob) Run(ctx context.Context) (int, error) {
	users, err := j.users.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing users: %w", err)
	}

	cutoff := j.clock.Now().Add(-j.minWait)
	j.logger.InfoContext(ctx, "watch reminder pass started",
		"users", len(users),
		"cutoff", cutoff.Format(time.RFC3339),
	)

	created := 0
	for _, user := range users {
		sent, err := j.remindUser(ctx, user.ID, cutoff)
		if err != nil {
			return created, fmt.Errorf("reminding user %s: %w", user.ID, err)
		}
		if sent {
			created++
		}
	}

	j.logger.InfoContext(ctx, "watch reminder pass complete",
		"created", created,
	)
	return created, nil
}

// remindUser handles a single user and reports whether a notification was
// created.
func (j *ReminderJob) remindUser(ctx context.Context, userID string, cutoff time.Time) (bool, error) {
	stale, err := j.movies.ListStaleWatchLater(ctx, userID, cutoff, j.batchSize)
	if err != nil {
		return false, fmt.Errorf("listing stale watch-later movies: %w", err)
	}
	if len(stale) == 0 {
		return false, nil
	}

	// Keep only movies not already covered by an unread reminder. The probe
	// is unbounded in age: an old unread reminder still counts.
	var fresh []*types.Movie
	for _, movie := range stale {
		dup, err := j.dedup.IsDuplicate(ctx, types.DuplicateFilter{
			UserID:         userID,
			Type:           types.NotifWatchReminder,
			MovieIDInList:  movie.ID,
			TitleSubstring: movie.Title,
			UnreadOnly:     true,
		})
		if err != nil {
			return false, fmt.Errorf("checking duplicates for movie %s: %w", movie.ID, err)
		}
		if !dup {
			fresh = append(fresh, movie)
		}
	}
	if len(fresh) == 0 {
		return false, nil
	}

	titles := make([]string, len(fresh))
	movieIDs := make([]string, len(fresh))
	for i, movie := range fresh {
		titles[i] = movie.Title
		movieIDs[i] = movie.ID
	}

	notif := &types.Notification{
		UserID:   userID,
		Type:     types.NotifWatchReminder,
		Title:    "Movies waiting on your watchlist",
		Message:  fmt.Sprintf("You have movies waiting to be watched: %s", strings.Join(titles, ", ")),
		MovieIDs: movieIDs,
	}
	if err := j.notifications.Create(ctx, notif); err != nil {
		return false, fmt.Errorf("creating reminder notification: %w", err)
	}

	j.logger.InfoContext(ctx, "watch reminder created",
		"user_id", userID,
		"movies", len(fresh),
	)
	return true, nil
}
