package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"cinelog/internal/external"
	"cinelog/internal/types"
)

// DefaultDirectorMinRating is the rating a watched movie needs before it
// counts toward a favorite director.
const DefaultDirectorMinRating = 4.0

// Release-window bounds for director notifications. A release qualifies when
// it falls between three months ago and six months from now, inclusive on
// both ends: recent enough to still matter, close enough to anticipate.
const (
	releaseWindowPastMonths   = 3
	releaseWindowFutureMonths = 6
)

// missingReleaseDate is the sort key substituted for credits without a
// release date. It keeps them sortable while placing them outside any
// realistic release window.
const missingReleaseDate = "1900-01-01"

const releaseDateLayout = "2006-01-02"

// DirectorMovieStore abstracts the movie reads the director job needs.
type DirectorMovieStore interface {
	// FavoriteDirectors returns the user's most-liked directors: watched
	// movies rated at or above minRating, grouped by director, more than
	// one movie each, best average rating first.
	FavoriteDirectors(ctx context.Context, userID string, minRating float64) ([]types.DirectorStat, error)
}

// DirectorJob checks, for each user's favorite directors, whether the
// director has a recent or upcoming release, and notifies the user once per
// qualifying movie.
type DirectorJob struct {
	users         UserStore
	movies        DirectorMovieStore
	notifications NotificationStore
	metadata      external.MetadataClient
	dedup         *DuplicateChecker

	minRating float64
	clock     types.Clock
	logger    *slog.Logger
}

// DirectorJobConfig holds the configuration for creating a DirectorJob.
type DirectorJobConfig struct {
	Users         UserStore
	Movies        DirectorMovieStore
	Notifications NotificationStore
	Metadata      external.MetadataClient

	// MinRating qualifies watched movies for the favorite-director count;
	// zero means the default.
	MinRating float64
	Clock     types.Clock
	Logger    *slog.Logger
}

// NewDirectorJob creates a new DirectorJob with the given configuration.
func NewDirectorJob(cfg DirectorJobConfig) *DirectorJob {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	minRating := cfg.MinRating
	if minRating <= 0 {
		minRating = DefaultDirectorMinRating
	}
	return &DirectorJob{
		users:         cfg.Users,
		movies:        cfg.Movies,
		notifications: cfg.Notifications,
		metadata:      cfg.Metadata,
		dedup:         NewDuplicateChecker(cfg.Notifications),
		minRating:     minRating,
		clock:         clock,
		logger:        logger,
	}
}

// Run executes one director-release pass over all users and returns the
// number of notifications created.
//
// Per user and favorite director:
//  1. Resolve the director to a catalog person (first search match).
//  2. Fetch their movie credits and keep directing credits only.
//  3. Pick the most recent release inside the window.
//  4. Create a director_release notification unless an unread one for the
//     same movie exists.
//
// Metadata failures are caught per director and skipped. Store failures end
// the run.
func (j *DirectorJob) Run(ctx context.Context) (int, error) {
	users, err := j.users.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing users: %w", err)
	}

	now := j.clock.Now()
	j.logger.InfoContext(ctx, "director release pass started",
		"users", len(users),
	)

	created := 0
	for _, user := range users {
		directors, err := j.movies.FavoriteDirectors(ctx, user.ID, j.minRating)
		if err != nil {
			return created, fmt.Errorf("listing favorite directors for user %s: %w", user.ID, err)
		}

		for _, director := range directors {
			sent, err := j.notifyDirectorRelease(ctx, user.ID, director, now)
			if err != nil {
				return created, err
			}
			if sent {
				created++
			}
		}
	}

	j.logger.InfoContext(ctx, "director release pass complete",
		"created", created,
	)
	return created, nil
}

// notifyDirectorRelease checks one director for one user and reports whether
// a notification was created. Metadata errors are logged and swallowed here;
// only store errors propagate.
func (j *DirectorJob) notifyDirectorRelease(ctx context.Context, userID string, director types.DirectorStat, now time.Time) (bool, error) {
	person, err := j.metadata.SearchPerson(ctx, director.Name)
	if err != nil {
		j.logger.ErrorContext(ctx, "person search failed",
			"director", director.Name,
			"error", err,
		)
		return false, nil
	}
	if person == nil {
		return false, nil
	}

	credits, err := j.metadata.PersonMovieCredits(ctx, person.ID)
	if err != nil {
		j.logger.ErrorContext(ctx, "movie credits lookup failed",
			"director", director.Name,
			"person_id", person.ID,
			"error", err,
		)
		return false, nil
	}

	release, ok := pickRecentRelease(credits, now)
	if !ok {
		return false, nil
	}

	dup, err := j.dedup.IsDuplicate(ctx, types.DuplicateFilter{
		UserID:         userID,
		Type:           types.NotifDirectorRelease,
		TMDBID:         release.TMDBID,
		TitleSubstring: release.Title,
		UnreadOnly:     true,
	})
	if err != nil {
		return false, fmt.Errorf("checking duplicates for %q: %w", release.Title, err)
	}
	if dup {
		return false, nil
	}

	notif := &types.Notification{
		UserID:  userID,
		Type:    types.NotifDirectorRelease,
		Title:   fmt.Sprintf("New movie from %s!", director.Name),
		Message: releaseMessage(release),
		TMDBID:  release.TMDBID,
	}
	if err := j.notifications.Create(ctx, notif); err != nil {
		return false, fmt.Errorf("creating director notification for %q: %w", release.Title, err)
	}

	j.logger.InfoContext(ctx, "director release notification created",
		"user_id", userID,
		"director", director.Name,
		"movie", release.Title,
		"tmdb_id", release.TMDBID,
	)
	return true, nil
}

// pickRecentRelease returns the directing credit with the most recent
// release date inside the window [now - 3 months, now + 6 months], both
// ends inclusive. Credits without a release date sort as 1900-01-01, which
// keeps them ordered but outside the window.
func pickRecentRelease(credits []external.CrewCredit, now time.Time) (external.CrewCredit, bool) {
	var directed []external.CrewCredit
	for _, c := range credits {
		if c.Job == "Director" {
			directed = append(directed, c)
		}
	}
	if len(directed) == 0 {
		return external.CrewCredit{}, false
	}

	sort.SliceStable(directed, func(i, k int) bool {
		return releaseSortKey(directed[i]) > releaseSortKey(directed[k])
	})

	windowStart := now.AddDate(0, -releaseWindowPastMonths, 0)
	windowEnd := now.AddDate(0, releaseWindowFutureMonths, 0)

	for _, c := range directed {
		released, err := time.Parse(releaseDateLayout, releaseSortKey(c))
		if err != nil {
			continue
		}
		if released.Before(windowStart) || released.After(windowEnd) {
			continue
		}
		return c, true
	}
	return external.CrewCredit{}, false
}

func releaseSortKey(c external.CrewCredit) string {
	if c.ReleaseDate == "" {
		return missingReleaseDate
	}
	return c.ReleaseDate
}

// releaseMessage renders the notification body, falling back to "coming
// soon" when the credit has no release date.
func releaseMessage(c external.CrewCredit) string {
	if c.ReleaseDate == "" {
		return fmt.Sprintf("%s is coming soon", c.Title)
	}
	released, err := time.Parse(releaseDateLayout, c.ReleaseDate)
	if err != nil {
		return fmt.Sprintf("%s is coming soon", c.Title)
	}
	return fmt.Sprintf("%s releases on %s", c.Title, released.Format("January 2, 2006"))
}
