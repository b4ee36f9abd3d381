package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cinelog/internal/external"
	"cinelog/internal/types"
)

// DefaultStreamingDedupWindow bounds the streaming duplicate probe: an
// unread streaming notification for the same movie within this window
// suppresses a new one.
const DefaultStreamingDedupWindow = 7 * 24 * time.Hour

// StreamingMovieStore abstracts the movie operations the streaming job
// needs.
type StreamingMovieStore interface {
	// ListWatchLater returns every user's watch-later movies that carry a
	// catalog id.
	ListWatchLater(ctx context.Context) ([]*types.Movie, error)
	// UpdateWatchProviders replaces the movie's stored provider list.
	UpdateWatchProviders(ctx context.Context, movieID string, providers []string) error
}

// StreamingJob scans all watch-later movies, refreshes their streaming
// availability from the metadata provider, and notifies users whose movies
// became available on a subscription service.
type StreamingJob struct {
	movies        StreamingMovieStore
	notifications NotificationStore
	metadata      external.MetadataClient
	dedup         *DuplicateChecker

	region      string
	dedupWindow time.Duration
	logger      *slog.Logger
}

// StreamingJobConfig holds the configuration for creating a StreamingJob.
type StreamingJobConfig struct {
	Movies        StreamingMovieStore
	Notifications NotificationStore
	Metadata      external.MetadataClient

	// Region scopes provider lookups to one country's streaming catalog.
	Region string
	// DedupWindow bounds the duplicate probe; zero means the default.
	DedupWindow time.Duration
	Logger      *slog.Logger
}

// NewStreamingJob creates a new StreamingJob with the given configuration.
func NewStreamingJob(cfg StreamingJobConfig) *StreamingJob {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	window := cfg.DedupWindow
	if window <= 0 {
		window = DefaultStreamingDedupWindow
	}
	return &StreamingJob{
		movies:        cfg.Movies,
		notifications: cfg.Notifications,
		metadata:      cfg.Metadata,
		dedup:         NewDuplicateChecker(cfg.Notifications),
		region:        cfg.Region,
		dedupWindow:   window,
		logger:        logger,
	}
}

// Run executes one streaming-availability pass and returns the number of
// notifications created.
//
// For each watch-later movie with a catalog id:
//  1. Fetch the movie's subscription providers for the configured region.
//  2. Persist the provider list onto the movie, whether or not a
//     notification follows.
//  3. Create a streaming_available notification unless an unread one for
//     the same movie exists within the dedup window.
//
// Metadata failures are caught per movie and skipped so one flaky lookup
// never blocks the rest of the scan. Store failures end the run.
func (j *StreamingJob) Run(ctx context.Context) (int, error) {
	movies, err := j.movies.ListWatchLater(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing watch-later movies: %w", err)
	}

	j.logger.InfoContext(ctx, "streaming availability scan started",
		"candidates", len(movies),
		"region", j.region,
	)

	created := 0
	for _, movie := range movies {
		if !movie.HasCatalogID() {
			continue
		}

		providers, err := j.metadata.WatchProviders(ctx, movie.TMDBID, j.region)
		if err != nil {
			j.logger.ErrorContext(ctx, "watch provider lookup failed",
				"movie_id", movie.ID,
				"tmdb_id", movie.TMDBID,
				"error", err,
			)
			// Continue with the next movie; one upstream failure must not
			// block the scan.
			continue
		}

		if len(providers) == 0 {
			continue
		}

		if err := j.movies.UpdateWatchProviders(ctx, movie.ID, providers); err != nil {
			return created, fmt.Errorf("updating providers for movie %s: %w", movie.ID, err)
		}

		dup, err := j.dedup.IsDuplicate(ctx, types.DuplicateFilter{
			UserID:         movie.UserID,
			Type:           types.NotifStreamingAvailable,
			MovieID:        movie.ID,
			TitleSubstring: movie.Title,
			UnreadOnly:     true,
			MaxAge:         j.dedupWindow,
		})
		if err != nil {
			return created, fmt.Errorf("checking duplicates for movie %s: %w", movie.ID, err)
		}
		if dup {
			continue
		}

		notif := &types.Notification{
			UserID:  movie.UserID,
			Type:    types.NotifStreamingAvailable,
			Title:   "Movie available for streaming!",
			Message: fmt.Sprintf("%s is now available on: %s", movie.Title, strings.Join(providers, ", ")),
			MovieID: movie.ID,
			TMDBID:  movie.TMDBID,
		}
		if err := j.notifications.Create(ctx, notif); err != nil {
			return created, fmt.Errorf("creating streaming notification for movie %s: %w", movie.ID, err)
		}

		j.logger.InfoContext(ctx, "streaming notification created",
			"user_id", movie.UserID,
			"movie_id", movie.ID,
			"providers", providers,
		)
		created++
	}

	j.logger.InfoContext(ctx, "streaming availability scan complete",
		"created", created,
	)
	return created, nil
}
