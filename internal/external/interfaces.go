package external

import "context"

// MetadataClient is the interface the scheduler jobs use to reach the movie
// metadata provider. Implemented by TMDBHTTPClient.
type MetadataClient interface {
	// WatchProviders returns subscription provider names offering the movie
	// in the given region. Empty when not available on any subscription
	// service there.
	WatchProviders(ctx context.Context, tmdbID int64, region string) ([]string, error)

	// SearchPerson returns the most relevant person matching the name, or
	// nil when nothing matches.
	SearchPerson(ctx context.Context, name string) (*Person, error)

	// PersonMovieCredits returns the person's movie crew credits.
	PersonMovieCredits(ctx context.Context, personID int64) ([]CrewCredit, error)
}
