package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"cinelog/internal/types"
)

// favoriteDirectorLimit caps the number of favorite directors considered per
// user. Directors beyond the top five by average rating are not worth a
// release check against the metadata provider.
const favoriteDirectorLimit = 5

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique constraint
// violations.
const pgUniqueViolation = "23505"

// MovieRepository provides data access for the movies table. The scheduled
// jobs read three slices of a user's collection: watch-later entries with a
// catalog id (streaming availability), stale watch-later entries (reminders),
// and watched entries aggregated by director (release radar).
type MovieRepository struct {
	db DBTX
}

// NewMovieRepository creates a new MovieRepository backed by the given
// database connection (pool or transaction).
func NewMovieRepository(db DBTX) *MovieRepository {
	return &MovieRepository{db: db}
}

// Create inserts a new movie record. If the ID is empty a prefixed UUID is
// generated. A movie is unique per (user_id, tmdb_id); inserting a duplicate
// returns ErrCodeConflictMovieExists.
func (r *MovieRepository) Create(ctx context.Context, m *types.Movie) error {
	if m.ID == "" {
		m.ID = "movie_" + uuid.NewString()
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO movies
		 (id, user_id, title, tmdb_id, director, release_year, status,
		  user_rating, watch_providers, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
		         COALESCE($10, NOW()), COALESCE($10, NOW()))`,
		m.ID,
		m.UserID,
		m.Title,
		m.TMDBID,
		m.Director,
		m.ReleaseYear,
		string(m.Status),
		m.UserRating,
		m.WatchProviders,
		nilIfZeroTime(m.CreatedAt),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return types.NewAppError(types.ErrCodeConflictMovieExists,
				fmt.Sprintf("movie with tmdb id %d already exists for user", m.TMDBID), err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create movie", err)
	}
	return nil
}

// ListWatchLater returns every watch-later movie that carries a catalog id,
// across all users. Entries without a catalog id cannot be checked against
// the metadata provider and are skipped at the query level.
func (r *MovieRepository) ListWatchLater(ctx context.Context) ([]*types.Movie, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, title, tmdb_id, director, release_year, status,
		        user_rating, watch_providers, created_at, updated_at
		 FROM movies
		 WHERE status = $1 AND tmdb_id > 0
		 ORDER BY user_id, created_at`,
		string(types.StatusWatchLater),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list watch-later movies", err)
	}
	defer rows.Close()

	return scanMovies(rows)
}

// ListStaleWatchLater returns the user's oldest watch-later entries added
// before the cutoff, capped at limit. Oldest-first ordering ensures the
// movies that have waited longest are the ones surfaced in reminders.
func (r *MovieRepository) ListStaleWatchLater(ctx context.Context, userID string, cutoff time.Time, limit int) ([]*types.Movie, error) {
	if limit <= 0 {
		limit = 3
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, title, tmdb_id, director, release_year, status,
		        user_rating, watch_providers, created_at, updated_at
		 FROM movies
		 WHERE user_id = $1 AND status = $2 AND created_at < $3
		 ORDER BY created_at ASC
		 LIMIT $4`,
		userID,
		string(types.StatusWatchLater),
		cutoff,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list stale watch-later movies", err)
	}
	defer rows.Close()

	return scanMovies(rows)
}

// FavoriteDirectors aggregates the user's watched, highly-rated movies by
// director. A director qualifies with more than one such movie; results are
// ordered by average rating descending and capped at five.
//
// SQL pattern:
//
//	SELECT director, COUNT(*), AVG(user_rating)
//	FROM movies
//	WHERE user_id = $1 AND status = 'watched'
//	  AND user_rating >= $2 AND director <> ''
//	GROUP BY director
//	HAVING COUNT(*) > 1
//	ORDER BY AVG(user_rating) DESC
//	LIMIT 5
func (r *MovieRepository) FavoriteDirectors(ctx context.Context, userID string, minRating float64) ([]types.DirectorStat, error) {
	rows, err := r.db.Query(ctx,
		`SELECT director, COUNT(*), AVG(user_rating)
		 FROM movies
		 WHERE user_id = $1 AND status = $2
		   AND user_rating >= $3 AND director <> ''
		 GROUP BY director
		 HAVING COUNT(*) > 1
		 ORDER BY AVG(user_rating) DESC
		 LIMIT $4`,
		userID,
		string(types.StatusWatched),
		minRating,
		favoriteDirectorLimit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to aggregate favorite directors", err)
	}
	defer rows.Close()

	var stats []types.DirectorStat
	for rows.Next() {
		var s types.DirectorStat
		if err := rows.Scan(&s.Name, &s.MovieCount, &s.AvgRating); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan director stat", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating director stats", err)
	}

	return stats, nil
}

// UpdateWatchProviders replaces the stored provider list for a movie. Called
// by the streaming-availability job after a successful provider lookup so
// the collection reflects the latest offerings even when no notification is
// created.
func (r *MovieRepository) UpdateWatchProviders(ctx context.Context, movieID string, providers []string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE movies
		 SET watch_providers = $2, updated_at = NOW()
		 WHERE id = $1`,
		movieID,
		providers,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update watch providers", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundMovie, "movie not found", nil)
	}
	return nil
}

// scanMovies drains a movies result set into a slice.
func scanMovies(rows pgx.Rows) ([]*types.Movie, error) {
	var movies []*types.Movie
	for rows.Next() {
		var m types.Movie
		if err := rows.Scan(
			&m.ID,
			&m.UserID,
			&m.Title,
			&m.TMDBID,
			&m.Director,
			&m.ReleaseYear,
			&m.Status,
			&m.UserRating,
			&m.WatchProviders,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan movie row", err)
		}
		movies = append(movies, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating movie rows", err)
	}
	return movies, nil
}
