package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"cinelog/internal/external"
	"cinelog/internal/types"
)

// Note: mockNotificationStore, mockUserStore, mockMetadata, and
// discardLogger are defined in streaming_test.go and reused here.

type mockDirectorMovies struct {
	// favorites maps user id to that user's favorite directors.
	favorites map[string][]types.DirectorStat
	listErr   error

	minRatings []float64
}

func (m *mockDirectorMovies) FavoriteDirectors(_ context.Context, userID string, minRating float64) ([]types.DirectorStat, error) {
	m.minRatings = append(m.minRatings, minRating)
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.favorites[userID], nil
}

// --- pickRecentRelease tests ---

func TestPickRecentRelease_MostRecentInWindow(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	credits := []external.CrewCredit{
		{TMDBID: 1, Title: "Old One", ReleaseDate: "2020-05-01", Job: "Director"},
		{TMDBID: 2, Title: "Recent One", ReleaseDate: "2026-07-15", Job: "Director"},
		{TMDBID: 3, Title: "Upcoming One", ReleaseDate: "2026-11-20", Job: "Director"},
		{TMDBID: 4, Title: "Far Future", ReleaseDate: "2027-06-01", Job: "Director"},
	}

	release, ok := pickRecentRelease(credits, now)
	if !ok {
		t.Fatal("expected a qualifying release")
	}
	// Far Future sorts first but falls outside the window; Upcoming One is
	// the most recent qualifying release.
	if release.TMDBID != 3 {
		t.Errorf("picked %q (id %d), want Upcoming One", release.Title, release.TMDBID)
	}
}

func TestPickRecentRelease_WindowBoundariesInclusive(t *testing.T) {
	// Mid-month "now" so adding and subtracting months lands on real dates.
	now := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		date string
		want bool
	}{
		{"exactly three months ago", "2026-05-15", true},
		{"just before window start", "2026-05-14", false},
		{"exactly six months ahead", "2027-02-15", true},
		{"just after window end", "2027-02-16", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			credits := []external.CrewCredit{
				{TMDBID: 1, Title: "Edge Case", ReleaseDate: tc.date, Job: "Director"},
			}
			_, ok := pickRecentRelease(credits, now)
			if ok != tc.want {
				t.Errorf("date %s: qualified = %v, want %v", tc.date, ok, tc.want)
			}
		})
	}
}

func TestPickRecentRelease_MissingDateExcluded(t *testing.T) {
	now := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	credits := []external.CrewCredit{
		{TMDBID: 1, Title: "Announced Only", ReleaseDate: "", Job: "Director"},
	}

	if _, ok := pickRecentRelease(credits, now); ok {
		t.Error("a credit without a release date must not qualify")
	}
}

func TestPickRecentRelease_IgnoresNonDirectingCredits(t *testing.T) {
	now := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	credits := []external.CrewCredit{
		{TMDBID: 1, Title: "Wrote This", ReleaseDate: "2026-09-01", Job: "Writer"},
		{TMDBID: 2, Title: "Produced This", ReleaseDate: "2026-09-01", Job: "Producer"},
	}

	if _, ok := pickRecentRelease(credits, now); ok {
		t.Error("only Director credits should qualify")
	}
}

func TestPickRecentRelease_NoCredits(t *testing.T) {
	now := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	if _, ok := pickRecentRelease(nil, now); ok {
		t.Error("no credits should mean no release")
	}
}

// --- releaseMessage tests ---

func TestReleaseMessage_WithDate(t *testing.T) {
	c := external.CrewCredit{Title: "Mickey 17", ReleaseDate: "2026-11-20"}
	want := "Mickey 17 releases on November 20, 2026"
	if got := releaseMessage(c); got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}

func TestReleaseMessage_WithoutDate(t *testing.T) {
	c := external.CrewCredit{Title: "Untitled Project"}
	want := "Untitled Project is coming soon"
	if got := releaseMessage(c); got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}

// --- Director job tests ---

func directorFixtures() (*mockUserStore, *mockDirectorMovies, *mockMetadata) {
	users := &mockUserStore{users: []*types.User{reminderUser("user_1")}}
	movies := &mockDirectorMovies{
		favorites: map[string][]types.DirectorStat{
			"user_1": {{Name: "Bong Joon-ho", MovieCount: 3, AvgRating: 4.7}},
		},
	}
	metadata := &mockMetadata{
		persons: map[string]*external.Person{
			"Bong Joon-ho": {ID: 21684, Name: "Bong Joon-ho"},
		},
		credits: map[int64][]external.CrewCredit{
			21684: {
				{TMDBID: 696506, Title: "Mickey 17", ReleaseDate: "2026-11-20", Job: "Director"},
				{TMDBID: 496243, Title: "Parasite", ReleaseDate: "2019-05-30", Job: "Director"},
				{TMDBID: 333, Title: "Okja", ReleaseDate: "2017-06-28", Job: "Producer"},
			},
		},
	}
	return users, movies, metadata
}

func TestDirectorJob_CreatesNotification(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	users, movies, metadata := directorFixtures()
	notifs := &mockNotificationStore{}

	job := NewDirectorJob(DirectorJobConfig{
		Users:         users,
		Movies:        movies,
		Notifications: notifs,
		Metadata:      metadata,
		Clock:         types.FixedClock{T: now},
		Logger:        discardLogger(),
	})

	created, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}

	n := notifs.created[0]
	if n.Type != types.NotifDirectorRelease {
		t.Errorf("type = %q, want %q", n.Type, types.NotifDirectorRelease)
	}
	if n.Title != "New movie from Bong Joon-ho!" {
		t.Errorf("title = %q", n.Title)
	}
	want := "Mickey 17 releases on November 20, 2026"
	if n.Message != want {
		t.Errorf("message = %q, want %q", n.Message, want)
	}
	if n.TMDBID != 696506 {
		t.Errorf("tmdb id = %d, want 696506", n.TMDBID)
	}

	// Default rating threshold flows through to the store query.
	if len(movies.minRatings) != 1 || movies.minRatings[0] != DefaultDirectorMinRating {
		t.Errorf("min ratings = %v, want [%v]", movies.minRatings, DefaultDirectorMinRating)
	}
}

func TestDirectorJob_DuplicateProbeShape(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	users, movies, metadata := directorFixtures()
	notifs := &mockNotificationStore{}

	job := NewDirectorJob(DirectorJobConfig{
		Users:         users,
		Movies:        movies,
		Notifications: notifs,
		Metadata:      metadata,
		Clock:         types.FixedClock{T: now},
		Logger:        discardLogger(),
	})

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(notifs.existsCalls) != 1 {
		t.Fatalf("expected 1 duplicate probe, got %d", len(notifs.existsCalls))
	}
	f := notifs.existsCalls[0]
	if f.UserID != "user_1" || f.Type != types.NotifDirectorRelease {
		t.Errorf("probe scope wrong: %+v", f)
	}
	if f.TMDBID != 696506 || f.TitleSubstring != "Mickey 17" {
		t.Errorf("probe references wrong: %+v", f)
	}
	if !f.UnreadOnly {
		t.Error("probe should be unread-only")
	}
	if f.MaxAge != 0 {
		t.Errorf("probe max age = %v, want unbounded", f.MaxAge)
	}
}

func TestDirectorJob_DuplicateSuppressed(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	users, movies, metadata := directorFixtures()
	notifs := &mockNotificationStore{
		existsFn: func(types.DuplicateFilter) (bool, error) { return true, nil },
	}

	job := NewDirectorJob(DirectorJobConfig{
		Users:         users,
		Movies:        movies,
		Notifications: notifs,
		Metadata:      metadata,
		Clock:         types.FixedClock{T: now},
		Logger:        discardLogger(),
	})

	created, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0", created)
	}
}

func TestDirectorJob_PersonNotFound_Skips(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	users, movies, metadata := directorFixtures()
	metadata.persons = nil // nobody matches

	job := NewDirectorJob(DirectorJobConfig{
		Users:         users,
		Movies:        movies,
		Notifications: &mockNotificationStore{},
		Metadata:      metadata,
		Clock:         types.FixedClock{T: now},
		Logger:        discardLogger(),
	})

	created, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created != 0 {
		t.Errorf("created = %d, want 0", created)
	}
	if len(metadata.creditCalls) != 0 {
		t.Errorf("expected no credit lookups for unresolved person, got %d", len(metadata.creditCalls))
	}
}

func TestDirectorJob_SearchFailureSkipsDirectorOnly(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	users, movies, metadata := directorFixtures()
	movies.favorites["user_1"] = []types.DirectorStat{
		{Name: "Flaky Director", MovieCount: 2, AvgRating: 4.9},
		{Name: "Bong Joon-ho", MovieCount: 3, AvgRating: 4.7},
	}
	metadata.searchErr = map[string]error{"Flaky Director": errors.New("upstream down")}
	notifs := &mockNotificationStore{}

	job := NewDirectorJob(DirectorJobConfig{
		Users:         users,
		Movies:        movies,
		Notifications: notifs,
		Metadata:      metadata,
		Clock:         types.FixedClock{T: now},
		Logger:        discardLogger(),
	})

	created, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("run should survive per-director metadata failure, got %v", err)
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
	if len(metadata.searchCalls) != 2 {
		t.Errorf("expected both directors searched, got %d", len(metadata.searchCalls))
	}
}

func TestDirectorJob_FavoriteDirectorsErrorEndsRun(t *testing.T) {
	users := &mockUserStore{users: []*types.User{reminderUser("user_1")}}
	movies := &mockDirectorMovies{listErr: errors.New("db down")}

	job := NewDirectorJob(DirectorJobConfig{
		Users:         users,
		Movies:        movies,
		Notifications: &mockNotificationStore{},
		Metadata:      &mockMetadata{},
		Logger:        discardLogger(),
	})

	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("expected store failure to end the run")
	}
}

func TestDirectorJob_CustomMinRating(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	users, movies, metadata := directorFixtures()

	job := NewDirectorJob(DirectorJobConfig{
		Users:         users,
		Movies:        movies,
		Notifications: &mockNotificationStore{},
		Metadata:      metadata,
		MinRating:     4.5,
		Clock:         types.FixedClock{T: now},
		Logger:        discardLogger(),
	})

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(movies.minRatings) != 1 || movies.minRatings[0] != 4.5 {
		t.Errorf("min ratings = %v, want [4.5]", movies.minRatings)
	}
}
