// Package scheduler implements the notification-generation jobs for the
// CineLog platform and the runner that fires them on their wall-clock
// schedules.
//
// Three jobs exist, each a standalone service type that can be invoked
// synchronously without the runner:
//   - StreamingJob: daily scan of watch-later movies for new streaming
//     availability.
//   - ReminderJob: daily per-user reminder for movies sitting too long on
//     the watchlist.
//   - DirectorJob: weekly check for upcoming releases from each user's
//     favorite directors.
//
// The Runner owns the schedules, per-run database locks, and run history;
// the jobs own the domain logic. A job failure is logged and recorded, never
// fatal to the process or to the other jobs.
package scheduler

import "time"

// Task names identify the scheduled jobs in run locks, job history, and the
// ops API. They never change once recorded.
const (
	TaskStreamingAvailability = "streaming_availability"
	TaskWatchReminder         = "watch_reminder"
	TaskDirectorRelease       = "director_release"
)

// Run history statuses recorded by the runner.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// TaskStatus is a point-in-time snapshot of one scheduled task, as exposed
// by the ops API.
type TaskStatus struct {
	Name      string     `json:"name"`
	Running   bool       `json:"running"`
	NextFire  time.Time  `json:"next_fire"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	// LastCreated is the number of notifications produced by the most
	// recent completed run.
	LastCreated int `json:"last_created"`
}
