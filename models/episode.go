package models

import "time"

// Episode is one season of the game. Teams, submissions, matches and maps
// all hang off an episode; its short id is the primary key.
type Episode struct {
	ShortID          string    `json:"short_id" db:"short_id"`
	Name             string    `json:"name" db:"name"`
	Language         string    `json:"language" db:"language"`
	Registration     time.Time `json:"registration" db:"registration"`
	GameRelease      time.Time `json:"game_release" db:"game_release"`
	GameArchive      time.Time `json:"game_archive" db:"game_archive"`
	SubmissionFrozen bool      `json:"submission_frozen" db:"submission_frozen"`
	AutoscrimCron    *string   `json:"autoscrim_cron,omitempty" db:"autoscrim_cron"`
}

// Frozen reports whether the episode itself blocks new submissions at the
// given instant: before release, after archive, or flagged frozen by an
// admin. Tournament freeze windows are checked separately against the
// episode's tournaments.
func (e *Episode) Frozen(now time.Time) bool {
	if e.SubmissionFrozen {
		return true
	}
	return now.Before(e.GameRelease) || !now.Before(e.GameArchive)
}

// GameMap is a playable map in an episode. Only public maps are eligible
// for ranked scrimmages.
type GameMap struct {
	ID        int64  `json:"id" db:"id"`
	EpisodeID string `json:"episode_id" db:"episode_id"`
	Name      string `json:"name" db:"name"`
	IsPublic  bool   `json:"is_public" db:"is_public"`
}
