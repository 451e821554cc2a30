package models

import "time"

// Tournament is a bracketed event within an episode. The engine mirrors it
// into two external brackets: a private one advanced as results come in,
// and a public one revealed round by round.
type Tournament struct {
	ID                 int64     `json:"id" db:"id"`
	EpisodeID          string    `json:"episode_id" db:"episode_id"`
	Name               string    `json:"name" db:"name"`
	ExternalIDPrivate  string    `json:"external_id_private" db:"external_id_private"`
	ExternalIDPublic   string    `json:"external_id_public" db:"external_id_public"`
	SubmissionFreeze   time.Time `json:"submission_freeze" db:"submission_freeze"`
	SubmissionUnfreeze time.Time `json:"submission_unfreeze" db:"submission_unfreeze"`
}

// RoundReleaseStatus controls how much of a tournament round is public.
type RoundReleaseStatus int

const (
	RoundHidden RoundReleaseStatus = iota
	RoundParticipants
	RoundResults
)

// TournamentRound is one parallel set of tournament matches, mapped to a
// round index in the external bracket service.
type TournamentRound struct {
	ID            int64              `json:"id" db:"id"`
	TournamentID  int64              `json:"tournament_id" db:"tournament_id"`
	ExternalRound int                `json:"external_round" db:"external_round"`
	Name          string             `json:"name" db:"name"`
	ReleaseStatus RoundReleaseStatus `json:"release_status" db:"release_status"`
	Maps          []string           `json:"maps" db:"maps"`
}
