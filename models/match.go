package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/scrimlab/match-engine/saturn"
)

// Match is one game between exactly two teams. It doubles as a Saturn
// invocation on the execute topic.
type Match struct {
	ID                int64   `json:"id" db:"id"`
	EpisodeID         string  `json:"episode_id" db:"episode_id"`
	TournamentRoundID *int64  `json:"tournament_round_id,omitempty" db:"tournament_round_id"`
	ReplayID          string  `json:"replay_id" db:"replay_id"`
	IsRanked          bool    `json:"is_ranked" db:"is_ranked"`
	AlternateOrder    bool    `json:"alternate_order" db:"alternate_order"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`

	Status      SaturnStatus `json:"status" db:"status"`
	Logs        string       `json:"logs" db:"logs"`
	NumFailures int          `json:"num_failures" db:"num_failures"`
	MessageID   *string      `json:"message_id,omitempty" db:"message_id"`

	// External bracket match ids, set when a tournament round is enqueued.
	ExternalIDPrivate *string `json:"external_id_private,omitempty" db:"external_id_private"`
	ExternalIDPublic  *string `json:"external_id_public,omitempty" db:"external_id_public"`

	// Ordered map names and the two participants, loaded with the match.
	Maps         []string            `json:"maps" db:"-"`
	Participants []*MatchParticipant `json:"participants" db:"-"`
}

// ReplayKey is the blob key the replay is stored under in the public bucket.
func (m *Match) ReplayKey() string {
	return fmt.Sprintf("replays/%s.%s", m.ReplayID, m.EpisodeID)
}

func (m *Match) InvocationID() int64     { return m.ID }
func (m *Match) InvocationLogs() string  { return m.Logs }
func (m *Match) InvocationFailures() int { return m.NumFailures }

// SaturnPayload renders the execute-job message body. Maps must be loaded.
func (m *Match) SaturnPayload() ([]byte, error) {
	return saturn.ExecutePayload{
		ID:         m.ID,
		Episode:    m.EpisodeID,
		ReplayPath: m.ReplayKey(),
		Maps:       strings.Join(m.Maps, ","),
	}.Marshal()
}

// Participant returns the participant at the given player index, or nil.
func (m *Match) Participant(index int) *MatchParticipant {
	for _, p := range m.Participants {
		if p.PlayerIndex == index {
			return p
		}
	}
	return nil
}

// MatchParticipant is one team's side of one match. (match, player_index)
// is unique with player_index in {0,1}. PreviousParticipationID points at
// the same team's most recent earlier participation; it is written exactly
// once, in the transaction that inserts the row. RatingPostID is written at
// most once, when the participation is finalized by the rating engine.
type MatchParticipant struct {
	ID                      int64  `json:"id" db:"id"`
	MatchID                 int64  `json:"match_id" db:"match_id"`
	TeamID                  int64  `json:"team_id" db:"team_id"`
	SubmissionID            int64  `json:"submission_id" db:"submission_id"`
	PlayerIndex             int    `json:"player_index" db:"player_index"`
	Score                   *int   `json:"score,omitempty" db:"score"`
	RatingPreID             *int64 `json:"rating_pre_id,omitempty" db:"rating_pre_id"`
	RatingPostID            *int64 `json:"rating_post_id,omitempty" db:"rating_post_id"`
	PreviousParticipationID *int64 `json:"previous_participation_id,omitempty" db:"previous_participation_id"`
}

// Finalized reports whether the post-match rating has been written.
func (p *MatchParticipant) Finalized() bool {
	return p.RatingPostID != nil
}
