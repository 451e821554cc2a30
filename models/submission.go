package models

import (
	"fmt"
	"time"

	"github.com/scrimlab/match-engine/saturn"
)

// Submission is one uploaded source package owned by a team. It doubles as
// a Saturn invocation on the compile topic. Everything except the
// invocation bookkeeping fields (status, logs, failures, accepted) is
// immutable after creation.
type Submission struct {
	ID          int64     `json:"id" db:"id"`
	EpisodeID   string    `json:"episode_id" db:"episode_id"`
	TeamID      int64     `json:"team_id" db:"team_id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	Package     string    `json:"package" db:"package"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`

	Status      SaturnStatus `json:"status" db:"status"`
	Logs        string       `json:"logs" db:"logs"`
	NumFailures int          `json:"num_failures" db:"num_failures"`
	MessageID   *string      `json:"message_id,omitempty" db:"message_id"`
	Accepted    bool         `json:"accepted" db:"accepted"`
}

// SourceKey is the blob key the raw source archive is stored under in the
// secure bucket.
func (s *Submission) SourceKey() string {
	return fmt.Sprintf("submissions/%d/source.zip", s.ID)
}

// BinaryKey is the blob key Saturn writes the compiled artifact to.
func (s *Submission) BinaryKey() string {
	return fmt.Sprintf("submissions/%d/binary.zip", s.ID)
}

func (s *Submission) InvocationID() int64     { return s.ID }
func (s *Submission) InvocationLogs() string  { return s.Logs }
func (s *Submission) InvocationFailures() int { return s.NumFailures }

// SaturnPayload renders the compile-job message body.
func (s *Submission) SaturnPayload() ([]byte, error) {
	return saturn.CompilePayload{
		ID:      s.ID,
		Episode: s.EpisodeID,
		Source:  s.SourceKey(),
		Binary:  s.BinaryKey(),
	}.Marshal()
}
