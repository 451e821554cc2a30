package models

import "time"

type TeamStatus string

const (
	TeamStatusRegular   TeamStatus = "regular"
	TeamStatusInactive  TeamStatus = "inactive"
	TeamStatusStaff     TeamStatus = "staff"
	TeamStatusInvisible TeamStatus = "invisible"
)

// ScrimmagePolicy is a team's standing answer to incoming scrimmage
// requests of a given ranked-ness.
type ScrimmagePolicy string

const (
	ScrimmagePolicyManual     ScrimmagePolicy = "manual"
	ScrimmagePolicyAutoAccept ScrimmagePolicy = "auto_accept"
	ScrimmagePolicyAutoReject ScrimmagePolicy = "auto_reject"
)

// Team belongs to exactly one episode. (episode, name) is unique.
type Team struct {
	ID        int64      `json:"id" db:"id"`
	EpisodeID string     `json:"episode_id" db:"episode_id"`
	Name      string     `json:"name" db:"name"`
	Status    TeamStatus `json:"status" db:"status"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`

	Profile *TeamProfile `json:"profile,omitempty" db:"-"`
}

// IsStaff reports whether the team is ineligible for ranked play.
func (t *Team) IsStaff() bool {
	return t.Status == TeamStatusStaff || t.Status == TeamStatusInvisible
}

// TeamProfile is 1:1 with Team and holds the reference to the team's
// current (latest finalized) rating plus its scrimmage auto-policies.
type TeamProfile struct {
	TeamID              int64           `json:"team_id" db:"team_id"`
	RatingID            int64           `json:"rating_id" db:"rating_id"`
	RankedScrimPolicy   ScrimmagePolicy `json:"ranked_scrim_policy" db:"ranked_scrim_policy"`
	UnrankedScrimPolicy ScrimmagePolicy `json:"unranked_scrim_policy" db:"unranked_scrim_policy"`

	Rating *Rating `json:"rating,omitempty" db:"-"`
}

// PolicyFor returns the auto-policy that applies to a request of the
// given ranked-ness.
func (p *TeamProfile) PolicyFor(ranked bool) ScrimmagePolicy {
	if ranked {
		return p.RankedScrimPolicy
	}
	return p.UnrankedScrimPolicy
}
