package models

import "time"

// Rating is an immutable Glicko-2 snapshot for one team. N counts the
// ranked matches incorporated so far; the default initial rating has N=0.
// Ratings are append-only: profiles and participations reference them,
// nothing ever mutates a persisted row.
type Rating struct {
	ID         int64     `json:"id" db:"id"`
	TeamID     int64     `json:"team_id" db:"team_id"`
	Mean       float64   `json:"mean" db:"mean"`
	Deviation  float64   `json:"deviation" db:"deviation"`
	Volatility float64   `json:"volatility" db:"volatility"`
	N          int       `json:"n" db:"n"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
