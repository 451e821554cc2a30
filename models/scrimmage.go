package models

import (
	"math/rand"
	"time"
)

// PlayerOrder decides which team plays first when a scrimmage request is
// materialized into a match. The values are the wire codes clients send.
type PlayerOrder string

const (
	OrderRequesterFirst PlayerOrder = "REQUESTER_FIRST"
	OrderRequesterLast  PlayerOrder = "REQUESTER_LAST"
	OrderShuffled       PlayerOrder = "SHUFFLED"
)

func ParsePlayerOrder(code string) (PlayerOrder, error) {
	switch o := PlayerOrder(code); o {
	case OrderRequesterFirst, OrderRequesterLast, OrderShuffled:
		return o, nil
	}
	return "", &UnknownEnumError{Kind: "player order", Value: code}
}

// IsAlternating reports whether the materialized match should swap sides
// between consecutive maps.
func (o PlayerOrder) IsAlternating() bool {
	return o == OrderShuffled
}

// Ordered returns (first, second) for the given requester/responder pair.
// The shuffled policy draws from the provided source.
func (o PlayerOrder) Ordered(requester, responder int64, rng *rand.Rand) (int64, int64) {
	switch o {
	case OrderRequesterLast:
		return responder, requester
	case OrderShuffled:
		if rng.Intn(2) == 1 {
			return responder, requester
		}
	}
	return requester, responder
}

type ScrimmageStatus string

const (
	ScrimmagePending   ScrimmageStatus = "pending"
	ScrimmageAccepted  ScrimmageStatus = "accepted"
	ScrimmageRejected  ScrimmageStatus = "rejected"
	ScrimmageCancelled ScrimmageStatus = "cancelled"
)

// ScrimmageRequest is one team's challenge to another. Pending is the only
// non-terminal status.
type ScrimmageRequest struct {
	ID          int64           `json:"id" db:"id"`
	EpisodeID   string          `json:"episode_id" db:"episode_id"`
	RequesterID int64           `json:"requester_id" db:"requester_id"`
	ResponderID int64           `json:"responder_id" db:"responder_id"`
	IsRanked    bool            `json:"is_ranked" db:"is_ranked"`
	PlayerOrder PlayerOrder     `json:"player_order" db:"player_order"`
	Maps        []string        `json:"maps" db:"maps"`
	Status      ScrimmageStatus `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// UnknownEnumError reports an unrecognized wire code.
type UnknownEnumError struct {
	Kind  string
	Value string
}

func (e *UnknownEnumError) Error() string {
	return "unknown " + e.Kind + " value \"" + e.Value + "\""
}
