package models

// SaturnStatus is the lifecycle state of a compute invocation, stored and
// transmitted as the cluster's three-letter wire code.
type SaturnStatus string

const (
	SaturnStatusCreated   SaturnStatus = "NEW"
	SaturnStatusQueued    SaturnStatus = "QUE"
	SaturnStatusRunning   SaturnStatus = "RUN"
	SaturnStatusRetrying  SaturnStatus = "TRY"
	SaturnStatusCompleted SaturnStatus = "OK!"
	SaturnStatusErrored   SaturnStatus = "ERR"
	SaturnStatusCancelled SaturnStatus = "CAN"
)

// IsTerminal reports whether no further transitions are allowed.
func (s SaturnStatus) IsTerminal() bool {
	switch s {
	case SaturnStatusCompleted, SaturnStatusErrored, SaturnStatusCancelled:
		return true
	}
	return false
}

func ParseSaturnStatus(code string) (SaturnStatus, error) {
	switch s := SaturnStatus(code); s {
	case SaturnStatusCreated, SaturnStatusQueued, SaturnStatusRunning,
		SaturnStatusRetrying, SaturnStatusCompleted, SaturnStatusErrored,
		SaturnStatusCancelled:
		return s, nil
	}
	return "", &UnknownEnumError{Kind: "saturn status", Value: code}
}

// InvocationUpdate is a status report from the compute cluster about one
// invocation. Interrupted distinguishes infrastructure retries from
// execution failures; nil means not interrupted.
type InvocationUpdate struct {
	Status      SaturnStatus `json:"status"`
	Logs        string       `json:"logs"`
	Interrupted *bool        `json:"interrupted,omitempty"`
}

func (u InvocationUpdate) IsInterrupted() bool {
	return u.Interrupted != nil && *u.Interrupted
}
