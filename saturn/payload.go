// Package saturn is the engine's side of the contract with the external
// compute cluster: message payloads, the ordered dispatcher, and the
// invocation capability both submissions and matches satisfy.
package saturn

import "encoding/json"

// Invocation is a unit of work that can be published to Saturn. Submission
// and Match value types implement it.
type Invocation interface {
	InvocationID() int64
	SaturnPayload() ([]byte, error)
}

// CompilePayload is the message body for a compile job.
type CompilePayload struct {
	ID      int64  `json:"id"`
	Episode string `json:"episode"`
	Source  string `json:"source"`
	Binary  string `json:"binary"`
}

func (p CompilePayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// ExecutePayload is the message body for an execute job. Maps is the
// comma-joined ordered map list.
type ExecutePayload struct {
	ID         int64  `json:"id"`
	Episode    string `json:"episode"`
	ReplayPath string `json:"replay-path"`
	Maps       string `json:"map"`
}

func (p ExecutePayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}
