package protocol

import "encoding/json"

// Message types.
const (
	TypeInit            = "init"
	TypeTick            = "tick"
	TypeIntervene       = "intervene"
	TypeInterventionAck = "intervention_ack"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type string `json:"type"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
