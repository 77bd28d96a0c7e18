package models

import (
	"encoding/json"
	"time"
)

// Flow is one stored version of a named workflow graph
type Flow struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Version   int             `json:"version"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// FlowVersion is the listing projection of a flow version
type FlowVersion struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}
