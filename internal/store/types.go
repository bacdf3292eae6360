package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/nodeflow/pkg/schema"
)

// Scene is a named, persisted graph. Document holds the current revision
// and is nil in list results.
type Scene struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description,omitempty"`
	Revision    int64                 `json:"revision"`
	Document    *schema.SceneDocument `json:"document,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// Revision is one immutable saved version of a scene.
type Revision struct {
	SceneID         string                `json:"scene_id"`
	Revision        int64                 `json:"revision"`
	Document        *schema.SceneDocument `json:"document,omitempty"`
	NodeCount       int                   `json:"node_count"`
	ConnectionCount int                   `json:"connection_count"`
	CreatedAt       time.Time             `json:"created_at"`
}

// SceneFilter controls scene listing.
type SceneFilter struct {
	NameContains string
	Limit        int
	Offset       int
}

// Event is an immutable entry in a scene's notification log.
type Event struct {
	ID           int64           `json:"id"`
	SceneID      string          `json:"scene_id"`
	NodeID       string          `json:"node_id,omitempty"`
	ConnectionID string          `json:"connection_id,omitempty"`
	Type         string          `json:"event_type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Sequence     int64           `json:"sequence"`
}

// EventFilter controls event queries.
type EventFilter struct {
	SceneID string
	NodeID  string
	Since   *time.Time
	Limit   int
}
