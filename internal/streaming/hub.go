package streaming

import "context"

// SceneEvent is a real-time graph notification emitted by a scene.
type SceneEvent struct {
	SceneID      string `json:"scene_id"`
	NodeID       string `json:"node_id,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
	EventType    string `json:"event_type"`
	Payload      any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	SceneID    string   `json:"scene_id,omitempty"`
	NodeID     string   `json:"node_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time scene events.
type EventHub interface {
	Publish(ctx context.Context, event SceneEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan SceneEvent, func(), error)
}
