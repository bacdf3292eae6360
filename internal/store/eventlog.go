package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/nodeflow/pkg/schema"
)

// EventLog provides event-sourcing operations on top of a LibSQLStore.
type EventLog struct {
	store *LibSQLStore
}

// NewEventLog wraps a LibSQLStore to provide event-sourcing operations.
func NewEventLog(s *LibSQLStore) *EventLog {
	return &EventLog{store: s}
}

// AppendEvents appends a batch of events in one transaction, assigning
// per-scene sequences in order.
func (el *EventLog) AppendEvents(ctx context.Context, events ...*Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := el.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range events {
		if err := insertEvent(ctx, tx, e); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit events: %w", err)
	}
	return nil
}

// GetEvents returns events for a scene with sequence > since, ordered by sequence ASC.
func (el *EventLog) GetEvents(ctx context.Context, sceneID string, since int64) ([]*Event, error) {
	return el.store.GetEvents(ctx, sceneID, since)
}

// PositionPayload is the payload carried by node_added and node_moved events.
type PositionPayload struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeActivity is the replayed history of one node.
type NodeActivity struct {
	NodeID      string          `json:"node_id"`
	Present     bool            `json:"present"`
	Moves       int             `json:"moves"`
	Connections int             `json:"connections"`
	Position    PositionPayload `json:"position"`
	AddedAt     *time.Time      `json:"added_at,omitempty"`
	RemovedAt   *time.Time      `json:"removed_at,omitempty"`
}

// ReplayNodes replays a scene's event log and returns per-node activity.
// Connection events count against both endpoints named in their payload.
// Returns an error if sequence gaps are detected.
func (el *EventLog) ReplayNodes(ctx context.Context, sceneID string) (map[string]*NodeActivity, error) {
	events, err := el.store.GetEvents(ctx, sceneID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	for i, e := range events {
		expected := int64(i + 1)
		if e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in scene %s: expected %d, got %d", sceneID, expected, e.Sequence)
		}
	}

	nodes := make(map[string]*NodeActivity)
	// added tracks nodes created since the last clear or load; a restore
	// replaces the scene without per-node removal events.
	added := make(map[string]bool)
	get := func(id string) *NodeActivity {
		na, ok := nodes[id]
		if !ok {
			na = &NodeActivity{NodeID: id}
			nodes[id] = na
		}
		return na
	}

	for _, e := range events {
		switch e.Type {
		case schema.EventNodeAdded:
			na := get(e.NodeID)
			na.Present = true
			ts := e.Timestamp
			na.AddedAt = &ts
			na.RemovedAt = nil
			na.Connections = 0
			added[e.NodeID] = true
			decodePosition(e.Payload, &na.Position)

		case schema.EventNodeMoved:
			na := get(e.NodeID)
			na.Moves++
			decodePosition(e.Payload, &na.Position)

		case schema.EventNodeRemoved:
			na := get(e.NodeID)
			na.Present = false
			ts := e.Timestamp
			na.RemovedAt = &ts

		case schema.EventConnectionAdded, schema.EventConnectionRemoved:
			var p ConnectionPayload
			if len(e.Payload) == 0 || json.Unmarshal(e.Payload, &p) != nil {
				continue
			}
			delta := 1
			if e.Type == schema.EventConnectionRemoved {
				delta = -1
			}
			get(p.OutNodeID).Connections += delta
			get(p.InNodeID).Connections += delta

		case schema.EventSceneCleared:
			for _, na := range nodes {
				na.Present = false
				na.Connections = 0
			}
			clear(added)

		case schema.EventSceneLoaded:
			for id, na := range nodes {
				if !added[id] {
					na.Present = false
					na.Connections = 0
				}
			}
			clear(added)
		}
	}
	return nodes, nil
}

// ConnectionPayload is the payload carried by connection events.
type ConnectionPayload struct {
	OutNodeID string `json:"out_id"`
	OutPort   int    `json:"out_index"`
	InNodeID  string `json:"in_id"`
	InPort    int    `json:"in_index"`
}

func decodePosition(raw json.RawMessage, pos *PositionPayload) {
	if len(raw) == 0 {
		return
	}
	var p PositionPayload
	if err := json.Unmarshal(raw, &p); err == nil {
		*pos = p
	}
}
