package scene

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/nodeflow/internal/flow"
	"github.com/rendis/nodeflow/internal/store"
	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/pkg/schema"
)

// Session is one open scene: a Graph guarded by a mutex plus the
// bookkeeping needed to persist and broadcast it.
type Session struct {
	id   string
	name string

	mu       sync.Mutex
	graph    *flow.Graph
	dirty    bool
	revision int64
	pending  []flow.Event
	cancel   func()
	closed   bool
	updated  time.Time
	dropped  int

	hub    streaming.EventHub
	events *store.EventLog
	logger *slog.Logger
}

// Info is a point-in-time summary of a session.
type Info struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Dirty       bool      `json:"dirty"`
	Revision    int64     `json:"revision"`
	Nodes       int       `json:"nodes"`
	Connections int       `json:"connections"`
	UpdatedAt   time.Time `json:"updated_at"`
	// Dropped counts deliveries cut off by the propagation depth bound.
	Dropped int `json:"dropped_deliveries,omitempty"`
}

func newSession(id, name string, g *flow.Graph, hub streaming.EventHub, events *store.EventLog, logger *slog.Logger) *Session {
	s := &Session{
		id:      id,
		name:    name,
		graph:   g,
		hub:     hub,
		events:  events,
		logger:  logger.With(slog.String("scene_id", id)),
		updated: time.Now().UTC(),
	}
	s.cancel = g.Subscribe(func(ev flow.Event) {
		s.pending = append(s.pending, ev)
	})
	return s
}

func (s *Session) ID() string   { return s.id }

// Name returns the current scene name.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// rename must be called with the manager lock held.
func (s *Session) rename(name string) (old string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, s.name = s.name, name
	return old
}

// Update runs fn with exclusive access to the graph. The scene is marked
// dirty when fn succeeds, and the notifications it produced are published
// to the hub and appended to the event log.
func (s *Session) Update(ctx context.Context, fn func(g *flow.Graph) error) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeNotFound, "scene %q is closed", s.id)
	}
	err := fn(s.graph)
	if err == nil {
		s.dirty = true
		s.updated = time.Now().UTC()
	}
	s.collectDropped()
	batch := s.drain()
	s.mu.Unlock()

	s.flush(ctx, batch)
	return err
}

// View runs fn with exclusive access to the graph for reading.
func (s *Session) View(fn func(g *flow.Graph)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.graph)
}

// Info returns a summary of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:          s.id,
		Name:        s.name,
		Dirty:       s.dirty,
		Revision:    s.revision,
		Nodes:       s.graph.NodeCount(),
		Connections: len(s.graph.Connections()),
		UpdatedAt:   s.updated,
		Dropped:     s.dropped,
	}
}

// Dirty reports whether the scene changed since it was last saved or loaded.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Snapshot returns the current scene document.
func (s *Session) Snapshot() *schema.SceneDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Save()
}

// snapshotIfDirty returns the document when the scene is dirty.
func (s *Session) snapshotIfDirty() (*schema.SceneDocument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty || s.closed {
		return nil, false
	}
	return s.graph.Save(), true
}

// markSaved clears the dirty flag and records the stored revision.
func (s *Session) markSaved(ctx context.Context, revision int64) {
	s.mu.Lock()
	s.dirty = false
	s.revision = revision
	s.mu.Unlock()
	s.flush(ctx, []flow.Event{{Kind: schema.EventSceneSaved}})
}

// restore replaces the graph contents without marking the scene dirty.
func (s *Session) restore(ctx context.Context, doc *schema.SceneDocument, revision int64) error {
	s.mu.Lock()
	err := s.graph.Restore(doc)
	if err == nil {
		s.dirty = false
		s.revision = revision
		s.updated = time.Now().UTC()
	}
	s.collectDropped()
	batch := s.drain()
	s.mu.Unlock()

	s.flush(ctx, batch)
	return err
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
}

// collectDropped moves the graph's dropped deliveries into the session
// counter. It must be called with s.mu held.
func (s *Session) collectDropped() {
	errs := s.graph.PropagationErrors()
	if len(errs) == 0 {
		return
	}
	s.dropped += len(errs)
	s.graph.ResetPropagationErrors()
}

// drain must be called with s.mu held.
func (s *Session) drain() []flow.Event {
	batch := s.pending
	s.pending = nil
	return batch
}

// flush publishes graph notifications outside the session lock.
func (s *Session) flush(ctx context.Context, batch []flow.Event) {
	if len(batch) == 0 {
		return
	}
	records := make([]*store.Event, 0, len(batch))
	for _, ev := range batch {
		se := toStreamEvent(s.id, ev)
		if s.hub != nil {
			if err := s.hub.Publish(ctx, se); err != nil {
				s.logger.WarnContext(ctx, "publish scene event failed",
					slog.String("event", ev.Kind), slog.String("error", err.Error()))
			}
		}
		if s.events != nil {
			records = append(records, toStoreEvent(se))
		}
	}
	if len(records) > 0 {
		if err := s.events.AppendEvents(ctx, records...); err != nil {
			s.logger.WarnContext(ctx, "append scene events failed", slog.String("error", err.Error()))
		}
	}
}

func toStreamEvent(sceneID string, ev flow.Event) streaming.SceneEvent {
	se := streaming.SceneEvent{SceneID: sceneID, EventType: ev.Kind}
	switch ev.Kind {
	case schema.EventNodeAdded, schema.EventNodeMoved, schema.EventNodeRemoved:
		se.NodeID = ev.Node.String()
		se.Payload = store.PositionPayload{X: ev.Position.X, Y: ev.Position.Y}
	case schema.EventConnectionAdded, schema.EventConnectionRemoved:
		c := ev.Connection
		se.ConnectionID = c.ID.String()
		se.Payload = store.ConnectionPayload{
			OutNodeID: c.Out.Node.String(),
			OutPort:   int(c.Out.Index),
			InNodeID:  c.In.Node.String(),
			InPort:    int(c.In.Index),
		}
	case schema.EventPropagationDropped:
		se.NodeID = ev.Node.String()
	}
	return se
}

func toStoreEvent(se streaming.SceneEvent) *store.Event {
	e := &store.Event{
		SceneID:      se.SceneID,
		NodeID:       se.NodeID,
		ConnectionID: se.ConnectionID,
		Type:         se.EventType,
	}
	if se.Payload != nil {
		if raw, err := json.Marshal(se.Payload); err == nil {
			e.Payload = raw
		}
	}
	return e
}
