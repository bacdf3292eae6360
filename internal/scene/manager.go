package scene

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rendis/nodeflow/internal/flow"
	"github.com/rendis/nodeflow/internal/logging"
	"github.com/rendis/nodeflow/internal/store"
	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/internal/validation"
	"github.com/rendis/nodeflow/pkg/schema"
)

// Deps holds the collaborators of a Manager. Models is required; every
// other field is optional.
type Deps struct {
	Models     *flow.ModelRegistry
	Converters *flow.ConverterRegistry
	Store      store.Store
	EventLog   *store.EventLog
	Hub        streaming.EventHub
	Validator  *validation.SceneValidator
	Logger     *slog.Logger

	// GraphOptions are applied to every graph the manager creates.
	GraphOptions []flow.Option

	// KeepRevisions bounds the stored revisions per scene; older ones are
	// pruned after each save. Zero keeps every revision.
	KeepRevisions int
}

// Manager owns the open scenes of a process and bridges them to the
// store and the event hub. It is safe for concurrent use.
type Manager struct {
	deps   Deps
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a Manager.
func NewManager(deps Deps) *Manager {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.Models == nil {
		deps.Models = flow.NewModelRegistry()
	}
	return &Manager{
		deps:     deps,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Models returns the model registry shared by every scene.
func (m *Manager) Models() *flow.ModelRegistry { return m.deps.Models }

// Converters returns the converter registry shared by every scene.
func (m *Manager) Converters() *flow.ConverterRegistry { return m.deps.Converters }

// Hub returns the event hub, or nil.
func (m *Manager) Hub() streaming.EventHub { return m.deps.Hub }

// Store returns the scene store, or nil.
func (m *Manager) Store() store.Store { return m.deps.Store }

func (m *Manager) newGraph() *flow.Graph {
	opts := append([]flow.Option{flow.WithLogger(m.logger)}, m.deps.GraphOptions...)
	return flow.New(m.deps.Models, m.deps.Converters, opts...)
}

// Create opens a new empty scene. With a store configured the scene is
// persisted immediately at revision 0.
func (m *Manager) Create(ctx context.Context, name string) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "scene name is required")
	}
	id := uuid.NewString()
	s, err := m.reserve(id, name)
	if err != nil {
		return nil, err
	}
	if m.deps.Store != nil {
		sc := &store.Scene{ID: id, Name: name}
		if err := m.deps.Store.CreateScene(ctx, sc); err != nil {
			m.discard(s)
			return nil, err
		}
	}
	m.logger.InfoContext(logging.WithSceneID(ctx, id), "scene created", slog.String("name", name))
	return s, nil
}

// Import opens a new scene from a document. The document is validated
// first when a validator is configured, and stored as revision 1 when a
// store is configured.
func (m *Manager) Import(ctx context.Context, name string, doc *schema.SceneDocument) (*Session, error) {
	if err := m.validate(doc); err != nil {
		return nil, err
	}
	s, err := m.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.restore(ctx, doc, 0); err != nil {
		m.discard(s)
		if m.deps.Store != nil {
			_ = m.deps.Store.DeleteScene(ctx, s.id)
		}
		return nil, err
	}
	if m.deps.Store != nil {
		if _, err := m.Save(ctx, s.id); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Open returns the open session for idOrName, loading it from the store
// when it is not open yet.
func (m *Manager) Open(ctx context.Context, idOrName string) (*Session, error) {
	if s, ok := m.Lookup(idOrName); ok {
		return s, nil
	}
	if m.deps.Store == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "scene %q not found", idOrName)
	}

	sc, err := m.deps.Store.GetScene(ctx, idOrName)
	if schema.IsCode(err, schema.ErrCodeNotFound) {
		sc, err = m.deps.Store.GetSceneByName(ctx, idOrName)
	}
	if err != nil {
		return nil, err
	}
	if sc.Document != nil {
		if err := m.validate(sc.Document); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	if s, ok := m.sessions[sc.ID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	s := newSession(sc.ID, sc.Name, m.newGraph(), m.deps.Hub, m.deps.EventLog, m.logger)
	m.sessions[sc.ID] = s
	m.mu.Unlock()

	if sc.Document != nil {
		if err := s.restore(ctx, sc.Document, sc.Revision); err != nil {
			m.discard(s)
			return nil, err
		}
	}
	m.logger.InfoContext(logging.WithSceneID(ctx, sc.ID), "scene opened",
		slog.String("name", sc.Name), slog.Int64("revision", sc.Revision))
	return s, nil
}

// Lookup finds an open session by id or name.
func (m *Manager) Lookup(idOrName string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[idOrName]; ok {
		return s, true
	}
	for _, s := range m.sessions {
		if s.name == idOrName {
			return s, true
		}
	}
	return nil, false
}

// Get returns the open session for idOrName or a NOT_FOUND error.
func (m *Manager) Get(idOrName string) (*Session, error) {
	if s, ok := m.Lookup(idOrName); ok {
		return s, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "scene %q is not open", idOrName)
}

// List returns summaries of every open session sorted by name.
func (m *Manager) List() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Save stores the scene's current document as a new revision.
func (m *Manager) Save(ctx context.Context, id string) (*store.Revision, error) {
	if m.deps.Store == nil {
		return nil, schema.NewError(schema.ErrCodeStore, "no scene store configured")
	}
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return m.save(ctx, s, s.Snapshot())
}

func (m *Manager) save(ctx context.Context, s *Session, doc *schema.SceneDocument) (*store.Revision, error) {
	rev, err := m.deps.Store.SaveRevision(ctx, s.id, doc)
	if err != nil {
		return nil, err
	}
	s.markSaved(ctx, rev.Revision)
	ctx = logging.WithSceneID(ctx, s.id)
	m.logger.DebugContext(ctx, "scene saved", slog.Int64("revision", rev.Revision))

	if m.deps.KeepRevisions > 0 {
		pruned, err := m.deps.Store.PruneRevisions(ctx, s.id, m.deps.KeepRevisions)
		switch {
		case err != nil:
			m.logger.WarnContext(ctx, "prune revisions failed", slog.String("error", err.Error()))
		case pruned > 0:
			m.logger.DebugContext(ctx, "revisions pruned", slog.Int64("count", pruned))
		}
	}
	return rev, nil
}

// Rename changes the name of an open scene, and of its stored record when
// a store is configured. Names stay unique among open scenes.
func (m *Manager) Rename(ctx context.Context, idOrName, name string) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "scene name is required")
	}
	s, err := m.Get(idOrName)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, open := range m.sessions {
		if id != s.id && open.name == name {
			return nil, schema.NewErrorf(schema.ErrCodeConflict, "scene %q is already open", name)
		}
	}
	if m.deps.Store != nil {
		if err := m.deps.Store.RenameScene(ctx, s.id, name); err != nil {
			return nil, err
		}
	}
	old := s.rename(name)
	m.logger.InfoContext(logging.WithSceneID(ctx, s.id), "scene renamed",
		slog.String("from", old), slog.String("to", name))
	return s, nil
}

// SaveDirty stores every dirty scene and returns how many were saved.
// Errors are logged per scene; the last one is returned.
func (m *Manager) SaveDirty(ctx context.Context) (int, error) {
	if m.deps.Store == nil {
		return 0, nil
	}
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	saved := 0
	var lastErr error
	for _, s := range sessions {
		doc, ok := s.snapshotIfDirty()
		if !ok {
			continue
		}
		if _, err := m.save(ctx, s, doc); err != nil {
			m.logger.ErrorContext(logging.WithSceneID(ctx, s.id), "autosave failed", slog.String("error", err.Error()))
			lastErr = err
			continue
		}
		saved++
	}
	return saved, lastErr
}

// Revert restores a stored revision into the open scene.
func (m *Manager) Revert(ctx context.Context, id string, revision int64) error {
	if m.deps.Store == nil {
		return schema.NewError(schema.ErrCodeStore, "no scene store configured")
	}
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	rev, err := m.deps.Store.GetRevision(ctx, s.id, revision)
	if err != nil {
		return err
	}
	if err := m.validate(rev.Document); err != nil {
		return err
	}
	return s.restore(ctx, rev.Document, rev.Revision)
}

// Close drops an open session, saving it first when save is set and it is dirty.
func (m *Manager) Close(ctx context.Context, id string, save bool) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if save && m.deps.Store != nil {
		if doc, ok := s.snapshotIfDirty(); ok {
			if _, err := m.save(ctx, s, doc); err != nil {
				return err
			}
		}
	}
	m.discard(s)
	return nil
}

// Delete closes the scene and removes it from the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	sceneID := id
	if s, ok := m.Lookup(id); ok {
		sceneID = s.id
		m.discard(s)
	}
	if m.deps.Store != nil {
		if err := m.deps.Store.DeleteScene(ctx, sceneID); err != nil {
			return err
		}
	}
	if m.deps.Hub != nil {
		ev := streaming.SceneEvent{SceneID: sceneID, EventType: schema.EventSceneDeleted}
		if err := m.deps.Hub.Publish(ctx, ev); err != nil {
			m.logger.WarnContext(logging.WithSceneID(ctx, sceneID), "publish scene event failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// CloseAll closes every session, saving dirty ones when a store is configured.
func (m *Manager) CloseAll(ctx context.Context) error {
	_, err := m.SaveDirty(ctx)
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.close()
	}
	return err
}

// Validate runs the scene validator over doc, or reports valid when none is configured.
func (m *Manager) Validate(doc *schema.SceneDocument) *schema.ValidationReport {
	if m.deps.Validator == nil {
		return &schema.ValidationReport{}
	}
	return m.deps.Validator.Validate(doc)
}

func (m *Manager) validate(doc *schema.SceneDocument) error {
	if doc == nil {
		return schema.NewError(schema.ErrCodeValidation, "scene document is nil")
	}
	return m.Validate(doc).ToError()
}

// reserve registers a new session unless an open one already uses name.
// The check and the insert happen under one lock.
func (m *Manager) reserve(id, name string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, open := range m.sessions {
		if open.name == name {
			return nil, schema.NewErrorf(schema.ErrCodeConflict, "scene %q is already open", name)
		}
	}
	s := newSession(id, name, m.newGraph(), m.deps.Hub, m.deps.EventLog, m.logger)
	m.sessions[id] = s
	return s, nil
}

func (m *Manager) discard(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()
	s.close()
}

