package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/nodeflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Scenes ---

// CreateScene inserts a scene. When sc.Document is set it becomes revision 1.
// An empty ID is filled with a new UUID.
func (s *LibSQLStore) CreateScene(ctx context.Context, sc *Scene) error {
	if strings.TrimSpace(sc.Name) == "" {
		return schema.NewError(schema.ErrCodeValidation, "scene name is required")
	}
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	sc.CreatedAt = timeOrNow(sc.CreatedAt)
	sc.UpdatedAt = sc.CreatedAt

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create scene: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM scenes WHERE id = ? OR name = ?`, sc.ID, sc.Name).Scan(&exists); err != nil {
		return err
	}
	if exists > 0 {
		return schema.NewErrorf(schema.ErrCodeConflict, "scene %q already exists", sc.Name)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO scenes (id, name, description, current_revision, created_at, updated_at) VALUES (?, ?, ?, 0, ?, ?)`,
		sc.ID, sc.Name, nullStr(sc.Description), sc.CreatedAt, sc.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert scene: %w", err)
	}

	sc.Revision = 0
	if sc.Document != nil {
		rev, err := insertRevision(ctx, tx, sc.ID, sc.Document, sc.CreatedAt)
		if err != nil {
			return err
		}
		sc.Revision = rev.Revision
	}
	return tx.Commit()
}

func (s *LibSQLStore) GetScene(ctx context.Context, id string) (*Scene, error) {
	return s.getScene(ctx, "id", id)
}

func (s *LibSQLStore) GetSceneByName(ctx context.Context, name string) (*Scene, error) {
	return s.getScene(ctx, "name", name)
}

func (s *LibSQLStore) getScene(ctx context.Context, column, value string) (*Scene, error) {
	sc := &Scene{}
	var desc, doc sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT s.id, s.name, s.description, s.current_revision, s.created_at, s.updated_at, r.document
		 FROM scenes s
		 LEFT JOIN scene_revisions r ON r.scene_id = s.id AND r.revision = s.current_revision
		 WHERE s.`+column+` = ?`, value,
	).Scan(&sc.ID, &sc.Name, &desc, &sc.Revision, &sc.CreatedAt, &sc.UpdatedAt, &doc)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("scene", value)
	}
	if err != nil {
		return nil, err
	}
	sc.Description = desc.String
	if doc.Valid {
		if sc.Document, err = decodeDocument(doc.String); err != nil {
			return nil, err
		}
	}
	return sc, nil
}

func (s *LibSQLStore) ListScenes(ctx context.Context, filter SceneFilter) ([]*Scene, error) {
	var where []string
	var args []any

	if filter.NameContains != "" {
		where = append(where, "LOWER(name) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.NameContains)+"%")
	}

	query := `SELECT id, name, description, current_revision, created_at, updated_at FROM scenes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scenes []*Scene
	for rows.Next() {
		sc := &Scene{}
		var desc sql.NullString
		if err := rows.Scan(&sc.ID, &sc.Name, &desc, &sc.Revision, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
			return nil, err
		}
		sc.Description = desc.String
		scenes = append(scenes, sc)
	}
	return scenes, rows.Err()
}

func (s *LibSQLStore) RenameScene(ctx context.Context, id, name string) error {
	if strings.TrimSpace(name) == "" {
		return schema.NewError(schema.ErrCodeValidation, "scene name is required")
	}
	var taken int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM scenes WHERE name = ? AND id != ?`, name, id).Scan(&taken); err != nil {
		return err
	}
	if taken > 0 {
		return schema.NewErrorf(schema.ErrCodeConflict, "scene %q already exists", name)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE scenes SET name = ?, updated_at = ? WHERE id = ?`, name, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "scene", id)
}

// DeleteScene removes a scene with its revisions and events.
func (s *LibSQLStore) DeleteScene(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM scene_events WHERE scene_id = ?`,
		`DELETE FROM scene_revisions WHERE scene_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM scenes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res, "scene", id); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Revisions ---

// SaveRevision appends doc as the scene's next revision and makes it current.
func (s *LibSQLStore) SaveRevision(ctx context.Context, sceneID string, doc *schema.SceneDocument) (*Revision, error) {
	if doc == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "scene document is nil")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin save revision: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM scenes WHERE id = ?`, sceneID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, storeNotFound("scene", sceneID)
	}

	rev, err := insertRevision(ctx, tx, sceneID, doc, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit revision: %w", err)
	}
	return rev, nil
}

func insertRevision(ctx context.Context, tx *sql.Tx, sceneID string, doc *schema.SceneDocument, at time.Time) (*Revision, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal scene document: %w", err)
	}

	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(revision), 0) + 1 FROM scene_revisions WHERE scene_id = ?`, sceneID,
	).Scan(&next); err != nil {
		return nil, fmt.Errorf("get next revision: %w", err)
	}

	rev := &Revision{
		SceneID:         sceneID,
		Revision:        next,
		Document:        doc,
		NodeCount:       len(doc.Nodes),
		ConnectionCount: len(doc.Connections),
		CreatedAt:       at,
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO scene_revisions (scene_id, revision, document, node_count, connection_count, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sceneID, next, string(body), rev.NodeCount, rev.ConnectionCount, at,
	); err != nil {
		return nil, fmt.Errorf("insert revision: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE scenes SET current_revision = ?, updated_at = ? WHERE id = ?`, next, at, sceneID,
	); err != nil {
		return nil, fmt.Errorf("update current revision: %w", err)
	}
	return rev, nil
}

func (s *LibSQLStore) GetRevision(ctx context.Context, sceneID string, revision int64) (*Revision, error) {
	rev := &Revision{}
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT scene_id, revision, document, node_count, connection_count, created_at
		 FROM scene_revisions WHERE scene_id = ? AND revision = ?`, sceneID, revision,
	).Scan(&rev.SceneID, &rev.Revision, &doc, &rev.NodeCount, &rev.ConnectionCount, &rev.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("revision", fmt.Sprintf("%s@%d", sceneID, revision))
	}
	if err != nil {
		return nil, err
	}
	if rev.Document, err = decodeDocument(doc); err != nil {
		return nil, err
	}
	return rev, nil
}

// ListRevisions returns revision metadata, newest first. Documents are not loaded.
func (s *LibSQLStore) ListRevisions(ctx context.Context, sceneID string) ([]*Revision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scene_id, revision, node_count, connection_count, created_at
		 FROM scene_revisions WHERE scene_id = ? ORDER BY revision DESC`, sceneID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revs []*Revision
	for rows.Next() {
		r := &Revision{}
		if err := rows.Scan(&r.SceneID, &r.Revision, &r.NodeCount, &r.ConnectionCount, &r.CreatedAt); err != nil {
			return nil, err
		}
		revs = append(revs, r)
	}
	return revs, rows.Err()
}

// PruneRevisions deletes all but the newest keep revisions and returns how many were removed.
// The current revision is always kept.
func (s *LibSQLStore) PruneRevisions(ctx context.Context, sceneID string, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scene_revisions WHERE scene_id = ? AND revision NOT IN (
		   SELECT revision FROM scene_revisions WHERE scene_id = ? ORDER BY revision DESC LIMIT ?
		 )`, sceneID, sceneID, keep,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Events ---

func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, event *Event) error {
	var seq int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM scene_events WHERE scene_id = ?`, event.SceneID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq
	event.Timestamp = timeOrNow(event.Timestamp)

	res, err := tx.ExecContext(ctx,
		`INSERT INTO scene_events (scene_id, node_id, connection_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.SceneID, nullStr(event.NodeID), nullStr(event.ConnectionID), event.Type,
		nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

func (s *LibSQLStore) GetEvents(ctx context.Context, sceneID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scene_id, node_id, connection_id, event_type, payload, timestamp, sequence
		 FROM scene_events WHERE scene_id = ? AND sequence > ? ORDER BY sequence ASC`,
		sceneID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *LibSQLStore) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error) {
	var where []string
	var args []any

	where = append(where, "event_type = ?")
	args = append(args, eventType)

	if filter.SceneID != "" {
		where = append(where, "scene_id = ?")
		args = append(args, filter.SceneID)
	}
	if filter.NodeID != "" {
		where = append(where, "node_id = ?")
		args = append(args, filter.NodeID)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, scene_id, node_id, connection_id, event_type, payload, timestamp, sequence FROM scene_events`
	query += " WHERE " + strings.Join(where, " AND ")
	query += " ORDER BY timestamp DESC, sequence DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		e := &Event{}
		var nodeID, connID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.SceneID, &nodeID, &connID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.NodeID = nodeID.String
		e.ConnectionID = connID.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func decodeDocument(raw string) (*schema.SceneDocument, error) {
	doc := &schema.SceneDocument{}
	if err := json.Unmarshal([]byte(raw), doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "corrupt scene document").WithCause(err)
	}
	return doc, nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}
