package store

import (
	"context"

	"github.com/rendis/nodeflow/pkg/schema"
)

// Store defines the persistence layer contract for named scenes.
// All implementations must be safe for concurrent use.
type Store interface {
	// Scenes
	CreateScene(ctx context.Context, sc *Scene) error
	GetScene(ctx context.Context, id string) (*Scene, error)
	GetSceneByName(ctx context.Context, name string) (*Scene, error)
	ListScenes(ctx context.Context, filter SceneFilter) ([]*Scene, error)
	RenameScene(ctx context.Context, id, name string) error
	DeleteScene(ctx context.Context, id string) error

	// Revisions (append-only)
	SaveRevision(ctx context.Context, sceneID string, doc *schema.SceneDocument) (*Revision, error)
	GetRevision(ctx context.Context, sceneID string, revision int64) (*Revision, error)
	ListRevisions(ctx context.Context, sceneID string) ([]*Revision, error)
	PruneRevisions(ctx context.Context, sceneID string, keep int) (int64, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, sceneID string, since int64) ([]*Event, error)
	GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
