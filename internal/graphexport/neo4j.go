// Package graphexport mirrors saved scenes into Neo4j, where each node
// becomes a (:FlowNode) and each connection a [:CONNECTS] relationship.
package graphexport

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/rendis/nodeflow/pkg/schema"
)

// Exporter writes scene snapshots to an external graph database.
type Exporter interface {
	ExportScene(ctx context.Context, sceneID, name string, revision int64, doc *schema.SceneDocument) error
	DeleteScene(ctx context.Context, sceneID string) error
	Close(ctx context.Context) error
}

// Config holds Neo4j connection configuration.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jExporter implements Exporter over the Neo4j bolt driver.
type Neo4jExporter struct {
	driver   neo4j.DriverWithContext
	database string
}

var _ Exporter = (*Neo4jExporter)(nil)

// NewNeo4jExporter connects to Neo4j and verifies connectivity.
func NewNeo4jExporter(ctx context.Context, cfg Config) (*Neo4jExporter, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	db := cfg.Database
	if db == "" {
		db = "neo4j"
	}
	return &Neo4jExporter{driver: driver, database: db}, nil
}

// ExportScene replaces the mirrored copy of a scene with doc.
func (e *Neo4jExporter) ExportScene(ctx context.Context, sceneID, name string, revision int64, doc *schema.SceneDocument) error {
	stmts, err := exportStatements(sceneID, name, revision, doc)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "build export").WithCause(err)
	}
	if err := e.write(ctx, stmts); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "export scene %s", sceneID).WithCause(err)
	}
	return nil
}

// DeleteScene removes a scene and its nodes from the mirror.
func (e *Neo4jExporter) DeleteScene(ctx context.Context, sceneID string) error {
	stmts := []statement{{Query: deleteSceneQuery, Params: map[string]any{"scene_id": sceneID}}}
	if err := e.write(ctx, stmts); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "delete scene %s", sceneID).WithCause(err)
	}
	return nil
}

// Close closes the Neo4j connection.
func (e *Neo4jExporter) Close(ctx context.Context) error {
	return e.driver.Close(ctx)
}

func (e *Neo4jExporter) write(ctx context.Context, stmts []statement) error {
	session := e.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: e.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, st := range stmts {
			result, err := tx.Run(ctx, st.Query, st.Params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}
