package schema

// SceneFormatVersion is the current persisted scene layout version.
const SceneFormatVersion = 1

// ModelNameKey is the key under which a node record's model structure
// carries the registered model type name.
const ModelNameKey = "name"

// SceneDocument is the ordered, JSON-serializable record of a graph.
// Node and connection order is the replay order used by restore.
type SceneDocument struct {
	Version     int                `json:"version"`
	Nodes       []NodeRecord       `json:"nodes"`
	Connections []ConnectionRecord `json:"connections"`
}

// NodeRecord persists a node's identity, position and model state.
type NodeRecord struct {
	ID       string         `json:"id"`
	Position Position       `json:"position"`
	Layer    int            `json:"layer,omitempty"`
	Model    map[string]any `json:"model"`
}

// ModelName returns the model type name stored in the record, or "".
func (r NodeRecord) ModelName() string {
	name, _ := r.Model[ModelNameKey].(string)
	return name
}

// Position is a 2D scene coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ConnectionRecord persists one logical connection by its four endpoint fields.
type ConnectionRecord struct {
	OutNodeID    string `json:"out_id"`
	OutPortIndex int    `json:"out_index"`
	InNodeID     string `json:"in_id"`
	InPortIndex  int    `json:"in_index"`
}
