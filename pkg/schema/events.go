package schema

// View notification event types. Published after the corresponding
// mutation commits.
const (
	EventNodeAdded         = "node_added"
	EventNodeRemoved       = "node_removed"
	EventNodeMoved         = "node_moved"
	EventConnectionAdded   = "connection_added"
	EventConnectionRemoved = "connection_removed"

	EventSceneLoaded  = "scene_loaded"
	EventSceneSaved   = "scene_saved"
	EventSceneCleared = "scene_cleared"
	EventSceneDeleted = "scene_deleted"

	EventPropagationDropped = "propagation_dropped"
)

// CyclePolicy selects how the graph treats edges that close a directed cycle.
type CyclePolicy string

const (
	CyclesReject CyclePolicy = "reject"
	CyclesAllow  CyclePolicy = "allow"
)
