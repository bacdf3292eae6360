package flow

import (
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/rendis/nodeflow/pkg/schema"
)

// DefaultMaxPropagationDepth bounds nested SetInData deliveries when cycles
// are allowed.
const DefaultMaxPropagationDepth = 256

// Graph owns nodes and connections, enforces structural and type
// invariants and drives synchronous push propagation.
//
// A Graph is not safe for concurrent use. Every operation runs to
// completion on the calling goroutine.
type Graph struct {
	models     *ModelRegistry
	converters *ConverterRegistry
	logger     *slog.Logger

	maxDepth    int
	cyclePolicy schema.CyclePolicy

	nodes     map[NodeID]*Node
	nodeOrder []NodeID

	edges     map[ConnectionID]*edge
	conns     map[ConnectionID]*Connection
	connOrder []ConnectionID

	subscribers []subscriber
	nextSub     uint64

	depth   int
	dropped []error
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the graph logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMaxPropagationDepth bounds nested deliveries. Values below 1 are ignored.
func WithMaxPropagationDepth(n int) Option {
	return func(g *Graph) {
		if n > 0 {
			g.maxDepth = n
		}
	}
}

// WithCyclePolicy selects whether Connect rejects edges that close a cycle.
func WithCyclePolicy(p schema.CyclePolicy) Option {
	return func(g *Graph) {
		if p == schema.CyclesAllow || p == schema.CyclesReject {
			g.cyclePolicy = p
		}
	}
}

// New creates an empty graph. A nil converter registry disables conversion.
func New(models *ModelRegistry, converters *ConverterRegistry, opts ...Option) *Graph {
	if models == nil {
		models = NewModelRegistry()
	}
	if converters == nil {
		converters = NewConverterRegistry()
	}
	g := &Graph{
		models:      models,
		converters:  converters,
		maxDepth:    DefaultMaxPropagationDepth,
		cyclePolicy: schema.CyclesReject,
		nodes:       make(map[NodeID]*Node),
		edges:       make(map[ConnectionID]*edge),
		conns:       make(map[ConnectionID]*Connection),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return g
}

// Models returns the registry used by AddNode.
func (g *Graph) Models() *ModelRegistry { return g.models }

// Converters returns the registry consulted by Connect.
func (g *Graph) Converters() *ConverterRegistry { return g.converters }

// CyclePolicy returns the active cycle policy.
func (g *Graph) CyclePolicy() schema.CyclePolicy { return g.cyclePolicy }

// guard rejects structural mutations issued from inside a propagation.
func (g *Graph) guard(op string) error {
	if g.Propagating() {
		return schema.NewErrorf(schema.ErrCodeReentrant, "%s called during propagation", op)
	}
	return nil
}

// AddNode creates a node of the named model type at pos.
func (g *Graph) AddNode(modelName string, pos schema.Position) (NodeID, error) {
	if err := g.guard("AddNode"); err != nil {
		return uuid.Nil, err
	}
	n, err := g.addNode(uuid.New(), modelName, pos)
	if err != nil {
		return uuid.Nil, err
	}
	return n.id, nil
}

func (g *Graph) addNode(id NodeID, modelName string, pos schema.Position) (*Node, error) {
	if _, exists := g.nodes[id]; exists {
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "node %s already exists", id)
	}
	model, err := g.models.Create(modelName)
	if err != nil {
		return nil, err
	}
	n := newNode(id, modelName, model)
	n.position = pos
	g.insertNode(n)

	g.logger.Debug("node added", "node_id", id.String(), "model", modelName)
	g.notify(Event{Kind: schema.EventNodeAdded, Node: id, Position: pos})
	return n, nil
}

func (g *Graph) insertNode(n *Node) {
	g.nodes[n.id] = n
	g.nodeOrder = append(g.nodeOrder, n.id)
	g.bind(n)
}

// bind installs g's propagation closure as the model's output listener.
func (g *Graph) bind(n *Node) {
	id := n.id
	n.model.OnDataUpdated(func(idx PortIndex) {
		g.propagate(id, idx)
	})
}

// RemoveNode severs every connection incident to the node, then destroys
// it. Unknown ids are a no-op.
func (g *Graph) RemoveNode(id NodeID) error {
	if err := g.guard("RemoveNode"); err != nil {
		return err
	}
	g.removeNode(id)
	return nil
}

// RemoveNodeWithConnections is RemoveNode; a node is never destroyed while
// connections still reference it.
func (g *Graph) RemoveNodeWithConnections(id NodeID) error {
	return g.RemoveNode(id)
}

func (g *Graph) removeNode(id NodeID) {
	n, ok := g.nodes[id]
	if !ok {
		return
	}
	n.model.OnDataUpdated(nil)
	for _, cid := range g.logicalAt(n) {
		g.removeLogical(cid)
	}
	// Removing a converter's logical connection may already have destroyed it.
	if _, ok := g.nodes[id]; !ok {
		return
	}
	g.destroyNode(n)
	if !n.converter {
		g.notify(Event{Kind: schema.EventNodeRemoved, Node: id, Position: n.position})
	}
}

func (g *Graph) destroyNode(n *Node) {
	n.model.OnDataUpdated(nil)
	delete(g.nodes, n.id)
	for i, id := range g.nodeOrder {
		if id == n.id {
			g.nodeOrder = append(g.nodeOrder[:i:i], g.nodeOrder[i+1:]...)
			break
		}
	}
	g.logger.Debug("node removed", "node_id", n.id.String(), "model", n.modelName)
}

// RemoveNodes removes a batch of nodes with their connections.
func (g *Graph) RemoveNodes(ids ...NodeID) error {
	if err := g.guard("RemoveNodes"); err != nil {
		return err
	}
	for _, id := range ids {
		g.removeNode(id)
	}
	return nil
}

// DeleteSelection removes the given nodes, then whichever of the given
// connections still exist.
func (g *Graph) DeleteSelection(nodes []NodeID, connections []ConnectionID) error {
	if err := g.RemoveNodes(nodes...); err != nil {
		return err
	}
	for _, cid := range connections {
		if _, ok := g.conns[cid]; ok {
			g.removeLogical(cid)
		}
	}
	return nil
}

// MoveNode updates a node's position. Unknown ids are a no-op.
func (g *Graph) MoveNode(id NodeID, pos schema.Position) error {
	if err := g.guard("MoveNode"); err != nil {
		return err
	}
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	n.position = pos
	g.notify(Event{Kind: schema.EventNodeMoved, Node: id, Position: pos})
	return nil
}

// SetNodeLayer sets a node's z-order layer. Unknown ids are a no-op.
func (g *Graph) SetNodeLayer(id NodeID, layer int) error {
	if err := g.guard("SetNodeLayer"); err != nil {
		return err
	}
	if n, ok := g.nodes[id]; ok {
		n.layer = layer
	}
	return nil
}

// SetNodeState hands a new state record to the node's model. Models that
// change output as a result emit, so the change propagates before return.
func (g *Graph) SetNodeState(id NodeID, state map[string]any) error {
	if err := g.guard("SetNodeState"); err != nil {
		return err
	}
	n, ok := g.nodes[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", id)
	}
	if err := n.model.Restore(state); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid state: %v", err).
			WithNode(id.String()).WithCause(err)
	}
	return nil
}

// Connect links outNode:outPort to inNode:inPort. Mismatched types are
// bridged by a hidden converter node when one is registered. The current
// output of the source port, if any, is pushed to the new input exactly
// once before Connect returns.
func (g *Graph) Connect(outNode NodeID, outPort PortIndex, inNode NodeID, inPort PortIndex) (Connection, error) {
	if err := g.guard("Connect"); err != nil {
		return Connection{}, err
	}

	src, ok := g.nodes[outNode]
	if !ok {
		return Connection{}, schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", outNode)
	}
	dst, ok := g.nodes[inNode]
	if !ok {
		return Connection{}, schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", inNode)
	}
	for _, n := range []*Node{src, dst} {
		if n.converter {
			return Connection{}, schema.NewErrorf(schema.ErrCodeInvalidPort,
				"converter node %s cannot be connected directly", n.id).WithNode(n.id.String())
		}
	}
	if !src.validPort(PortOut, outPort) {
		return Connection{}, schema.NewErrorf(schema.ErrCodeInvalidPort,
			"output port %d out of range (node has %d)", outPort, len(src.out)).WithNode(outNode.String())
	}
	if !dst.validPort(PortIn, inPort) {
		return Connection{}, schema.NewErrorf(schema.ErrCodeInvalidPort,
			"input port %d out of range (node has %d)", inPort, len(dst.in)).WithNode(inNode.String())
	}
	if dst.model.PortPolicy(inPort) == PolicyOne && len(dst.in[inPort]) > 0 {
		return Connection{}, schema.NewErrorf(schema.ErrCodePolicyViolation,
			"input port %d already connected", inPort).WithNode(inNode.String())
	}
	if _, exists := g.findLogical(outNode, outPort, inNode, inPort); exists {
		return Connection{}, schema.NewErrorf(schema.ErrCodeConflict,
			"%s:%d is already connected to %s:%d", outNode, outPort, inNode, inPort)
	}
	if g.cyclePolicy == schema.CyclesReject && g.reachable(inNode, outNode) {
		return Connection{}, schema.NewErrorf(schema.ErrCodeCycleDetected,
			"connecting %s to %s would create a cycle", outNode, inNode)
	}

	outType := src.model.DataType(PortOut, outPort)
	inType := dst.model.DataType(PortIn, inPort)

	conn := Connection{
		ID:  uuid.New(),
		Out: PortRef{Node: outNode, Index: outPort},
		In:  PortRef{Node: inNode, Index: inPort},
	}

	var first *edge
	if Compatible(outType, inType) {
		first = g.link(conn.ID, conn.ID, conn.Out, conn.In)
	} else {
		factory, ok := g.converters.Lookup(outType.ID, inType.ID)
		if !ok {
			return Connection{}, schema.NewErrorf(schema.ErrCodeIncompatibleTypes,
				"cannot connect %s to %s", outType, inType).
				WithDetails(map[string]any{"out_type": outType.ID, "in_type": inType.ID})
		}
		conv, err := g.newConverter(factory, outType, inType)
		if err != nil {
			return Connection{}, err
		}
		conn.Converter = conv.id
		first = g.link(uuid.New(), conn.ID, conn.Out, PortRef{Node: conv.id})
		g.link(uuid.New(), conn.ID, PortRef{Node: conv.id}, conn.In)
	}

	g.conns[conn.ID] = &conn
	g.connOrder = append(g.connOrder, conn.ID)

	g.logger.Debug("connection added", "connection_id", conn.ID.String(), "out", conn.Out.String(),
		"in", conn.In.String(), "converted", conn.Converted())

	if data := src.model.OutData(outPort); data != nil {
		g.deliver(first, data)
	}
	g.notify(Event{Kind: schema.EventConnectionAdded, Connection: conn})
	return conn, nil
}

func (g *Graph) newConverter(factory ConverterFactory, from, to DataType) (*Node, error) {
	model := factory()
	if model == nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "converter factory %s -> %s returned nil", from.ID, to.ID)
	}
	if model.NumPorts(PortIn) < 1 || model.NumPorts(PortOut) < 1 {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"converter %s has no input or output port", model.Name())
	}
	n := newNode(uuid.New(), model.Name(), model)
	n.converter = true
	g.insertNode(n)
	return n, nil
}

func (g *Graph) link(id, logical ConnectionID, out, in PortRef) *edge {
	e := &edge{id: id, out: out, in: in, logical: logical}
	g.edges[id] = e
	g.nodes[out.Node].attach(PortOut, out.Index, id)
	g.nodes[in.Node].attach(PortIn, in.Index, id)
	return e
}

func (g *Graph) unlink(e *edge) {
	if n, ok := g.nodes[e.out.Node]; ok {
		n.detach(PortOut, e.out.Index, e.id)
	}
	if n, ok := g.nodes[e.in.Node]; ok {
		n.detach(PortIn, e.in.Index, e.id)
	}
	delete(g.edges, e.id)
}

// RemoveConnection removes the logical connection joining the given
// endpoints, including any converter node it leaves unconnected.
func (g *Graph) RemoveConnection(outNode NodeID, outPort PortIndex, inNode NodeID, inPort PortIndex) error {
	if err := g.guard("RemoveConnection"); err != nil {
		return err
	}
	cid, ok := g.findLogical(outNode, outPort, inNode, inPort)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "no connection %s:%d -> %s:%d",
			outNode, outPort, inNode, inPort)
	}
	g.removeLogical(cid)
	return nil
}

// RemoveConnectionByID removes a logical connection by its identifier.
func (g *Graph) RemoveConnectionByID(id ConnectionID) error {
	if err := g.guard("RemoveConnection"); err != nil {
		return err
	}
	if _, ok := g.conns[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "connection %s not found", id)
	}
	g.removeLogical(id)
	return nil
}

func (g *Graph) findLogical(outNode NodeID, outPort PortIndex, inNode NodeID, inPort PortIndex) (ConnectionID, bool) {
	for _, cid := range g.connOrder {
		if g.conns[cid].Matches(outNode, outPort, inNode, inPort) {
			return cid, true
		}
	}
	return uuid.Nil, false
}

func (g *Graph) removeLogical(cid ConnectionID) {
	conn, ok := g.conns[cid]
	if !ok {
		return
	}
	for _, e := range g.edgesOf(cid) {
		g.unlink(e)
	}
	delete(g.conns, cid)
	for i, id := range g.connOrder {
		if id == cid {
			g.connOrder = append(g.connOrder[:i:i], g.connOrder[i+1:]...)
			break
		}
	}
	if conn.Converted() {
		if conv, ok := g.nodes[conn.Converter]; ok && conv.edgeCount() == 0 {
			g.destroyNode(conv)
		}
	}

	g.logger.Debug("connection removed", "connection_id", cid.String())

	g.push(conn.In, nil)
	g.notify(Event{Kind: schema.EventConnectionRemoved, Connection: *conn})
}

func (g *Graph) edgesOf(cid ConnectionID) []*edge {
	var out []*edge
	for _, e := range g.edges {
		if e.logical == cid {
			out = append(out, e)
		}
	}
	return out
}

// logicalAt returns the logical connections touching any port of n.
func (g *Graph) logicalAt(n *Node) []ConnectionID {
	seen := make(map[ConnectionID]bool)
	var out []ConnectionID
	collect := func(slots [][]ConnectionID) {
		for _, ids := range slots {
			for _, eid := range ids {
				e, ok := g.edges[eid]
				if !ok || seen[e.logical] {
					continue
				}
				seen[e.logical] = true
				out = append(out, e.logical)
			}
		}
	}
	collect(n.in)
	collect(n.out)
	return out
}

// Clear drops every node and connection without per-item notifications.
func (g *Graph) Clear() error {
	if err := g.guard("Clear"); err != nil {
		return err
	}
	g.clear()
	g.notify(Event{Kind: schema.EventSceneCleared})
	return nil
}

func (g *Graph) clear() {
	for _, n := range g.nodes {
		n.model.OnDataUpdated(nil)
	}
	g.nodes = make(map[NodeID]*Node)
	g.nodeOrder = nil
	g.edges = make(map[ConnectionID]*edge)
	g.conns = make(map[ConnectionID]*Connection)
	g.connOrder = nil
	g.dropped = nil
}
